package vm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// FaultDiagnostic_t is a best-effort explanation attached to an unhandled
// page fault (decision-tree branch 3 of Pgfault). It is never consulted by
// the fault handler itself -- purely a debugging aid for whatever reports
// the fault upward, grounded on the instruction-decoding the rest of the
// retrieval pack uses golang.org/x/arch for.
type FaultDiagnostic_t struct {
	FaultAddr uintptr
	ErrCode   uint64
	RIP       uintptr
	Instr     x86asm.Inst
	decodeErr error
}

// Diagnose decodes the instruction at rip (given a short byte window
// captured around it, e.g. from the trap frame's saved code bytes) for
// inclusion in a fault report.
func Diagnose(faultAddr uintptr, errCode uint64, rip uintptr, code []byte) FaultDiagnostic_t {
	d := FaultDiagnostic_t{FaultAddr: faultAddr, ErrCode: errCode, RIP: rip}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		d.decodeErr = err
		return d
	}
	d.Instr = inst
	return d
}

func (d FaultDiagnostic_t) String() string {
	if d.decodeErr != nil {
		return fmt.Sprintf("unhandled fault at %#x (err=%#x) from %#x: <undecodable: %v>",
			d.FaultAddr, d.ErrCode, d.RIP, d.decodeErr)
	}
	return fmt.Sprintf("unhandled fault at %#x (err=%#x) from %#x: %s",
		d.FaultAddr, d.ErrCode, d.RIP, d.Instr.String())
}
