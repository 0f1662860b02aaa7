// Package bpath implements path canonicalization for the fd/cwd layer. The
// teacher's fd.go calls bpath.Canonicalize but the package was never
// present in the retrieved fragment; this is a fresh implementation in the
// same spirit (collapse "." and ".." components against a base path).
package bpath

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize resolves "." and ".." components of rel against base,
// returning an absolute, slash-separated path with no trailing slash
// (except the root). rel is first run through Unicode NFC normalization so
// that visually-identical paths compare equal regardless of
// combining-character representation; base is used as given.
func Canonicalize(base, rel string) string {
	rel = norm.NFC.String(rel)
	var parts []string
	if !strings.HasPrefix(rel, "/") {
		parts = splitParts(base)
	}
	parts = append(parts, splitParts(rel)...)

	var stack []string
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, p)
		}
	}
	return "/" + strings.Join(stack, "/")
}

func splitParts(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
