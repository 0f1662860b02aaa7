// Command mkdiskimg builds a flat file disk image with a single valid MBR
// partition entry, for driving the block package's discovery path in tests
// and demos without real hardware. Adapted from the teacher's mkfs
// command's role of producing a bootable disk image; this tool only lays
// down the partition table, leaving the filesystem payload to whatever
// prober later claims the partition.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"os"

	"pastoral/pkg/block"
)

func main() {
	out := flag.String("o", "disk.img", "output image path")
	totalBlocks := flag.Int("blocks", 1<<16, "total 512-byte blocks in the image")
	partStart := flag.Int("part-start", 2048, "partition start LBA")
	partLen := flag.Int("part-len", 1000, "partition length in blocks")
	partType := flag.Int("part-type", 0x83, "partition type byte")
	flag.Parse()

	if *partStart+*partLen > *totalBlocks {
		log.Fatal("partition does not fit in image")
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	if err := f.Truncate(int64(*totalBlocks) * int64(block.BlockSize)); err != nil {
		log.Fatal(err)
	}

	mbr := make([]byte, block.BlockSize)
	mbr[510] = 0x55
	mbr[511] = 0xAA

	entry := mbr[0x1BE : 0x1BE+16]
	entry[4] = byte(*partType)
	binary.LittleEndian.PutUint32(entry[8:12], uint32(*partStart))
	binary.LittleEndian.PutUint32(entry[12:16], uint32(*partLen))

	if _, err := f.WriteAt(mbr, 0); err != nil {
		log.Fatal(err)
	}
	log.Printf("mkdiskimg: wrote %s (%d blocks, partition type 0x%x at lba %d len %d)",
		*out, *totalBlocks, *partType, *partStart, *partLen)
}
