package memory

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/log"
)

type Stats struct {
	Total      uint32
	Used       uint32
	Free       uint32
	BlockCount uint32
	UsedBlocks uint32
	FreeBlocks uint32
}

// Overhead is the arena space taken by block headers.
func (s Stats) Overhead() uint32 {
	return s.BlockCount * HeaderSize
}

// Block describes one node of the block list.
type Block struct {
	Offset uint32
	Size   uint32
	Used   bool
}

// Payload returns the pointer Alloc handed out for this block.
func (b Block) Payload() Ptr {
	return Ptr(b.Offset + HeaderSize)
}

func (h *Heap) walk(fn func(off uint32, hdr *blockHeader) bool) {
	off := uint32(0)
	for {
		hdr := h.header(off)
		if !fn(off, hdr) || hdr.Next == 0 {
			return
		}

		off = hdr.Next
	}
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Stats{Total: uint32(len(h.arena))}

	h.walk(func(_ uint32, hdr *blockHeader) bool {
		stats.BlockCount++

		if hdr.Used != 0 {
			stats.Used += hdr.Size
			stats.UsedBlocks++
		} else {
			stats.Free += hdr.Size
			stats.FreeBlocks++
		}

		return true
	})

	return stats
}

// Blocks returns the block list in address order.
func (h *Heap) Blocks() []Block {
	h.mu.Lock()
	defer h.mu.Unlock()

	var blocks []Block

	h.walk(func(off uint32, hdr *blockHeader) bool {
		blocks = append(blocks, Block{
			Offset: off,
			Size:   hdr.Size,
			Used:   hdr.Used != 0,
		})
		return true
	})

	return blocks
}

var ErrCorrupt = errors.New("heap corrupt")

// Check walks the block list and verifies the arena layout: blocks are
// contiguous and cover the arena, sizes are aligned and at least the
// minimum payload, and no two neighbours are both free.
func (h *Heap) Check() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var (
		err      error
		expect   uint32
		prevFree bool
	)

	h.walk(func(off uint32, hdr *blockHeader) bool {
		switch {
		case hdr.Magic != blockMagic:
			err = errors.Wrapf(ErrCorrupt, "bad magic at offset=%d", off)
		case off != expect:
			err = errors.Wrapf(ErrCorrupt, "gap at offset=%d, expected=%d", off, expect)
		case hdr.Size%Alignment != 0 || hdr.Size < MinBlockSize:
			err = errors.Wrapf(ErrCorrupt, "bad size=%d at offset=%d", hdr.Size, off)
		case prevFree && hdr.Used == 0:
			err = errors.Wrapf(ErrCorrupt, "uncoalesced free blocks at offset=%d", off)
		case hdr.Next != 0 && hdr.Next != off+HeaderSize+hdr.Size:
			err = errors.Wrapf(ErrCorrupt, "next=%d does not follow offset=%d", hdr.Next, off)
		}

		if err != nil {
			return false
		}

		expect = off + HeaderSize + hdr.Size
		prevFree = hdr.Used == 0

		return true
	})

	if err != nil {
		return err
	}

	if expect != uint32(len(h.arena)) {
		return errors.Wrapf(ErrCorrupt, "blocks cover %d of %d bytes", expect, len(h.arena))
	}

	return nil
}

// Dump renders the memory map followed by the statistics.
func (h *Heap) Dump(w io.Writer) error {
	blocks := h.Blocks()
	stats := h.Stats()

	if log.L.IsTrace() {
		log.L.Trace("heap-dump", "blocks", spew.Sdump(blocks))
	}

	tw := tabwriter.NewWriter(w, 4, 8, 1, ' ', 0)

	fmt.Fprintf(tw, "Memory Map:\n")
	fmt.Fprintf(tw, "ADDR\tSIZE\tSTATE\n")
	for _, b := range blocks {
		state := "FREE"
		if b.Used {
			state = "USED"
		}

		fmt.Fprintf(tw, "0x%06x\t%d\t%s\n", b.Offset, b.Size, state)
	}

	fmt.Fprintf(tw, "\nMemory Statistics:\n")
	fmt.Fprintf(tw, "  Total:\t%d bytes\n", stats.Total)
	fmt.Fprintf(tw, "  Used:\t%d bytes\n", stats.Used)
	fmt.Fprintf(tw, "  Free:\t%d bytes\n", stats.Free)
	fmt.Fprintf(tw, "  Blocks:\t%d (%d used, %d free)\n", stats.BlockCount, stats.UsedBlocks, stats.FreeBlocks)

	return tw.Flush()
}
