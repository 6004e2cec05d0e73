package memory

import (
	"sync"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/log"
)

const (
	// HeaderSize is the size of the header embedded in front of every
	// block's payload.
	HeaderSize = 16

	// MinBlockSize is the smallest payload a block may carry.
	MinBlockSize = 32

	// Alignment of every payload size.
	Alignment = 4

	// DefaultArenaSize is the arena size used when none is configured.
	DefaultArenaSize = 256 * 1024

	blockMagic = 0x4a41534f // "JASO"
)

var (
	ErrOutOfMemory   = errors.New("out of memory")
	ErrArenaTooSmall = errors.New("arena too small")
)

// Ptr is the arena offset of an allocated payload. The zero Ptr is the
// null pointer: no payload can start at offset 0 because the first
// header lives there.
type Ptr uint32

func (p Ptr) IsNil() bool {
	return p == 0
}

// blockHeader is laid over the arena bytes in place. Next is the offset
// of the next header, 0 terminates the list.
type blockHeader struct {
	Size  uint32
	Used  uint32
	Next  uint32
	Magic uint32
}

// Heap is a first-fit allocator with eager coalescing over a fixed byte
// arena. Blocks form an address-ordered singly linked list whose headers
// live inside the arena itself.
type Heap struct {
	mu    sync.Mutex
	arena []byte
}

// NewHeap creates an arena of size bytes and initializes it.
func NewHeap(size uint32) (*Heap, error) {
	if size < HeaderSize+MinBlockSize {
		return nil, errors.Wrapf(ErrArenaTooSmall, "arena size=%d", size)
	}

	h := &Heap{
		arena: make([]byte, alignDown(size)),
	}

	h.Init()

	return h, nil
}

// Init resets the arena to a single free block spanning all of it.
func (h *Heap) Init() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.arena {
		h.arena[i] = 0
	}

	hdr := h.header(0)
	hdr.Size = uint32(len(h.arena)) - HeaderSize
	hdr.Used = 0
	hdr.Next = 0
	hdr.Magic = blockMagic

	log.L.Trace("heap-init", "arena", len(h.arena), "free", hdr.Size)
}

// Size returns the arena size in bytes.
func (h *Heap) Size() uint32 {
	return uint32(len(h.arena))
}

func (h *Heap) header(off uint32) *blockHeader {
	return photon.NewFromBytes[blockHeader](h.arena[off : off+HeaderSize]).V
}

func alignUp(sz uint32) uint32 {
	return (sz + Alignment - 1) &^ (Alignment - 1)
}

func alignDown(sz uint32) uint32 {
	return sz &^ (Alignment - 1)
}

func roundRequest(size uint32) uint32 {
	if size < MinBlockSize {
		size = MinBlockSize
	}

	return alignUp(size)
}

// Alloc returns a pointer to at least size bytes of payload. The lowest
// addressed free block that fits is used, split in place when the
// remainder can hold another header and a minimum payload.
func (h *Heap) Alloc(size uint32) (Ptr, error) {
	if size > uint32(len(h.arena)) {
		return 0, errors.Wrapf(ErrOutOfMemory, "request=%d", size)
	}

	size = roundRequest(size)

	h.mu.Lock()
	defer h.mu.Unlock()

	off := uint32(0)
	for {
		hdr := h.header(off)

		if hdr.Used == 0 && hdr.Size >= size {
			if hdr.Size > size+HeaderSize+MinBlockSize {
				tailOff := off + HeaderSize + size

				tail := h.header(tailOff)
				tail.Size = hdr.Size - size - HeaderSize
				tail.Used = 0
				tail.Next = hdr.Next
				tail.Magic = blockMagic

				hdr.Size = size
				hdr.Next = tailOff
			}

			hdr.Used = 1

			log.L.Trace("heap-alloc", "offset", off, "size", hdr.Size)
			return Ptr(off + HeaderSize), nil
		}

		if hdr.Next == 0 {
			break
		}

		off = hdr.Next
	}

	log.L.Trace("heap-alloc-failed", "size", size)
	return 0, errors.Wrapf(ErrOutOfMemory, "request=%d", size)
}

// Free returns p's block to the free pool and merges it with its free
// neighbours. p must come from Alloc and not have been freed already.
func (h *Heap) Free(p Ptr) {
	if p.IsNil() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	off := uint32(p) - HeaderSize
	hdr := h.header(off)
	hdr.Used = 0

	for hdr.Next != 0 {
		next := h.header(hdr.Next)
		if next.Used != 0 {
			break
		}

		hdr.Size += HeaderSize + next.Size
		hdr.Next = next.Next
		next.Magic = 0
	}

	// No back links, so find the predecessor from the head.
	if off != 0 {
		prevOff := uint32(0)
		for {
			prev := h.header(prevOff)
			if prev.Next == off {
				if prev.Used == 0 {
					prev.Size += HeaderSize + hdr.Size
					prev.Next = hdr.Next
					hdr.Magic = 0
				}
				break
			}

			if prev.Next == 0 {
				break
			}

			prevOff = prev.Next
		}
	}

	log.L.Trace("heap-free", "offset", off)
}

// Bytes projects the payload of p. The slice is only valid until p is
// freed.
func (h *Heap) Bytes(p Ptr) []byte {
	if p.IsNil() {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	off := uint32(p) - HeaderSize
	hdr := h.header(off)

	start := uint32(p)
	return h.arena[start : start+hdr.Size : start+hdr.Size]
}

// SizeOf returns the payload capacity of p's block.
func (h *Heap) SizeOf(p Ptr) uint32 {
	if p.IsNil() {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.header(uint32(p) - HeaderSize).Size
}
