package nativetest

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/gpr-bridge/errors"
)

const (
	// staticBase..heapBase holds library-owned data that is never freed.
	staticBase = 64
	staticSize = 1024
	heapBase   = 4096
	heapAlign  = 8
)

// Heap is a bump allocator over a growable byte slice. Addresses are never
// reused, so a stale address can always be told apart from a live one.
type Heap struct {
	mem        []byte
	live       map[uint32]uint32
	next       uint32
	allocs     int
	frees      int
	violations []string
}

func newHeap(size uint32) *Heap {
	if size < heapBase*2 {
		size = heapBase * 2
	}
	return &Heap{
		mem:  make([]byte, size),
		live: make(map[uint32]uint32),
		next: heapBase,
	}
}

func (h *Heap) alloc(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	ptr := h.next
	end := ptr + size
	h.next = (end + heapAlign - 1) &^ (heapAlign - 1)
	if int(h.next) > len(h.mem) {
		grow := len(h.mem)
		for int(h.next) > len(h.mem)+grow {
			grow *= 2
		}
		h.mem = append(h.mem, make([]byte, grow)...)
	}
	clear(h.mem[ptr:end])
	h.live[ptr] = size
	h.allocs++
	return ptr
}

func (h *Heap) free(ptr uint32, what string) {
	if ptr == 0 {
		return
	}
	if _, ok := h.live[ptr]; !ok {
		h.violations = append(h.violations, fmt.Sprintf("free of %s at %#x that is not live", what, ptr))
		return
	}
	delete(h.live, ptr)
	h.frees++
}

func (h *Heap) isLive(ptr uint32) bool {
	_, ok := h.live[ptr]
	return ok
}

func (h *Heap) violate(format string, args ...any) {
	h.violations = append(h.violations, fmt.Sprintf(format, args...))
}

func (h *Heap) inBounds(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(len(h.mem))
}

func (h *Heap) u32(offset uint32) uint32 {
	if !h.inBounds(offset, 4) {
		h.violate("read out of bounds at %#x", offset)
		return 0
	}
	return binary.LittleEndian.Uint32(h.mem[offset:])
}

func (h *Heap) putU32(offset, v uint32) {
	if !h.inBounds(offset, 4) {
		h.violate("write out of bounds at %#x", offset)
		return
	}
	binary.LittleEndian.PutUint32(h.mem[offset:], v)
}

func (h *Heap) cstring(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	end := ptr
	for int(end) < len(h.mem) && h.mem[end] != 0 {
		end++
	}
	return string(h.mem[ptr:end])
}

func (h *Heap) newCString(s string) uint32 {
	ptr := h.alloc(uint32(len(s)) + 1)
	copy(h.mem[ptr:], s)
	h.mem[ptr+uint32(len(s))] = 0
	return ptr
}

// memory exposes the heap as gprbridge.Memory.
type memory struct {
	lib *Library
}

func (m *memory) Read(offset uint32, length uint32) ([]byte, error) {
	h := m.lib.heap
	if !h.inBounds(offset, length) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, offset, length)
	}
	return h.mem[offset : offset+length], nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	h := m.lib.heap
	if !h.inBounds(offset, uint32(len(data))) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, offset, uint32(len(data)))
	}
	copy(h.mem[offset:], data)
	return nil
}

func (m *memory) ReadU8(offset uint32) (uint8, error) {
	h := m.lib.heap
	if !h.inBounds(offset, 1) {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, offset, 1)
	}
	return h.mem[offset], nil
}

func (m *memory) ReadU32(offset uint32) (uint32, error) {
	h := m.lib.heap
	if !h.inBounds(offset, 4) {
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, offset, 4)
	}
	return binary.LittleEndian.Uint32(h.mem[offset:]), nil
}

func (m *memory) WriteU8(offset uint32, value uint8) error {
	h := m.lib.heap
	if !h.inBounds(offset, 1) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, offset, 1)
	}
	h.mem[offset] = value
	return nil
}

func (m *memory) WriteU32(offset uint32, value uint32) error {
	h := m.lib.heap
	if !h.inBounds(offset, 4) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, offset, 4)
	}
	binary.LittleEndian.PutUint32(h.mem[offset:], value)
	return nil
}

func (m *memory) Size() uint32 {
	return uint32(len(m.lib.heap.mem))
}
