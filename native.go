package gprbridge

import "context"

// Memory represents the linear memory of the native library
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory on the native heap.
// Free(0) is a no-op.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr uint32) error
}

// Library is a loaded native project library.
//
// Call invokes an exported function by name. Parameters and results are raw
// core values; addresses are offsets into Memory.
type Library interface {
	Memory() Memory
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)
	Close(ctx context.Context) error
}
