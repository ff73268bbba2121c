package native

import (
	"context"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

// Symbols names the library exports the bridge relies on outside of the
// operation table.
type Symbols struct {
	Malloc          string
	Free            string
	FreeStringArray string
	// LastError is optional. When exported it returns a library-owned
	// message describing the most recent hard failure.
	LastError string
}

// DefaultSymbols are the export names of the project library.
var DefaultSymbols = Symbols{
	Malloc:          "gpr_malloc",
	Free:            "gpr_free",
	FreeStringArray: "gpr_free_string_array",
	LastError:       "gpr_last_error",
}

// NewAllocator returns an Allocator backed by the library's malloc/free exports.
func NewAllocator(ctx context.Context, lib gprbridge.Library, sym Symbols) *Allocator {
	if lib == nil {
		return nil
	}
	return &Allocator{Ctx: ctx, Lib: lib, Malloc: sym.Malloc, FreeFn: sym.Free}
}

// Allocator adapts the library's malloc/free exports to gprbridge.Allocator.
type Allocator struct {
	Ctx    context.Context
	Lib    gprbridge.Library
	Malloc string
	FreeFn string
}

// Alloc allocates size bytes on the native heap.
func (a *Allocator) Alloc(size uint32) (uint32, error) {
	results, err := a.Lib.Call(a.Ctx, a.Malloc, uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, err)
	}
	if len(results) == 0 {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Export(a.Malloc).
			Detail("allocation returned no result").
			Build()
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, nil)
	}
	return ptr, nil
}

// Free releases a block obtained from Alloc. Free(0) is a no-op.
func (a *Allocator) Free(ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	_, err := a.Lib.Call(a.Ctx, a.FreeFn, uint64(ptr))
	return err
}
