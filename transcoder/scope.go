package transcoder

import (
	stderrors "errors"
	"sync"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

type Allocator = gprbridge.Allocator

// Scope collects the ephemeral native allocations of one bridge call.
// Everything allocated through it is freed by a single Free.
type Scope struct {
	alloc Allocator
	ptrs  []uint32
	freed bool
}

var scopePool = sync.Pool{
	New: func() any {
		return &Scope{ptrs: make([]uint32, 0, 8)}
	},
}

const maxPooledScopeCapacity = 128

// NewScope returns an empty scope allocating from alloc.
func NewScope(alloc Allocator) *Scope {
	s := scopePool.Get().(*Scope)
	s.alloc = alloc
	s.freed = false
	return s
}

// Alloc allocates size bytes that live until Free.
func (s *Scope) Alloc(size uint32) (uint32, error) {
	if s.alloc == nil {
		return 0, errors.NotInitialized(errors.PhaseEncode, "allocator")
	}
	if s.freed {
		return 0, errors.Lifecycle("scope", "allocation after free")
	}
	ptr, err := s.alloc.Alloc(size)
	if err != nil {
		return 0, err
	}
	s.ptrs = append(s.ptrs, ptr)
	return ptr, nil
}

// Slot allocates a zeroed 4-byte out-parameter.
func (s *Scope) Slot(mem Memory) (uint32, error) {
	ptr, err := s.Alloc(4)
	if err != nil {
		return 0, err
	}
	if err := mem.WriteU32(ptr, 0); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Count returns the number of live allocations.
func (s *Scope) Count() int {
	return len(s.ptrs)
}

// Free releases every allocation in reverse order. Only the first call
// frees anything; all allocations are attempted even if some fail.
func (s *Scope) Free() error {
	if s.freed {
		return nil
	}
	s.freed = true

	var errs []error
	for i := len(s.ptrs) - 1; i >= 0; i-- {
		if err := s.alloc.Free(s.ptrs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.ptrs = s.ptrs[:0]
	return stderrors.Join(errs...)
}

// Release returns the scope to the pool. The scope is invalid afterwards.
func (s *Scope) Release() {
	if cap(s.ptrs) > maxPooledScopeCapacity {
		return
	}
	s.ptrs = s.ptrs[:0]
	s.alloc = nil
	scopePool.Put(s)
}

// FreeAndRelease frees all allocations and returns the scope to the pool.
func (s *Scope) FreeAndRelease() error {
	err := s.Free()
	s.Release()
	return err
}
