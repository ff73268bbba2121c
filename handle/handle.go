package handle

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/wippyai/gpr-bridge/errors"
)

// state is the part of a handle the Manager and cleanups may reference.
// It must never point back at its Handle.
type state struct {
	mgr      *Manager
	kind     Kind
	id       ID
	addr     uint32
	released atomic.Bool
}

// Handle owns one native resource.
type Handle struct {
	st      *state
	cleanup runtime.Cleanup
}

// Unwrap returns the native address. A nil or released handle is a
// lifecycle error.
func (h *Handle) Unwrap() (uint32, error) {
	if h == nil || h.st == nil {
		return 0, errors.Lifecycle("handle", "use of absent handle")
	}
	if h.st.released.Load() {
		return 0, errors.Lifecycle(h.st.kind.Name, "use after release")
	}
	return h.st.addr, nil
}

// Release frees the resource through its kind's free export. Only the
// first call reaches the library.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.st == nil {
		return errors.Lifecycle("handle", "release of absent handle")
	}
	if !h.st.released.CompareAndSwap(false, true) {
		return errors.Lifecycle(h.st.kind.Name, "already released")
	}
	if h.st.mgr.freeOnCollect {
		h.cleanup.Stop()
	}
	return h.st.mgr.free(ctx, h.st, false)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h == nil || h.st == nil || h.st.released.Load()
}

// Kind returns the resource kind.
func (h *Handle) Kind() Kind {
	if h == nil || h.st == nil {
		return Kind{}
	}
	return h.st.kind
}

// ID returns the handle's identity within its Manager.
func (h *Handle) ID() ID {
	if h == nil || h.st == nil {
		return 0
	}
	return h.st.id
}

func (h *Handle) String() string {
	if h == nil || h.st == nil {
		return "handle(nil)"
	}
	if h.st.released.Load() {
		return fmt.Sprintf("%s#%d(released)", h.st.kind.Name, h.st.id)
	}
	return fmt.Sprintf("%s#%d(%#x)", h.st.kind.Name, h.st.id, h.st.addr)
}
