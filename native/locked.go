package native

import (
	"context"
	"sync"

	gprbridge "github.com/wippyai/gpr-bridge"
)

// LockedLibrary serialises every native call made through it.
type LockedLibrary struct {
	lib gprbridge.Library
	mu  sync.Mutex
}

// Locked wraps lib so that calls from several goroutines never overlap.
// Wrapping an already locked library returns it unchanged.
func Locked(lib gprbridge.Library) *LockedLibrary {
	if l, ok := lib.(*LockedLibrary); ok {
		return l
	}
	return &LockedLibrary{lib: lib}
}

func (l *LockedLibrary) Memory() gprbridge.Memory {
	return l.lib.Memory()
}

func (l *LockedLibrary) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lib.Call(ctx, name, params...)
}

// HasExport reports whether the wrapped library exports name.
// Libraries that cannot tell report true.
func (l *LockedLibrary) HasExport(name string) bool {
	if e, ok := l.lib.(interface{ HasExport(string) bool }); ok {
		return e.HasExport(name)
	}
	return true
}

func (l *LockedLibrary) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lib.Close(ctx)
}

// Unwrap returns the wrapped library.
func (l *LockedLibrary) Unwrap() gprbridge.Library {
	return l.lib
}
