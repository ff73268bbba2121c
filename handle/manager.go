package handle

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/native"
)

// Manager tracks live handles and performs every native release.
type Manager struct {
	lib           gprbridge.Library
	log           *zap.Logger
	entries       map[ID]*state
	observers     []Observer
	sym           native.Symbols
	nextID        ID
	mu            sync.Mutex
	obsMu         sync.RWMutex
	freeOnCollect bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithFreeOnCollect frees unreleased handles once they become unreachable.
func WithFreeOnCollect() Option {
	return func(m *Manager) {
		m.freeOnCollect = true
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSymbols overrides the export names used for ephemeral releases.
func WithSymbols(sym native.Symbols) Option {
	return func(m *Manager) {
		m.sym = sym
	}
}

// WithObserver subscribes o from the start.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// NewManager creates a Manager releasing through lib. Native calls are
// serialised with native.Locked.
func NewManager(lib gprbridge.Library, opts ...Option) *Manager {
	m := &Manager{
		lib:     native.Locked(lib),
		log:     zap.NewNop(),
		entries: make(map[ID]*state),
		sym:     native.DefaultSymbols,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Library returns the serialised library the Manager calls into.
func (m *Manager) Library() gprbridge.Library {
	return m.lib
}

// Wrap takes ownership of the resource at addr. A zero address yields nil.
func (m *Manager) Wrap(kind Kind, addr uint32) *Handle {
	if addr == 0 {
		return nil
	}

	m.mu.Lock()
	m.nextID++
	st := &state{mgr: m, kind: kind, id: m.nextID, addr: addr}
	m.entries[st.id] = st
	m.mu.Unlock()

	h := &Handle{st: st}
	if m.freeOnCollect {
		h.cleanup = runtime.AddCleanup(h, collect, st)
	}

	m.log.Debug("handle wrapped",
		zap.String("kind", kind.Name),
		zap.Uint64("id", uint64(st.id)),
		zap.Uint32("addr", addr),
	)
	m.notify(Event{Type: EventWrapped, Kind: kind, ID: st.id, Addr: addr})
	return h
}

func collect(st *state) {
	if !st.released.CompareAndSwap(false, true) {
		return
	}
	if err := st.mgr.free(context.Background(), st, true); err != nil {
		st.mgr.log.Warn("release on collect failed",
			zap.String("kind", st.kind.Name),
			zap.Uint64("id", uint64(st.id)),
			zap.Error(err),
		)
	}
}

// Release is h.Release.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	return h.Release(ctx)
}

// free performs the native release. The caller has already won the
// released flag.
func (m *Manager) free(ctx context.Context, st *state, collected bool) error {
	m.mu.Lock()
	delete(m.entries, st.id)
	m.mu.Unlock()

	// Ownership ends even when the call fails.
	_, err := m.lib.Call(ctx, st.kind.FreeExport, uint64(st.addr))
	m.notify(Event{Type: EventReleased, Kind: st.kind, ID: st.id, Addr: st.addr, Collected: collected})
	if err != nil {
		return errors.New(errors.PhaseLifecycle, errors.KindTrap).
			Export(st.kind.FreeExport).
			Path(st.kind.Name).
			Cause(err).
			Detail("release of %#x failed", st.addr).
			Build()
	}

	m.log.Debug("handle released",
		zap.String("kind", st.kind.Name),
		zap.Uint64("id", uint64(st.id)),
		zap.Bool("collected", collected),
	)
	return nil
}

// FreeStringArray releases a string array returned by the library.
// A zero address is a no-op.
func (m *Manager) FreeStringArray(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	if _, err := m.lib.Call(ctx, m.sym.FreeStringArray, uint64(ptr)); err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindTrap, err, "free string array")
	}
	m.notify(Event{Type: EventStringArrayFreed, Addr: ptr})
	return nil
}

// FreeString releases a string returned by the library.
// A zero address is a no-op.
func (m *Manager) FreeString(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	if _, err := m.lib.Call(ctx, m.sym.Free, uint64(ptr)); err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindTrap, err, "free string")
	}
	m.notify(Event{Type: EventStringFreed, Addr: ptr})
	return nil
}

// Discard frees a resource at addr that was never handed to a caller.
// No handle is created and no event is emitted. A zero address is a no-op.
func (m *Manager) Discard(ctx context.Context, kind Kind, addr uint32) error {
	if addr == 0 {
		return nil
	}
	if _, err := m.lib.Call(ctx, kind.FreeExport, uint64(addr)); err != nil {
		return errors.New(errors.PhaseLifecycle, errors.KindTrap).
			Export(kind.FreeExport).
			Path(kind.Name).
			Cause(err).
			Detail("discard of %#x failed", addr).
			Build()
	}
	m.log.Debug("resource discarded",
		zap.String("kind", kind.Name),
		zap.Uint32("addr", addr),
	)
	return nil
}

// Len returns the number of live handles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Each calls fn for every live handle until fn returns false.
func (m *Manager) Each(fn func(id ID, kind Kind, addr uint32) bool) {
	m.mu.Lock()
	live := make([]*state, 0, len(m.entries))
	for _, st := range m.entries {
		live = append(live, st)
	}
	m.mu.Unlock()

	for _, st := range live {
		if !fn(st.id, st.kind, st.addr) {
			return
		}
	}
}

// Close releases every live handle, newest first. Handles released here
// report a lifecycle error on a later Release.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*state, 0, len(m.entries))
	for _, st := range m.entries {
		live = append(live, st)
	}
	m.mu.Unlock()

	sortNewestFirst(live)

	var errs []error
	for _, st := range live {
		if !st.released.CompareAndSwap(false, true) {
			continue
		}
		if err := m.free(ctx, st, false); err != nil {
			errs = append(errs, err)
		}
	}
	if len(live) > 0 {
		m.log.Debug("manager closed", zap.Int("released", len(live)))
	}
	return stderrors.Join(errs...)
}

// Subscribe adds an observer for lifecycle events.
func (m *Manager) Subscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

// Unsubscribe removes an observer.
func (m *Manager) Unsubscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	for i, obs := range m.observers {
		if obs == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *Manager) notify(e Event) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnHandleEvent(e)
	}
}
