// Package handle owns native resources on behalf of Go code.
//
// A Handle wraps the address of a native resource together with the Kind
// that knows how to free it. Exactly one Handle owns a given resource and
// Release frees it exactly once:
//
//	m := handle.NewManager(lib)
//	h := m.Wrap(handle.KindProject, addr) // nil when addr == 0
//
//	addr, err := h.Unwrap() // lifecycle error after Release
//	...
//	err = h.Release(ctx)   // calls gpr_project_free
//	err = h.Release(ctx)   // lifecycle error, no native call
//
// # Ephemeral Allocations
//
// String arrays and strings returned by the library are not wrapped. The
// Manager frees them directly with FreeStringArray and FreeString so that
// observers see every native release.
//
// # Free On Collect
//
// Nothing is freed by the garbage collector unless the Manager is created
// with WithFreeOnCollect. Then an unreachable, unreleased Handle is freed by
// a runtime cleanup that goes through the same single-shot guard as Release,
// so a manual Release and a cleanup never both reach the library.
//
// Cleanups run on their own goroutine. The Manager serialises native calls
// with native.Locked; callers passing raw addresses to the library must keep
// the Handle reachable until the call returns (runtime.KeepAlive).
//
// # Observers
//
// Observers receive EventWrapped, EventReleased, EventStringArrayFreed and
// EventStringFreed synchronously.
package handle
