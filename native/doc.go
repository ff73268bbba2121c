// Package native loads the project library and exposes it as a gprbridge.Library.
//
// The library is a WebAssembly core module executed by wazero. Addresses are
// offsets into its exported linear memory and its heap is managed by its own
// malloc/free exports:
//
//	lib, err := native.Open(ctx, wasmBytes, &native.Config{ProjectRoot: "."})
//	if err != nil {
//	    return err
//	}
//	defer lib.Close(ctx)
//
//	alloc := native.NewAllocator(ctx, lib, native.DefaultSymbols)
//	ptr, err := alloc.Alloc(64)
//	...
//	alloc.Free(ptr)
//
// # Required Exports
//
//	memory       linear memory
//	gpr_malloc   (size i32) -> i32
//	gpr_free     (ptr i32)
//
// Every other export is resolved lazily on first Call and cached.
//
// # Thread Safety
//
// A WazeroLibrary is NOT safe for concurrent calls. Wrap it with Locked when
// calls can come from several goroutines, for example when handles are
// released by garbage collection cleanups.
package native
