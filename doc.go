// Package gprbridge lets Go code drive a native project-loading library and
// exchange resources, strings and diagnostics with it safely.
//
// The native library runs as a WebAssembly core module. It owns a manual
// allocator that never collects; the Go side is garbage collected. Every
// address the library hands out must therefore be released explicitly, and
// every buffer Go hands in must be released once the call is over.
//
// # Architecture Overview
//
//	gprbridge/           Root package with the Memory, Allocator and Library contracts
//	├── native/          wazero-backed Library, allocator and call serialisation
//	│   └── nativetest/  In-process fake of the native ABI with allocation accounting
//	├── transcoder/      String codec, string-array marshaling, scoped allocations
//	├── handle/          Managed handles over native resources and their release
//	├── diag/            Diagnostic list harvesting (hard failure vs. success)
//	├── bridge/          Operation table and the generic call executor
//	├── project/         Project loading API built on the bridge
//	├── config/          Environment configuration and logger construction
//	├── metrics/         Prometheus collector for handle and call outcomes
//	├── errors/          Structured error types
//	└── cmd/gprinspect/  Command-line and interactive project inspector
//
// # Quick Start
//
//	lib, err := native.Open(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loader := project.NewLoader(lib)
//	defer loader.Close(ctx)
//
//	prj, diags, err := loader.Load(ctx, project.LoadOptions{ProjectFile: "p.gpr"})
//	if err != nil {
//	    log.Fatal(err) // hard failure, no project
//	}
//	defer prj.Close(ctx)
//
//	for _, d := range diags {
//	    fmt.Println("warning:", d)
//	}
//
//	files, err := prj.SourceFiles(ctx, project.ModeWholeProject)
//
// # Ownership
//
// A Handle is the single owner of one native resource. Release it exactly
// once; a second release is reported as a lifecycle error and never reaches
// the native free function. Strings and string arrays produced by the library
// are copied into Go values and freed before the bridge call returns.
//
// # Thread Safety
//
// The native library is not reentrant. native.Locked serialises calls on one
// library; a Project additionally serialises its own operations. Handles
// must not be released while another goroutine is still using them.
package gprbridge
