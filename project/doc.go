// Package project is the Go API of the project library.
//
//	loader := project.NewLoader(lib)
//	defer loader.Close(ctx)
//
//	prj, diags, err := loader.Load(ctx, project.LoadOptions{
//	    ProjectFile: "prj.gpr",
//	    Scenario:    map[string]string{"BUILD": "release"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer prj.Close(ctx)
//
//	files, err := prj.SourceFiles(ctx, project.ModeWholeProject)
//
// # Diagnostics
//
// A load that reports diagnostics still returns a usable project; every
// diagnostic is logged at warn level and returned to the caller. With
// WithStrict the project is released instead and the load fails with an
// *errors.DiagnosticsError. A load that produces no diagnostic list at all
// is a hard failure and never returns a project.
//
// # Concurrency
//
// A Project serialises its own calls. Different projects of one Loader
// may be used from different goroutines; the library itself is entered by
// one goroutine at a time.
package project
