// Package bridge calls project library exports described by a table.
//
// Each Operation states its argument shapes, its result shape, whether it
// reports diagnostics and what a null result means. Call derives the rest:
//
//	b := bridge.New(lib)
//	res, err := b.CallNamed(ctx, bridge.OpProjectLoad,
//	    "prj.gpr", map[string]string{"BUILD": "debug"}, "", "", "", false)
//	if err != nil {
//	    return err // hard failure, or an encoding/decoding error
//	}
//	defer b.Free(ctx, res.Handle)
//	for _, d := range res.Diagnostics { ... }
//
// # Call Sequence
//
//	1. encode arguments into a Scope (strings, lists, scenario pairs)
//	2. allocate out-parameter slots (result, then diagnostics)
//	3. call the export; keep input handles alive across the call
//	4. harvest diagnostics: null slot is a hard failure
//	5. convert the result; free returned strings and arrays
//	6. free the Scope
//
// Step 6 runs on every path. A hard failure fetches gpr_last_error when
// the library exports it.
//
// # Operations
//
//	project_load                  gpr_project_load                  out handle + diagnostics
//	project_load_implicit         gpr_project_load_implicit         out handle + diagnostics
//	project_source_files          gpr_project_source_files          string array
//	project_default_charset       gpr_project_default_charset       string
//	project_create_unit_provider  gpr_project_create_unit_provider  handle
//
// Verify compares the table with the export signatures of a library
// before any call is made.
package bridge
