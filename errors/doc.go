// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the operation and native export involved, a detail message
// and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidUTF8).
//		Op("project_source_files").
//		Path("items", "3").
//		Detail("invalid byte 0xff").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.HardFailure("project_load", "gpr_project_load", "file not found")
//	err := errors.Lifecycle("project", "handle already released")
//
// The taxonomy maps onto bridge outcomes:
//
//	KindHardFailure  native call produced no diagnostic list at all
//	KindDiagnostics  recoverable diagnostics promoted to a failure by policy
//	KindInvalidUTF8  text could not be converted between Go and native form
//	KindEncoding
//	KindLifecycle    use or release of an already released handle
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
