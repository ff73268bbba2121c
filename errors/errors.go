package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // Go to native
	PhaseDecode    Phase = "decode"    // native to Go
	PhaseCall      Phase = "call"      // native function invocation
	PhaseHarvest   Phase = "harvest"   // diagnostic list inspection
	PhaseLifecycle Phase = "lifecycle" // handle wrap/unwrap/release
	PhaseLoad      Phase = "load"      // library loading
	PhaseConfig    Phase = "config"    // configuration parsing
)

// Kind categorizes the error
type Kind string

const (
	KindHardFailure    Kind = "hard_failure"
	KindDiagnostics    Kind = "diagnostics"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindEncoding       Kind = "encoding"
	KindAllocation     Kind = "allocation"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindLifecycle      Kind = "lifecycle"
	KindNilPointer     Kind = "nil_pointer"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
	KindTrap           Kind = "trap"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Export string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Export != "" {
		b.WriteString(" (")
		b.WriteString(e.Export)
		b.WriteByte(')')
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the bridge operation name
func (b *Builder) Op(name string) *Builder {
	b.err.Op = name
	return b
}

// Export sets the native export name
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
	return b
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// HardFailure creates an error for a native call that produced no diagnostic list.
func HardFailure(op, export, message string) *Error {
	detail := "native call failed without diagnostics"
	if message != "" {
		detail = message
	}
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindHardFailure,
		Op:     op,
		Export: export,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Encoding creates a charset conversion error
func Encoding(phase Phase, charset string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEncoding,
		Detail: fmt.Sprintf("cannot convert text using charset %q", charset),
		Cause:  cause,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d length %d out of bounds", offset, length),
		Value:  offset,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Detail: fmt.Sprintf("%s is nil", what),
	}
}

// Lifecycle creates a lifecycle violation error for a handle of the given kind
func Lifecycle(kind, detail string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindLifecycle,
		Path:   []string{kind},
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Trap wraps a failure raised while the native export was executing
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Export: export,
		Cause:  cause,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// DiagnosticsError is returned when a policy treats recoverable diagnostics
// as a failure of the operation, or when the library reported diagnostics
// but produced no result.
type DiagnosticsError struct {
	Op          string
	Export      string
	Diagnostics []string
	// Message is the library's last error, if any.
	Message string
	// Rejected is set when the library returned no result.
	Rejected bool
}

// Rejected creates the error for a call that filled its diagnostic list
// but returned a null result.
func Rejected(op, export, message string, diags []string) *DiagnosticsError {
	return &DiagnosticsError{
		Op:          op,
		Export:      export,
		Diagnostics: diags,
		Message:     message,
		Rejected:    true,
	}
}

func (e *DiagnosticsError) Error() string {
	var b strings.Builder
	switch {
	case e.Rejected:
		fmt.Fprintf(&b, "[harvest] %s returned no result", e.Op)
		if e.Message != "" {
			b.WriteString(": ")
			b.WriteString(e.Message)
		}
		if len(e.Diagnostics) > 0 {
			fmt.Fprintf(&b, "; %d diagnostic(s):", len(e.Diagnostics))
		}
	case len(e.Diagnostics) == 0:
		return fmt.Sprintf("[harvest] diagnostics in %s: none reported", e.Op)
	default:
		fmt.Fprintf(&b, "[harvest] %d diagnostic(s) in %s:", len(e.Diagnostics), e.Op)
	}
	for _, d := range e.Diagnostics {
		b.WriteString("\n  - ")
		b.WriteString(d)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *DiagnosticsError) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == KindDiagnostics
	}
	_, ok := target.(*DiagnosticsError)
	return ok
}
