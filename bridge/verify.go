package bridge

import (
	stderrors "errors"

	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/native"
)

// Signer is implemented by libraries that can report export signatures.
type Signer interface {
	Signature(name string) (params, results int, ok bool)
}

// Results returns the number of core results the export returns.
func (op *Operation) Results() int {
	switch op.Result {
	case ResultHandle, ResultString, ResultStringArray:
		return 1
	}
	return 0
}

// Verify checks that s exports every operation of t and every free
// function they rely on, with matching parameter and result counts.
// The optional last-error export is checked only when present.
func (t *Table) Verify(s Signer, sym native.Symbols) error {
	var errs []error
	check := func(op, export string, params, results int, optional bool) {
		p, r, ok := s.Signature(export)
		if !ok {
			if !optional {
				errs = append(errs, errors.New(errors.PhaseLoad, errors.KindNotFound).
					Op(op).
					Export(export).
					Detail("export missing").
					Build())
			}
			return
		}
		if p != params || r != results {
			errs = append(errs, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Op(op).
				Export(export).
				Detail("signature (%d params, %d results), expected (%d, %d)", p, r, params, results).
				Build())
		}
	}

	check("alloc", sym.Malloc, 1, 1, false)
	check("free", sym.Free, 1, 0, false)
	check("free_string_array", sym.FreeStringArray, 1, 0, false)
	if sym.LastError != "" {
		check("last_error", sym.LastError, 0, 1, true)
	}

	seen := make(map[string]bool)
	for _, op := range t.All() {
		check(op.Name, op.Export, op.Params(), op.Results(), false)
		if fe := op.Kind.FreeExport; fe != "" && !seen[fe] {
			seen[fe] = true
			check(op.Kind.Name+"_free", fe, 1, 0, false)
		}
	}
	return stderrors.Join(errs...)
}

// Verify checks the bridge's library against its table. Libraries that
// cannot report signatures pass.
func (b *Bridge) Verify() error {
	s, ok := native.Locked(b.lib).Unwrap().(Signer)
	if !ok {
		return nil
	}
	return b.table.Verify(s, b.sym)
}
