// Package diag interprets the diagnostic out-parameter of fallible calls.
//
// A fallible export writes a string array address into its diagnostics
// slot. The address alone decides the outcome:
//
//	slot == 0            HardFailure  nothing to read, nothing to free
//	slot != 0, count 0   Success      no diagnostics
//	slot != 0, count N   Success      N diagnostics, result may be usable
//
// Every non-null array is drained and freed exactly once, whether or not
// anyone looks at the diagnostics.
package diag

import (
	"strings"

	"go.uber.org/zap"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

// Outcome is HardFailure or Success.
type Outcome interface {
	isOutcome()
}

// HardFailure means the library produced no diagnostic list. Any primary
// result of the call is invalid.
type HardFailure struct {
	Message string
}

// Success means the call produced a diagnostic list, possibly empty.
type Success struct {
	Diagnostics []string
}

func (HardFailure) isOutcome() {}
func (Success) isOutcome()     {}

// Drain converts and frees the string array at ptr.
type Drain func(ptr uint32) ([]string, error)

// Harvest reads the diagnostics slot. On a null slot it returns HardFailure
// without calling drain. Otherwise drain runs exactly once; its error is
// returned as is.
func Harvest(mem gprbridge.Memory, slot uint32, drain Drain) (Outcome, error) {
	ptr, err := mem.ReadU32(slot)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHarvest, errors.KindOutOfBounds, err, "read diagnostics slot")
	}
	if ptr == 0 {
		return HardFailure{}, nil
	}
	diags, err := drain(ptr)
	if err != nil {
		return nil, err
	}
	return Success{Diagnostics: diags}, nil
}

// Diagnostics returns the diagnostics of o, nil for a hard failure.
func Diagnostics(o Outcome) []string {
	if s, ok := o.(Success); ok {
		return s.Diagnostics
	}
	return nil
}

// Failed reports whether o is a hard failure.
func Failed(o Outcome) bool {
	_, ok := o.(HardFailure)
	return ok
}

// Policy decides what diagnostics mean for a successful call.
type Policy uint8

const (
	// Report logs each diagnostic and lets the call succeed.
	Report Policy = iota
	// Strict fails the call when any diagnostic was produced.
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "report"
}

// ParsePolicy accepts "report" or "strict", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "report":
		return Report, nil
	case "strict":
		return Strict, nil
	}
	return Report, errors.InvalidInput(errors.PhaseConfig, "unknown diagnostics policy "+s)
}

// Apply turns o into the error the operation should return, if any.
func (p Policy) Apply(log *zap.Logger, op, export string, o Outcome) error {
	switch o := o.(type) {
	case HardFailure:
		return errors.HardFailure(op, export, o.Message)
	case Success:
		if len(o.Diagnostics) == 0 {
			return nil
		}
		if p == Strict {
			return &errors.DiagnosticsError{Op: op, Diagnostics: o.Diagnostics}
		}
		if log != nil {
			for _, d := range o.Diagnostics {
				log.Warn("diagnostic", zap.String("op", op), zap.String("message", d))
			}
		}
		return nil
	}
	return errors.NilPointer(errors.PhaseHarvest, nil, "outcome")
}
