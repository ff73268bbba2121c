package bridge

import (
	"sort"

	"github.com/wippyai/gpr-bridge/handle"
)

// ArgShape says how a Go argument is passed to the library.
type ArgShape uint8

const (
	// ArgHandle is a *handle.Handle passed as its address.
	ArgHandle ArgShape = iota
	// ArgString is a NUL-terminated buffer.
	ArgString
	// ArgOptString is like ArgString but "" is passed as NULL.
	ArgOptString
	// ArgInt is an int or uint32.
	ArgInt
	// ArgBool is passed as 0 or 1.
	ArgBool
	// ArgStringList is a []string passed as (char**, count).
	ArgStringList
	// ArgScenario is a []ScenarioVariable or map[string]string passed as
	// {name, value} pairs terminated by {NULL, NULL}. Empty is NULL.
	ArgScenario
)

var argShapeNames = [...]string{
	ArgHandle:     "handle",
	ArgString:     "string",
	ArgOptString:  "optional string",
	ArgInt:        "int",
	ArgBool:       "bool",
	ArgStringList: "string list",
	ArgScenario:   "scenario",
}

func (s ArgShape) String() string {
	if int(s) < len(argShapeNames) {
		return argShapeNames[s]
	}
	return "unknown"
}

// ResultShape says what a call produces besides diagnostics.
type ResultShape uint8

const (
	ResultNone ResultShape = iota
	// ResultHandle is a resource address returned directly.
	ResultHandle
	// ResultOutHandle is a resource address written to an out-parameter
	// placed after the arguments.
	ResultOutHandle
	// ResultString is a char* owned by the caller, freed with gpr_free.
	ResultString
	// ResultStringArray is a string array freed with gpr_free_string_array.
	ResultStringArray
)

var resultShapeNames = [...]string{
	ResultNone:        "none",
	ResultHandle:      "handle",
	ResultOutHandle:   "out handle",
	ResultString:      "string",
	ResultStringArray: "string array",
}

func (s ResultShape) String() string {
	if int(s) < len(resultShapeNames) {
		return resultShapeNames[s]
	}
	return "unknown"
}

// Arg describes one parameter of an operation.
type Arg struct {
	Name  string
	Shape ArgShape
	// Kind is the expected resource kind of an ArgHandle.
	Kind handle.Kind
}

// Operation describes one library entry point. The executor derives
// encoding, out-parameters, harvesting and release from it.
type Operation struct {
	Name   string
	Export string
	Args   []Arg
	Result ResultShape
	// Kind is the resource kind of a handle result.
	Kind handle.Kind
	// Diagnostics adds a diagnostics out-parameter after any result slot.
	Diagnostics bool
	// NullIsFailure treats a null result as a hard failure.
	NullIsFailure bool
}

// Params returns the number of core parameters the export takes.
func (op *Operation) Params() int {
	n := 0
	for _, a := range op.Args {
		if a.Shape == ArgStringList {
			n += 2
		} else {
			n++
		}
	}
	if op.Result == ResultOutHandle {
		n++
	}
	if op.Diagnostics {
		n++
	}
	return n
}

// Table is a set of operations indexed by name.
type Table struct {
	byName map[string]*Operation
	names  []string
}

// NewTable builds a table. Later duplicates replace earlier ones.
func NewTable(ops ...Operation) *Table {
	t := &Table{byName: make(map[string]*Operation, len(ops))}
	for i := range ops {
		op := ops[i]
		if _, dup := t.byName[op.Name]; !dup {
			t.names = append(t.names, op.Name)
		}
		t.byName[op.Name] = &op
	}
	sort.Strings(t.names)
	return t
}

// Lookup returns the named operation.
func (t *Table) Lookup(name string) (*Operation, bool) {
	op, ok := t.byName[name]
	return op, ok
}

// All returns every operation sorted by name.
func (t *Table) All() []*Operation {
	out := make([]*Operation, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, t.byName[n])
	}
	return out
}

// Len returns the number of operations.
func (t *Table) Len() int {
	return len(t.names)
}

// Operation names of the project library.
const (
	OpProjectLoad         = "project_load"
	OpProjectLoadImplicit = "project_load_implicit"
	OpSourceFiles         = "project_source_files"
	OpDefaultCharset      = "project_default_charset"
	OpCreateUnitProvider  = "project_create_unit_provider"
)

// Ops is the project library's operation table.
var Ops = NewTable(
	Operation{
		Name:   OpProjectLoad,
		Export: "gpr_project_load",
		Args: []Arg{
			{Name: "project_file", Shape: ArgString},
			{Name: "scenario_vars", Shape: ArgScenario},
			{Name: "target", Shape: ArgOptString},
			{Name: "runtime", Shape: ArgOptString},
			{Name: "config_file", Shape: ArgOptString},
			{Name: "ada_only", Shape: ArgBool},
		},
		Result:        ResultOutHandle,
		Kind:          handle.KindProject,
		Diagnostics:   true,
		NullIsFailure: true,
	},
	Operation{
		Name:   OpProjectLoadImplicit,
		Export: "gpr_project_load_implicit",
		Args: []Arg{
			{Name: "target", Shape: ArgOptString},
			{Name: "runtime", Shape: ArgOptString},
			{Name: "config_file", Shape: ArgOptString},
		},
		Result:        ResultOutHandle,
		Kind:          handle.KindProject,
		Diagnostics:   true,
		NullIsFailure: true,
	},
	Operation{
		Name:   OpSourceFiles,
		Export: "gpr_project_source_files",
		Args: []Arg{
			{Name: "project", Shape: ArgHandle, Kind: handle.KindProject},
			{Name: "mode", Shape: ArgInt},
			{Name: "projects", Shape: ArgStringList},
		},
		Result:        ResultStringArray,
		NullIsFailure: true,
	},
	Operation{
		Name:   OpDefaultCharset,
		Export: "gpr_project_default_charset",
		Args: []Arg{
			{Name: "project", Shape: ArgHandle, Kind: handle.KindProject},
			{Name: "name", Shape: ArgOptString},
		},
		Result:        ResultString,
		NullIsFailure: true,
	},
	Operation{
		Name:   OpCreateUnitProvider,
		Export: "gpr_project_create_unit_provider",
		Args: []Arg{
			{Name: "project", Shape: ArgHandle, Kind: handle.KindProject},
			{Name: "name", Shape: ArgOptString},
		},
		Result:        ResultHandle,
		Kind:          handle.KindUnitProvider,
		NullIsFailure: true,
	},
)
