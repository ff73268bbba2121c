package bridge

import (
	"sort"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/handle"
	"github.com/wippyai/gpr-bridge/transcoder"
)

// ScenarioVariable is one external variable of a project load.
type ScenarioVariable struct {
	Name  string
	Value string
}

// encoder lowers Go arguments into core parameters. Every native buffer
// it creates belongs to scope.
type encoder struct {
	mem     gprbridge.Memory
	codec   *transcoder.Codec
	scope   *transcoder.Scope
	op      *Operation
	params  []uint64
	handles []*handle.Handle
}

func (e *encoder) argError(a Arg, format string, args ...any) error {
	return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
		Op(e.op.Name).
		Export(e.op.Export).
		Path(a.Name).
		Detail(format, args...).
		Build()
}

func (e *encoder) encode(a Arg, v any) error {
	switch a.Shape {
	case ArgHandle:
		h, ok := v.(*handle.Handle)
		if !ok {
			return e.argError(a, "expected *handle.Handle, got %T", v)
		}
		if h != nil && a.Kind.Name != "" && h.Kind() != a.Kind {
			return e.argError(a, "expected %s handle, got %s", a.Kind, h.Kind())
		}
		addr, err := h.Unwrap()
		if err != nil {
			return err
		}
		e.handles = append(e.handles, h)
		e.params = append(e.params, uint64(addr))

	case ArgString, ArgOptString:
		s, ok := v.(string)
		if !ok {
			return e.argError(a, "expected string, got %T", v)
		}
		if s == "" && a.Shape == ArgOptString {
			e.params = append(e.params, 0)
			return nil
		}
		ptr, err := e.codec.ToNative(e.scope, e.mem, s)
		if err != nil {
			return withArg(err, e.op, a)
		}
		e.params = append(e.params, uint64(ptr))

	case ArgInt:
		switch n := v.(type) {
		case int:
			if n < 0 || uint64(n) > 0xFFFFFFFF {
				return e.argError(a, "value %d out of range", n)
			}
			e.params = append(e.params, uint64(n))
		case uint32:
			e.params = append(e.params, uint64(n))
		default:
			return e.argError(a, "expected int, got %T", v)
		}

	case ArgBool:
		b, ok := v.(bool)
		if !ok {
			return e.argError(a, "expected bool, got %T", v)
		}
		if b {
			e.params = append(e.params, 1)
		} else {
			e.params = append(e.params, 0)
		}

	case ArgStringList:
		list, ok := v.([]string)
		if !ok && v != nil {
			return e.argError(a, "expected []string, got %T", v)
		}
		ptr, err := e.stringList(a, list)
		if err != nil {
			return err
		}
		e.params = append(e.params, uint64(ptr), uint64(len(list)))

	case ArgScenario:
		vars, err := scenarioVars(v)
		if err != nil {
			return e.argError(a, "%v", err)
		}
		ptr, err := e.scenario(a, vars)
		if err != nil {
			return err
		}
		e.params = append(e.params, uint64(ptr))

	default:
		return e.argError(a, "unsupported shape %s", a.Shape)
	}
	return nil
}

func (e *encoder) stringList(a Arg, list []string) (uint32, error) {
	if len(list) == 0 {
		return 0, nil
	}
	arr, err := e.scope.Alloc(uint32(len(list)) * 4)
	if err != nil {
		return 0, err
	}
	for i, s := range list {
		ptr, err := e.codec.ToNative(e.scope, e.mem, s)
		if err != nil {
			return 0, withArg(err, e.op, a)
		}
		if err := e.mem.WriteU32(arr+uint32(i)*4, ptr); err != nil {
			return 0, err
		}
	}
	return arr, nil
}

func (e *encoder) scenario(a Arg, vars []ScenarioVariable) (uint32, error) {
	if len(vars) == 0 {
		return 0, nil
	}
	block, err := e.scope.Alloc(uint32(len(vars)+1) * 8)
	if err != nil {
		return 0, err
	}
	for i, sv := range vars {
		if sv.Name == "" {
			return 0, e.argError(a, "scenario variable %d has no name", i)
		}
		name, err := e.codec.ToNative(e.scope, e.mem, sv.Name)
		if err != nil {
			return 0, withArg(err, e.op, a)
		}
		value, err := e.codec.ToNative(e.scope, e.mem, sv.Value)
		if err != nil {
			return 0, withArg(err, e.op, a)
		}
		off := block + uint32(i)*8
		if err := e.mem.WriteU32(off, name); err != nil {
			return 0, err
		}
		if err := e.mem.WriteU32(off+4, value); err != nil {
			return 0, err
		}
	}
	end := block + uint32(len(vars))*8
	if err := e.mem.WriteU32(end, 0); err != nil {
		return 0, err
	}
	if err := e.mem.WriteU32(end+4, 0); err != nil {
		return 0, err
	}
	return block, nil
}

// scenarioVars accepts a slice in caller order or a map sorted by name.
func scenarioVars(v any) ([]ScenarioVariable, error) {
	switch vars := v.(type) {
	case nil:
		return nil, nil
	case []ScenarioVariable:
		return vars, nil
	case map[string]string:
		out := make([]ScenarioVariable, 0, len(vars))
		for name, value := range vars {
			out = append(out, ScenarioVariable{Name: name, Value: value})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
	return nil, errors.InvalidInput(errors.PhaseEncode, "expected []ScenarioVariable or map[string]string")
}

func withArg(err error, op *Operation, a Arg) error {
	return errors.New(errors.PhaseEncode, errors.KindEncoding).
		Op(op.Name).
		Export(op.Export).
		Path(a.Name).
		Cause(err).
		Build()
}
