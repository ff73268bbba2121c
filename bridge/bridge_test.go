package bridge

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/gpr-bridge/diag"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/handle"
	"github.com/wippyai/gpr-bridge/native/nativetest"
)

func sampleProject() *nativetest.Project {
	return &nativetest.Project{
		Name:           "prj",
		Charset:        "iso-8859-1",
		Diagnostics:    []string{"unused variable X", "deprecated flag Y"},
		Sources:        []string{"src/main.adb", "src/util.ads"},
		RuntimeSources: []string{"adainclude/system.ads"},
		Subprojects: []nativetest.Subproject{
			{Name: "lib", Charset: "utf-8", Sources: []string{"lib/lib.ads"}},
		},
	}
}

func newFixture(t *testing.T, opts ...nativetest.Option) (*nativetest.Library, *Bridge) {
	t.Helper()
	lib := nativetest.New(opts...)
	t.Cleanup(func() {
		if v := lib.Violations(); len(v) != 0 {
			t.Errorf("native violations: %v", v)
		}
	})
	return lib, New(lib)
}

func load(t *testing.T, b *Bridge, file string) *Result {
	t.Helper()
	res, err := b.CallNamed(context.Background(), OpProjectLoad, file, nil, "", "", "", false)
	if err != nil {
		t.Fatalf("load %s: %v", file, err)
	}
	return res
}

func TestCall_LoadWithDiagnostics(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()

	res, err := b.CallNamed(ctx, OpProjectLoad,
		"prj.gpr",
		[]ScenarioVariable{{Name: "BUILD", Value: "debug"}, {Name: "OS", Value: "linux"}},
		"x86_64-linux", "", "", true,
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Handle == nil {
		t.Fatal("expected project handle")
	}
	if res.Handle.Kind() != handle.KindProject {
		t.Errorf("kind = %v", res.Handle.Kind())
	}
	want := []string{"unused variable X", "deprecated flag Y"}
	if strings.Join(res.Diagnostics, "|") != strings.Join(want, "|") {
		t.Errorf("diagnostics = %q", res.Diagnostics)
	}

	req := lib.LastLoad()
	if req.File != "prj.gpr" || req.Target != "x86_64-linux" || req.Runtime != "" || !req.AdaOnly {
		t.Errorf("load request = %+v", req)
	}
	if req.Scenario["BUILD"] != "debug" || req.Scenario["OS"] != "linux" || len(req.Scenario) != 2 {
		t.Errorf("scenario = %v", req.Scenario)
	}

	freed := lib.FreedArrays()
	if len(freed) != 1 || lib.ArrayFrees(freed[0]) != 1 {
		t.Errorf("diagnostic array frees: %v", freed)
	}

	if err := b.Free(ctx, res.Handle); err != nil {
		t.Fatalf("free: %v", err)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("live allocations after free = %d", n)
	}
}

func TestCall_LoadNoDiagnostics(t *testing.T) {
	prj := sampleProject()
	prj.Diagnostics = nil
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", prj))

	res := load(t, b, "prj.gpr")
	if res.Diagnostics == nil || len(res.Diagnostics) != 0 {
		t.Errorf("expected empty non-nil diagnostics, got %#v", res.Diagnostics)
	}
	if n := len(lib.FreedArrays()); n != 1 {
		t.Errorf("empty diagnostic list must be freed, %d arrays freed", n)
	}
	_ = b.Free(context.Background(), res.Handle)
}

func TestCall_HardFailure(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("bad.gpr", &nativetest.Project{
		HardFailure:       true,
		ErrorMessage:      "bad.gpr:3:1: missing ';'",
		DanglingOnFailure: true,
	}))

	res, err := b.CallNamed(context.Background(), OpProjectLoad, "bad.gpr", nil, "", "", "", false)
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if !errors.IsKind(err, errors.KindHardFailure) {
		t.Fatalf("expected hard failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing ';'") {
		t.Errorf("error should carry the library message: %v", err)
	}
	if b.Manager().Len() != 0 {
		t.Error("no handle may be created on hard failure")
	}
	if n := len(lib.FreedArrays()); n != 0 {
		t.Errorf("%d arrays freed on hard failure", n)
	}
	if n := lib.CallCount("gpr_project_free"); n != 0 {
		t.Errorf("dangling result freed %d times", n)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("call buffers leaked: %d", n)
	}
}

func TestCall_HardFailureWithoutLastError(t *testing.T) {
	_, b := newFixture(t, nativetest.WithoutLastError())

	_, err := b.CallNamed(context.Background(), OpProjectLoad, "missing.gpr", nil, "", "", "", false)
	if !errors.IsKind(err, errors.KindHardFailure) {
		t.Fatalf("expected hard failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "without diagnostics") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestCall_LoadImplicit(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithImplicitProject(&nativetest.Project{Name: "default"}))

	res, err := b.CallNamed(context.Background(), OpProjectLoadImplicit, "arm-elf", "light", "")
	if err != nil {
		t.Fatalf("implicit load: %v", err)
	}
	req := lib.LastLoad()
	if !req.Implicit || req.Target != "arm-elf" || req.Runtime != "light" || req.ConfigFile != "" {
		t.Errorf("request = %+v", req)
	}
	_ = b.Free(context.Background(), res.Handle)
}

func TestCall_SourceFiles(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()
	prj := load(t, b, "prj.gpr").Handle
	defer b.Free(ctx, prj)

	tests := []struct {
		name     string
		mode     int
		projects []string
		want     []string
	}{
		{"root", nativetest.ModeRootProject, nil, []string{"src/main.adb", "src/util.ads"}},
		{"whole", nativetest.ModeWholeProject, nil, []string{"src/main.adb", "src/util.ads", "lib/lib.ads"}},
		{"runtime", nativetest.ModeWholeProjectWithRuntime, nil, []string{"src/main.adb", "src/util.ads", "lib/lib.ads", "adainclude/system.ads"}},
		{"named", nativetest.ModeDefault, []string{"lib"}, []string{"lib/lib.ads"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.CallNamed(ctx, OpSourceFiles, prj, tt.mode, tt.projects)
			if err != nil {
				t.Fatalf("source files: %v", err)
			}
			if strings.Join(res.Strings, "|") != strings.Join(tt.want, "|") {
				t.Errorf("files = %q, want %q", res.Strings, tt.want)
			}
		})
	}

	if n := lib.Stats(); n.ArraysCreated != n.ArraysFreed {
		t.Errorf("arrays created %d, freed %d", n.ArraysCreated, n.ArraysFreed)
	}
}

func TestCall_SourceFilesEmpty(t *testing.T) {
	prj := sampleProject()
	prj.Sources = nil
	prj.Subprojects = nil
	_, b := newFixture(t, nativetest.WithProject("empty.gpr", prj))
	ctx := context.Background()
	h := load(t, b, "empty.gpr").Handle
	defer b.Free(ctx, h)

	res, err := b.CallNamed(ctx, OpSourceFiles, h, nativetest.ModeRootProject, []string(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.Strings == nil || len(res.Strings) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", res.Strings)
	}
}

func TestCall_SourceFilesUnknownProject(t *testing.T) {
	_, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()
	h := load(t, b, "prj.gpr").Handle
	defer b.Free(ctx, h)

	_, err := b.CallNamed(ctx, OpSourceFiles, h, 0, []string{"nope"})
	if !errors.IsKind(err, errors.KindHardFailure) {
		t.Fatalf("expected hard failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such project: nope") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestCall_DefaultCharset(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()
	h := load(t, b, "prj.gpr").Handle

	for name, want := range map[string]string{"": "iso-8859-1", "prj": "iso-8859-1", "lib": "utf-8"} {
		res, err := b.CallNamed(ctx, OpDefaultCharset, h, name)
		if err != nil {
			t.Fatalf("charset %q: %v", name, err)
		}
		if res.String != want {
			t.Errorf("charset %q = %q, want %q", name, res.String, want)
		}
	}
	if s := lib.Stats(); s.StringsReturned != 3 {
		t.Errorf("strings returned = %d", s.StringsReturned)
	}

	_ = b.Free(ctx, h)
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("returned strings leaked: %d live", n)
	}
}

func TestCall_UnitProvider(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()
	prj := load(t, b, "prj.gpr").Handle

	res, err := b.CallNamed(ctx, OpCreateUnitProvider, prj, "")
	if err != nil {
		t.Fatal(err)
	}
	up := res.Handle
	if up.Kind() != handle.KindUnitProvider {
		t.Fatalf("kind = %v", up.Kind())
	}

	// A unit provider is not a project.
	_, err = b.CallNamed(ctx, OpSourceFiles, up, 0, []string(nil))
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for wrong kind, got %v", err)
	}

	if err := b.Free(ctx, up); err != nil {
		t.Fatal(err)
	}
	if err := b.Free(ctx, prj); err != nil {
		t.Fatal(err)
	}
	s := lib.Stats()
	if s.ProvidersCreated != 1 || s.ProvidersFreed != 1 {
		t.Errorf("providers created %d, freed %d", s.ProvidersCreated, s.ProvidersFreed)
	}
}

func TestCall_UseAfterFree(t *testing.T) {
	lib, b := newFixture(t, nativetest.WithProject("prj.gpr", sampleProject()))
	ctx := context.Background()
	h := load(t, b, "prj.gpr").Handle
	if err := b.Free(ctx, h); err != nil {
		t.Fatal(err)
	}

	before := len(lib.Calls())
	_, err := b.CallNamed(ctx, OpSourceFiles, h, 0, []string(nil))
	if !errors.IsKind(err, errors.KindLifecycle) {
		t.Fatalf("expected lifecycle error, got %v", err)
	}
	if len(lib.Calls()) != before {
		t.Error("released handle reached the library")
	}
	if err := b.Free(ctx, h); !errors.IsKind(err, errors.KindLifecycle) {
		t.Errorf("double free: expected lifecycle error, got %v", err)
	}
	if n := lib.CallCount("gpr_project_free"); n != 1 {
		t.Errorf("gpr_project_free called %d times", n)
	}
}

func TestCall_ArgumentErrors(t *testing.T) {
	lib, b := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []any
		kind errors.Kind
	}{
		{"arity", []any{"p.gpr"}, errors.KindInvalidInput},
		{"type", []any{42, nil, "", "", "", false}, errors.KindInvalidInput},
		{"embedded NUL", []any{"p\x00.gpr", nil, "", "", "", false}, errors.KindEncoding},
		{"scenario type", []any{"p.gpr", 7, "", "", "", false}, errors.KindInvalidInput},
		{"unnamed variable", []any{"p.gpr", []ScenarioVariable{{Value: "x"}}, "", "", "", false}, errors.KindInvalidInput},
		{"bad value", []any{"p.gpr", map[string]string{"A": "\x00"}, "", "", "", false}, errors.KindEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.CallNamed(ctx, OpProjectLoad, tt.args...)
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}

	if n := lib.CallCount("gpr_project_load"); n != 0 {
		t.Errorf("invalid calls reached the library %d times", n)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("buffers leaked on encoding errors: %d", n)
	}
	if _, err := b.CallNamed(ctx, "no_such_op"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unknown operation: got %v", err)
	}
}

type outcomeRecorder struct {
	ops      []string
	outcomes []diag.Outcome
	errs     []error
}

func (r *outcomeRecorder) ObserveOutcome(op string, o diag.Outcome, err error) {
	r.ops = append(r.ops, op)
	r.outcomes = append(r.outcomes, o)
	r.errs = append(r.errs, err)
}

func TestCall_OutcomeObserver(t *testing.T) {
	lib := nativetest.New(nativetest.WithProject("prj.gpr", sampleProject()))
	rec := &outcomeRecorder{}
	b := New(lib, WithOutcomeObserver(rec))
	ctx := context.Background()

	res, err := b.CallNamed(ctx, OpProjectLoad, "prj.gpr", nil, "", "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = b.CallNamed(ctx, OpProjectLoad, "missing.gpr", nil, "", "", "", false)
	_, _ = b.CallNamed(ctx, OpSourceFiles, res.Handle, 0, []string(nil))

	if len(rec.outcomes) != 2 {
		t.Fatalf("observed %d outcomes, want 2", len(rec.outcomes))
	}
	if s, ok := rec.outcomes[0].(diag.Success); !ok || len(s.Diagnostics) != 2 {
		t.Errorf("first outcome = %#v", rec.outcomes[0])
	}
	hf, ok := rec.outcomes[1].(diag.HardFailure)
	if !ok || !strings.Contains(hf.Message, "missing.gpr") {
		t.Errorf("second outcome = %#v", rec.outcomes[1])
	}
	if rec.errs[0] != nil || !errors.IsKind(rec.errs[1], errors.KindHardFailure) {
		t.Errorf("observed errors = %v", rec.errs)
	}
	_ = b.Free(ctx, res.Handle)
}

func TestCall_NullProjectWithDiagnostics(t *testing.T) {
	rec := &outcomeRecorder{}
	lib := nativetest.New(nativetest.WithProject("p.gpr", &nativetest.Project{
		NullProjectWithDiagnostics: true,
		Diagnostics:                []string{"p.gpr:3:1: undefined attribute"},
		ErrorMessage:               "p.gpr: errors found",
	}))
	b := New(lib, WithOutcomeObserver(rec))

	res, err := b.CallNamed(context.Background(), OpProjectLoad, "p.gpr", nil, "", "", "", false)
	if res != nil {
		t.Fatalf("rejected load returned %+v", res)
	}
	if errors.IsKind(err, errors.KindHardFailure) {
		t.Fatalf("a load with diagnostics is not a hard failure: %v", err)
	}
	var de *errors.DiagnosticsError
	if !stderrors.As(err, &de) || !de.Rejected {
		t.Fatalf("expected rejected diagnostics error, got %v", err)
	}
	if len(de.Diagnostics) != 1 || de.Diagnostics[0] != "p.gpr:3:1: undefined attribute" {
		t.Errorf("diagnostics = %q", de.Diagnostics)
	}
	if de.Message != "p.gpr: errors found" {
		t.Errorf("message = %q", de.Message)
	}

	s := lib.Stats()
	if s.ArraysCreated != 1 || s.ArraysFreed != 1 {
		t.Errorf("diagnostic list must be freed once: %+v", s)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("live allocations = %d", n)
	}
	if v := lib.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}

	if len(rec.outcomes) != 1 {
		t.Fatalf("observed %d outcomes, want 1", len(rec.outcomes))
	}
	if _, ok := rec.outcomes[0].(diag.Success); !ok {
		t.Errorf("outcome = %#v", rec.outcomes[0])
	}
	if !stderrors.As(rec.errs[0], &de) {
		t.Errorf("observer was not given the rejection: %v", rec.errs[0])
	}
}

func TestCall_DiagnosticsDecodeError(t *testing.T) {
	prj := sampleProject()
	prj.Diagnostics = []string{"bad\xff"}
	lib := nativetest.New(nativetest.WithProject("prj.gpr", prj))
	rec := &outcomeRecorder{}
	events := &eventRecorder{}
	b := New(lib, WithOutcomeObserver(rec), WithHandleObserver(events))

	_, err := b.CallNamed(context.Background(), OpProjectLoad, "prj.gpr", nil, "", "", "", false)
	if !errors.IsKind(err, errors.KindInvalidUTF8) {
		t.Fatalf("expected invalid_utf8, got %v", err)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != nil || !errors.IsKind(rec.errs[0], errors.KindInvalidUTF8) {
		t.Errorf("observer saw outcomes %v errors %v", rec.outcomes, rec.errs)
	}
	for _, e := range events.events {
		if e.Type == handle.EventWrapped || e.Type == handle.EventReleased {
			t.Errorf("discarded project produced handle event %v", e.Type)
		}
	}
	if v := lib.Violations(); len(v) != 0 {
		t.Errorf("violations: %v", v)
	}
	s := lib.Stats()
	if s.ProjectsLoaded != 1 || s.ProjectsFreed != 1 {
		t.Errorf("project must be released when diagnostics cannot be read: %+v", s)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("live allocations = %d", n)
	}
}

type eventRecorder struct {
	events []handle.Event
}

func (r *eventRecorder) OnHandleEvent(e handle.Event) {
	r.events = append(r.events, e)
}

func TestCall_TrapPropagates(t *testing.T) {
	lib, b := newFixture(t)
	_ = lib.Close(context.Background())

	_, err := b.CallNamed(context.Background(), OpProjectLoad, "p.gpr", nil, "", "", "", false)
	if err == nil {
		t.Fatal("expected error from closed library")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Errorf("expected structured error, got %T", err)
	}
}
