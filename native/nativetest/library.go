package nativetest

import (
	"context"
	"sync"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

// Source file modes understood by gpr_project_source_files.
const (
	ModeDefault                 = 0
	ModeRootProject             = 1
	ModeWholeProject            = 2
	ModeWholeProjectWithRuntime = 3
)

// pastEndMarker is stored one slot past the end of every string array so
// that a reader ignoring the count field picks up a visible extra element.
const pastEndMarker = "<past-end>"

// Project describes how the fake library answers for one project file.
type Project struct {
	Name        string
	Charset     string
	Diagnostics []string
	Sources     []string
	// RuntimeSources are only listed in ModeWholeProjectWithRuntime.
	RuntimeSources []string
	Subprojects    []Subproject

	// HardFailure leaves the diagnostic output unallocated.
	HardFailure  bool
	ErrorMessage string
	// DanglingOnFailure writes a project address even on hard failure.
	DanglingOnFailure bool
	// NullProjectWithDiagnostics returns Diagnostics but no project, the
	// way a load of a project file with errors does.
	NullProjectWithDiagnostics bool
}

// Subproject is a project imported by the root project.
type Subproject struct {
	Name    string
	Charset string
	Sources []string
}

// LoadRequest records the arguments of the most recent load call.
type LoadRequest struct {
	Scenario   map[string]string
	File       string
	Target     string
	Runtime    string
	ConfigFile string
	AdaOnly    bool
	Implicit   bool
}

// Stats counts resource traffic across the native boundary.
type Stats struct {
	Allocs           int
	Frees            int
	ProjectsLoaded   int
	ProjectsFreed    int
	ProvidersCreated int
	ProvidersFreed   int
	ArraysCreated    int
	ArraysFreed      int
	StringsReturned  int
}

// Library is an in-process implementation of the project library ABI.
type Library struct {
	heap        *Heap
	mem         *memory
	projects    map[string]*Project
	implicit    *Project
	live        map[uint32]*Project
	providers   map[uint32]uint32
	arrays      map[uint32]bool
	arrayFrees  map[uint32]int
	lastLoad    LoadRequest
	calls       []string
	stats       Stats
	lastError   uint32
	mu          sync.Mutex
	noLastError bool
	closed      bool
}

var _ gprbridge.Library = (*Library)(nil)

// Option configures a Library.
type Option func(*Library)

// WithProject registers the answer for loads of file.
func WithProject(file string, p *Project) Option {
	return func(l *Library) {
		l.projects[file] = p
	}
}

// WithImplicitProject sets the answer for implicit loads.
func WithImplicitProject(p *Project) Option {
	return func(l *Library) {
		l.implicit = p
	}
}

// WithoutLastError hides the gpr_last_error export.
func WithoutLastError() Option {
	return func(l *Library) {
		l.noLastError = true
	}
}

// New returns a fake library with an empty heap.
func New(opts ...Option) *Library {
	l := &Library{
		heap:       newHeap(64 * 1024),
		projects:   make(map[string]*Project),
		live:       make(map[uint32]*Project),
		providers:  make(map[uint32]uint32),
		arrays:     make(map[uint32]bool),
		arrayFrees: make(map[uint32]int),
	}
	l.mem = &memory{lib: l}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) Memory() gprbridge.Memory {
	return l.mem
}

// HasExport reports whether name is part of the fake ABI.
func (l *Library) HasExport(name string) bool {
	if name == "gpr_last_error" {
		return !l.noLastError
	}
	_, ok := exports[name]
	return ok
}

func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

type export struct {
	fn      func(l *Library, p []uint64) []uint64
	params  int
	results int
}

var exports map[string]export

func init() {
	exports = map[string]export{
		"gpr_malloc":                       {(*Library).malloc, 1, 1},
		"gpr_free":                         {(*Library).freeBlock, 1, 0},
		"gpr_free_string_array":            {(*Library).freeStringArray, 1, 0},
		"gpr_project_load":                 {(*Library).projectLoad, 8, 0},
		"gpr_project_load_implicit":        {(*Library).projectLoadImplicit, 5, 0},
		"gpr_project_free":                 {(*Library).projectFree, 1, 0},
		"gpr_project_source_files":         {(*Library).projectSourceFiles, 4, 1},
		"gpr_project_default_charset":      {(*Library).projectDefaultCharset, 2, 1},
		"gpr_project_create_unit_provider": {(*Library).createUnitProvider, 2, 1},
		"gpr_unit_provider_dec_ref":        {(*Library).unitProviderDecRef, 1, 0},
		"gpr_last_error":                   {(*Library).lastErrorExport, 0, 1},
	}
}

// Signature returns the parameter and result counts of an export.
func (l *Library) Signature(name string) (params, results int, ok bool) {
	if !l.HasExport(name) {
		return 0, 0, false
	}
	e := exports[name]
	return e.params, e.results, true
}

// Call dispatches to the named export.
func (l *Library) Call(_ context.Context, name string, params ...uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errors.NotInitialized(errors.PhaseCall, "library")
	}
	e, ok := exports[name]
	if !ok || (name == "gpr_last_error" && l.noLastError) {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	if len(params) != e.params {
		return nil, errors.New(errors.PhaseCall, errors.KindTrap).
			Export(name).
			Detail("expected %d params, got %d", e.params, len(params)).
			Build()
	}
	l.calls = append(l.calls, name)
	return e.fn(l, params), nil
}

func (l *Library) malloc(p []uint64) []uint64 {
	return []uint64{uint64(l.heap.alloc(uint32(p[0])))}
}

func (l *Library) freeBlock(p []uint64) []uint64 {
	l.heap.free(uint32(p[0]), "block")
	return nil
}

func (l *Library) setLastError(msg string) {
	if msg == "" {
		msg = "unknown failure"
	}
	if len(msg) > staticSize-1 {
		msg = msg[:staticSize-1]
	}
	copy(l.heap.mem[staticBase:], msg)
	l.heap.mem[staticBase+len(msg)] = 0
	l.lastError = staticBase
}

func (l *Library) lastErrorExport([]uint64) []uint64 {
	return []uint64{uint64(l.lastError)}
}

func (l *Library) newStringArray(items []string) uint32 {
	h := l.heap
	header := h.alloc(8)
	slots := h.alloc(uint32(len(items)+1) * 4)
	for i, s := range items {
		h.putU32(slots+uint32(i)*4, h.newCString(s))
	}
	h.putU32(slots+uint32(len(items))*4, h.newCString(pastEndMarker))
	h.putU32(header, uint32(len(items)))
	h.putU32(header+4, slots)
	l.arrays[header] = true
	l.stats.ArraysCreated++
	return header
}

func (l *Library) freeStringArray(p []uint64) []uint64 {
	ptr := uint32(p[0])
	if ptr == 0 {
		return nil
	}
	l.arrayFrees[ptr]++
	if !l.arrays[ptr] {
		l.heap.violate("string array %#x freed but not live", ptr)
		return nil
	}
	h := l.heap
	count := h.u32(ptr)
	slots := h.u32(ptr + 4)
	for i := uint32(0); i <= count; i++ {
		h.free(h.u32(slots+i*4), "string array item")
	}
	h.free(slots, "string array items")
	h.free(ptr, "string array")
	delete(l.arrays, ptr)
	l.stats.ArraysFreed++
	return nil
}

func (l *Library) readScenario(ptr uint32) map[string]string {
	vars := make(map[string]string)
	if ptr == 0 {
		return vars
	}
	for off := ptr; ; off += 8 {
		name := l.heap.u32(off)
		if name == 0 {
			return vars
		}
		vars[l.heap.cstring(name)] = l.heap.cstring(l.heap.u32(off + 4))
	}
}

func (l *Library) projectLoad(p []uint64) []uint64 {
	req := LoadRequest{
		File:       l.heap.cstring(uint32(p[0])),
		Scenario:   l.readScenario(uint32(p[1])),
		Target:     l.heap.cstring(uint32(p[2])),
		Runtime:    l.heap.cstring(uint32(p[3])),
		ConfigFile: l.heap.cstring(uint32(p[4])),
		AdaOnly:    p[5] != 0,
	}
	prj, ok := l.projects[req.File]
	if !ok {
		prj = &Project{HardFailure: true, ErrorMessage: req.File + ": project file not found"}
	}
	l.load(req, prj, uint32(p[6]), uint32(p[7]))
	return nil
}

func (l *Library) projectLoadImplicit(p []uint64) []uint64 {
	req := LoadRequest{
		Target:     l.heap.cstring(uint32(p[0])),
		Runtime:    l.heap.cstring(uint32(p[1])),
		ConfigFile: l.heap.cstring(uint32(p[2])),
		Implicit:   true,
	}
	prj := l.implicit
	if prj == nil {
		prj = &Project{HardFailure: true, ErrorMessage: "no implicit project available"}
	}
	l.load(req, prj, uint32(p[3]), uint32(p[4]))
	return nil
}

func (l *Library) load(req LoadRequest, prj *Project, projectOut, errorsOut uint32) {
	l.lastLoad = req
	if prj.HardFailure {
		l.setLastError(prj.ErrorMessage)
		if prj.DanglingOnFailure {
			l.heap.putU32(projectOut, 0xdead0)
		}
		return
	}
	if prj.NullProjectWithDiagnostics {
		if prj.ErrorMessage != "" {
			l.setLastError(prj.ErrorMessage)
		}
		l.heap.putU32(errorsOut, l.newStringArray(prj.Diagnostics))
		return
	}
	addr := l.heap.alloc(16)
	l.live[addr] = prj
	l.stats.ProjectsLoaded++
	l.heap.putU32(projectOut, addr)
	l.heap.putU32(errorsOut, l.newStringArray(prj.Diagnostics))
}

func (l *Library) projectFree(p []uint64) []uint64 {
	addr := uint32(p[0])
	if _, ok := l.live[addr]; !ok {
		l.heap.violate("project %#x freed but not live", addr)
		return nil
	}
	delete(l.live, addr)
	l.heap.free(addr, "project")
	l.stats.ProjectsFreed++
	return nil
}

func (l *Library) project(addr uint32, export string) *Project {
	prj, ok := l.live[addr]
	if !ok {
		l.heap.violate("%s used project %#x that is not live", export, addr)
		l.setLastError("invalid project")
	}
	return prj
}

func (prj *Project) sources(name string) ([]string, bool) {
	if name == prj.Name {
		return prj.Sources, true
	}
	for _, sub := range prj.Subprojects {
		if sub.Name == name {
			return sub.Sources, true
		}
	}
	return nil, false
}

func (l *Library) projectSourceFiles(p []uint64) []uint64 {
	prj := l.project(uint32(p[0]), "gpr_project_source_files")
	if prj == nil {
		return []uint64{0}
	}
	mode := uint32(p[1])
	names := uint32(p[2])
	count := uint32(p[3])

	var files []string
	if count > 0 {
		for i := uint32(0); i < count; i++ {
			name := l.heap.cstring(l.heap.u32(names + i*4))
			src, ok := prj.sources(name)
			if !ok {
				l.setLastError("no such project: " + name)
				return []uint64{0}
			}
			files = append(files, src...)
		}
	} else {
		files = append(files, prj.Sources...)
		if mode != ModeRootProject {
			for _, sub := range prj.Subprojects {
				files = append(files, sub.Sources...)
			}
		}
		if mode == ModeWholeProjectWithRuntime {
			files = append(files, prj.RuntimeSources...)
		}
	}
	return []uint64{uint64(l.newStringArray(files))}
}

func (prj *Project) charset(name string) (string, bool) {
	if name == "" || name == prj.Name {
		return prj.Charset, true
	}
	for _, sub := range prj.Subprojects {
		if sub.Name == name {
			return sub.Charset, true
		}
	}
	return "", false
}

func (l *Library) projectDefaultCharset(p []uint64) []uint64 {
	prj := l.project(uint32(p[0]), "gpr_project_default_charset")
	if prj == nil {
		return []uint64{0}
	}
	name := l.heap.cstring(uint32(p[1]))
	cs, ok := prj.charset(name)
	if !ok {
		l.setLastError("no such project: " + name)
		return []uint64{0}
	}
	l.stats.StringsReturned++
	return []uint64{uint64(l.heap.newCString(cs))}
}

func (l *Library) createUnitProvider(p []uint64) []uint64 {
	addr := uint32(p[0])
	prj := l.project(addr, "gpr_project_create_unit_provider")
	if prj == nil {
		return []uint64{0}
	}
	name := l.heap.cstring(uint32(p[1]))
	if _, ok := prj.charset(name); !ok {
		l.setLastError("no such project: " + name)
		return []uint64{0}
	}
	provider := l.heap.alloc(8)
	l.providers[provider] = addr
	l.stats.ProvidersCreated++
	return []uint64{uint64(provider)}
}

func (l *Library) unitProviderDecRef(p []uint64) []uint64 {
	provider := uint32(p[0])
	if _, ok := l.providers[provider]; !ok {
		l.heap.violate("unit provider %#x released but not live", provider)
		return nil
	}
	delete(l.providers, provider)
	l.heap.free(provider, "unit provider")
	l.stats.ProvidersFreed++
	return nil
}

// Calls returns the exports invoked so far, in order.
func (l *Library) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// CallCount returns how many times export was invoked.
func (l *Library) CallCount(export string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == export {
			n++
		}
	}
	return n
}

// Stats returns allocation and resource counters.
func (l *Library) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Allocs = l.heap.allocs
	s.Frees = l.heap.frees
	return s
}

// LiveAllocations returns the number of heap blocks not yet freed.
func (l *Library) LiveAllocations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.heap.live)
}

// LiveProjects returns the number of loaded projects not yet freed.
func (l *Library) LiveProjects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// ArrayFrees returns how many times the string array at ptr was freed.
func (l *Library) ArrayFrees(ptr uint32) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.arrayFrees[ptr]
}

// FreedArrays returns the addresses of every string array freed so far.
func (l *Library) FreedArrays() []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]uint32, 0, len(l.arrayFrees))
	for ptr := range l.arrayFrees {
		out = append(out, ptr)
	}
	return out
}

// Violations returns every lifecycle violation observed: double frees,
// frees of unknown addresses and uses of released projects.
func (l *Library) Violations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.heap.violations...)
}

// LastLoad returns the arguments of the most recent load call.
func (l *Library) LastLoad() LoadRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLoad
}

// NewStringArray places items in native memory as the library would and
// returns the array address. The caller owns the array.
func (l *Library) NewStringArray(items []string) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newStringArray(items)
}

// NewCString places s in native memory and returns its address.
func (l *Library) NewCString(s string) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heap.newCString(s)
}
