package native

import (
	"context"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

// MemoryExport is the name of the linear memory the library must export.
const MemoryExport = "memory"

// Config holds configuration for loading a library
type Config struct {
	Stdout io.Writer
	Stderr io.Writer

	// Name is the module name inside the runtime. Defaults to "gpr".
	Name string

	// ProjectRoot is mounted at "/" so the library can read project files.
	// Empty means no filesystem access.
	ProjectRoot string

	// MemoryLimitPages sets the maximum memory in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 before the library.
	EnableWASI bool
}

// WazeroLibrary is a project library instantiated in its own wazero runtime.
type WazeroLibrary struct {
	runtime wazero.Runtime
	module  api.Module
	memory  gprbridge.Memory
	funcs   map[string]api.Function
	funcsMu sync.RWMutex
}

var _ gprbridge.Library = (*WazeroLibrary)(nil)

// Open compiles and instantiates wasmBytes. A nil cfg enables WASI without
// filesystem access.
func Open(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroLibrary, error) {
	if cfg == nil {
		cfg = &Config{EnableWASI: true}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	lib, err := instantiate(ctx, rt, wasmBytes, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return lib, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasmBytes []byte, cfg *Config) (*WazeroLibrary, error) {
	if cfg.EnableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			return nil, errors.Load("instantiate WASI", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile library", err)
	}

	name := cfg.Name
	if name == "" {
		name = "gpr"
	}

	// Reactor-style libraries initialise through _initialize; _start would
	// run a command and exit the module.
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}
	if cfg.ProjectRoot != "" {
		modCfg = modCfg.WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(cfg.ProjectRoot, "/"))
	}

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Load("instantiate library", err)
	}

	mem := mod.ExportedMemory(MemoryExport)
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, errors.NotFound(errors.PhaseLoad, "export", MemoryExport)
	}

	Logger().Debug("library loaded",
		zap.String("module", name),
		zap.Uint32("memory_bytes", mem.Size()),
		zap.Int("exports", len(mod.ExportedFunctionDefinitions())),
	)

	return &WazeroLibrary{
		runtime: rt,
		module:  mod,
		memory:  WrapMemory(mem),
		funcs:   make(map[string]api.Function),
	}, nil
}

// Memory returns the library's linear memory.
func (l *WazeroLibrary) Memory() gprbridge.Memory {
	return l.memory
}

// HasExport reports whether the library exports a function called name.
func (l *WazeroLibrary) HasExport(name string) bool {
	_, ok := l.module.ExportedFunctionDefinitions()[name]
	return ok
}

// ExportNames returns the names of all exported functions.
func (l *WazeroLibrary) ExportNames() []string {
	defs := l.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// Signature returns the parameter and result counts of an exported
// function.
func (l *WazeroLibrary) Signature(name string) (params, results int, ok bool) {
	def, ok := l.module.ExportedFunctionDefinitions()[name]
	if !ok {
		return 0, 0, false
	}
	return len(def.ParamTypes()), len(def.ResultTypes()), true
}

// Call invokes the exported function name.
func (l *WazeroLibrary) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := l.function(name)
	if err != nil {
		return nil, err
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		Logger().Debug("native call trapped", zap.String("export", name), zap.Error(err))
		return nil, errors.Trap(name, err)
	}
	return results, nil
}

func (l *WazeroLibrary) function(name string) (api.Function, error) {
	l.funcsMu.RLock()
	fn, ok := l.funcs[name]
	l.funcsMu.RUnlock()
	if ok {
		return fn, nil
	}

	fn = l.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}

	l.funcsMu.Lock()
	l.funcs[name] = fn
	l.funcsMu.Unlock()
	return fn, nil
}

// Close releases the module and its runtime. Native resources still
// referenced by handles become invalid.
func (l *WazeroLibrary) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}
