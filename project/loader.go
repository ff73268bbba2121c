package project

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/bridge"
	"github.com/wippyai/gpr-bridge/diag"
	"github.com/wippyai/gpr-bridge/errors"
)

// ScenarioVariable is one external variable of a load.
type ScenarioVariable = bridge.ScenarioVariable

// LoadOptions describes an explicit project load.
type LoadOptions struct {
	// Scenario is passed to the library sorted by name.
	Scenario    map[string]string
	ProjectFile string
	Target      string
	Runtime     string
	ConfigFile  string
	AdaOnly     bool
}

// ImplicitOptions describes a load of the library's default project.
type ImplicitOptions struct {
	Target     string
	Runtime    string
	ConfigFile string
}

// Loader loads projects from one library.
type Loader struct {
	lib    gprbridge.Library
	bridge *bridge.Bridge
	log    *zap.Logger
	policy diag.Policy
	closed atomic.Bool
}

type loaderConfig struct {
	log        *zap.Logger
	bridgeOpts []bridge.Option
	policy     diag.Policy
}

// Option configures a Loader.
type Option func(*loaderConfig)

// WithLogger sets the logger for the loader and everything below it.
func WithLogger(l *zap.Logger) Option {
	return func(c *loaderConfig) {
		c.log = l
	}
}

// WithPolicy sets the diagnostics policy. The default is diag.Report.
func WithPolicy(p diag.Policy) Option {
	return func(c *loaderConfig) {
		c.policy = p
	}
}

// WithStrict fails loads that report any diagnostic.
func WithStrict() Option {
	return WithPolicy(diag.Strict)
}

// WithBridgeOptions passes options to the underlying bridge.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(c *loaderConfig) {
		c.bridgeOpts = append(c.bridgeOpts, opts...)
	}
}

// NewLoader creates a loader over lib. The loader owns lib and closes it
// in Close.
func NewLoader(lib gprbridge.Library, opts ...Option) *Loader {
	cfg := loaderConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}

	bopts := append([]bridge.Option{bridge.WithLogger(cfg.log)}, cfg.bridgeOpts...)
	b := bridge.New(lib, bopts...)
	return &Loader{
		lib:    b.Library(),
		bridge: b,
		log:    cfg.log,
		policy: cfg.policy,
	}
}

// Bridge returns the bridge the loader calls through.
func (l *Loader) Bridge() *bridge.Bridge {
	return l.bridge
}

// Policy returns the diagnostics policy.
func (l *Loader) Policy() diag.Policy {
	return l.policy
}

// Load loads opts.ProjectFile. Diagnostics are returned even when the
// load fails under the strict policy.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*Project, []string, error) {
	if opts.ProjectFile == "" {
		return nil, nil, errors.InvalidInput(errors.PhaseEncode, "project file is required")
	}
	return l.load(ctx, opts.ProjectFile, bridge.OpProjectLoad,
		opts.ProjectFile, opts.Scenario, opts.Target, opts.Runtime, opts.ConfigFile, opts.AdaOnly)
}

// LoadImplicit loads the library's default project for the current
// directory.
func (l *Loader) LoadImplicit(ctx context.Context, opts ImplicitOptions) (*Project, []string, error) {
	return l.load(ctx, "", bridge.OpProjectLoadImplicit, opts.Target, opts.Runtime, opts.ConfigFile)
}

func (l *Loader) load(ctx context.Context, file, opName string, args ...any) (*Project, []string, error) {
	if l.closed.Load() {
		return nil, nil, errors.NotInitialized(errors.PhaseCall, "loader")
	}

	res, err := l.bridge.CallNamed(ctx, opName, args...)
	if err != nil {
		var de *errors.DiagnosticsError
		if stderrors.As(err, &de) && de.Rejected {
			l.log.Warn("project load rejected",
				zap.String("file", file),
				zap.String("message", de.Message),
				zap.Strings("diagnostics", de.Diagnostics),
			)
			return nil, de.Diagnostics, err
		}
		return nil, nil, err
	}

	op, _ := l.bridge.Table().Lookup(opName)
	if perr := l.policy.Apply(l.log, opName, op.Export, diag.Success{Diagnostics: res.Diagnostics}); perr != nil {
		if rerr := res.Handle.Release(ctx); rerr != nil {
			perr = stderrors.Join(perr, rerr)
		}
		return nil, res.Diagnostics, perr
	}

	l.log.Info("project loaded",
		zap.String("file", file),
		zap.Int("diagnostics", len(res.Diagnostics)),
	)
	return &Project{loader: l, h: res.Handle, file: file}, res.Diagnostics, nil
}

// Live returns the number of projects and unit providers not yet closed.
func (l *Loader) Live() int {
	return l.bridge.Manager().Len()
}

// Close releases every project and unit provider still open, then closes
// the library. Only the first call does anything.
func (l *Loader) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := l.bridge.Manager().Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := l.lib.Close(ctx); err != nil {
		errs = append(errs, errors.Wrap(errors.PhaseLifecycle, errors.KindTrap, err, "close library"))
	}
	return stderrors.Join(errs...)
}
