// Package config reads bridge settings from GPR_BRIDGE_* environment
// variables.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/gpr-bridge/bridge"
	"github.com/wippyai/gpr-bridge/diag"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/native"
	"github.com/wippyai/gpr-bridge/project"
	"github.com/wippyai/gpr-bridge/transcoder"
)

// Config holds every setting that can come from the environment.
type Config struct {
	LibraryPath       string `env:"GPR_BRIDGE_LIBRARY"`
	ProjectRoot       string `env:"GPR_BRIDGE_PROJECT_ROOT"     envDefault:"."`
	Charset           string `env:"GPR_BRIDGE_CHARSET"`
	LogLevel          string `env:"GPR_BRIDGE_LOG_LEVEL"        envDefault:"info"`
	MemoryLimitPages  uint32 `env:"GPR_BRIDGE_MEMORY_LIMIT_PAGES"`
	EnableWASI        bool   `env:"GPR_BRIDGE_WASI"             envDefault:"true"`
	LossyDecoding     bool   `env:"GPR_BRIDGE_LOSSY"`
	StrictDiagnostics bool   `env:"GPR_BRIDGE_STRICT"`
	FreeOnCollect     bool   `env:"GPR_BRIDGE_FREE_ON_COLLECT"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return Parse(nil)
}

// Parse reads environ instead of the process environment. A nil map means
// the process environment.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check by type.
func (c Config) Validate() error {
	if c.Charset != "" && !transcoder.KnownCharset(c.Charset) {
		return errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Path("GPR_BRIDGE_CHARSET").
			Detail("unknown charset %q", c.Charset).
			Build()
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("GPR_BRIDGE_LOG_LEVEL").
			Cause(err).
			Build()
	}
	return nil
}

// Policy returns the diagnostics policy.
func (c Config) Policy() diag.Policy {
	if c.StrictDiagnostics {
		return diag.Strict
	}
	return diag.Report
}

// Codec builds the text codec.
func (c Config) Codec() (*transcoder.Codec, error) {
	opts := []transcoder.CodecOption{transcoder.WithCharset(c.Charset)}
	if c.LossyDecoding {
		opts = append(opts, transcoder.WithLossy())
	}
	return transcoder.NewCodec(opts...)
}

// Native returns the library loading configuration.
func (c Config) Native() *native.Config {
	return &native.Config{
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		ProjectRoot:      c.ProjectRoot,
		MemoryLimitPages: c.MemoryLimitPages,
		EnableWASI:       c.EnableWASI,
	}
}

// LoaderOptions returns project loader options for c. extra bridge options
// are appended after the configured ones.
func (c Config) LoaderOptions(log *zap.Logger, extra ...bridge.Option) ([]project.Option, error) {
	codec, err := c.Codec()
	if err != nil {
		return nil, err
	}
	bopts := []bridge.Option{bridge.WithCodec(codec)}
	if c.FreeOnCollect {
		bopts = append(bopts, bridge.WithFreeOnCollect())
	}
	bopts = append(bopts, extra...)

	return []project.Option{
		project.WithLogger(log),
		project.WithPolicy(c.Policy()),
		project.WithBridgeOptions(bopts...),
	}, nil
}

// NewLogger builds a console logger at level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
