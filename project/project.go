package project

import (
	"context"
	"sync"

	"github.com/wippyai/gpr-bridge/bridge"
	"github.com/wippyai/gpr-bridge/handle"
	"github.com/wippyai/gpr-bridge/transcoder"
)

// Project is a loaded project tree.
type Project struct {
	loader *Loader
	h      *handle.Handle
	file   string
	mu     sync.Mutex
}

// File returns the project file the project was loaded from, or "" for an
// implicit project.
func (p *Project) File() string {
	return p.file
}

// Handle returns the underlying handle.
func (p *Project) Handle() *handle.Handle {
	return p.h
}

func (p *Project) call(ctx context.Context, op string, args ...any) (*bridge.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loader.bridge.CallNamed(ctx, op, append([]any{p.h}, args...)...)
}

// SourceFiles lists source files. With project names, only the sources of
// those projects are listed and mode is ignored by the library.
func (p *Project) SourceFiles(ctx context.Context, mode Mode, projects ...string) ([]string, error) {
	res, err := p.call(ctx, bridge.OpSourceFiles, int(mode), projects)
	if err != nil {
		return nil, err
	}
	return res.Strings, nil
}

// DefaultCharset returns the default charset of the named project, or of
// the root project when name is "".
func (p *Project) DefaultCharset(ctx context.Context, name string) (string, error) {
	res, err := p.call(ctx, bridge.OpDefaultCharset, name)
	if err != nil {
		return "", err
	}
	return res.String, nil
}

// Codec returns a codec for the default charset of the named project,
// keeping the loader's lossy setting.
func (p *Project) Codec(ctx context.Context, name string) (*transcoder.Codec, error) {
	cs, err := p.DefaultCharset(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.loader.bridge.Codec().ForCharset(cs)
}

// CreateUnitProvider creates a unit provider for the named project, or the
// root project when name is "".
func (p *Project) CreateUnitProvider(ctx context.Context, name string) (*UnitProvider, error) {
	res, err := p.call(ctx, bridge.OpCreateUnitProvider, name)
	if err != nil {
		return nil, err
	}
	return &UnitProvider{h: res.Handle, project: p}, nil
}

// Close releases the project. Unit providers created from it are closed
// separately. A second Close is a lifecycle error.
func (p *Project) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loader.bridge.Free(ctx, p.h)
}

// UnitProvider resolves compilation units of a project.
type UnitProvider struct {
	h       *handle.Handle
	project *Project
}

// Project returns the project the provider was created from.
func (u *UnitProvider) Project() *Project {
	return u.project
}

// Handle returns the underlying handle.
func (u *UnitProvider) Handle() *handle.Handle {
	return u.h
}

// Close releases the provider's reference. A second Close is a lifecycle
// error.
func (u *UnitProvider) Close(ctx context.Context) error {
	return u.project.loader.bridge.Free(ctx, u.h)
}
