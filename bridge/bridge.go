package bridge

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"

	"go.uber.org/zap"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/diag"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/handle"
	"github.com/wippyai/gpr-bridge/native"
	"github.com/wippyai/gpr-bridge/transcoder"
)

// OutcomeObserver is told the outcome of every call with diagnostics.
// o is nil when the diagnostics could not be read. err is the error the
// call returns, nil on success.
type OutcomeObserver interface {
	ObserveOutcome(op string, o diag.Outcome, err error)
}

// Result is what a successful call produced.
type Result struct {
	// Handle is set for handle results. It is nil when the library
	// returned a null address and the operation allows that.
	Handle *handle.Handle
	// String is set for string results.
	String string
	// Strings is set for string array results, never nil.
	Strings []string
	// Diagnostics is set for operations with diagnostics, never nil.
	Diagnostics []string
}

// Bridge executes table operations against a library.
type Bridge struct {
	lib          gprbridge.Library
	mgr          *handle.Manager
	codec        *transcoder.Codec
	log          *zap.Logger
	table        *Table
	observers    []OutcomeObserver
	handleOpts   []handle.Option
	sym          native.Symbols
	mu           sync.Mutex
	hasLastError bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for the bridge and its handle manager.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithCodec sets the text codec. The default is strict UTF-8.
func WithCodec(c *transcoder.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithTable replaces the operation table.
func WithTable(t *Table) Option {
	return func(b *Bridge) {
		b.table = t
	}
}

// WithSymbols overrides the allocator and release export names.
func WithSymbols(sym native.Symbols) Option {
	return func(b *Bridge) {
		b.sym = sym
	}
}

// WithFreeOnCollect frees unreleased handles once they become unreachable.
func WithFreeOnCollect() Option {
	return func(b *Bridge) {
		b.handleOpts = append(b.handleOpts, handle.WithFreeOnCollect())
	}
}

// WithHandleObserver subscribes o to handle lifecycle events.
func WithHandleObserver(o handle.Observer) Option {
	return func(b *Bridge) {
		b.handleOpts = append(b.handleOpts, handle.WithObserver(o))
	}
}

// WithOutcomeObserver subscribes o to call outcomes.
func WithOutcomeObserver(o OutcomeObserver) Option {
	return func(b *Bridge) {
		b.observers = append(b.observers, o)
	}
}

// New creates a bridge over lib. Native calls are serialised.
func New(lib gprbridge.Library, opts ...Option) *Bridge {
	b := &Bridge{
		codec: transcoder.UTF8,
		log:   zap.NewNop(),
		table: Ops,
		sym:   native.DefaultSymbols,
	}
	for _, opt := range opts {
		opt(b)
	}

	locked := native.Locked(lib)
	b.lib = locked
	b.hasLastError = b.sym.LastError != "" && locked.HasExport(b.sym.LastError)

	hopts := append([]handle.Option{
		handle.WithLogger(b.log),
		handle.WithSymbols(b.sym),
	}, b.handleOpts...)
	b.mgr = handle.NewManager(locked, hopts...)
	return b
}

// Manager returns the handle manager owning every resource the bridge
// wraps.
func (b *Bridge) Manager() *handle.Manager {
	return b.mgr
}

// Table returns the operation table.
func (b *Bridge) Table() *Table {
	return b.table
}

// Codec returns the text codec.
func (b *Bridge) Codec() *transcoder.Codec {
	return b.codec
}

// Library returns the serialised library.
func (b *Bridge) Library() gprbridge.Library {
	return b.lib
}

// Free releases h through its kind's free export.
func (b *Bridge) Free(ctx context.Context, h *handle.Handle) error {
	return b.mgr.Release(ctx, h)
}

// CallNamed looks up name in the table and calls it.
func (b *Bridge) CallNamed(ctx context.Context, name string, args ...any) (*Result, error) {
	op, ok := b.table.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "operation", name)
	}
	return b.Call(ctx, op, args...)
}

// Call runs op with args, one per op.Args entry.
//
// Every native buffer created for the call is freed before Call returns,
// on every path. A hard failure is returned as a KindHardFailure error; a
// primary result written alongside it is ignored and never freed. A call
// that produced diagnostics but a null result returns a rejected
// *errors.DiagnosticsError carrying them.
func (b *Bridge) Call(ctx context.Context, op *Operation, args ...any) (res *Result, err error) {
	if len(args) != len(op.Args) {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Op(op.Name).
			Export(op.Export).
			Detail("expected %d arguments, got %d", len(op.Args), len(args)).
			Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mem := b.lib.Memory()
	scope := transcoder.NewScope(native.NewAllocator(ctx, b.lib, b.sym))
	defer func() {
		if ferr := scope.FreeAndRelease(); ferr != nil {
			b.log.Error("failed to free call buffers", zap.String("op", op.Name), zap.Error(ferr))
			if res != nil && res.Handle != nil {
				_ = res.Handle.Release(ctx)
			}
			res, err = nil, stderrors.Join(err, ferr)
		}
	}()

	enc := &encoder{mem: mem, codec: b.codec, scope: scope, op: op}
	for i, a := range op.Args {
		if err := enc.encode(a, args[i]); err != nil {
			return nil, err
		}
	}

	var resultSlot, diagSlot uint32
	if op.Result == ResultOutHandle {
		if resultSlot, err = scope.Slot(mem); err != nil {
			return nil, err
		}
		enc.params = append(enc.params, uint64(resultSlot))
	}
	if op.Diagnostics {
		if diagSlot, err = scope.Slot(mem); err != nil {
			return nil, err
		}
		enc.params = append(enc.params, uint64(diagSlot))
	}

	results, err := b.lib.Call(ctx, op.Export, enc.params...)
	runtime.KeepAlive(enc.handles)
	if err != nil {
		return nil, err
	}

	res = &Result{}
	if op.Diagnostics {
		outcome, herr := b.harvest(ctx, op, mem, resultSlot, diagSlot)
		defer func() {
			for _, o := range b.observers {
				o.ObserveOutcome(op.Name, outcome, err)
			}
		}()
		if herr != nil {
			return nil, herr
		}
		res.Diagnostics = diag.Diagnostics(outcome)
	}
	if err := b.convert(ctx, op, mem, results, resultSlot, res); err != nil {
		if res.Handle != nil {
			_ = res.Handle.Release(ctx)
		}
		return nil, err
	}

	b.log.Debug("call completed",
		zap.String("op", op.Name),
		zap.Int("diagnostics", len(res.Diagnostics)),
	)
	return res, nil
}

// harvest inspects the diagnostics slot. A hard failure is returned as
// its outcome together with the error describing it. The outcome is nil
// when the diagnostics could not be read.
func (b *Bridge) harvest(ctx context.Context, op *Operation, mem gprbridge.Memory, resultSlot, diagSlot uint32) (diag.Outcome, error) {
	outcome, err := diag.Harvest(mem, diagSlot, func(ptr uint32) ([]string, error) {
		return transcoder.DrainStringArray(mem, b.codec, ptr, func(p uint32) error {
			return b.mgr.FreeStringArray(ctx, p)
		})
	})
	if err != nil {
		// The diagnostics are lost but the primary result is still ours.
		if resultSlot != 0 {
			if addr, rerr := mem.ReadU32(resultSlot); rerr == nil && addr != 0 {
				if derr := b.mgr.Discard(ctx, op.Kind, addr); derr != nil {
					err = stderrors.Join(err, derr)
				}
			}
		}
		return nil, err
	}

	if _, ok := outcome.(diag.HardFailure); ok {
		hf := diag.HardFailure{Message: b.lastError(ctx)}
		if resultSlot != 0 {
			if addr, _ := mem.ReadU32(resultSlot); addr != 0 {
				b.log.Warn("ignoring result of failed call",
					zap.String("op", op.Name),
					zap.Uint32("addr", addr),
				)
			}
		}
		return hf, errors.HardFailure(op.Name, op.Export, hf.Message)
	}
	return outcome, nil
}

func (b *Bridge) convert(ctx context.Context, op *Operation, mem gprbridge.Memory, results []uint64, resultSlot uint32, res *Result) error {
	var addr uint32
	switch op.Result {
	case ResultNone:
		return nil
	case ResultOutHandle:
		v, err := mem.ReadU32(resultSlot)
		if err != nil {
			return err
		}
		addr = v
	default:
		if len(results) == 0 {
			return errors.New(errors.PhaseDecode, errors.KindInvalidInput).
				Op(op.Name).
				Export(op.Export).
				Detail("export returned no result").
				Build()
		}
		addr = uint32(results[0])
	}

	if addr == 0 {
		if op.NullIsFailure {
			// A diagnostic list was produced, so this is not a hard
			// failure: the diagnostics explain the missing result.
			if op.Diagnostics {
				return errors.Rejected(op.Name, op.Export, b.lastError(ctx), res.Diagnostics)
			}
			return errors.HardFailure(op.Name, op.Export, b.lastError(ctx))
		}
		if op.Result == ResultStringArray {
			res.Strings = []string{}
		}
		return nil
	}

	switch op.Result {
	case ResultHandle, ResultOutHandle:
		res.Handle = b.mgr.Wrap(op.Kind, addr)

	case ResultString:
		s, err := b.codec.ToManaged(mem, addr)
		if ferr := b.mgr.FreeString(ctx, addr); ferr != nil {
			return stderrors.Join(err, ferr)
		}
		if err != nil {
			return errors.Wrap(errors.PhaseDecode, errors.KindEncoding, err, op.Name+" result")
		}
		res.String = s

	case ResultStringArray:
		list, err := transcoder.DrainStringArray(mem, b.codec, addr, func(p uint32) error {
			return b.mgr.FreeStringArray(ctx, p)
		})
		if err != nil {
			return err
		}
		res.Strings = list
	}
	return nil
}

// lastError returns the library's message for the most recent failure,
// or "" when it has none. The message is library-owned.
func (b *Bridge) lastError(ctx context.Context) string {
	if !b.hasLastError {
		return ""
	}
	results, err := b.lib.Call(ctx, b.sym.LastError)
	if err != nil || len(results) == 0 || results[0] == 0 {
		return ""
	}
	msg, err := b.codec.ToManaged(b.lib.Memory(), uint32(results[0]))
	if err != nil {
		msg, _ = b.codec.Relaxed().ToManaged(b.lib.Memory(), uint32(results[0]))
	}
	return msg
}
