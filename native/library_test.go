package native

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/gpr-bridge/errors"
)

func TestOpen_MemoryOnlyModule(t *testing.T) {
	ctx := context.Background()
	lib, err := Open(ctx, memoryWASM, &Config{Name: "test"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close(ctx)

	if lib.Memory() == nil {
		t.Fatal("expected memory")
	}
	if lib.HasExport("gpr_malloc") {
		t.Error("memory-only module should not export gpr_malloc")
	}
	if names := lib.ExportNames(); len(names) != 0 {
		t.Errorf("expected no function exports, got %v", names)
	}
}

func TestOpen_DefaultConfig(t *testing.T) {
	ctx := context.Background()
	lib, err := Open(ctx, memoryWASM, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := lib.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpen_MissingMemory(t *testing.T) {
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	_, err := Open(context.Background(), empty, &Config{})
	if err == nil {
		t.Fatal("expected error for module without memory")
	}
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestOpen_InvalidBytes(t *testing.T) {
	_, err := Open(context.Background(), []byte("not a wasm module"), &Config{})
	if err == nil {
		t.Fatal("expected error for garbage input")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseLoad {
		t.Errorf("expected load phase error, got %v", err)
	}
}

func TestOpen_Stdout(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()
	lib, err := Open(ctx, memoryWASM, &Config{Stdout: &out, Stderr: &out, EnableWASI: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close(ctx)
	if out.Len() != 0 {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestCall_MissingExport(t *testing.T) {
	ctx := context.Background()
	lib, err := Open(ctx, memoryWASM, &Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close(ctx)

	_, err = lib.Call(ctx, "gpr_project_load")
	if err == nil {
		t.Fatal("expected error for missing export")
	}
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestSignature_MissingExport(t *testing.T) {
	ctx := context.Background()
	lib, err := Open(ctx, memoryWASM, &Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close(ctx)

	if _, _, ok := lib.Signature("gpr_malloc"); ok {
		t.Error("memory-only module reported a gpr_malloc signature")
	}
	if names := lib.ExportNames(); len(names) != 0 {
		t.Errorf("ExportNames = %v, want none", names)
	}
}
