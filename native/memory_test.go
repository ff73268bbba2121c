package native

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	gprbridge "github.com/wippyai/gpr-bridge"
	"github.com/wippyai/gpr-bridge/errors"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory" (6 bytes + string)
	0x02, 0x00, // kind: memory, index 0
}

func newTestMemory(t *testing.T) gprbridge.Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := rt.Instantiate(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	mem := WrapMemory(mod.ExportedMemory("memory"))
	if mem == nil {
		t.Fatal("expected non-nil wrapped memory")
	}
	return mem
}

func TestWrapMemory_Nil(t *testing.T) {
	if mem := WrapMemory(nil); mem != nil {
		t.Error("expected nil for nil memory")
	}
}

func TestWrapper_ReadWrite(t *testing.T) {
	mem := newTestMemory(t)

	data := []byte{1, 2, 3, 4}
	if err := mem.Write(0, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := mem.Read(0, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range read {
		if b != data[i] {
			t.Errorf("byte %d: expected %d, got %d", i, data[i], b)
		}
	}
}

func TestWrapper_OutOfBounds(t *testing.T) {
	mem := newTestMemory(t)

	tests := []struct {
		name string
		op   func() error
	}{
		{"read", func() error { _, err := mem.Read(65536, 1); return err }},
		{"write", func() error { return mem.Write(65536, []byte{1}) }},
		{"read u8", func() error { _, err := mem.ReadU8(65536); return err }},
		{"read u32", func() error { _, err := mem.ReadU32(65534); return err }},
		{"write u8", func() error { return mem.WriteU8(65536, 1) }},
		{"write u32", func() error { return mem.WriteU32(65534, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if err == nil {
				t.Fatal("expected out of bounds error")
			}
			if !errors.IsKind(err, errors.KindOutOfBounds) {
				t.Errorf("expected out_of_bounds, got %v", err)
			}
		})
	}
}

func TestWrapper_IntegerReadWrite(t *testing.T) {
	mem := newTestMemory(t)

	if err := mem.WriteU8(0, 42); err != nil {
		t.Fatalf("WriteU8 failed: %v", err)
	}
	v8, err := mem.ReadU8(0)
	if err != nil {
		t.Fatalf("ReadU8 failed: %v", err)
	}
	if v8 != 42 {
		t.Errorf("ReadU8: expected 42, got %d", v8)
	}

	if err := mem.WriteU32(8, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	v32, err := mem.ReadU32(8)
	if err != nil {
		t.Fatalf("ReadU32 failed: %v", err)
	}
	if v32 != 0xDEADBEEF {
		t.Errorf("ReadU32: expected 0xDEADBEEF, got 0x%X", v32)
	}

	// little-endian layout
	b, _ := mem.ReadU8(8)
	if b != 0xEF {
		t.Errorf("low byte: expected 0xEF, got 0x%X", b)
	}
}

func TestWrapper_Size(t *testing.T) {
	mem := newTestMemory(t)
	sizer, ok := mem.(gprbridge.MemorySizer)
	if !ok {
		t.Fatal("wrapped memory should report its size")
	}
	if sizer.Size() != 65536 {
		t.Errorf("Size: expected 65536, got %d", sizer.Size())
	}
}
