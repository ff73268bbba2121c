package transcoder

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/gpr-bridge/errors"
)

func TestDrainStringArray(t *testing.T) {
	tests := []struct {
		name  string
		items []string
	}{
		{"empty", []string{}},
		{"single", []string{"unused variable X"}},
		{"many", []string{"a.adb", "b.ads", "c.adb", "", "d/e/f.adb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, _ := newTestLib(t)
			ptr := lib.NewStringArray(tt.items)

			got, err := DrainStringArray(lib.Memory(), UTF8, ptr, releaser(lib))
			if err != nil {
				t.Fatalf("DrainStringArray: %v", err)
			}
			if got == nil {
				t.Fatal("result must not be nil")
			}
			if len(got) != len(tt.items) {
				t.Fatalf("len = %d, want %d: %q", len(got), len(tt.items), got)
			}
			for i := range got {
				if got[i] != tt.items[i] {
					t.Errorf("item %d = %q, want %q", i, got[i], tt.items[i])
				}
			}
			if n := lib.ArrayFrees(ptr); n != 1 {
				t.Errorf("array freed %d times, want 1", n)
			}
			if n := lib.LiveAllocations(); n != 0 {
				t.Errorf("live allocations = %d", n)
			}
		})
	}
}

func TestDrainStringArray_CountIsAuthoritative(t *testing.T) {
	lib, _ := newTestLib(t)
	ptr := lib.NewStringArray([]string{"a", "b"})

	got, err := DrainStringArray(lib.Memory(), UTF8, ptr, releaser(lib))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range got {
		if s == "<past-end>" {
			t.Fatalf("read past count: %q", got)
		}
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestDrainStringArray_ReleasesOnError(t *testing.T) {
	lib, _ := newTestLib(t)
	ptr := lib.NewStringArray([]string{"fine", "bad\xff"})

	got, err := DrainStringArray(lib.Memory(), UTF8, ptr, releaser(lib))
	if err == nil {
		t.Fatalf("expected error, got %q", got)
	}
	if !errors.IsKind(err, errors.KindInvalidUTF8) {
		t.Errorf("expected invalid_utf8, got %v", err)
	}
	var e *errors.Error
	if stderrors.As(err, &e) && (len(e.Path) != 2 || e.Path[1] != "1") {
		t.Errorf("error should point at item 1, path = %v", e.Path)
	}
	if n := lib.ArrayFrees(ptr); n != 1 {
		t.Errorf("array freed %d times, want 1", n)
	}
}

func TestDrainStringArray_ReleaseError(t *testing.T) {
	lib, _ := newTestLib(t)
	ptr := lib.NewStringArray([]string{"a"})
	boom := stderrors.New("free failed")

	calls := 0
	got, err := DrainStringArray(lib.Memory(), UTF8, ptr, func(p uint32) error {
		calls++
		_ = releaser(lib)(p)
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Errorf("expected release error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no result on release failure, got %q", got)
	}
	if calls != 1 {
		t.Errorf("release called %d times", calls)
	}
}

func TestDrainStringArray_Null(t *testing.T) {
	called := false
	_, err := DrainStringArray(nil, UTF8, 0, func(uint32) error {
		called = true
		return nil
	})
	if !errors.IsKind(err, errors.KindNilPointer) {
		t.Errorf("expected nil_pointer, got %v", err)
	}
	if called {
		t.Error("release must not run for a null array")
	}
}

func TestReadStringArray_DoesNotFree(t *testing.T) {
	lib, _ := newTestLib(t)
	ptr := lib.NewStringArray([]string{"x", "y"})

	got, err := ReadStringArray(lib.Memory(), UTF8, ptr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d", len(got))
	}
	if lib.ArrayFrees(ptr) != 0 {
		t.Error("ReadStringArray must not free")
	}
	if _, err := lib.Call(context.Background(), "gpr_free_string_array", uint64(ptr)); err != nil {
		t.Fatal(err)
	}
}

func TestReadStringArray_CorruptCount(t *testing.T) {
	lib, _ := newTestLib(t)
	ptr := lib.NewStringArray([]string{"x"})
	defer lib.Call(context.Background(), "gpr_free_string_array", uint64(ptr))

	mem := lib.Memory()
	orig, _ := mem.ReadU32(ptr)
	if err := mem.WriteU32(ptr, MaxStringArrayLen+1); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadStringArray(mem, UTF8, ptr); !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Errorf("expected out_of_bounds, got %v", err)
	}
	_ = mem.WriteU32(ptr, orig)
}
