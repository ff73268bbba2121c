package transcoder

import (
	"testing"

	"github.com/wippyai/gpr-bridge/errors"
)

func TestScope_FreesExactlyOnce(t *testing.T) {
	lib, alloc := newTestLib(t)
	scope := NewScope(alloc)

	for i := 0; i < 3; i++ {
		if _, err := scope.Alloc(16); err != nil {
			t.Fatalf("Alloc: %v", err)
		}
	}
	if scope.Count() != 3 {
		t.Errorf("Count = %d, want 3", scope.Count())
	}

	if err := scope.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := scope.Free(); err != nil {
		t.Fatalf("second Free: %v", err)
	}
	if n := lib.CallCount("gpr_free"); n != 3 {
		t.Errorf("gpr_free called %d times, want 3", n)
	}
	if n := lib.LiveAllocations(); n != 0 {
		t.Errorf("live allocations = %d", n)
	}

	if _, err := scope.Alloc(4); !errors.IsKind(err, errors.KindLifecycle) {
		t.Errorf("alloc after free: expected lifecycle error, got %v", err)
	}
	scope.Release()
}

func TestScope_Slot(t *testing.T) {
	lib, alloc := newTestLib(t)
	scope := NewScope(alloc)
	defer scope.FreeAndRelease()

	ptr, err := scope.Slot(lib.Memory())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := lib.Memory().ReadU32(ptr); v != 0 {
		t.Errorf("slot not zeroed: %#x", v)
	}
}

func TestScope_NilAllocator(t *testing.T) {
	scope := NewScope(nil)
	defer scope.Release()
	if _, err := scope.Alloc(4); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("expected not_initialized, got %v", err)
	}
}

func TestScope_PoolReuse(t *testing.T) {
	_, alloc := newTestLib(t)
	s := NewScope(alloc)
	if _, err := s.Alloc(8); err != nil {
		t.Fatal(err)
	}
	if err := s.FreeAndRelease(); err != nil {
		t.Fatal(err)
	}

	s2 := NewScope(alloc)
	defer s2.FreeAndRelease()
	if s2.Count() != 0 {
		t.Errorf("pooled scope not reset: %d allocations", s2.Count())
	}
	if _, err := s2.Alloc(8); err != nil {
		t.Errorf("pooled scope unusable: %v", err)
	}
}
