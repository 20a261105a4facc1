package resource

import (
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend(0)

	handle, err := b.Create(1, "test value", 10, 1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}

	e, res := b.Get(handle)
	if res != lookupOK {
		t.Fatal("Get failed")
	}
	if e.Value != "test value" || e.Type != 1 || e.Creator != 10 || e.Owner != 1 {
		t.Fatalf("unexpected entry %+v", e)
	}

	if _, res, err := b.Detach(handle, nil); err != nil || res != lookupOK {
		t.Fatalf("Detach = %v, %v", res, err)
	}

	// Detached but not yet released: reads see it as destroyed
	if _, res := b.Get(handle); res != lookupDestroyed {
		t.Fatalf("Get after Detach = %v, want destroyed", res)
	}

	b.Release(handle)

	if _, res := b.Get(handle); res != lookupDestroyed {
		t.Fatalf("Get after Release = %v, want destroyed", res)
	}
}

func TestLocalBackend_SlotReuseChangesSerial(t *testing.T) {
	b := NewLocalBackend(0)

	h1, _ := b.Create(1, "first", 0, 0)
	_, _, _ = b.Detach(h1, nil)
	b.Release(h1)

	h2, _ := b.Create(1, "second", 0, 0)
	if h1.index() != h2.index() {
		t.Fatalf("expected slot reuse, got index %d and %d", h1.index(), h2.index())
	}
	if h1 == h2 {
		t.Fatal("reused slot must issue a different handle")
	}

	if _, res := b.Get(h1); res != lookupUnknown {
		t.Fatalf("old handle lookup = %v, want unknown", res)
	}
	e, res := b.Get(h2)
	if res != lookupOK || e.Value != "second" {
		t.Fatalf("new handle lookup = %v %v", res, e.Value)
	}
}

func TestLocalBackend_DetachedSlotNotReused(t *testing.T) {
	b := NewLocalBackend(0)

	h1, _ := b.Create(1, "first", 0, 0)
	_, _, _ = b.Detach(h1, nil)

	h2, _ := b.Create(1, "second", 0, 0)
	if h2.index() == h1.index() {
		t.Fatal("slot reused before Release")
	}
}

func TestLocalBackend_Limit(t *testing.T) {
	b := NewLocalBackend(2)

	if _, err := b.Create(1, "a", 0, 0); err != nil {
		t.Fatal(err)
	}
	h, err := b.Create(1, "b", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Create(1, "c", 0, 0); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}

	_, _, _ = b.Detach(h, nil)
	b.Release(h)
	if _, err := b.Create(1, "c", 0, 0); err != nil {
		t.Fatalf("Create after release failed: %v", err)
	}
}

func TestLocalBackend_Closed(t *testing.T) {
	b := NewLocalBackend(0)
	b.Close()

	if _, err := b.Create(1, "value", 0, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLocalBackend_InvalidHandles(t *testing.T) {
	b := NewLocalBackend(0)

	if _, res := b.Get(0); res != lookupUnknown {
		t.Error("handle 0 should be unknown")
	}
	if _, res := b.Get(makeHandle(99, 1)); res != lookupUnknown {
		t.Error("out of range handle should be unknown")
	}
	h, _ := b.Create(1, "v", 0, 0)
	if _, res := b.Get(makeHandle(h.index(), h.serial()+1)); res != lookupUnknown {
		t.Error("wrong serial should be unknown")
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend(0)

	for i := 0; i < 5; i++ {
		_, _ = b.Create(1, i, 0, 0)
	}
	if b.Len() != 5 {
		t.Fatalf("Len = %d, want 5", b.Len())
	}

	count := 0
	b.Each(func(Handle, Entry) bool {
		count++
		return count < 3
	})
	if count != 3 {
		t.Fatalf("Each visited %d, want early stop at 3", count)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := b.Create(1, n, 0, 0)
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			if e, res := b.Get(h); res != lookupOK || e.Value != n {
				t.Errorf("Get(%d) = %v, %v", h, e.Value, res)
			}
			_, _, _ = b.Detach(h, nil)
			b.Release(h)
		}(i)
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Len = %d after all releases", b.Len())
	}
}
