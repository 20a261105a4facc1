package resource

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/wasm-zmq/errors"
)

const (
	ownerID  Identity = 1
	pluginID Identity = 2
	otherID  Identity = 3
)

type counted struct {
	drops *atomic.Int32
}

func newTestRegistry(t *testing.T) (*Registry, TypeTag, TypeTag, *atomic.Int32) {
	t.Helper()
	reg := NewRegistry()
	var destroyed atomic.Int32
	sockets, err := reg.CreateType("ZMQSocket", func(any) { destroyed.Add(1) }, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := reg.CreateType("ZMQMessage", nil, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	return reg, sockets, messages, &destroyed
}

func (c counted) Drop() { c.drops.Add(1) }

func TestRegistry_ReadUntilDestroyed(t *testing.T) {
	reg, sockets, _, destroyed := newTestRegistry(t)

	h, err := reg.CreateHandle(sockets, "sock", pluginID, ownerID)
	if err != nil {
		t.Fatal(err)
	}

	for _, caller := range []Identity{pluginID, ownerID} {
		v, err := reg.ReadHandle(h, sockets, caller)
		if err != nil {
			t.Fatalf("ReadHandle as %d: %v", caller, err)
		}
		if v != "sock" {
			t.Fatalf("ReadHandle = %v", v)
		}
	}

	if err := reg.DestroyHandle(h, pluginID); err != nil {
		t.Fatal(err)
	}
	if destroyed.Load() != 1 {
		t.Fatalf("destructor ran %d times, want 1", destroyed.Load())
	}

	_, err = reg.ReadHandle(h, sockets, ownerID)
	if !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("ReadHandle after destroy = %v, want InvalidHandle", err)
	}
}

func TestRegistry_WrongType(t *testing.T) {
	reg, sockets, messages, _ := newTestRegistry(t)

	h, _ := reg.CreateHandle(sockets, "sock", pluginID, ownerID)

	_, err := reg.ReadHandle(h, messages, ownerID)
	if !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("wrong type read = %v, want InvalidHandle", err)
	}

	if err := reg.DestroyTyped(h, messages, ownerID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("wrong type destroy = %v, want InvalidHandle", err)
	}
	if _, err := reg.ReadHandle(h, sockets, ownerID); err != nil {
		t.Fatalf("handle must survive a rejected typed destroy: %v", err)
	}
}

func TestRegistry_AccessControl(t *testing.T) {
	reg, sockets, _, destroyed := newTestRegistry(t)

	h, _ := reg.CreateHandle(sockets, "sock", pluginID, ownerID)

	if _, err := reg.ReadHandle(h, sockets, otherID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("foreign read = %v, want InvalidHandle", err)
	}
	if err := reg.DestroyHandle(h, otherID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("foreign destroy = %v, want InvalidHandle", err)
	}
	if destroyed.Load() != 0 {
		t.Fatal("rejected destroy must not run the destructor")
	}
}

func TestRegistry_DoubleDestroy(t *testing.T) {
	reg, sockets, _, destroyed := newTestRegistry(t)

	h, _ := reg.CreateHandle(sockets, "sock", pluginID, ownerID)
	if err := reg.DestroyHandle(h, pluginID); err != nil {
		t.Fatal(err)
	}

	err := reg.DestroyHandle(h, pluginID)
	if !errors.Is(err, errors.ErrDoubleDestroy) {
		t.Fatalf("second destroy = %v, want DoubleDestroy", err)
	}
	if destroyed.Load() != 1 {
		t.Fatalf("destructor ran %d times, want 1", destroyed.Load())
	}
}

func TestRegistry_DropperFallback(t *testing.T) {
	reg, _, messages, _ := newTestRegistry(t)

	var drops atomic.Int32
	h, _ := reg.CreateHandle(messages, counted{drops: &drops}, pluginID, ownerID)
	if err := reg.DestroyHandle(h, ownerID); err != nil {
		t.Fatal(err)
	}
	if drops.Load() != 1 {
		t.Fatalf("Drop called %d times, want 1", drops.Load())
	}
}

func TestRegistry_CreateType(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.CreateType("", nil, ownerID); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("empty name = %v", err)
	}
	tag, err := reg.CreateType("ZMQSocket", nil, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.CreateType("ZMQSocket", nil, ownerID); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("duplicate name = %v", err)
	}
	if got, ok := reg.LookupType("ZMQSocket"); !ok || got != tag {
		t.Fatalf("LookupType = %d, %v", got, ok)
	}
	if reg.TypeName(tag) != "ZMQSocket" {
		t.Fatalf("TypeName = %q", reg.TypeName(tag))
	}
	if reg.TypeName(99) != "" {
		t.Fatal("unknown tag should have no name")
	}
}

func TestRegistry_RemoveType(t *testing.T) {
	reg, sockets, messages, destroyed := newTestRegistry(t)

	var handles []Handle
	for i := 0; i < 3; i++ {
		h, _ := reg.CreateHandle(sockets, i, pluginID, ownerID)
		handles = append(handles, h)
	}
	msg, _ := reg.CreateHandle(messages, "keep", pluginID, ownerID)

	if err := reg.RemoveType(sockets, pluginID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("RemoveType by non-owner = %v", err)
	}

	if err := reg.RemoveType(sockets, ownerID); err != nil {
		t.Fatal(err)
	}
	if destroyed.Load() != 3 {
		t.Fatalf("destructor ran %d times, want 3", destroyed.Load())
	}
	for _, h := range handles {
		if _, err := reg.ReadHandle(h, sockets, ownerID); err == nil {
			t.Fatalf("handle %d survived RemoveType", h)
		}
	}
	if _, err := reg.ReadHandle(msg, messages, pluginID); err != nil {
		t.Fatalf("other type affected: %v", err)
	}
	if _, err := reg.CreateHandle(sockets, "late", pluginID, ownerID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("CreateHandle on removed type = %v", err)
	}
	if err := reg.RemoveType(sockets, ownerID); err == nil {
		t.Fatal("second RemoveType should fail")
	}
	if _, ok := reg.LookupType("ZMQSocket"); ok {
		t.Fatal("removed type still resolvable")
	}
}

func TestRegistry_Close(t *testing.T) {
	reg, sockets, messages, destroyed := newTestRegistry(t)

	_, _ = reg.CreateHandle(sockets, "a", pluginID, ownerID)
	_, _ = reg.CreateHandle(sockets, "b", pluginID, ownerID)
	_, _ = reg.CreateHandle(messages, "c", pluginID, ownerID)

	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	if destroyed.Load() != 2 {
		t.Fatalf("destructor ran %d times, want 2", destroyed.Load())
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d after Close", reg.Len())
	}
	if _, err := reg.CreateHandle(sockets, "d", pluginID, ownerID); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("CreateHandle after Close = %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRegistry_Observers(t *testing.T) {
	reg, sockets, _, _ := newTestRegistry(t)

	var events []Event
	unsubscribe := reg.Subscribe(ObserverFunc(func(e Event) {
		events = append(events, e)
	}))

	h, _ := reg.CreateHandle(sockets, "sock", pluginID, ownerID)
	_ = reg.DestroyHandle(h, pluginID)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventCreated || events[0].Handle != h || events[0].TypeName != "ZMQSocket" {
		t.Fatalf("unexpected create event %+v", events[0])
	}
	if events[1].Type != EventDestroyed || events[1].Creator != pluginID {
		t.Fatalf("unexpected destroy event %+v", events[1])
	}

	unsubscribe()
	_, _ = reg.CreateHandle(sockets, "sock", pluginID, ownerID)
	if len(events) != 2 {
		t.Fatal("observer called after unsubscribe")
	}
}

func TestRegistry_DestructorMayReenter(t *testing.T) {
	reg := NewRegistry()
	var messages TypeTag
	var inner Handle
	sockets, _ := reg.CreateType("ZMQSocket", func(any) {
		_ = reg.DestroyHandle(inner, ownerID)
	}, ownerID)
	messages, _ = reg.CreateType("ZMQMessage", nil, ownerID)

	inner, _ = reg.CreateHandle(messages, "m", pluginID, ownerID)
	outer, _ := reg.CreateHandle(sockets, "s", pluginID, ownerID)

	if err := reg.DestroyHandle(outer, ownerID); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	reg, sockets, messages, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag := sockets
			if n%2 == 0 {
				tag = messages
			}
			for j := 0; j < 50; j++ {
				h, err := reg.CreateHandle(tag, j, pluginID, ownerID)
				if err != nil {
					t.Errorf("CreateHandle: %v", err)
					return
				}
				if _, err := reg.ReadHandle(h, tag, pluginID); err != nil {
					t.Errorf("ReadHandle: %v", err)
					return
				}
				if err := reg.DestroyHandle(h, pluginID); err != nil {
					t.Errorf("DestroyHandle: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 0 {
		t.Fatalf("Len = %d, want 0", reg.Len())
	}
}

func TestRegistry_RemoveTypeRacesCreate(t *testing.T) {
	for round := 0; round < 50; round++ {
		reg, sockets, _, destroyed := newTestRegistry(t)

		var (
			wg      sync.WaitGroup
			created atomic.Int32
			mu      sync.Mutex
			handles []Handle
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					h, err := reg.CreateHandle(sockets, j, pluginID, ownerID)
					if err != nil {
						continue
					}
					created.Add(1)
					mu.Lock()
					handles = append(handles, h)
					mu.Unlock()
				}
			}()
		}
		if err := reg.RemoveType(sockets, ownerID); err != nil {
			t.Fatal(err)
		}
		wg.Wait()

		if n := reg.Count(sockets); n != 0 {
			t.Fatalf("round %d: %d handles of a removed type survive", round, n)
		}
		if destroyed.Load() != created.Load() {
			t.Fatalf("round %d: destroyed %d of %d", round, destroyed.Load(), created.Load())
		}
		for _, h := range handles {
			if _, err := reg.ReadHandle(h, sockets, ownerID); err == nil {
				t.Fatalf("round %d: handle %s readable after RemoveType", round, h)
			}
		}
	}
}

func TestTyped(t *testing.T) {
	reg, sockets, messages, destroyed := newTestRegistry(t)

	typed := NewTyped[string](reg, sockets)
	if typed.Name() != "ZMQSocket" || typed.Tag() != sockets {
		t.Fatalf("unexpected binding %s/%d", typed.Name(), typed.Tag())
	}

	h, err := typed.Create("sock", pluginID, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	v, err := typed.Read(h, pluginID)
	if err != nil || v != "sock" {
		t.Fatalf("Read = %q, %v", v, err)
	}
	if typed.Len() != 1 {
		t.Fatalf("Len = %d", typed.Len())
	}

	// a handle of another Go type under the same tag
	bad, _ := reg.CreateHandle(sockets, 42, pluginID, ownerID)
	if _, err := typed.Read(bad, pluginID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("Read of mistyped value = %v", err)
	}

	msg, _ := reg.CreateHandle(messages, "m", pluginID, ownerID)
	if err := typed.Destroy(msg, pluginID); !errors.Is(err, errors.ErrInvalidHandle) {
		t.Fatalf("Destroy of other type = %v", err)
	}

	if err := typed.Destroy(h, pluginID); err != nil {
		t.Fatal(err)
	}
	if err := typed.Destroy(h, pluginID); !errors.Is(err, errors.ErrDoubleDestroy) {
		t.Fatalf("second Destroy = %v", err)
	}
	if destroyed.Load() != 1 {
		t.Fatalf("destructor ran %d times", destroyed.Load())
	}
}
