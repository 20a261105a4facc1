package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed    = errors.New("resource backend closed")
	ErrExhausted = errors.New("resource backend has no free slots")
)

// lookup outcomes for a handle
type lookupResult uint8

const (
	lookupOK lookupResult = iota
	lookupUnknown
	lookupDestroyed
)

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
	slotDestroying
)

// LocalBackend is an in-memory slot table with serial-tagged handles.
// A slot being destroyed is neither live nor reusable until Release.
type LocalBackend struct {
	entries    []Entry
	freeList   []uint32
	mu         sync.RWMutex
	limit      int
	nextSerial uint16
	closed     bool
}

// Entry is the registry record behind a handle.
type Entry struct {
	Value   any
	Type    TypeTag
	Creator Identity
	Owner   Identity
	serial  uint16
	state   slotState
}

// NewLocalBackend creates a new in-memory backend holding at most limit
// live handles. A limit <= 0 or above MaxHandles means MaxHandles.
func NewLocalBackend(limit int) *LocalBackend {
	if limit <= 0 || limit > MaxHandles {
		limit = MaxHandles
	}
	return &LocalBackend{
		entries:  make([]Entry, 0, 64),
		freeList: make([]uint32, 0, 16),
		limit:    limit,
	}
}

func (b *LocalBackend) issueSerial() uint16 {
	b.nextSerial++
	if b.nextSerial == 0 {
		b.nextSerial = 1
	}
	return b.nextSerial
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(tag TypeTag, value any, creator, owner Identity) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := Entry{
		Value:   value,
		Type:    tag,
		Creator: creator,
		Owner:   owner,
		serial:  b.issueSerial(),
		state:   slotLive,
	}

	if len(b.freeList) > 0 {
		idx := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[idx] = e
		return makeHandle(idx, e.serial), nil
	}

	if len(b.entries) >= b.limit {
		return 0, ErrExhausted
	}

	b.entries = append(b.entries, e)
	return makeHandle(uint32(len(b.entries)-1), e.serial), nil
}

// locate must be called with b.mu held.
func (b *LocalBackend) locate(h Handle) (*Entry, lookupResult) {
	if h == 0 || h.serial() == 0 {
		return nil, lookupUnknown
	}
	idx := h.index()
	if int(idx) >= len(b.entries) {
		return nil, lookupUnknown
	}
	e := &b.entries[idx]
	if e.serial != h.serial() {
		return nil, lookupUnknown
	}
	if e.state != slotLive {
		return e, lookupDestroyed
	}
	return e, lookupOK
}

// Get retrieves a live entry by handle.
func (b *LocalBackend) Get(h Handle) (Entry, lookupResult) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, res := b.locate(h)
	if res != lookupOK {
		return Entry{}, res
	}
	return *e, lookupOK
}

// Detach marks a live slot as being destroyed and returns its entry.
// check, when non-nil, may veto the detach; it runs under the lock.
// The slot stays reserved until Release.
func (b *LocalBackend) Detach(h Handle, check func(Entry) error) (Entry, lookupResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, res := b.locate(h)
	if res == lookupDestroyed {
		return *e, res, nil
	}
	if res != lookupOK {
		return Entry{}, res, nil
	}
	if check != nil {
		if err := check(*e); err != nil {
			return Entry{}, lookupOK, err
		}
	}
	e.state = slotDestroying
	return *e, lookupOK, nil
}

// Release returns a detached slot to the free list.
func (b *LocalBackend) Release(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(b.entries) {
		return
	}
	e := &b.entries[idx]
	if e.serial != h.serial() || e.state != slotDestroying {
		return
	}
	e.state = slotFree
	e.Value = nil
	if !b.closed {
		b.freeList = append(b.freeList, idx)
	}
}

// Close stops accepting new handles. Live slots are left for the caller to destroy.
func (b *LocalBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Len returns the number of live handles.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.state == slotLive {
			count++
		}
	}
	return count
}

// Each iterates over a snapshot of live handles.
func (b *LocalBackend) Each(fn func(Handle, Entry) bool) {
	b.mu.RLock()
	snapshot := make([]Handle, 0, len(b.entries))
	values := make([]Entry, 0, len(b.entries))
	for i, e := range b.entries {
		if e.state == slotLive {
			snapshot = append(snapshot, makeHandle(uint32(i), e.serial))
			values = append(values, e)
		}
	}
	b.mu.RUnlock()

	for i, h := range snapshot {
		if !fn(h, values[i]) {
			return
		}
	}
}
