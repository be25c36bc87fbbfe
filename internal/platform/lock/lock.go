package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTimeout is returned when a key could not be acquired within the wait budget.
var ErrTimeout = errors.New("lock wait timed out")

// Locker serialises work on contended keys. Lock acquires every key (in
// sorted order, duplicates collapsed) or none of them; the returned func
// releases them all.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// Key helpers for the contended entities.
func ResourceKey(id string) string { return "resource:" + id }

func VisitKey(id string) string { return "visit:" + id }

func OperationKey(id string) string { return "operation:" + id }

func SlotKey(doctorID, date string) string { return "slot:" + doctorID + ":" + date }

// normalize sorts and de-duplicates keys so that concurrent callers always
// acquire in the same order.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KeyedMutex is a process-local Locker. It is not reentrant: a goroutine
// holding a key must not request it again.
type KeyedMutex struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a process-local locker. wait bounds how long Lock
// blocks on each key; zero means only the context bounds it.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{wait: wait, slots: make(map[string]*entry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	if m.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.wait)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.release(held[i])
		}
	}
	for _, k := range keys {
		if err := m.acquire(ctx, k); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *KeyedMutex) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.slots[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.slots[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.unref(key, e)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

func (m *KeyedMutex) release(key string) {
	m.mu.Lock()
	e := m.slots[key]
	m.mu.Unlock()
	if e == nil {
		return
	}
	<-e.ch
	m.unref(key, e)
}

func (m *KeyedMutex) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.slots, key)
	}
}
