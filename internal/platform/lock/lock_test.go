package lock

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	got := normalize([]string{"visit:2", "resource:1", "visit:2", "", "resource:0"})
	want := []string{"resource:0", "resource:1", "visit:2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalize = %v, want %v", got, want)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := SlotKey("doc-1", "2024-01-02"); got != "slot:doc-1:2024-01-02" {
		t.Errorf("SlotKey = %q", got)
	}
	if got := ResourceKey("r1"); got != "resource:r1" {
		t.Errorf("ResourceKey = %q", got)
	}
	if got := VisitKey("v1"); got != "visit:v1" {
		t.Errorf("VisitKey = %q", got)
	}
	if got := OperationKey("o1"); got != "operation:o1" {
		t.Errorf("OperationKey = %q", got)
	}
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	m := NewKeyedMutex(5 * time.Second)
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "slot:doc:2024-01-01")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if len(m.slots) != 0 {
		t.Errorf("expected key table to drain, got %d entries", len(m.slots))
	}
}

func TestKeyedMutex_Timeout(t *testing.T) {
	m := NewKeyedMutex(20 * time.Millisecond)
	unlock, err := m.Lock(context.Background(), "resource:1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	_, err = m.Lock(context.Background(), "resource:2", "resource:1")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// resource:2 must have been released on failure
	unlock2, err := m.Lock(context.Background(), "resource:2")
	if err != nil {
		t.Fatalf("resource:2 should be free: %v", err)
	}
	unlock2()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex(0)
	unlock, _ := m.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Lock(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	m := NewKeyedMutex(time.Second)
	unlock, _ := m.Lock(context.Background(), "k")
	unlock()
	unlock()
	unlock2, err := m.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock after double unlock: %v", err)
	}
	unlock2()
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex(50 * time.Millisecond)
	u1, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer u1()
	u2, err := m.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("independent key should not block: %v", err)
	}
	u2()
}
