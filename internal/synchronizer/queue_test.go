package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBundleQueue_FIFO(t *testing.T) {
	q := NewBundleQueue()
	for i := uint64(0); i < 3; i++ {
		if err := q.Put(&Bundle{Index: i}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Expected 3 queued, got %d", q.Len())
	}

	ctx := context.Background()
	for i := uint64(0); i < 3; i++ {
		b, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if b.Index != i {
			t.Errorf("Expected bundle %d, got %d", i, b.Index)
		}
	}

	if _, ok := q.TryGet(); ok {
		t.Error("TryGet on an empty queue should fail")
	}
}

func TestBundleQueue_GetBlocksUntilPut(t *testing.T) {
	q := NewBundleQueue()

	got := make(chan *Bundle, 1)
	go func() {
		b, err := q.Get(context.Background())
		if err == nil {
			got <- b
		}
	}()

	select {
	case <-got:
		t.Fatal("Get returned before any Put")
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.Put(&Bundle{Index: 7}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	select {
	case b := <-got:
		if b.Index != 7 {
			t.Errorf("Expected bundle 7, got %d", b.Index)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up after Put")
	}
}

func TestBundleQueue_GetHonoursContext(t *testing.T) {
	q := NewBundleQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := q.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestBundleQueue_CloseDrainsFirst(t *testing.T) {
	q := NewBundleQueue()
	_ = q.Put(&Bundle{Index: 1})
	q.Close()
	q.Close()

	if err := q.Put(&Bundle{Index: 2}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Put, got %v", err)
	}

	ctx := context.Background()
	if b, err := q.Get(ctx); err != nil || b.Index != 1 {
		t.Errorf("Expected to drain bundle 1, got %v (%v)", b, err)
	}
	if _, err := q.Get(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed once drained, got %v", err)
	}
}

func TestBundleQueue_ConsumersShareWork(t *testing.T) {
	q := NewBundleQueue()
	const total = 200

	var mu sync.Mutex
	seen := make(map[uint64]int)

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, err := q.Get(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[b.Index]++
				mu.Unlock()
			}
		}()
	}

	for i := uint64(0); i < total; i++ {
		if err := q.Put(&Bundle{Index: i}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	q.Close()
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("Expected %d distinct bundles, got %d", total, len(seen))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Errorf("Bundle %d delivered %d times", idx, n)
		}
	}
}
