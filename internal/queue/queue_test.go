package queue

import (
	"sync"
	"testing"
)

func TestQueue_PushAndDrain(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2, 3)

	if q.Len() != 3 {
		t.Fatalf("expected length 3, got %d", q.Len())
	}

	got := q.Drain()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("unexpected items: %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after Drain, got %d", q.Len())
	}
	if got := q.Drain(); len(got) != 0 {
		t.Errorf("expected nothing from an empty queue, got %v", got)
	}
}

func TestQueue_LimitEvictsOldest(t *testing.T) {
	q := New[int](3)

	if n := q.Push(1, 2, 3); n != 0 {
		t.Errorf("expected no evictions, got %d", n)
	}
	if n := q.Push(4, 5); n != 2 {
		t.Errorf("expected 2 evictions, got %d", n)
	}

	got := q.Drain()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if q.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", q.Dropped())
	}
}

func TestQueue_LimitLargerBatch(t *testing.T) {
	q := New[string](2)
	q.Push("a", "b", "c", "d")

	got := q.Drain()
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("expected the newest two items, got %v", got)
	}
}

func TestQueue_ConcurrentPushDrain(t *testing.T) {
	q := New[int](0)
	var wg sync.WaitGroup
	results := make(chan []int, 10)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.Push(id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.Drain()
		}()
	}
	wg.Wait()
	close(results)

	total := 0
	for r := range results {
		total += len(r)
	}
	if total != 100 {
		t.Errorf("expected total 100 items, got %d", total)
	}
}
