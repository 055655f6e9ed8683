package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreate_DuplicateRejected(t *testing.T) {
	r := New()
	if _, err := r.Create("MZ1", time.Now()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := r.Create("MZ1", time.Now()); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("err=%v, want ErrDuplicateSession", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := New()
	if _, err := r.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v, want ErrSessionNotFound", err)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := New()
	if _, err := r.Create("MZ1", time.Now()); err != nil {
		t.Fatalf("create: %v", err)
	}
	r.Remove("MZ1")
	// Second remove of the same id must be a no-op.
	r.Remove("MZ1")
	r.Remove("never-existed")
	if r.Count() != 0 {
		t.Fatalf("count=%d, want 0", r.Count())
	}
}

func TestWait_ReturnsOnceAllRemoved(t *testing.T) {
	r := New()
	for _, id := range []string{"a", "b"} {
		if _, err := r.Create(id, time.Now()); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- r.Wait(ctx)
	}()

	r.Remove("a")
	r.Remove("b")

	if ok := <-done; !ok {
		t.Fatalf("Wait timed out with empty registry")
	}
}

func TestWait_TimesOutWithActiveSessions(t *testing.T) {
	r := New()
	if _, err := r.Create("a", time.Now()); err != nil {
		t.Fatalf("create: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if r.Wait(ctx) {
		t.Fatalf("Wait should time out while a session is active")
	}
}

func TestCancelAll(t *testing.T) {
	r := New()
	var mu sync.Mutex
	var canceled []string
	for _, id := range []string{"a", "b"} {
		if _, err := r.Create(id, time.Now()); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		id := id
		r.Attach(id, Handle{Cancel: func() {
			mu.Lock()
			canceled = append(canceled, id)
			mu.Unlock()
		}})
	}

	if n := r.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(canceled) != 2 {
		t.Fatalf("cancel callbacks=%d, want 2", len(canceled))
	}
}

func TestConcurrentCreateRemove(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			if _, err := r.Create(id, time.Now()); err == nil {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	if r.Count() != 0 {
		t.Fatalf("count=%d after churn, want 0", r.Count())
	}
}
