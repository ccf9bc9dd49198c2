package watch

import (
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestDebouncerSingleEvent(t *testing.T) {
	var (
		mu     sync.Mutex
		result []string
	)

	d := NewDebouncer(50*time.Millisecond, func(paths []string) {
		mu.Lock()
		result = paths
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("/w/src/a.go")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(result) != 1 || result[0] != "/w/src/a.go" {
		t.Errorf("expected [/w/src/a.go], got %v", result)
	}
}

func TestDebouncerCoalescesWindow(t *testing.T) {
	var (
		mu     sync.Mutex
		result []string
	)

	d := NewDebouncer(100*time.Millisecond, func(paths []string) {
		mu.Lock()
		result = paths
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("/w/a")
	time.Sleep(20 * time.Millisecond)
	d.Add("/w/b")
	time.Sleep(20 * time.Millisecond)
	d.Add("/w/a") // duplicate within the window

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	slices.Sort(result)
	expected := []string{"/w/a", "/w/b"}
	if !slices.Equal(result, expected) {
		t.Errorf("expected %v, got %v", expected, result)
	}
}

func TestDebouncerFlushNow(t *testing.T) {
	var (
		mu      sync.Mutex
		flushes int
	)

	d := NewDebouncer(time.Hour, func(paths []string) {
		mu.Lock()
		flushes++
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("/w/a")
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	if flushes != 1 {
		t.Errorf("FlushNow() produced %d flushes, want 1", flushes)
	}
}

func TestDebouncerStopIgnoresLaterAdds(t *testing.T) {
	var (
		mu      sync.Mutex
		flushes int
	)

	d := NewDebouncer(10*time.Millisecond, func(paths []string) {
		mu.Lock()
		flushes++
		mu.Unlock()
	})

	d.Stop()
	d.Add("/w/a")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushes != 0 {
		t.Errorf("stopped debouncer flushed %d times", flushes)
	}
}

func TestDebouncerPendingLimitForcesFlush(t *testing.T) {
	var (
		mu      sync.Mutex
		flushed int
	)

	d := NewDebouncer(time.Hour, func(paths []string) {
		mu.Lock()
		flushed += len(paths)
		mu.Unlock()
	})
	defer d.Stop()

	for i := 0; i < MaxPendingPaths; i++ {
		d.Add("/w/" + strconv.Itoa(i))
	}

	mu.Lock()
	defer mu.Unlock()
	if flushed == 0 {
		t.Error("hitting the pending limit should force a flush")
	}
}
