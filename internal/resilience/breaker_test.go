package resilience

import (
	"errors"
	"testing"
	"time"
)

var errRemote = errors.New("provider unreachable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for range 3 {
		_ = b.Execute(func() error { return errRemote })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if !b.Open() {
		t.Fatal("Open() = false while circuit is rejecting calls")
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errRemote })
	}

	// Still open before the timeout elapses.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("expected probe call to pass, got %v", err)
	}
	if !called {
		t.Fatal("expected probe fn to be called")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != stateClosed {
		t.Fatalf("expected closed after probe success, got %d", b.state)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errRemote })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errRemote })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Execute(func() error { return errRemote })
	_ = b.Execute(func() error { return errRemote })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errRemote })
	_ = b.Execute(func() error { return errRemote })

	err := b.Execute(func() error { return nil })
	if err != nil {
		t.Fatalf("expected circuit to stay closed, got %v", err)
	}
}
