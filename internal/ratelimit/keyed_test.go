package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestKeyed_AllowAndRefill(t *testing.T) {
	clk := clock.NewMock()
	k, err := NewKeyed(5, 5, 16, clk)
	if err != nil {
		t.Fatalf("NewKeyed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if !k.Allow("a") {
			t.Fatalf("expected burst event %d to be allowed", i)
		}
	}
	if k.Allow("a") {
		t.Fatalf("expected bucket to be empty")
	}
	if !k.Allow("b") {
		t.Fatalf("expected other key to have its own bucket")
	}

	clk.Add(200 * time.Millisecond)
	if !k.Allow("a") {
		t.Fatalf("expected refill after time advance")
	}
	if k.Allow("a") {
		t.Fatalf("expected only one token to be refilled")
	}
}

func TestKeyed_BoundedKeys(t *testing.T) {
	clk := clock.NewMock()
	k, err := NewKeyed(1, 1, 2, clk)
	if err != nil {
		t.Fatalf("NewKeyed: %v", err)
	}

	k.Allow("a")
	k.Allow("b")
	k.Allow("c")
	if got := k.Len(); got != 2 {
		t.Fatalf("Len=%d, want 2", got)
	}
	// "a" was evicted, so it starts over with a full bucket.
	if !k.Allow("a") {
		t.Fatalf("expected evicted key to get a fresh bucket")
	}
}

func TestKeyed_Disabled(t *testing.T) {
	k, err := NewKeyed(0, 0, 16, nil)
	if err != nil {
		t.Fatalf("NewKeyed: %v", err)
	}
	if k != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
	for i := 0; i < 100; i++ {
		if !k.Allow("a") {
			t.Fatalf("disabled limiter rejected an event")
		}
	}
}

func TestKeyed_InvalidConfig(t *testing.T) {
	if _, err := NewKeyed(1, 0, 16, nil); err == nil {
		t.Fatalf("expected error for zero burst")
	}
	if _, err := NewKeyed(1, 1, 0, nil); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/connect", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientKey(r, false); got != "192.0.2.1" {
		t.Fatalf("ClientKey=%q, want 192.0.2.1", got)
	}
	if got := ClientKey(r, true); got != "203.0.113.7" {
		t.Fatalf("ClientKey=%q, want 203.0.113.7", got)
	}

	r.Header.Set("X-Forwarded-For", "garbage")
	if got := ClientKey(r, true); got != "192.0.2.1" {
		t.Fatalf("ClientKey=%q, want fallback to remote addr", got)
	}
}
