package infra

import (
	"testing"
	"time"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("TryAcquire() #%d = false, want true", i)
		}
	}
	if rl.TryAcquire() {
		t.Error("TryAcquire() beyond burst = true, want false")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(1, 100) // 100 tokens/sec refills quickly

	if !rl.TryAcquire() {
		t.Fatal("first TryAcquire() = false")
	}
	if rl.TryAcquire() {
		t.Fatal("second immediate TryAcquire() = true")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Error("TryAcquire() after refill window = false, want true")
	}
}
