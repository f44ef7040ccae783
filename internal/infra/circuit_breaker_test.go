package infra

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 2, time.Minute)

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("Allow() = false before threshold, failure %d", i)
		}
		cb.RecordFailure()
	}

	if cb.CurrentState() != StateOpen {
		t.Errorf("state = %v, want OPEN", cb.CurrentState())
	}
	if cb.Allow() {
		t.Error("Allow() = true while open")
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want OPEN", cb.CurrentState())
	}

	time.Sleep(15 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Allow() = false after timeout, want half-open probe")
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want CLOSED", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Allow() = false after timeout")
	}
	cb.RecordFailure()
	if cb.CurrentState() != StateOpen {
		t.Errorf("state = %v, want OPEN", cb.CurrentState())
	}
}
