package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(2, 50*time.Millisecond)

	if err := b.Check(); err != nil {
		t.Fatalf("expected closed breaker to allow the call, got %v", err)
	}

	b.RecordFailure()
	if err := b.Check(); err != nil {
		t.Fatalf("expected breaker to stay closed below threshold, got %v", err)
	}

	b.RecordFailure()
	if err := b.Check(); err == nil {
		t.Fatalf("expected breaker to open at threshold")
	}
	if b.State() != "open" {
		t.Fatalf("expected state open, got %s", b.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterRecovery(t *testing.T) {
	b := NewCircuitBreaker(1, 20*time.Millisecond)
	b.RecordFailure()
	if b.State() != "open" {
		t.Fatalf("expected open after one failure at threshold 1")
	}

	time.Sleep(30 * time.Millisecond)

	if err := b.Check(); err != nil {
		t.Fatalf("expected recovery timeout to allow a half-open probe, got %v", err)
	}
}

func TestCircuitBreaker_SuccessClosesFromHalfOpen(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Check() // transitions to half-open
	b.RecordSuccess()
	if b.State() != "closed" {
		t.Fatalf("expected closed after success from half-open, got %s", b.State())
	}
}

func TestCircuitBreaker_FailureFromHalfOpenReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Check()
	b.RecordFailure()
	if b.State() != "open" {
		t.Fatalf("expected re-open on half-open failure, got %s", b.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCounter(t *testing.T) {
	b := NewCircuitBreaker(3, 50*time.Millisecond)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != "closed" {
		t.Fatalf("expected counter reset by success to keep breaker closed, got %s", b.State())
	}
}
