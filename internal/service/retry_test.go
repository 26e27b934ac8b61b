package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("succeeds without retrying", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := WithRetry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := WithRetry(ctx, 3, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Expected no error after retries, got %v", err)
		}
		if calls != 3 {
			t.Errorf("Expected 3 calls, got %d", calls)
		}
	})

	t.Run("returns the last error when attempts are exhausted", func(t *testing.T) {
		t.Parallel()
		sentinel := errors.New("still down")
		calls := 0
		err := WithRetry(ctx, 2, time.Millisecond, func(context.Context) error {
			calls++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("Expected the underlying error, got %v", err)
		}
		if calls != 2 {
			t.Errorf("Expected 2 calls, got %d", calls)
		}
	})

	t.Run("non-positive attempts still run once", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_ = WithRetry(ctx, 0, 0, func(context.Context) error {
			calls++
			return errors.New("boom")
		})
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})
}

func TestFaultTaxonomy(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	fault := newFault(FaultPersistenceFailure, "write failed", cause).
		withRecovery(true, false, true).
		withActions("retry the operation")

	if !errors.Is(fault, cause) {
		t.Error("Expected fault to unwrap to its cause")
	}
	if fault.Report.Type != FaultPersistenceFailure {
		t.Errorf("Expected persistence_failure, got %s", fault.Report.Type)
	}
	if !fault.Report.RecoveryAttempted || fault.Report.RecoverySuccessful {
		t.Error("Expected recovery attempted but not successful")
	}
	if !fault.Report.FallbackApplied {
		t.Error("Expected fallback applied")
	}
	if len(fault.Report.SuggestedUserActions) != 1 {
		t.Errorf("Expected one suggested action, got %d", len(fault.Report.SuggestedUserActions))
	}

	// Only corruption-class faults trigger automatic recovery.
	recoverable := map[FaultType]bool{
		FaultStateCorruption:    true,
		FaultPersistenceFailure: true,
		FaultCacheInconsistency: true,
		FaultRecoveryFailure:    false,
		FaultValidationError:    false,
		FaultIsolationViolation: false,
		FaultInheritanceError:   false,
		FaultSessionNotFound:    false,
		FaultInvalidDifficulty:  false,
		FaultFinalizationError:  false,
	}
	for faultType, expected := range recoverable {
		if faultType.autoRecoverable() != expected {
			t.Errorf("Expected autoRecoverable(%s)=%v", faultType, expected)
		}
	}
}
