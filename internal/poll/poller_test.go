package poll

import (
	"context"
	"testing"
	"time"

	"github.com/polylate/polylate/internal/apperrors"
)

func instantSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func testPolicy(maxAttempts int) Policy {
	return Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     8 * time.Millisecond,
		MaxAttempts:     maxAttempts,
	}
}

func TestAwaitDoneOnFirstCheck(t *testing.T) {
	t.Parallel()

	calls := 0
	poller := New(testPolicy(5), WithSleep(instantSleep))
	status, err := poller.Await(context.Background(), func(context.Context) (Status, error) {
		calls++
		return Status{State: StateDone}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != StateDone {
		t.Fatalf("unexpected state: %v", status.State)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one status check, got %d", calls)
	}
}

func TestAwaitTimesOutAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	const maxAttempts = 7
	calls := 0
	poller := New(testPolicy(maxAttempts), WithSleep(instantSleep))
	_, err := poller.Await(context.Background(), func(context.Context) (Status, error) {
		calls++
		return Status{State: StateInProgress}, nil
	})
	if !apperrors.Is(err, apperrors.KindJobTimedOut) {
		t.Fatalf("expected job timeout, got %v", err)
	}
	if calls != maxAttempts {
		t.Fatalf("expected exactly %d status checks, got %d", maxAttempts, calls)
	}
}

func TestAwaitFailsOnThirdCheck(t *testing.T) {
	t.Parallel()

	calls := 0
	poller := New(testPolicy(10), WithSleep(instantSleep))
	_, err := poller.Await(context.Background(), func(context.Context) (Status, error) {
		calls++
		if calls < 3 {
			return Status{State: StateInProgress}, nil
		}
		return Status{State: StateFailed, Detail: "document rejected"}, nil
	})
	if !apperrors.Is(err, apperrors.KindJobFailed) {
		t.Fatalf("expected job failure, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected the poller to stop at check 3, got %d", calls)
	}
}

func TestAwaitCancelledStateReportsJobFailed(t *testing.T) {
	t.Parallel()

	poller := New(testPolicy(3), WithSleep(instantSleep))
	_, err := poller.Await(context.Background(), func(context.Context) (Status, error) {
		return Status{State: StateCancelled}, nil
	})
	if !apperrors.Is(err, apperrors.KindJobFailed) {
		t.Fatalf("expected job failure for cancelled job, got %v", err)
	}
}

func TestAwaitBackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	recordingSleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	poller := New(Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
		MaxAttempts:     5,
	}, WithSleep(recordingSleep))

	_, err := poller.Await(context.Background(), func(context.Context) (Status, error) {
		return Status{State: StateInProgress}, nil
	})
	if !apperrors.Is(err, apperrors.KindJobTimedOut) {
		t.Fatalf("expected timeout, got %v", err)
	}

	expected := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}
	if len(waits) != len(expected) {
		t.Fatalf("expected %d waits, got %d", len(expected), len(waits))
	}
	for i, want := range expected {
		if waits[i] != want {
			t.Fatalf("wait %d: expected %v, got %v", i, want, waits[i])
		}
	}
}

func TestAwaitStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := New(testPolicy(5))
	_, err := poller.Await(ctx, func(context.Context) (Status, error) {
		t.Fatal("status check should not run after cancellation")
		return Status{}, nil
	})
	if !apperrors.Is(err, apperrors.KindJobTimedOut) {
		t.Fatalf("expected interrupted polling error, got %v", err)
	}
}
