// Package poll drives long-running provider jobs to a terminal state.
//
// Every job type the gateway tracks (DeepL documents, Azure batches) shares
// the same shape: submit once, then check status until the provider reports a
// terminal state. One parameterized poller replaces the per-endpoint loops so
// interval policy and retry ceilings are configured in exactly one place.
package poll

import (
	"context"
	"time"

	"github.com/polylate/polylate/internal/apperrors"
)

// State is a provider-reported job state.
type State int

const (
	StateQueued State = iota
	StateInProgress
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInProgress:
		return "in_progress"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Status is one status-check result. Detail carries the provider's error
// description when the job failed.
type Status struct {
	State  State
	Detail string
}

// StatusFunc issues one status check against the provider.
type StatusFunc func(ctx context.Context) (Status, error)

// Policy is the exponential backoff configuration: wait InitialInterval
// before the first check, double after every check, never exceed MaxInterval,
// and give up after MaxAttempts checks.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultPolicy mirrors the provider guidance: start at 10s, cap at 5m,
// and never issue more than 20 checks per job.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 10 * time.Second,
		MaxInterval:     5 * time.Minute,
		MaxAttempts:     20,
	}
}

func (p Policy) normalized() Policy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = 10 * time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 5 * time.Minute
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 20
	}
	return p
}

// SleepFunc waits for the given interval or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller awaits terminal job states. It holds no per-job state, so one
// poller instance serves any number of concurrent jobs.
type Poller struct {
	policy Policy
	sleep  SleepFunc
}

// Option customizes a Poller.
type Option func(*Poller)

// WithSleep overrides the wait between checks. Tests use an instant sleep.
func WithSleep(sleep SleepFunc) Option {
	return func(p *Poller) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func New(policy Policy, opts ...Option) *Poller {
	p := &Poller{
		policy: policy.normalized(),
		sleep:  contextSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Await waits an interval, issues one status check, and repeats with doubled
// intervals until the job is terminal or the attempt budget runs out.
// Done returns the final status; failed or cancelled returns JobFailed with
// the provider detail; an exhausted budget returns JobTimedOut.
func (p *Poller) Await(ctx context.Context, check StatusFunc) (Status, error) {
	if check == nil {
		return Status{}, apperrors.New(apperrors.KindJobFailed, "status check is not configured")
	}

	interval := p.policy.InitialInterval
	var last Status

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if err := p.sleep(ctx, interval); err != nil {
			return last, apperrors.Wrap(apperrors.KindJobTimedOut, "polling interrupted", err)
		}

		status, err := check(ctx)
		if err != nil {
			return last, err
		}
		last = status

		switch status.State {
		case StateDone:
			return status, nil
		case StateFailed, StateCancelled:
			detail := status.Detail
			if detail == "" {
				detail = "translation job " + status.State.String()
			}
			return status, apperrors.Newf(apperrors.KindJobFailed, "translation job %s: %s", status.State, detail)
		}

		interval *= 2
		if interval > p.policy.MaxInterval {
			interval = p.policy.MaxInterval
		}
	}

	return last, apperrors.Newf(apperrors.KindJobTimedOut,
		"translation job still %s after %d status checks", last.State, p.policy.MaxAttempts)
}
