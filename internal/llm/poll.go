package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of an assistant run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunExpired        RunStatus = "expired"
	RunIncomplete     RunStatus = "incomplete"
)

var (
	// ErrRunTimeout means the run was still pending after the last poll.
	ErrRunTimeout = errors.New("run did not finish within the polling budget")
	// ErrRunFailed means the run reached a terminal state other than completed.
	ErrRunFailed = errors.New("run ended without completing")
)

// PollConfig bounds how long a run is awaited.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollConfig returns 30 attempts one second apart.
func DefaultPollConfig() PollConfig {
	return PollConfig{MaxAttempts: 30, Interval: time.Second}
}

// PollRun calls check until the run completes, fails, or MaxAttempts checks
// have been made, sleeping Interval between checks.
func PollRun(ctx context.Context, cfg PollConfig, check func(ctx context.Context) (RunStatus, error)) (RunStatus, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var last RunStatus
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		status, err := check(ctx)
		if err != nil {
			return status, err
		}
		last = status

		switch status {
		case RunCompleted:
			return status, nil
		case RunFailed, RunCancelled, RunExpired, RunIncomplete, RunRequiresAction:
			return status, fmt.Errorf("%w: status %s", ErrRunFailed, status)
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}

	return last, fmt.Errorf("%w after %d attempts (last status %s)", ErrRunTimeout, cfg.MaxAttempts, last)
}
