package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultPollInterval = 5 * time.Second

// Runner submits a query and polls it on a fixed interval until the
// service reports a terminal state.
type Runner struct {
	svc      QueryService
	interval time.Duration
	maxWait  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type RunnerOption func(*Runner)

// WithPollInterval sets the delay between status checks.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxWait bounds polling. Zero keeps the default of waiting until the
// job is terminal.
func WithMaxWait(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.maxWait = d
		}
	}
}

func NewRunner(svc QueryService, opts ...RunnerOption) *Runner {
	r := &Runner{
		svc:      svc,
		interval: DefaultPollInterval,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit validates req and hands it to the query service. A request that
// fails validation is a SubmissionError, like one the service rejects.
func (r *Runner) Submit(ctx context.Context, req QueryRequest) (JobHandle, error) {
	if err := req.Validate(); err != nil {
		return "", &SubmissionError{Err: err}
	}

	slog.InfoContext(ctx, "Submitting query",
		"database", req.Database,
		"output_location", req.OutputLocation,
	)

	handle, err := r.svc.StartQuery(ctx, req)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "Query submitted", "job_id", string(handle))
	return handle, nil
}

// PollUntilTerminal checks the job status, sleeping the poll interval
// between checks, and returns the first terminal status observed. A
// FAILED or CANCELLED job is returned as data, not as an error. When a
// maximum wait is configured and elapses, a TIMEOUT status is returned.
// Errors from the service and context cancellation end polling at once.
func (r *Runner) PollUntilTerminal(ctx context.Context, handle JobHandle) (JobStatus, error) {
	start := r.now()
	for {
		status, err := r.svc.GetStatus(ctx, handle)
		if err != nil {
			return JobStatus{}, fmt.Errorf("failed to get status of query %s: %w", handle, err)
		}
		status.Handle = handle

		if status.State.Terminal() {
			logTerminal(ctx, status)
			return status, nil
		}

		wait := r.interval
		if r.maxWait > 0 {
			elapsed := r.now().Sub(start)
			if elapsed >= r.maxWait {
				status.State = StateTimeout
				status.Reason = fmt.Sprintf("query did not finish within %s", r.maxWait)
				logTerminal(ctx, status)
				return status, nil
			}
			wait = min(wait, r.maxWait-elapsed)
		}

		slog.DebugContext(ctx, "Query still running", "job_id", string(handle), "state", string(status.State))
		if err := r.sleep(ctx, wait); err != nil {
			return JobStatus{}, err
		}
	}
}

// Run submits req and polls it until it is terminal.
func (r *Runner) Run(ctx context.Context, req QueryRequest) (JobStatus, error) {
	handle, err := r.Submit(ctx, req)
	if err != nil {
		return JobStatus{}, err
	}
	return r.PollUntilTerminal(ctx, handle)
}

func logTerminal(ctx context.Context, status JobStatus) {
	if status.Succeeded() {
		slog.InfoContext(ctx, "Query completed",
			"job_id", string(status.Handle),
			"output_location", status.OutputLocation,
		)
		return
	}
	slog.ErrorContext(ctx, "Query failed",
		"job_id", string(status.Handle),
		"state", string(status.State),
		"reason", status.Reason,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
