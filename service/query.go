package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery      = errors.New("query text is empty")
	ErrInvalidLocation = errors.New("invalid output location")
)

// JobHandle is the identifier the query service returns on submission.
type JobHandle string

type JobState string

const (
	StateQueued    JobState = "QUEUED"
	StateRunning   JobState = "RUNNING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
	StateCancelled JobState = "CANCELLED"
	// StateTimeout is never reported by a service. The runner produces it
	// when the configured maximum wait elapses.
	StateTimeout JobState = "TIMEOUT"
)

// Terminal reports whether no further transition can occur from s.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateTimeout:
		return true
	}
	return false
}

// QueryRequest is a single query submission.
type QueryRequest struct {
	Query    string
	Database string
	// OutputLocation is a storage URI such as "s3://bucket/prefix/".
	OutputLocation string
}

func (r QueryRequest) Validate() error {
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if _, _, _, err := ParseStorageURI(r.OutputLocation); err != nil {
		return err
	}
	return nil
}

// JobStatus is the observed state of a submitted query. State is the tag:
// only SUCCEEDED carries a usable OutputLocation, FAILED and CANCELLED
// carry the service supplied Reason.
type JobStatus struct {
	Handle         JobHandle
	State          JobState
	Reason         string
	OutputLocation string
}

func (s JobStatus) Succeeded() bool { return s.State == StateSucceeded }

// QueryService is an external query-execution service.
type QueryService interface {
	StartQuery(ctx context.Context, req QueryRequest) (JobHandle, error)
	GetStatus(ctx context.Context, handle JobHandle) (JobStatus, error)
}

// AuthenticationError means the service rejected the supplied credentials.
type AuthenticationError struct {
	Service string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("failed to access %s with specified credentials: %v", e.Service, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// SubmissionError means the service refused the query request.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit query: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// DownloadError means the result object could not be copied to local disk.
type DownloadError struct {
	Source      string
	Destination string
	Err         error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download query results from %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// JobFailedError reports a query that reached a terminal state other than
// SUCCEEDED.
type JobFailedError struct {
	Status JobStatus
}

func (e *JobFailedError) Error() string {
	if e.Status.Reason == "" {
		return fmt.Sprintf("query %s finished with state %s", e.Status.Handle, e.Status.State)
	}
	return fmt.Sprintf("query %s finished with state %s: %s", e.Status.Handle, e.Status.State, e.Status.Reason)
}
