package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

var _ QueryService = (*BigQueryService)(nil)

type GCPCredentials struct {
	ProjectID string
	// CredentialsFile is a service account key file. Empty means
	// application default credentials.
	CredentialsFile string
	Location        string
}

func (c GCPCredentials) clientOptions() []option.ClientOption {
	if c.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithAuthCredentialsFile(option.ServiceAccount, c.CredentialsFile)}
}

// BigQueryService runs queries as EXPORT DATA statements so the result
// lands as CSV under the output location, mirroring how Athena writes its
// result object.
type BigQueryService struct {
	client   *bigquery.Client
	location string

	mu      sync.Mutex
	exports map[JobHandle]string
}

func NewBigQueryService(ctx context.Context, creds GCPCredentials) (*BigQueryService, error) {
	projectID := creds.ProjectID
	if projectID == "" {
		slog.InfoContext(ctx, "GCP project ID not set, attempting to detect from credentials...")
		found, err := google.FindDefaultCredentials(ctx, bigquery.Scope)
		if err != nil {
			return nil, &AuthenticationError{Service: "BigQuery", Err: err}
		}
		if found.ProjectID == "" {
			return nil, &AuthenticationError{Service: "BigQuery", Err: errors.New("project ID is not set and could not be detected from credentials")}
		}
		projectID = found.ProjectID
		slog.InfoContext(ctx, "Detected Project ID", "project_id", projectID)
	}

	client, err := bigquery.NewClient(ctx, projectID, creds.clientOptions()...)
	if err != nil {
		return nil, &AuthenticationError{Service: "BigQuery", Err: err}
	}
	return &BigQueryService{
		client:   client,
		location: creds.Location,
		exports:  make(map[JobHandle]string),
	}, nil
}

func (s *BigQueryService) Close() error {
	return s.client.Close()
}

func (s *BigQueryService) StartQuery(ctx context.Context, req QueryRequest) (JobHandle, error) {
	jobID := uuid.NewString()
	exportURI := ExportURI(req.OutputLocation, JobHandle(jobID))

	q := s.client.Query(ExportStatement(exportURI, req.Query))
	q.JobID = jobID
	q.Location = s.location
	if req.Database != "" {
		q.DefaultDatasetID = req.Database
	}

	job, err := q.Run(ctx)
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to start export job: %w", err)}
	}

	handle := JobHandle(job.ID())
	s.mu.Lock()
	s.exports[handle] = exportURI
	s.mu.Unlock()
	return handle, nil
}

func (s *BigQueryService) GetStatus(ctx context.Context, handle JobHandle) (JobStatus, error) {
	job, err := s.client.JobFromIDLocation(ctx, string(handle), s.location)
	if err != nil {
		return JobStatus{}, err
	}
	st, err := job.Status(ctx)
	if err != nil {
		return JobStatus{}, err
	}

	status := JobStatus{Handle: handle}
	switch st.State {
	case bigquery.Pending:
		status.State = StateQueued
	case bigquery.Running:
		status.State = StateRunning
	case bigquery.Done:
		if jobErr := st.Err(); jobErr != nil {
			status.State = StateFailed
			status.Reason = jobErr.Error()
			return status, nil
		}
		status.State = StateSucceeded
		s.mu.Lock()
		status.OutputLocation = s.exports[handle]
		s.mu.Unlock()
	default:
		status.State = StateRunning
	}
	return status, nil
}

// ExportURI is the sharded object pattern a BigQuery export writes under
// outputLocation. BigQuery requires exactly one wildcard.
func ExportURI(outputLocation string, handle JobHandle) string {
	return fmt.Sprintf("%s%s-*.csv", outputLocation, handle)
}

// ExportStatement wraps the user query in parentheses so any SELECT form
// stays valid inside EXPORT DATA.
func ExportStatement(exportURI, sqlQuery string) string {
	return fmt.Sprintf(`
		EXPORT DATA OPTIONS(
			uri='%s',
			format='CSV',
			overwrite=true,
			header=true
		) AS
		(%s)
	`, exportURI, sqlQuery)
}
