package service

import "context"

type ExecuteParams struct {
	Query    string
	Database string
	Bucket   string
	// LogFolder is the prefix under Bucket the service writes results to.
	LogFolder   string
	Destination string
	// JobSubdir places the download under a directory named after the job,
	// so concurrent queries writing the same file name do not collide.
	JobSubdir bool
	Table     string
	CreateDDL string
}

type ExecuteResult struct {
	Status    JobStatus
	LocalPath string
	Table     string
	Rows      int64
}

// ResultDriver runs one query lifecycle and decides what happens with the
// result once the job is terminal.
type ResultDriver interface {
	Execute(ctx context.Context, r *Runner, scheme string, params ExecuteParams) (ExecuteResult, error)
}

// runQuery submits params and waits for a terminal status. A job that did
// not succeed is reported through ExecuteResult.Status with a nil error.
func runQuery(ctx context.Context, r *Runner, scheme string, params ExecuteParams) (JobStatus, error) {
	output, err := OutputLocation(scheme, params.Bucket, params.LogFolder)
	if err != nil {
		return JobStatus{}, err
	}
	return r.Run(ctx, QueryRequest{
		Query:          params.Query,
		Database:       params.Database,
		OutputLocation: output,
	})
}
