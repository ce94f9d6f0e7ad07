package service

import (
	"context"
	"path/filepath"
)

// ReportDriver only executes the query; the result stays in storage.
type ReportDriver struct{}

func NewReportDriver() *ReportDriver {
	return &ReportDriver{}
}

func (d *ReportDriver) Execute(ctx context.Context, r *Runner, scheme string, params ExecuteParams) (ExecuteResult, error) {
	status, err := runQuery(ctx, r, scheme, params)
	if err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{Status: status}, nil
}

// LocalDriver downloads the result of a succeeded query to
// params.Destination, or to "<dir>/<job id>/<file>" when params.JobSubdir
// is set.
type LocalDriver struct {
	fetcher *ResultFetcher
}

func NewLocalDriver(fetcher *ResultFetcher) *LocalDriver {
	return &LocalDriver{fetcher: fetcher}
}

func (d *LocalDriver) Execute(ctx context.Context, r *Runner, scheme string, params ExecuteParams) (ExecuteResult, error) {
	status, err := runQuery(ctx, r, scheme, params)
	if err != nil {
		return ExecuteResult{}, err
	}
	res := ExecuteResult{Status: status}
	if !status.Succeeded() {
		return res, nil
	}
	dest := params.Destination
	if params.JobSubdir {
		dest = filepath.Join(filepath.Dir(dest), string(status.Handle), filepath.Base(dest))
	}
	if err := d.fetcher.FetchStatus(ctx, status, params.Bucket, params.LogFolder, dest); err != nil {
		return res, err
	}
	res.LocalPath = dest
	return res, nil
}
