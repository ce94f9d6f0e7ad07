package service

import (
	"context"
	"fmt"
	"os"
)

// ResultLoader loads a CSV result into a table and returns the row count.
type ResultLoader interface {
	LoadCSV(ctx context.Context, path, table, createDDL string) (int64, error)
}

// StarRocksDriver downloads the result like LocalDriver and then loads it
// into a StarRocks table.
type StarRocksDriver struct {
	local  *LocalDriver
	loader ResultLoader
}

func NewStarRocksDriver(fetcher *ResultFetcher, loader ResultLoader) *StarRocksDriver {
	return &StarRocksDriver{local: NewLocalDriver(fetcher), loader: loader}
}

func (d *StarRocksDriver) Execute(ctx context.Context, r *Runner, scheme string, params ExecuteParams) (ExecuteResult, error) {
	table := params.Table
	if table == "" {
		table = "query_results"
	}
	res, err := d.local.Execute(ctx, r, scheme, params)
	if err != nil || !res.Status.Succeeded() {
		return res, err
	}
	rows, err := d.loader.LoadCSV(ctx, res.LocalPath, table, params.CreateDDL)
	if err != nil {
		return res, err
	}
	res.Table = table
	res.Rows = rows
	return res, nil
}

// FileLoader adapts StarRocksService to ResultLoader by reading from a
// local path.
type FileLoader struct {
	sr *StarRocksService
}

func NewFileLoader(sr *StarRocksService) *FileLoader {
	return &FileLoader{sr: sr}
}

func (l *FileLoader) LoadCSV(ctx context.Context, path, table, createDDL string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open result file: %w", err)
	}
	defer f.Close()
	return l.sr.LoadCSV(ctx, f, table, createDDL)
}
