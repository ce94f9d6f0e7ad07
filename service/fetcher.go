package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ResultFetcher copies a query's result object to a local file.
type ResultFetcher struct {
	store     BlobStore
	overwrite bool
}

func NewResultFetcher(store BlobStore, overwrite bool) *ResultFetcher {
	return &ResultFetcher{store: store, overwrite: overwrite}
}

// Fetch downloads "{prefix}/{handle}.csv" from bucket to dest, creating any
// missing directories of dest first.
func (f *ResultFetcher) Fetch(ctx context.Context, handle JobHandle, bucket, prefix, dest string) error {
	bucket = cleanPath(bucket)
	return f.download(ctx, bucket, ResultKey(prefix, handle), dest)
}

// FetchStatus downloads the result of a succeeded job. The output location
// reported by the service wins over the naming convention used by Fetch.
func (f *ResultFetcher) FetchStatus(ctx context.Context, status JobStatus, bucket, prefix, dest string) error {
	if !status.Succeeded() {
		return &DownloadError{
			Source:      string(status.Handle),
			Destination: dest,
			Err:         fmt.Errorf("query finished with state %s", status.State),
		}
	}
	if status.OutputLocation == "" {
		return f.Fetch(ctx, status.Handle, bucket, prefix, dest)
	}
	_, srcBucket, key, err := ParseStorageURI(status.OutputLocation)
	if err != nil || key == "" || strings.HasSuffix(key, "/") {
		return f.Fetch(ctx, status.Handle, bucket, prefix, dest)
	}
	return f.download(ctx, srcBucket, key, dest)
}

func (f *ResultFetcher) download(ctx context.Context, bucket, key, dest string) error {
	source := bucket + "/" + key
	fail := func(err error) error {
		slog.ErrorContext(ctx, "Failed to download query results", "source", source, "destination", dest, "error", err)
		return &DownloadError{Source: source, Destination: dest, Err: err}
	}

	if !f.overwrite {
		if _, err := os.Stat(dest); err == nil {
			return fail(fmt.Errorf("destination already exists"))
		} else if !errors.Is(err, os.ErrNotExist) {
			return fail(err)
		}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fail(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.store.Download(ctx, bucket, key, tmp); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fail(err)
	}

	slog.InfoContext(ctx, "Successfully downloaded query results", "source", source, "destination", dest)
	return nil
}

// CombineFolderAndFileName joins an optional folder with a file name.
func CombineFolderAndFileName(folder, file string) string {
	if folder == "" {
		return filepath.Clean(file)
	}
	return filepath.Join(folder, file)
}
