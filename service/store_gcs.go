package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

var _ BlobStore = (*GCSStore)(nil)

// GCSObjects is the part of Cloud Storage the store needs.
type GCSObjects interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type GCSStore struct {
	objects GCSObjects
	closer  io.Closer
}

func NewGCSStore(ctx context.Context, creds GCPCredentials) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, creds.clientOptions()...)
	if err != nil {
		return nil, &AuthenticationError{Service: "Cloud Storage", Err: err}
	}
	return &GCSStore{objects: gcsClient{client}, closer: client}, nil
}

func NewGCSStoreWithClient(objects GCSObjects) *GCSStore {
	return &GCSStore{objects: objects}
}

func (s *GCSStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Download copies gs://bucket/key into w. A key containing "*" is an export
// shard pattern: every matching object is written in name order, and the
// CSV header of all but the first shard is dropped.
func (s *GCSStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	if !strings.Contains(key, "*") {
		return s.copyObject(ctx, bucket, key, w, false)
	}

	shards, err := s.resolve(ctx, bucket, key)
	if err != nil {
		return err
	}
	for i, name := range shards {
		if err := s.copyObject(ctx, bucket, name, w, i > 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *GCSStore) copyObject(ctx context.Context, bucket, key string, w io.Writer, skipHeader bool) error {
	r, err := s.objects.Open(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("gs://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()

	var src io.Reader = r
	if skipHeader {
		br := bufio.NewReader(r)
		if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
			return fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
		}
		src = br
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) resolve(ctx context.Context, bucket, pattern string) ([]string, error) {
	prefix := pattern[:strings.Index(pattern, "*")]
	names, err := s.objects.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}

	var shards []string
	for _, name := range names {
		if ok, _ := path.Match(pattern, name); ok {
			shards = append(shards, name)
		}
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("gs://%s/%s: %w", bucket, pattern, ErrObjectNotFound)
	}
	sort.Strings(shards)
	return shards, nil
}

// gcsClient adapts *storage.Client to GCSObjects.
type gcsClient struct {
	client *storage.Client
}

func (c gcsClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c gcsClient) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
