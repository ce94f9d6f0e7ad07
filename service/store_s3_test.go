package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	err     error
	in      *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3StoreDownload(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"bucket/logs/abc.csv": "a,b\n"}}
	var buf bytes.Buffer

	require.NoError(t, NewS3StoreWithClient(fake).Download(context.Background(), "bucket", "logs/abc.csv", &buf))
	assert.Equal(t, "a,b\n", buf.String())
	assert.Equal(t, "bucket", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "logs/abc.csv", aws.ToString(fake.in.Key))
}

func TestS3StoreDownload_NotFound(t *testing.T) {
	err := NewS3StoreWithClient(&fakeS3{}).Download(context.Background(), "bucket", "abc.csv", io.Discard)
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3StoreDownload_OtherError(t *testing.T) {
	boom := errors.New("access denied")
	err := NewS3StoreWithClient(&fakeS3{err: boom}).Download(context.Background(), "bucket", "abc.csv", io.Discard)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}
