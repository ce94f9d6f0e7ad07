package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"query-runner/service"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	status  service.JobStatus
	started []service.QueryRequest
}

func (s *stubService) StartQuery(_ context.Context, req service.QueryRequest) (service.JobHandle, error) {
	s.started = append(s.started, req)
	return "job-1", nil
}

func (s *stubService) GetStatus(_ context.Context, handle service.JobHandle) (service.JobStatus, error) {
	st := s.status
	st.Handle = handle
	return st, nil
}

type stubStore map[string]string

func (s stubStore) Download(_ context.Context, bucket, key string, w io.Writer) error {
	body, ok := s[bucket+"/"+key]
	if !ok {
		return service.ErrObjectNotFound
	}
	_, err := io.WriteString(w, body)
	return err
}

func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func testConfig() Config {
	return Config{Engine: EngineAthena, Bucket: "bucket", LogFolder: "logs", PollInterval: time.Millisecond}
}

func TestConvertToBoolean(t *testing.T) {
	for _, s := range []string{"True", "true", "TRUE"} {
		assert.True(t, ConvertToBoolean(s), s)
	}
	for _, s := range []string{"False", "false", "0", "1", "", "yes", "tRue", " true"} {
		assert.False(t, ConvertToBoolean(s), s)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("BUCKET_NAME", "env-bucket")
	t.Setenv("POLL_INTERVAL", "2s")

	root := newRootCmd()
	var cfg Config
	sub := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
	}
	root.AddCommand(sub)
	root.SetArgs([]string{"probe", "--aws-access-key-id", "flag-key", "--max-wait", "1m"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "flag-key", cfg.AWS.AccessKeyID)
	assert.Equal(t, "env-secret", cfg.AWS.SecretAccessKey)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "env-bucket", cfg.Bucket)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.MaxWait)
	assert.Equal(t, EngineAthena, cfg.Engine)
	assert.Equal(t, "s3", cfg.Scheme())

	assert.Equal(t, "env-key", os.Getenv("AWS_ACCESS_KEY_ID"), "environment must not be rewritten")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "athena ok",
			cfg: Config{
				Engine:       EngineAthena,
				Bucket:       "b",
				PollInterval: time.Second,
				AWS:          service.AWSCredentials{AccessKeyID: "k", Region: "us-east-1"},
			},
		},
		{
			name: "bigquery needs no aws keys",
			cfg:  Config{Engine: EngineBigQuery, Bucket: "b", PollInterval: time.Second},
		},
		{
			name:    "missing bucket",
			cfg:     Config{Engine: EngineBigQuery, PollInterval: time.Second},
			wantErr: "bucket name is required",
		},
		{
			name:    "missing key",
			cfg:     Config{Engine: EngineAthena, Bucket: "b", PollInterval: time.Second},
			wantErr: "AWS access key ID is required",
		},
		{
			name:    "unknown engine",
			cfg:     Config{Engine: "redshift", Bucket: "b", PollInterval: time.Second},
			wantErr: `unknown engine "redshift"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExecuteSQL_Succeeded(t *testing.T) {
	cmd, out := testCommand(t)
	svc := &stubService{status: service.JobStatus{State: service.StateSucceeded}}

	require.NoError(t, executeSQL(cmd, svc, testConfig(), "SELECT 1"))
	assert.Contains(t, out.String(), "Your query has been successfully executed.")
	require.Len(t, svc.started, 1)
	assert.Equal(t, "s3://bucket/logs/", svc.started[0].OutputLocation)
}

func TestExecuteSQL_Failed(t *testing.T) {
	cmd, out := testCommand(t)
	svc := &stubService{status: service.JobStatus{State: service.StateFailed, Reason: "Syntax error in query"}}

	err := executeSQL(cmd, svc, testConfig(), "SELEC 1")
	var failed *service.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "Syntax error in query", failed.Status.Reason)
	assert.Equal(t, "Query failed\nSyntax error in query\n", out.String())
}

func TestStoreQueryResults(t *testing.T) {
	cmd, out := testCommand(t)
	dir := filepath.Join(t.TempDir(), "exports")
	svc := &stubService{status: service.JobStatus{State: service.StateSucceeded}}
	store := stubStore{"bucket/logs/job-1.csv": "a,b\n1,2\n"}

	driver, closer, err := newSinkDriver(SinkLocal, store, ConvertToBoolean("True"))
	require.NoError(t, err)
	assert.Nil(t, closer)

	err = storeQueryResults(cmd, svc, driver, testConfig(), storeOptions{
		query:      "SELECT 1",
		fileName:   "output.csv",
		folderName: dir,
	})
	require.NoError(t, err)

	dest := filepath.Join(dir, "output.csv")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
	assert.Contains(t, out.String(), "Successfully downloaded query results to "+dest)
}

func TestStoreQueryResults_FailedQueryDoesNotDownload(t *testing.T) {
	cmd, out := testCommand(t)
	dir := t.TempDir()
	svc := &stubService{status: service.JobStatus{State: service.StateFailed, Reason: "Table not found"}}

	driver, _, err := newSinkDriver(SinkLocal, stubStore{}, true)
	require.NoError(t, err)

	err = storeQueryResults(cmd, svc, driver, testConfig(), storeOptions{
		query:      "SELECT 1",
		fileName:   "output.csv",
		folderName: dir,
	})
	var failed *service.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.NoFileExists(t, filepath.Join(dir, "output.csv"))
	assert.False(t, strings.Contains(out.String(), "Successfully downloaded"))
}

func TestNewSinkDriver_Unknown(t *testing.T) {
	_, _, err := newSinkDriver("ftp", stubStore{}, true)
	require.EqualError(t, err, `unknown sink "ftp"`)
}

func TestReportStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reportStatus(&buf, service.JobStatus{State: service.StateSucceeded}))
	assert.Empty(t, buf.String())

	buf.Reset()
	err := reportStatus(&buf, service.JobStatus{Handle: "q", State: service.StateTimeout, Reason: "query did not finish within 1m0s"})
	require.Error(t, err)
	assert.Equal(t, "Query did not finish in time\nquery did not finish within 1m0s\n", buf.String())

	buf.Reset()
	err = reportStatus(&buf, service.JobStatus{Handle: "q", State: service.StateCancelled})
	require.EqualError(t, err, "query q finished with state CANCELLED")
	assert.Equal(t, "Query was cancelled\n", buf.String())
}
