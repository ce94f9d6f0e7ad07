package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"query-runner/service"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	EngineAthena   = "athena"
	EngineBigQuery = "bigquery"
)

// Config is everything a command needs to reach the query service and the
// result bucket. Values come from flags first, then the environment.
type Config struct {
	Engine    string
	AWS       service.AWSCredentials
	GCP       service.GCPCredentials
	WorkGroup string

	Bucket    string
	LogFolder string
	Database  string

	PollInterval time.Duration
	MaxWait      time.Duration
}

func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String("engine", EngineAthena, "Query engine (athena, bigquery)")
	fs.String("aws-access-key-id", "", "AWS access key ID")
	fs.String("aws-secret-access-key", "", "AWS secret access key")
	fs.String("aws-session-token", "", "AWS session token")
	fs.String("aws-default-region", "", "AWS region")
	fs.String("athena-workgroup", "", "Athena workgroup")
	fs.String("gcp-project-id", "", "GCP project ID (detected from credentials when empty)")
	fs.String("gcp-credentials-file", "", "GCP service account key file")
	fs.String("gcp-location", "US", "BigQuery job location")
	fs.String("bucket-name", "", "Bucket the query service writes results to")
	fs.String("log-folder", "", "Folder in the bucket for query results")
	fs.String("database", "", "Database the query runs against")
	fs.Duration("poll-interval", service.DefaultPollInterval, "Delay between status checks")
	fs.Duration("max-wait", 0, "Give up waiting after this long (0 waits until the query finishes)")
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	fs := cmd.Flags()
	cfg := Config{
		Engine: stringValue(fs, "engine", "QUERY_ENGINE"),
		AWS: service.AWSCredentials{
			AccessKeyID:     stringValue(fs, "aws-access-key-id", "AWS_ACCESS_KEY_ID"),
			SecretAccessKey: stringValue(fs, "aws-secret-access-key", "AWS_SECRET_ACCESS_KEY"),
			SessionToken:    stringValue(fs, "aws-session-token", "AWS_SESSION_TOKEN"),
			Region:          stringValue(fs, "aws-default-region", "AWS_DEFAULT_REGION", "AWS_REGION"),
		},
		GCP: service.GCPCredentials{
			ProjectID:       stringValue(fs, "gcp-project-id", "GCP_PROJECT_ID"),
			CredentialsFile: stringValue(fs, "gcp-credentials-file", "GOOGLE_APPLICATION_CREDENTIALS"),
			Location:        stringValue(fs, "gcp-location", "GCP_LOCATION"),
		},
		WorkGroup: stringValue(fs, "athena-workgroup", "ATHENA_WORKGROUP"),
		Bucket:    stringValue(fs, "bucket-name", "BUCKET_NAME"),
		LogFolder: stringValue(fs, "log-folder", "LOG_FOLDER"),
		Database:  stringValue(fs, "database", "DATABASE"),
	}

	var err error
	if cfg.PollInterval, err = durationValue(fs, "poll-interval", "POLL_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.MaxWait, err = durationValue(fs, "max-wait", "MAX_WAIT"); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Bucket == "" {
		return errors.New("bucket name is required (--bucket-name or BUCKET_NAME)")
	}
	switch c.Engine {
	case EngineAthena:
		if c.AWS.AccessKeyID == "" {
			return errors.New("AWS access key ID is required (--aws-access-key-id or AWS_ACCESS_KEY_ID)")
		}
		if c.AWS.Region == "" {
			return errors.New("AWS region is required (--aws-default-region or AWS_DEFAULT_REGION)")
		}
	case EngineBigQuery:
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// Scheme is the storage URI scheme results are written under.
func (c Config) Scheme() string {
	if c.Engine == EngineBigQuery {
		return "gs"
	}
	return "s3"
}

func (c Config) runnerOptions() []service.RunnerOption {
	return []service.RunnerOption{
		service.WithPollInterval(c.PollInterval),
		service.WithMaxWait(c.MaxWait),
	}
}

// backend holds the clients for one engine and the store its results
// live in.
type backend struct {
	svc     service.QueryService
	store   service.BlobStore
	closers []io.Closer
}

func openBackend(ctx context.Context, cfg Config) (*backend, error) {
	b := &backend{}
	switch cfg.Engine {
	case EngineBigQuery:
		bq, err := service.NewBigQueryService(ctx, cfg.GCP)
		if err != nil {
			return nil, err
		}
		b.svc = bq
		b.closers = append(b.closers, bq)

		gcs, err := service.NewGCSStore(ctx, cfg.GCP)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = gcs
		b.closers = append(b.closers, gcs)
	default:
		athena, err := service.NewAthenaService(ctx, cfg.AWS, cfg.WorkGroup)
		if err != nil {
			return nil, err
		}
		b.svc = athena

		s3, err := service.NewS3Store(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		b.store = s3
	}
	return b, nil
}

func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close client", "error", err)
		}
	}
}

// stringValue returns the flag when it was set explicitly, else the first
// non-empty environment variable, else the flag default.
func stringValue(fs *pflag.FlagSet, name string, envs ...string) string {
	v, _ := fs.GetString(name)
	if fs.Changed(name) {
		return v
	}
	for _, env := range envs {
		if e := os.Getenv(env); e != "" {
			return e
		}
	}
	return v
}

func durationValue(fs *pflag.FlagSet, name, env string) (time.Duration, error) {
	v, _ := fs.GetDuration(name)
	if fs.Changed(name) {
		return v, nil
	}
	if e := os.Getenv(env); e != "" {
		d, err := time.ParseDuration(e)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", env, err)
		}
		return d, nil
	}
	return v, nil
}

// ConvertToBoolean maps "True", "true" and "TRUE" to true and every other
// string to false. Schedulers that pass all arguments as strings rely on
// this exact set.
func ConvertToBoolean(s string) bool {
	switch s {
	case "True", "true", "TRUE":
		return true
	}
	return false
}
