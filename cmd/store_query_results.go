package cmd

import (
	"fmt"
	"io"
	"query-runner/service"

	"github.com/spf13/cobra"
)

const (
	SinkLocal     = "local"
	SinkStarRocks = "starrocks"
)

type storeOptions struct {
	query      string
	fileName   string
	folderName string
	overwrite  string
	sink       string
	table      string
	createDDL  string
}

func newStoreQueryResultsCmd() *cobra.Command {
	var opts storeOptions

	cmd := &cobra.Command{
		Use:   "store-query-results",
		Short: "Run a query and download its CSV result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			driver, closer, err := newSinkDriver(opts.sink, b.store, ConvertToBoolean(opts.overwrite))
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}
			return storeQueryResults(cmd, b.svc, driver, cfg, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.query, "query", "", "SQL to execute")
	fs.StringVar(&opts.fileName, "destination-file-name", "output.csv", "Local file name for the result")
	fs.StringVar(&opts.folderName, "destination-folder-name", "", "Local folder for the result")
	fs.StringVar(&opts.overwrite, "overwrite", "True", "Replace an existing destination file (True/False)")
	fs.StringVar(&opts.sink, "sink", SinkLocal, "Where the result goes after download (local, starrocks)")
	fs.StringVar(&opts.table, "table", "", "StarRocks table for the starrocks sink")
	fs.StringVar(&opts.createDDL, "create-ddl", "", "CREATE TABLE statement for the starrocks sink")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newSinkDriver(sink string, store service.BlobStore, overwrite bool) (service.ResultDriver, io.Closer, error) {
	fetcher := service.NewResultFetcher(store, overwrite)
	switch sink {
	case "", SinkLocal:
		return service.NewLocalDriver(fetcher), nil, nil
	case SinkStarRocks:
		sr, err := service.NewStarRocksServiceFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return service.NewStarRocksDriver(fetcher, service.NewFileLoader(sr)), sr, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", sink)
	}
}

func storeQueryResults(cmd *cobra.Command, svc service.QueryService, driver service.ResultDriver, cfg Config, opts storeOptions) error {
	runner := service.NewRunner(svc, cfg.runnerOptions()...)
	dest := service.CombineFolderAndFileName(opts.folderName, opts.fileName)

	res, err := driver.Execute(cmd.Context(), runner, cfg.Scheme(), service.ExecuteParams{
		Query:       opts.query,
		Database:    cfg.Database,
		Bucket:      cfg.Bucket,
		LogFolder:   cfg.LogFolder,
		Destination: dest,
		Table:       opts.table,
		CreateDDL:   opts.createDDL,
	})
	if err != nil {
		return err
	}
	if err := reportStatus(cmd.OutOrStdout(), res.Status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Query completed")
	fmt.Fprintf(out, "Successfully downloaded query results to %s\n", res.LocalPath)
	if res.Table != "" {
		fmt.Fprintf(out, "Loaded %d rows into %s\n", res.Rows, res.Table)
	}
	return nil
}
