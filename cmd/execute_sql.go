package cmd

import (
	"fmt"
	"query-runner/service"

	"github.com/spf13/cobra"
)

func newExecuteSQLCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "execute-sql",
		Short: "Run a query and wait for it to finish",
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

			return executeSQL(cmd, b.svc, cfg, query)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "SQL to execute")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func executeSQL(cmd *cobra.Command, svc service.QueryService, cfg Config, query string) error {
	runner := service.NewRunner(svc, cfg.runnerOptions()...)
	res, err := service.NewReportDriver().Execute(cmd.Context(), runner, cfg.Scheme(), service.ExecuteParams{
		Query:     query,
		Database:  cfg.Database,
		Bucket:    cfg.Bucket,
		LogFolder: cfg.LogFolder,
	})
	if err != nil {
		return err
	}
	if err := reportStatus(cmd.OutOrStdout(), res.Status); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Your query has been successfully executed.")
	return nil
}
