package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"query-runner/service"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var failed *service.JobFailedError
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "query-runner",
		Short:         "Run SQL on a managed query service and collect the results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConnectionFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newExecuteSQLCmd(),
		newStoreQueryResultsCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// reportStatus prints the outcome line for a terminal status and turns a
// job that did not succeed into a JobFailedError.
func reportStatus(w io.Writer, status service.JobStatus) error {
	if status.Succeeded() {
		return nil
	}
	switch status.State {
	case service.StateTimeout:
		fmt.Fprintln(w, "Query did not finish in time")
	case service.StateCancelled:
		fmt.Fprintln(w, "Query was cancelled")
	default:
		fmt.Fprintln(w, "Query failed")
	}
	if status.Reason != "" {
		fmt.Fprintln(w, status.Reason)
	}
	return &service.JobFailedError{Status: status}
}
