package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"query-runner/api"
	"query-runner/service"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
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

			driver, closer, err := newSinkDriver(os.Getenv("RESULT_SINK"), b.store, true)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			resultDir := os.Getenv("RESULT_DIR")
			if resultDir == "" {
				resultDir = "results"
			}
			runner := service.NewRunner(b.svc, cfg.runnerOptions()...)
			r := newRouter(runner, driver, os.Getenv("API_KEY"), api.Defaults{
				Scheme:    cfg.Scheme(),
				Bucket:    cfg.Bucket,
				LogFolder: cfg.LogFolder,
				ResultDir: resultDir,
			})

			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			return serve(cmd.Context(), &http.Server{Addr: ":" + port, Handler: r})
		},
	}
}

func newRouter(runner *service.Runner, driver service.ResultDriver, apiKey string, defaults api.Defaults) *gin.Engine {
	// Release mode is better for production performance
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	if apiKey != "" {
		r.Use(func(c *gin.Context) {
			if c.Request.URL.Path == "/health" {
				c.Next()
				return
			}
			if c.GetHeader("X-API-Key") != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.Next()
		})
	}

	r.Use(requestLogger())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/api/queries", api.QueryHandler(runner, driver, defaults))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if raw != "" {
			attrs = append(attrs, slog.String("query", raw))
		}
		if status >= 500 {
			slog.Error("Request processed", attrs...)
		} else {
			slog.Info("Request processed", attrs...)
		}
	}
}

// serve runs srv until ctx is cancelled, then gives in-flight requests
// five seconds to finish.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}
	slog.Info("Server exiting")
	return nil
}
