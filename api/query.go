package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"query-runner/service"

	"github.com/gin-gonic/gin"
)

type QueryRequest struct {
	Query               string `json:"query" binding:"required"`
	Database            string `json:"database"`
	LogFolder           string `json:"log_folder"`
	DestinationFileName string `json:"destination_file_name"`
	Table               string `json:"table"`
	CreateDDL           string `json:"create_ddl"`
}

type QueryResponse struct {
	JobID          string `json:"job_id"`
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	OutputLocation string `json:"output_location,omitempty"`
	LocalPath      string `json:"local_path,omitempty"`
	Table          string `json:"starrocks_table,omitempty"`
	Rows           int64  `json:"rows_loaded,omitempty"`
}

// Defaults are the server-side settings every request runs with.
type Defaults struct {
	Scheme    string
	Bucket    string
	LogFolder string
	ResultDir string
}

func QueryHandler(runner *service.Runner, driver service.ResultDriver, defaults Defaults) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logFolder := req.LogFolder
		if logFolder == "" {
			logFolder = defaults.LogFolder
		}
		fileName := req.DestinationFileName
		if fileName == "" {
			fileName = "output.csv"
		}

		slog.InfoContext(c.Request.Context(), "Received query request",
			"query", req.Query,
			"database", req.Database,
			"log_folder", logFolder,
			"destination_file_name", fileName,
		)

		params := service.ExecuteParams{
			Query:       req.Query,
			Database:    req.Database,
			Bucket:      defaults.Bucket,
			LogFolder:   logFolder,
			Destination: filepath.Join(defaults.ResultDir, filepath.Base(fileName)),
			JobSubdir:   true,
			Table:       req.Table,
			CreateDDL:   req.CreateDDL,
		}
		res, err := driver.Execute(c.Request.Context(), runner, defaults.Scheme, params)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Query failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process query: " + err.Error()})
			return
		}

		code := http.StatusOK
		switch res.Status.State {
		case service.StateTimeout:
			code = http.StatusGatewayTimeout
		case service.StateFailed, service.StateCancelled:
			code = http.StatusUnprocessableEntity
		}
		c.JSON(code, QueryResponse{
			JobID:          string(res.Status.Handle),
			State:          string(res.Status.State),
			Reason:         res.Status.Reason,
			OutputLocation: res.Status.OutputLocation,
			LocalPath:      res.LocalPath,
			Table:          res.Table,
			Rows:           res.Rows,
		})
	}
}
