package main

import (
	"log/slog"
	"os"
	"query-runner/cmd"

	"github.com/joho/godotenv"
)

func main() {
	// JSON by default for log collectors; LOG_FORMAT=text for terminals
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, nil)
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using system environment variables")
	}

	os.Exit(cmd.Execute())
}
