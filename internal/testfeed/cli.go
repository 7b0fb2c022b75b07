package testfeed

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/minerwatch/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "feed_test_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithFormat(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the feed test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Minerwatch Feed Test Tool
=========================

Serves a simulated miner feed over WebSocket, waits for the service to
consume it, then checks every miner through the HTTP API.

Usage:
  go run cmd/test-feed/main.go [options]

Point the service at the feed first, for example:
  MINERWATCH_FEED_URL=ws://localhost:9090/feed go run cmd/main.go

Options:
  -listen string
        Address the simulated feed listens on (default ":9090")
  -path string
        WebSocket path (default "/feed")
  -credential string
        Bearer token the service must present (default: accept any)
  -url string
        Base URL of the service (default "http://localhost:9080")
  -miners int
        Number of miners to simulate (default 200)
  -seed int
        Generator seed (default 1)
  -sig-first float
        Share of miners announced by signature first (default 0.3)
  -malformed int
        Malformed frames to inject (default 5)
  -anonymous int
        Frames without identity to inject (default 5)
  -unknown int
        Frames with unrecognized tags to inject (default 5)
  -interval duration
        Delay between frames (default 0)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Wait after the last frame before verifying (default 2s)
  -output string
        File for the generated frames, one per line
  -log string
        Log file for test output (default: feed_test_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/test-feed/main.go

  # Larger run with a different seed
  go run cmd/test-feed/main.go -miners 5000 -seed 42 -sig-first 0.5
`)
}
