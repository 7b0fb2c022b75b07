package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/minerwatch/internal/testfeed"
)

// Default configuration constants.
const (
	defaultMiners      = 200
	defaultSigFirst    = 0.3
	defaultNoise       = 5
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		listen     = flag.String("listen", ":9090", "Address the simulated feed listens on")
		path       = flag.String("path", "/feed", "WebSocket path")
		credential = flag.String("credential", "", "Bearer token the service must present")
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		miners     = flag.Int("miners", defaultMiners, "Number of miners to simulate")
		seed       = flag.Int64("seed", 1, "Generator seed")
		sigFirst   = flag.Float64("sig-first", defaultSigFirst, "Share of miners announced by signature first")
		malformed  = flag.Int("malformed", defaultNoise, "Malformed frames to inject")
		anonymous  = flag.Int("anonymous", defaultNoise, "Frames without identity to inject")
		unknown    = flag.Int("unknown", defaultNoise, "Frames with unrecognized tags to inject")
		interval   = flag.Duration("interval", 0, "Delay between frames")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", testfeed.DefaultSettle, "Wait after the last frame before verifying")
		outputFile = flag.String("output", "", "File for the generated frames, one per line")
		logFile    = flag.String("log", "", "Log file for test output (default: feed_test_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testfeed.ShowHelp()
		return
	}

	if err := testfeed.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testfeed.Config{
		Listen:        *listen,
		Path:          *path,
		Credential:    *credential,
		BaseURL:       *baseURL,
		Miners:        *miners,
		Seed:          *seed,
		SigFirstShare: *sigFirst,
		Malformed:     *malformed,
		Anonymous:     *anonymous,
		Unknown:       *unknown,
		Interval:      *interval,
		Timeout:       *timeout,
		Settle:        *settle,
		OutputFile:    *outputFile,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	if err := testfeed.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}
