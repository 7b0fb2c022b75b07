package testfeed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/minerwatch/pkg/logger"
)

// Runner constants.
const (
	directoryPermission = 0750
	readHeaderTimeout   = 5 * time.Second
)

func runLogger() logger.Logger { return logger.Named("testfeed") }

// Run serves a generated script to the service under test and verifies the
// miner state it reports afterwards.
func Run(ctx context.Context, config *Config) error {
	log := runLogger()
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting minerwatch feed test",
		logger.String("listen", config.Listen),
		logger.String("baseURL", config.BaseURL),
		logger.Int("miners", config.Miners),
		logger.Int64("seed", config.Seed),
		logger.Duration("interval", config.Interval),
		logger.Bool("verbose", config.Verbose),
	)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate the script
	script, err := Generate(ctx, config)
	if err != nil {
		return fmt.Errorf("script generation failed: %w", err)
	}
	stats.FramesGenerated = len(script.Frames)

	if err := saveFramesToFile(ctx, config, script.Frames); err != nil {
		log.Warn(ctx, "failed to save frames to file", logger.Error(err))
	}

	// Step 3: Serve the feed until every frame is sent
	feed := NewServer(script.Frames, config.Credential, config.Interval)
	if err := serveFeed(ctx, config, feed); err != nil {
		return err
	}
	stats.FramesSent = feed.Sent()

	// Step 4: Wait for processing
	settle := config.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	log.Info(ctx, "waiting for frames to be processed", logger.Duration("settle", settle))
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Step 5: Verify miners
	verifyErr := verifyMiners(ctx, config, script.Expected, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if verifyErr != nil {
		return fmt.Errorf("result verification failed: %w", verifyErr)
	}
	log.Info(ctx, "test completed successfully")
	return nil
}

func serveFeed(ctx context.Context, config *Config, feed *Server) error {
	log := runLogger()

	path := config.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, feed)

	ln, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Listen, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "feed server error", logger.Error(err))
		}
	}()
	defer func() {
		feed.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "feed listening", logger.String("addr", ln.Addr().String()), logger.String("path", path))

	select {
	case <-feed.Connected():
	case <-time.After(ConnectWait):
		return fmt.Errorf("no feed client connected within %s", ConnectWait)
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Info(ctx, "feed client connected")

	if err := feed.Wait(ctx); err != nil {
		return fmt.Errorf("feed interrupted after %d frames: %w", feed.Sent(), err)
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}
	// the service answers /healthz with Prometheus metrics
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	runLogger().Info(ctx, "service is healthy")
	return nil
}

// saveFramesToFile writes one frame per line in send order.
func saveFramesToFile(ctx context.Context, config *Config, frames [][]byte) error {
	filename := config.OutputFile
	if filename == "" {
		return nil
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data := bytes.Join(frames, []byte("\n"))
	data = append(data, '\n')
	if err := os.WriteFile(filename, data, logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	runLogger().Info(ctx, "frames saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var matchRate, framesPerSecond float64
	if stats.MinersChecked > 0 {
		matchRate = float64(stats.MinersMatched) / float64(stats.MinersChecked) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesSent) / stats.Duration.Seconds()
	}

	runLogger().Info(context.Background(), "final statistics",
		logger.Int("framesGenerated", stats.FramesGenerated),
		logger.Int("framesSent", stats.FramesSent),
		logger.Int("minersChecked", stats.MinersChecked),
		logger.Int("minersMatched", stats.MinersMatched),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchRate", matchRate),
		logger.Float64("framesPerSecond", framesPerSecond),
	)
}
