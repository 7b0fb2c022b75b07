package testfeed

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/minerwatch/pkg/logger"
)

// Diff lists every field where got differs from exp. An empty result is a match.
func Diff(exp Expected, got Miner) []string {
	var diffs []string
	if got.PrimaryKey != exp.Key {
		diffs = append(diffs, fmt.Sprintf("primary_key: want %q, got %q", exp.Key, got.PrimaryKey))
	}
	if got.Signature != exp.Signature {
		diffs = append(diffs, fmt.Sprintf("signature: want %q, got %q", exp.Signature, got.Signature))
	}
	if !approxEqual(got.ClaimedRewards, exp.Claimed) {
		diffs = append(diffs, fmt.Sprintf("claimed_rewards: want %.6f, got %.6f", exp.Claimed, got.ClaimedRewards))
	}
	if !approxEqual(got.UnclaimedRewards, exp.Unclaimed) {
		diffs = append(diffs, fmt.Sprintf("unclaimed_rewards: want %.6f, got %.6f", exp.Unclaimed, got.UnclaimedRewards))
	}
	if got.HashCount != exp.HashCount {
		diffs = append(diffs, fmt.Sprintf("hash_count: want %d, got %d", exp.HashCount, got.HashCount))
	}
	if got.Status != exp.Status {
		diffs = append(diffs, fmt.Sprintf("status: want %s, got %s", exp.Status, got.Status))
	}
	if got.HasRecentClaim != exp.HasRecentClaim {
		diffs = append(diffs, fmt.Sprintf("has_recent_claim: want %t, got %t", exp.HasRecentClaim, got.HasRecentClaim))
	}
	return diffs
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}

// verifyMiners fetches every expected miner from the service and compares it.
func verifyMiners(ctx context.Context, config *Config, expected []Expected, stats *Stats) error {
	log := runLogger()
	client := newHTTPClient(config.Timeout)

	for _, exp := range expected {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("verification cancelled: %w", err)
		}
		stats.MinersChecked++

		got, ok, err := client.getMiner(ctx, config.BaseURL, exp.Key)
		if err != nil {
			return err
		}
		if !ok {
			stats.Mismatches++
			log.Warn(ctx, "miner missing", logger.String("key", exp.Key))
			continue
		}

		diffs := Diff(exp, got)
		if len(diffs) == 0 {
			stats.MinersMatched++
			if config.Verbose {
				log.Debug(ctx, "miner matched", logger.String("key", exp.Key))
			}
			continue
		}
		stats.Mismatches++
		for _, d := range diffs {
			log.Warn(ctx, "miner mismatch", logger.String("key", exp.Key), logger.String("diff", d))
		}
	}

	if stats.Mismatches > 0 {
		return fmt.Errorf("%d of %d miners did not match", stats.Mismatches, stats.MinersChecked)
	}
	return nil
}
