// Package legacy imports reputation from the old ratings.json file.
package legacy

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// TotalSetter is the store capability the importer needs.
type TotalSetter interface {
	SetTotal(ctx context.Context, userID snowflake.ID, total int64) error
}

// Stats summarizes an import run.
type Stats struct {
	Imported int
	Skipped  int
	Failed   int
}

// userRecord is one entry of ratings.json. The "rep" field is ignored because
// the reviews list is the source of truth.
type userRecord struct {
	Reviews any `json:"reviews"`
}

// Import reads ratings.json at path and overwrites each user's total with the
// sum of their reviews. Running it twice yields the same totals.
func Import(ctx context.Context, store TotalSetter, path string, logger *zap.Logger) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read ratings file: %w", err)
	}

	var records map[string]userRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return Stats{}, fmt.Errorf("failed to parse ratings file: %w", err)
	}

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	var stats Stats

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		userID, err := snowflake.Parse(key)
		if err != nil {
			logger.Warn("Skipping entry with invalid user id", zap.String("key", key))
			stats.Skipped++

			continue
		}

		total := Total(records[key].Reviews)
		if err := store.SetTotal(ctx, userID, total); err != nil {
			logger.Error("Failed to import total",
				zap.Uint64("userID", uint64(userID)),
				zap.Int64("total", total),
				zap.Error(err))

			stats.Failed++

			continue
		}

		stats.Imported++
	}

	logger.Info("Imported legacy ratings",
		zap.String("path", path),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))

	return stats, nil
}

// Total scores a decoded reviews value: +1 per good transaction, -1 otherwise.
// Anything other than a list scores 0.
func Total(reviews any) int64 {
	list, ok := reviews.([]any)
	if !ok {
		return 0
	}

	var total int64

	for _, item := range list {
		review, _ := item.(map[string]any)
		if good, _ := review["good_transaction"].(bool); good {
			total++
		} else {
			total--
		}
	}

	return total
}
