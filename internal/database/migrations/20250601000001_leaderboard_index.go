package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			CREATE INDEX IF NOT EXISTS idx_rep_totals_leaderboard
			ON rep_totals (rep_total DESC, user_id ASC);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create leaderboard index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`DROP INDEX IF EXISTS idx_rep_totals_leaderboard;`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop leaderboard index: %w", err)
		}

		return nil
	})
}
