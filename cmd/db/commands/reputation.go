package commands

import (
	"context"
	"fmt"

	"github.com/robalyx/repbot/internal/database/legacy"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// defaultTopLimit is the number of users "top" prints by default.
const defaultTopLimit = 20

// ReputationCommands returns the commands that read or load reputation data.
func ReputationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "import",
			Usage:     "Import totals from a legacy ratings.json file",
			ArgsUsage: "FILE",
			Action:    handleImport(deps),
		},
		{
			Name:  "top",
			Usage: "Print the highest reputation totals",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"n"},
					Value:   defaultTopLimit,
					Usage:   "Number of users to print",
				},
			},
			Action: handleTop(deps),
		},
	}
}

// handleImport handles the 'import' command.
func handleImport(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrFileRequired
		}

		store, err := deps.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := legacy.Import(ctx, store, c.Args().First(), deps.Logger)
		if err != nil {
			return err
		}

		deps.Logger.Info("Legacy import finished",
			zap.Int("imported", stats.Imported),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)

		return nil
	}
}

// handleTop handles the 'top' command.
func handleTop(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		store, err := deps.OpenStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		totals, err := store.TopN(ctx, int(c.Int("limit")))
		if err != nil {
			return err
		}

		for i, entry := range totals {
			fmt.Printf("%d. %d: %d\n", i+1, entry.UserID, entry.Total)
		}

		return nil
	}
}
