package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/repbot/internal/bot"
	"github.com/robalyx/repbot/internal/setup"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"

	// shutdownTimeout bounds the gateway close on exit.
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "bot",
		Usage: "Start the reputation and forum bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-dir",
				Value: BotLogDir,
				Usage: "Directory for session log files",
			},
			&cli.BoolFlag{
				Name:  "console",
				Usage: "Mirror logs to stderr",
			},
			&cli.BoolFlag{
				Name:  "auto-migrate",
				Usage: "Apply pending PostgreSQL migrations on startup",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runBot(ctx, setup.Options{
				Component:   "bot",
				LogDir:      c.String("log-dir"),
				Console:     c.Bool("console"),
				AutoMigrate: c.Bool("auto-migrate"),
				WithStore:   true,
				WithLedger:  true,
			})
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, os.Args)
}

// runBot starts the gateway and the role refresher and blocks until ctx ends.
func runBot(ctx context.Context, opts setup.Options) error {
	app, err := setup.InitializeApp(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	locations, err := config.LoadLocations(app.ConfigPath, app.Config.Bot.LocationsFile, app.Logger)
	if err != nil {
		return err
	}

	discordBot, err := bot.New(app, locations)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	return serve(ctx, discordBot, app.Logger)
}

// lifecycle is the part of the bot that serve drives.
type lifecycle interface {
	Start(ctx context.Context) error
	RunRefresher(ctx context.Context)
	Close(ctx context.Context)
}

// serve runs the gateway and the refresher under one errgroup until ctx ends.
// A failed gateway start cancels the refresher and is returned.
func serve(ctx context.Context, b lifecycle, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.Start(gctx); err != nil {
			return fmt.Errorf("failed to start bot: %w", err)
		}

		logger.Info("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

		<-gctx.Done()
		logger.Info("Shutdown signal received")

		// Cleanly close down the Discord session
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		b.Close(closeCtx)

		return nil
	})

	g.Go(func() error {
		b.RunRefresher(gctx)
		return nil
	})

	return g.Wait()
}
