package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/example/storagegatebot/bot"
	"github.com/example/storagegatebot/config"
	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/db"
	"github.com/example/storagegatebot/logdb"
	"github.com/example/storagegatebot/server"
	"github.com/example/storagegatebot/version"
)

func main() {
	fmt.Printf("StorageGate Bot v%s\n", version.Version)

	// .env is optional; the deployment may set the environment directly.
	_ = godotenv.Load()

	created := false
	if _, err := os.Stat("config.yml"); os.IsNotExist(err) {
		created = true
	}

	cfg, err := config.Ensure("config.yml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Debug)

	if created {
		log.Info().Msg("default configuration generated at config.yml, edit it and restart")
		return
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}

	logs, err := logdb.New(cfg.LogsDatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("logs database")
	}

	registry := core.NewRegistry(database, database, cfg.AdminID, cfg.RegistrationSecret)
	ledger := core.NewLedger(database, registry, database)
	accountant := core.NewAccountant(database)
	tickets := core.NewTickets(database, registry, database)
	codes := core.NewCodes(database, registry, database)
	files := core.NewFiles(database, accountant, registry, database)

	b, err := bot.New(cfg, log, registry, ledger, tickets, codes, files, logs)
	if err != nil {
		log.Fatal().Err(err).Msg("bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		err := server.Start(cfg, files, logs, b.FileURL, func(id int64, msg string) {
			_ = b.Notify(id, msg)
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	go runSweeper(ctx, cfg, log, ledger, logs, b)

	b.Start(ctx)
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

// runSweeper is the periodic background pass: expired subscriptions are
// deactivated, stale multi-step conversations dropped and old download
// logs pruned. It never touches the request path.
func runSweeper(ctx context.Context, cfg *config.Config, log zerolog.Logger,
	ledger *core.Ledger, logs *logdb.DB, b *bot.Bot) {

	interval := cfg.SweepInterval()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("subscription sweep")
			} else if n > 0 {
				log.Info().Int64("deactivated", n).Msg("subscription sweep")
			}

			if dropped := b.PurgeStaleConversations(); dropped > 0 {
				log.Debug().Int("dropped", dropped).Msg("conversation sweep")
			}

			if cfg.LogRetentionDays > 0 {
				pruned, err := logs.Prune(cfg.LogRetentionDays)
				if err != nil {
					log.Error().Err(err).Msg("log prune")
				} else if pruned > 0 {
					log.Info().Int64("pruned", pruned).Msg("log prune")
				}
			}
		}
	}
}
