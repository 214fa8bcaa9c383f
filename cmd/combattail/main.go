// Command combattail tails a live combat log, drives the full ingest
// pipeline (parse → state machine → boss/timer/effect engines), prints
// every emitted signal to stdout, and persists each finished encounter to
// the configured encounters directory. Mirrors cmd/gameserver/main.go's
// flag-parse + config-load + signal-handling shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raidforge/combatlog/internal/config"
	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/processor"
	"github.com/raidforge/combatlog/internal/session"
	gosignal "github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/storage"
	"github.com/raidforge/combatlog/internal/tail"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "config/combattail.yaml", "path to the host config file")
	flag.Parse()

	if p := os.Getenv("COMBATTAIL_CONFIG"); p != "" {
		*configPath = p
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("combattail starting", "log_path", cfg.LogPath, "definitions_dir", cfg.DefinitionsDir, "encounters_dir", cfg.EncountersDir)

	defStore, err := defs.NewStore(cfg.DefinitionsDir, false)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	slog.Info("definitions loaded", "bosses", len(defStore.Bosses()))

	cache := session.New()
	cache.LoadBossDefinitions(defStore.Bosses())

	bus := gosignal.NewBus()
	proc := processor.New(cache, bus)

	writer, err := storage.NewWriter(cfg.EncountersDir, slog.Default())
	if err != nil {
		return fmt.Errorf("creating encounter writer: %w", err)
	}

	bus.Subscribe(gosignal.HandlerFunc(func(batch []gosignal.Signal) {
		for _, s := range batch {
			slog.Info("signal", "kind", s.Kind.String(), "entity", s.Name, "encounter", s.EncounterID)
			if s.Kind == gosignal.KindCombatEnded {
				if err := writer.Flush(uint32(s.EncounterID)); err != nil {
					slog.Warn("encounter flush failed", "encounter", s.EncounterID, "error", err)
				}
			}
		}
	}))

	g, gctx := errgroup.WithContext(ctx)

	tickHz := cfg.TickHz
	if tickHz < 1 {
		tickHz = 1
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Second / time.Duration(tickHz))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				proc.TickTimers(now, now)
				proc.TickEffects(now, now)
			}
		}
	})

	parser := logline.NewParser(time.Now(), nil)

	follower := tail.NewFollower(cfg.LogPath, 0, slog.Default())
	g.Go(func() error {
		return follower.Run(gctx, func(line string, lineNo uint64) {
			ev, ok := parser.Parse(line, logline.LineNumber(lineNo))
			if !ok {
				return
			}

			rowCtx := storage.RowContext{
				EncounterIdx: uint32(cache.Current().ID),
				PhaseName:    cache.Current().CurrentPhase,
				AreaName:     cache.Area.Name,
			}
			if bossDef, ok := cache.ActiveBoss(); ok {
				rowCtx.BossName = bossDef.Name
				rowCtx.AreaName = bossDef.AreaName
			}
			writer.AddRow(&ev, rowCtx)

			proc.Process(&ev)
		})
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("pipeline error: %w", err)
	}

	if err := writer.Flush(uint32(cache.Current().ID)); err != nil {
		slog.Warn("final flush failed", "error", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
