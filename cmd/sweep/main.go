// Command sweep runs a single expiry pass against the session keyspace and
// exits. Useful for operations work and for backfilling after the retention
// window changes; the server runs the same sweep on a timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/studysync/internal/adapter/eventpublisher"
	"github.com/pscheid92/studysync/internal/adapter/redisstore"
	"github.com/pscheid92/studysync/internal/domain"
	"github.com/pscheid92/studysync/internal/engine"
	"github.com/pscheid92/studysync/internal/platform/config"
	"github.com/pscheid92/studysync/internal/platform/logging"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall pass timeout")
	flag.Parse()

	if err := run(*dryRun, *verbose, *timeout); err != nil {
		slog.Error("Sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(dryRun, verbose bool, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logging.InitLogger(level, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()
	store := redisstore.New(rdb)

	if dryRun {
		return report(ctx, store, clock, cfg.ExpiredRetention)
	}

	sweeper := engine.NewSweeper(store, eventpublisher.New(rdb, clock), clock, cfg.SweepInterval, cfg.ExpiredRetention)
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("scanned=%d marked=%d deleted=%d skipped=%d\n",
		result.Scanned, result.Marked, result.Deleted, result.Skipped)
	return nil
}

func report(ctx context.Context, store *redisstore.Store, clock clockwork.Clock, retention time.Duration) error {
	sessions, err := store.Scan(ctx)
	if err != nil {
		return err
	}

	now := clock.Now().UTC()
	var wouldMark, wouldDelete int
	for _, s := range sessions {
		switch {
		case now.After(s.ScheduledEnd().Add(retention)):
			wouldDelete++
			fmt.Printf("would delete %s (%q, ended %s)\n", s.ID, s.Title, s.ScheduledEnd().Format(time.RFC3339))
		case s.ExpiredAt(now) && s.Status != domain.StatusExpired:
			wouldMark++
			fmt.Printf("would mark expired %s (%q)\n", s.ID, s.Title)
		}
	}

	fmt.Printf("scanned=%d would_mark=%d would_delete=%d\n", len(sessions), wouldMark, wouldDelete)
	return nil
}
