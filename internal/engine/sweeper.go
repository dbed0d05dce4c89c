package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/studysync/internal/adapter/metrics"
	"github.com/pscheid92/studysync/internal/domain"
)

const perSessionTimeout = 5 * time.Second

// Sweeper periodically walks the session keyspace and applies the two-phase
// expiry policy: sessions past their scheduled end are marked expired, and
// expired sessions past the retention window are deleted. Marking goes
// through compare-and-swap so the sweeper never clobbers a concurrent
// roster change.
type Sweeper struct {
	store     domain.SessionStore
	events    domain.EventPublisher
	clock     clockwork.Clock
	interval  time.Duration
	retention time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSweeper(store domain.SessionStore, events domain.EventPublisher, clock clockwork.Clock, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		events:    events,
		clock:     clock,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (w *Sweeper) Start(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)

	go func() {
		defer close(w.done)
		defer ticker.Stop()

		slog.Info("Expiry sweeper started", "interval", w.interval, "retention", w.retention)
		for {
			select {
			case <-ticker.Chan():
				w.runSweep(ctx)
			case <-w.stopCh:
				slog.Info("Expiry sweeper stopped")
				return
			case <-ctx.Done():
				slog.Info("Expiry sweeper stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for the current pass to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

func (w *Sweeper) runSweep(ctx context.Context) {
	start := w.clock.Now()
	result, err := w.Sweep(ctx)
	metrics.SweepDurationSeconds.Observe(w.clock.Since(start).Seconds())

	if err != nil {
		slog.Error("Expiry sweep failed", "error", err)
		return
	}
	if result.Marked > 0 || result.Deleted > 0 || result.Skipped > 0 {
		slog.Info("Expiry sweep completed",
			"scanned", result.Scanned, "marked", result.Marked,
			"deleted", result.Deleted, "skipped", result.Skipped)
	}
}

// SweepResult summarizes one pass over the keyspace.
type SweepResult struct {
	Scanned int
	Marked  int
	Deleted int
	Skipped int
}

// Sweep performs a single pass. Per-session failures are logged and skipped
// so one bad record never stalls the rest of the keyspace.
func (w *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	metrics.SweepScansTotal.Inc()

	sessions, err := w.store.Scan(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(sessions)}
	for _, session := range sessions {
		now := w.clock.Now().UTC()
		if !session.ExpiredAt(now) {
			continue
		}

		sessionCtx, cancel := context.WithTimeout(ctx, perSessionTimeout)
		err := w.sweepOne(sessionCtx, session, now, &result)
		cancel()

		if err != nil {
			result.Skipped++
			slog.Error("Failed to sweep session, skipping", "session_id", session.ID, "error", err)
		}
	}

	return result, nil
}

func (w *Sweeper) sweepOne(ctx context.Context, session *domain.Session, now time.Time, result *SweepResult) error {
	if now.After(session.ScheduledEnd().Add(w.retention)) {
		if err := w.store.Delete(ctx, session.ID); err != nil {
			return err
		}
		result.Deleted++
		metrics.SessionsDeletedTotal.WithLabelValues("retention").Inc()
		if err := w.events.PublishSessionDeleted(ctx, session); err != nil {
			slog.Error("Failed to publish deletion event", "session_id", session.ID, "error", err)
		}
		return nil
	}

	if session.Status == domain.StatusExpired {
		return nil
	}
	return w.markExpired(ctx, session.ID, result)
}

// markExpired re-reads the session by id to pick up a fresh version token,
// since Scan results carry none. A lost race just means another writer got
// there first; the next pass will see the outcome.
func (w *Sweeper) markExpired(ctx context.Context, id uuid.UUID, result *SweepResult) error {
	session, version, err := w.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	now := w.clock.Now().UTC()
	if !session.ExpiredAt(now) || session.Status == domain.StatusExpired {
		return nil
	}

	session.Status = domain.StatusExpired
	session.UpdatedAt = now

	if err := w.store.CompareAndSwap(ctx, session, version); err != nil {
		if stderrors.Is(err, domain.ErrVersionConflict) {
			slog.Debug("Lost expiry race, deferring to next sweep", "session_id", session.ID)
			return nil
		}
		return err
	}

	result.Marked++
	metrics.SessionsExpiredTotal.Inc()
	if err := w.events.PublishSessionExpired(ctx, session); err != nil {
		slog.Error("Failed to publish expiry event", "session_id", session.ID, "error", err)
	}
	return nil
}
