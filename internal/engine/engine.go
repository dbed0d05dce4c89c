// Package engine implements the session coordination rules: creation,
// join-request handling, roster changes, and deletion. All mutations go
// through a compare-and-swap loop against the session store, so two racing
// writers can never both commit against the same document version.
package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/studysync/internal/adapter/metrics"
	"github.com/pscheid92/studysync/internal/domain"
	"github.com/pscheid92/studysync/internal/errors"
	"github.com/pscheid92/studysync/internal/platform/retry"
)

const (
	maxCASAttempts = 5
	casBackoff     = 10 * time.Millisecond

	unknownUserName = "Unknown User"
)

type Engine struct {
	store     domain.SessionStore
	directory domain.Directory
	events    domain.EventPublisher
	clock     clockwork.Clock
}

func New(store domain.SessionStore, directory domain.Directory, events domain.EventPublisher, clock clockwork.Clock) *Engine {
	return &Engine{
		store:     store,
		directory: directory,
		events:    events,
		clock:     clock,
	}
}

// CreateParams carries the caller-supplied fields for a new session.
type CreateParams struct {
	Title           string
	Module          string
	Year            string
	Description     string
	Preferences     string
	Capacity        int
	DurationMinutes int
	ScheduledStart  time.Time
	StartNow        bool
}

// Create validates the parameters, stamps the creator as the first
// participant, and persists the session at version 1.
func (e *Engine) Create(ctx context.Context, creatorID string, params CreateParams) (domain.SessionView, error) {
	now := e.clock.Now().UTC()

	if err := validateCreate(creatorID, params, now); err != nil {
		return domain.SessionView{}, err
	}

	start := params.ScheduledStart.UTC()
	if params.StartNow {
		start = now
	}

	session := &domain.Session{
		ID:              uuid.New(),
		CreatorID:       creatorID,
		CreatorName:     e.displayNameOf(ctx, creatorID),
		Title:           strings.TrimSpace(params.Title),
		Module:          strings.TrimSpace(params.Module),
		Year:            strings.TrimSpace(params.Year),
		Description:     strings.TrimSpace(params.Description),
		Preferences:     strings.TrimSpace(params.Preferences),
		Capacity:        params.Capacity,
		Participants:    []string{creatorID},
		PendingRequests: []string{},
		ScheduledStart:  start,
		DurationMinutes: params.DurationMinutes,
		Status:          domain.StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.CreateIfAbsent(ctx, session); err != nil {
		return domain.SessionView{}, errors.InternalError("failed to create session", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	e.publish(ctx, "session_created", e.events.PublishSessionCreated, session)

	return session.View(now), nil
}

func validateCreate(creatorID string, params CreateParams, now time.Time) error {
	switch {
	case creatorID == "":
		return errors.ValidationError("creator id is required")
	case strings.TrimSpace(params.Title) == "":
		return errors.ValidationError("title is required")
	case strings.TrimSpace(params.Module) == "":
		return errors.ValidationError("module is required")
	case strings.TrimSpace(params.Year) == "":
		return errors.ValidationError("year is required")
	case params.Capacity < 2:
		return errors.ValidationError("capacity must be at least 2").WithField("capacity", params.Capacity)
	case params.DurationMinutes < 1:
		return errors.ValidationError("duration must be at least one minute").WithField("duration_minutes", params.DurationMinutes)
	}

	if !params.StartNow {
		if params.ScheduledStart.IsZero() {
			return errors.ValidationError("scheduled start is required")
		}
		if params.ScheduledStart.UTC().Before(now) {
			return errors.ValidationError("scheduled start must not be in the past")
		}
	}
	return nil
}

// RequestToJoin adds the user to the pending queue. Pending requests never
// reserve a spot, but requesting to join a full or expired session is
// rejected up front.
func (e *Engine) RequestToJoin(ctx context.Context, sessionID uuid.UUID, userID string) (domain.SessionView, error) {
	return e.mutate(ctx, sessionID, "request_to_join", func(s *domain.Session, now time.Time) error {
		switch {
		case s.ExpiredAt(now):
			return errors.ExpiredError("session has ended")
		case s.IsParticipant(userID):
			return errors.AlreadyMemberError("user is already a participant").WithField("user_id", userID)
		case s.HasPendingRequest(userID):
			return errors.AlreadyRequestedError("join request already pending").WithField("user_id", userID)
		case s.AtCapacity():
			return errors.SessionFullError("session is full")
		}

		s.PendingRequests = append(s.PendingRequests, userID)
		return nil
	})
}

// AcceptRequest moves a pending requester onto the roster. Creator only.
// When the roster is full the request stays pending so the creator can
// accept it later if a spot frees up.
func (e *Engine) AcceptRequest(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error) {
	return e.mutate(ctx, sessionID, "accept_request", func(s *domain.Session, now time.Time) error {
		switch {
		case s.CreatorID != actorID:
			return errors.UnauthorizedError("only the creator can accept join requests")
		case s.ExpiredAt(now):
			return errors.ExpiredError("session has ended")
		case !s.HasPendingRequest(targetID):
			return errors.NoSuchRequestError("no pending request from this user").WithField("user_id", targetID)
		case s.AtCapacity():
			return errors.SessionFullError("session is full")
		}

		s.PendingRequests = removeFirst(s.PendingRequests, targetID)
		s.Participants = append(s.Participants, targetID)
		return nil
	})
}

// DeclineRequest drops a pending join request. Creator only.
func (e *Engine) DeclineRequest(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error) {
	return e.mutate(ctx, sessionID, "decline_request", func(s *domain.Session, now time.Time) error {
		switch {
		case s.CreatorID != actorID:
			return errors.UnauthorizedError("only the creator can decline join requests")
		case s.ExpiredAt(now):
			return errors.ExpiredError("session has ended")
		case !s.HasPendingRequest(targetID):
			return errors.NoSuchRequestError("no pending request from this user").WithField("user_id", targetID)
		}

		s.PendingRequests = removeFirst(s.PendingRequests, targetID)
		return nil
	})
}

// KickParticipant removes a participant from the roster. Creator only, and
// the creator can never be removed. A full session reopens when a spot
// frees up.
func (e *Engine) KickParticipant(ctx context.Context, sessionID uuid.UUID, actorID, targetID string) (domain.SessionView, error) {
	return e.mutate(ctx, sessionID, "kick_participant", func(s *domain.Session, now time.Time) error {
		switch {
		case s.CreatorID != actorID:
			return errors.UnauthorizedError("only the creator can remove participants")
		case s.ExpiredAt(now):
			return errors.ExpiredError("session has ended")
		case targetID == s.CreatorID:
			return errors.CannotRemoveCreatorError("the creator cannot be removed from their own session")
		case !s.IsParticipant(targetID):
			return errors.NotAParticipantError("user is not a participant").WithField("user_id", targetID)
		}

		s.Participants = removeFirst(s.Participants, targetID)
		return nil
	})
}

// Delete removes the session entirely. Creator only. Unlike the roster
// mutations this is allowed on an expired session, so creators can always
// clean up after themselves.
func (e *Engine) Delete(ctx context.Context, sessionID uuid.UUID, actorID string) error {
	session, _, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return mapStoreError(err)
	}
	if session.CreatorID != actorID {
		return errors.UnauthorizedError("only the creator can delete the session")
	}

	if err := e.store.Delete(ctx, sessionID); err != nil {
		return errors.InternalError("failed to delete session", err)
	}

	metrics.SessionsDeletedTotal.WithLabelValues("creator").Inc()
	e.publish(ctx, "session_deleted", e.events.PublishSessionDeleted, session)
	return nil
}

// Get returns the current view of a single session.
func (e *Engine) Get(ctx context.Context, sessionID uuid.UUID) (domain.SessionView, error) {
	session, _, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, mapStoreError(err)
	}
	return session.View(e.clock.Now().UTC()), nil
}

// ListOpen returns joinable sessions matching the filter, soonest first.
// Expiry is evaluated against the live clock, so sessions the sweeper has
// not caught up with yet are still excluded.
func (e *Engine) ListOpen(ctx context.Context, filter domain.ListFilter) ([]domain.SessionView, error) {
	now := e.clock.Now().UTC()
	return e.list(ctx, now, func(s *domain.Session) bool {
		if s.ExpiredAt(now) || s.AtCapacity() {
			return false
		}
		if filter.Year != "" && !strings.EqualFold(s.Year, filter.Year) {
			return false
		}
		if filter.Module != "" && !strings.EqualFold(s.Module, filter.Module) {
			return false
		}
		return true
	})
}

// ListByCreator returns every session the user created, including expired
// ones, so creators can review and delete their history.
func (e *Engine) ListByCreator(ctx context.Context, userID string) ([]domain.SessionView, error) {
	now := e.clock.Now().UTC()
	return e.list(ctx, now, func(s *domain.Session) bool {
		return s.CreatorID == userID
	})
}

// ListJoined returns sessions the user participates in but did not create.
func (e *Engine) ListJoined(ctx context.Context, userID string) ([]domain.SessionView, error) {
	now := e.clock.Now().UTC()
	return e.list(ctx, now, func(s *domain.Session) bool {
		return s.CreatorID != userID && s.IsParticipant(userID)
	})
}

func (e *Engine) list(ctx context.Context, now time.Time, keep func(*domain.Session) bool) ([]domain.SessionView, error) {
	sessions, err := e.store.Scan(ctx)
	if err != nil {
		return nil, errors.InternalError("failed to list sessions", err)
	}

	views := make([]domain.SessionView, 0, len(sessions))
	for _, s := range sessions {
		if keep(s) {
			views = append(views, s.View(now))
		}
	}

	slices.SortFunc(views, func(a, b domain.SessionView) int {
		return a.ScheduledStart.Compare(b.ScheduledStart)
	})
	return views, nil
}

type applyFunc func(s *domain.Session, now time.Time) error

// mutate runs a read-modify-write cycle under optimistic concurrency. The
// apply step re-reads the document on every attempt, so a writer that lost
// a race re-validates against the fresh state before committing. Domain
// rejections abort immediately; only version conflicts retry.
func (e *Engine) mutate(ctx context.Context, sessionID uuid.UUID, operation string, apply applyFunc) (domain.SessionView, error) {
	policy := retry.Policy{
		MaxAttempts:    maxCASAttempts,
		InitialBackoff: casBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Retrying session mutation after version conflict",
				"operation", operation, "session_id", sessionID, "attempt", attempt, "backoff", backoff)
		},
	}

	classify := func(err error) retry.Action {
		if stderrors.Is(err, domain.ErrVersionConflict) {
			metrics.CASConflictsTotal.Inc()
			return retry.Retry
		}
		return retry.Stop
	}

	session, err := retry.Do(ctx, policy, classify, func() (*domain.Session, error) {
		session, version, err := e.store.Get(ctx, sessionID)
		if err != nil {
			return nil, mapStoreError(err)
		}

		now := e.clock.Now().UTC()
		if err := apply(session, now); err != nil {
			return nil, err
		}

		session.RecomputeStatus(now)
		session.UpdatedAt = now

		if err := e.store.CompareAndSwap(ctx, session, version); err != nil {
			switch {
			case stderrors.Is(err, domain.ErrVersionConflict):
				return nil, err
			case stderrors.Is(err, domain.ErrSessionNotFound):
				return nil, errors.NotFoundError("session not found")
			default:
				return nil, errors.InternalError("failed to commit session update", err)
			}
		}
		return session, nil
	})

	if err != nil {
		var permanent *retry.PermanentError
		if stderrors.As(err, &permanent) {
			err = permanent.Err
		} else if stderrors.Is(err, domain.ErrVersionConflict) {
			err = errors.ConflictError("session was modified concurrently, please retry").
				WithField("attempts", maxCASAttempts)
		}

		metrics.SessionMutationsTotal.WithLabelValues(operation, mutationResult(err)).Inc()
		return domain.SessionView{}, err
	}

	metrics.SessionMutationsTotal.WithLabelValues(operation, "success").Inc()
	return session.View(e.clock.Now().UTC()), nil
}

func mutationResult(err error) string {
	structured := errors.AsStructuredError(err)
	if structured.Expected() {
		return "rejected"
	}
	return "error"
}

// displayNameOf resolves the creator's display name, falling back to a
// placeholder so a directory outage never blocks session creation.
func (e *Engine) displayNameOf(ctx context.Context, userID string) string {
	name, err := e.directory.DisplayNameOf(ctx, userID)
	if err != nil {
		if stderrors.Is(err, domain.ErrProfileNotFound) {
			slog.Warn("No profile found for user, using placeholder name", "user_id", userID)
		} else {
			slog.Error("Display name lookup failed, using placeholder name", "user_id", userID, "error", err)
		}
		return unknownUserName
	}
	return name
}

func (e *Engine) publish(ctx context.Context, eventType string, fn func(context.Context, *domain.Session) error, session *domain.Session) {
	if err := fn(ctx, session); err != nil {
		slog.Error("Failed to publish lifecycle event", "event", eventType, "session_id", session.ID, "error", err)
	}
}

func mapStoreError(err error) error {
	switch {
	case stderrors.Is(err, domain.ErrSessionNotFound):
		return errors.NotFoundError("session not found")
	case stderrors.Is(err, domain.ErrCorruptRecord):
		return errors.CorruptRecordError("stored session record is invalid", err)
	default:
		return errors.InternalError("failed to load session", err)
	}
}

func removeFirst(list []string, value string) []string {
	if i := slices.Index(list, value); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}
