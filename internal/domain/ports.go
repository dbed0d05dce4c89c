package domain

import (
	"context"

	"github.com/google/uuid"
)

// SessionStore is the narrow persistence port for session documents. Each
// document carries a version token; CompareAndSwap only commits if the token
// still matches, which is the sole concurrency primitive the engine relies on.
type SessionStore interface {
	// Get returns the session and its current version token.
	Get(ctx context.Context, id uuid.UUID) (*Session, uint64, error)
	// CreateIfAbsent persists a new session at version 1, failing with
	// ErrVersionConflict if the id is already taken.
	CreateIfAbsent(ctx context.Context, session *Session) error
	// CompareAndSwap replaces the document only if its stored version still
	// equals the given token. ErrVersionConflict signals a lost race.
	CompareAndSwap(ctx context.Context, session *Session, version uint64) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Scan streams every stored session. Corrupt records are skipped, not
	// surfaced, so background scans never abort on a single bad document.
	Scan(ctx context.Context) ([]*Session, error)
}

// Directory resolves user identifiers to display names. Only used to stamp
// denormalized names into session records and views.
type Directory interface {
	DisplayNameOf(ctx context.Context, userID string) (string, error)
}

// EventPublisher receives lifecycle events for downstream collaborators
// (chat cleanup, notifications). Fire-and-forget: failures are logged by the
// caller and never roll back committed state.
type EventPublisher interface {
	PublishSessionCreated(ctx context.Context, session *Session) error
	PublishSessionExpired(ctx context.Context, session *Session) error
	PublishSessionDeleted(ctx context.Context, session *Session) error
}

// ListFilter narrows the open-session listing. Empty fields match everything.
type ListFilter struct {
	Year   string
	Module string
}
