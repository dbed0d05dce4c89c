package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle state of a session. It is derived from
// participant count and time but stored for query efficiency, so every
// mutation must recompute it before committing.
type Status string

const (
	StatusOpen    Status = "open"
	StatusFull    Status = "full"
	StatusExpired Status = "expired"
)

// Session is the central record owned by the coordination engine. The store
// serializes it as a single JSON document guarded by a version token.
type Session struct {
	ID              uuid.UUID `json:"id"`
	CreatorID       string    `json:"creator_id"`
	CreatorName     string    `json:"creator_name"`
	Title           string    `json:"title"`
	Module          string    `json:"module"`
	Year            string    `json:"year"`
	Description     string    `json:"description"`
	Preferences     string    `json:"preferences"`
	Capacity        int       `json:"capacity"`
	Participants    []string  `json:"participants"`
	PendingRequests []string  `json:"pending_requests"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ScheduledEnd is the instant after which the session counts as expired.
func (s *Session) ScheduledEnd() time.Time {
	return s.ScheduledStart.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// ExpiredAt reports whether the session is past its scheduled end at the
// given instant, regardless of the persisted status.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.Status == StatusExpired || !now.Before(s.ScheduledEnd())
}

// AtCapacity reports whether the participant roster has no spots left.
// Pending requests never count against capacity.
func (s *Session) AtCapacity() bool {
	return len(s.Participants) >= s.Capacity
}

func (s *Session) IsParticipant(userID string) bool {
	return slices.Contains(s.Participants, userID)
}

func (s *Session) HasPendingRequest(userID string) bool {
	return slices.Contains(s.PendingRequests, userID)
}

// RecomputeStatus derives the persisted status from time and roster size.
// Expiry is one-way: an expired session never transitions back.
func (s *Session) RecomputeStatus(now time.Time) {
	switch {
	case s.ExpiredAt(now):
		s.Status = StatusExpired
	case s.AtCapacity():
		s.Status = StatusFull
	default:
		s.Status = StatusOpen
	}
}

// Clone returns a deep copy so callers can mutate freely without sharing
// the roster slices.
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	c.PendingRequests = slices.Clone(s.PendingRequests)
	return &c
}

// SessionView is the read projection handed to callers. It denormalizes the
// creator display name and precomputes roster counts.
type SessionView struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	Module             string    `json:"module"`
	Year               string    `json:"year"`
	Description        string    `json:"description"`
	Preferences        []string  `json:"preferences"`
	ScheduledStart     time.Time `json:"scheduled_start"`
	DurationMinutes    int       `json:"duration_minutes"`
	Capacity           int       `json:"capacity"`
	ParticipantCount   int       `json:"participant_count"`
	SpotsLeft          int       `json:"spots_left"`
	Status             Status    `json:"status"`
	CreatorID          string    `json:"creator_id"`
	CreatorDisplayName string    `json:"creator_display_name"`
	Participants       []string  `json:"participants"`
	PendingRequests    []string  `json:"pending_requests"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// View projects the session for responses. Expiry is re-derived from the
// clock so a stale persisted status never leaks an expired session as open.
func (s *Session) View(now time.Time) SessionView {
	status := s.Status
	if s.ExpiredAt(now) {
		status = StatusExpired
	}

	return SessionView{
		ID:                 s.ID,
		Title:              s.Title,
		Module:             s.Module,
		Year:               s.Year,
		Description:        s.Description,
		Preferences:        splitPreferences(s.Preferences),
		ScheduledStart:     s.ScheduledStart,
		DurationMinutes:    s.DurationMinutes,
		Capacity:           s.Capacity,
		ParticipantCount:   len(s.Participants),
		SpotsLeft:          s.Capacity - len(s.Participants),
		Status:             status,
		CreatorID:          s.CreatorID,
		CreatorDisplayName: s.CreatorName,
		Participants:       slices.Clone(s.Participants),
		PendingRequests:    slices.Clone(s.PendingRequests),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func splitPreferences(prefs string) []string {
	if strings.TrimSpace(prefs) == "" {
		return []string{}
	}
	parts := strings.Split(prefs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
