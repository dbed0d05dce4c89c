package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/studysync/internal/adapter/memstore"
	"github.com/pscheid92/studysync/internal/domain"
	"github.com/pscheid92/studysync/internal/errors"
)

var testStart = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type mockDirectory struct {
	displayNameOf func(ctx context.Context, userID string) (string, error)
}

func (m *mockDirectory) DisplayNameOf(ctx context.Context, userID string) (string, error) {
	if m.displayNameOf != nil {
		return m.displayNameOf(ctx, userID)
	}
	return "Alice Example", nil
}

type mockPublisher struct {
	mu      sync.Mutex
	created []uuid.UUID
	expired []uuid.UUID
	deleted []uuid.UUID
}

func (m *mockPublisher) PublishSessionCreated(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, s.ID)
	return nil
}

func (m *mockPublisher) PublishSessionExpired(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = append(m.expired, s.ID)
	return nil
}

func (m *mockPublisher) PublishSessionDeleted(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, s.ID)
	return nil
}

type testEnv struct {
	engine *Engine
	store  *memstore.Store
	clock  *clockwork.FakeClock
	events *mockPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	store := memstore.New()
	events := &mockPublisher{}
	eng := New(store, &mockDirectory{}, events, clock)
	return &testEnv{engine: eng, store: store, clock: clock, events: events}
}

func validParams() CreateParams {
	return CreateParams{
		Title:           "Graph Theory Revision",
		Module:          "CO2106",
		Year:            "2",
		Description:     "Going over past papers",
		Preferences:     "quiet, library",
		Capacity:        3,
		DurationMinutes: 90,
		ScheduledStart:  testStart.Add(time.Hour),
	}
}

func (env *testEnv) mustCreate(t *testing.T, creatorID string, params CreateParams) domain.SessionView {
	t.Helper()
	view, err := env.engine.Create(context.Background(), creatorID, params)
	require.NoError(t, err)
	return view
}

func errorType(t *testing.T, err error) errors.ErrorType {
	t.Helper()
	require.Error(t, err)
	return errors.AsStructuredError(err).Type
}

func TestCreateSetsCreatorAsFirstParticipant(t *testing.T) {
	env := newTestEnv(t)

	view := env.mustCreate(t, "alice", validParams())

	assert.Equal(t, "alice", view.CreatorID)
	assert.Equal(t, "Alice Example", view.CreatorDisplayName)
	assert.Equal(t, []string{"alice"}, view.Participants)
	assert.Equal(t, 1, view.ParticipantCount)
	assert.Equal(t, 2, view.SpotsLeft)
	assert.Equal(t, domain.StatusOpen, view.Status)
	assert.Equal(t, []string{"quiet", "library"}, view.Preferences)
	assert.Len(t, env.events.created, 1)
}

func TestCreateStartNowUsesCurrentTime(t *testing.T) {
	env := newTestEnv(t)

	params := validParams()
	params.StartNow = true
	params.ScheduledStart = time.Time{}

	view := env.mustCreate(t, "alice", params)
	assert.Equal(t, testStart, view.ScheduledStart)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"empty title", func(p *CreateParams) { p.Title = "  " }},
		{"empty module", func(p *CreateParams) { p.Module = "" }},
		{"empty year", func(p *CreateParams) { p.Year = "" }},
		{"capacity below two", func(p *CreateParams) { p.Capacity = 1 }},
		{"zero duration", func(p *CreateParams) { p.DurationMinutes = 0 }},
		{"start in the past", func(p *CreateParams) { p.ScheduledStart = testStart.Add(-time.Minute) }},
		{"missing start", func(p *CreateParams) { p.ScheduledStart = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)

			_, err := env.engine.Create(context.Background(), "alice", params)
			assert.Equal(t, errors.TypeValidation, errorType(t, err))
		})
	}
}

func TestCreateFallsBackWhenProfileMissing(t *testing.T) {
	env := newTestEnv(t)
	env.engine.directory = &mockDirectory{
		displayNameOf: func(context.Context, string) (string, error) {
			return "", domain.ErrProfileNotFound
		},
	}

	view := env.mustCreate(t, "ghost", validParams())
	assert.Equal(t, "Unknown User", view.CreatorDisplayName)
}

func TestRequestToJoin(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	view, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, view.PendingRequests)
	assert.Equal(t, 1, view.ParticipantCount, "pending requests must not take up spots")
	assert.Equal(t, domain.StatusOpen, view.Status)
}

func TestRequestToJoinRejections(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	tests := []struct {
		name     string
		userID   string
		expected errors.ErrorType
	}{
		{"creator requests own session", "alice", errors.TypeAlreadyMember},
		{"duplicate request", "bob", errors.TypeAlreadyRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.RequestToJoin(context.Background(), created.ID, tt.userID)
			assert.Equal(t, tt.expected, errorType(t, err))
		})
	}

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.engine.RequestToJoin(context.Background(), uuid.New(), "carol")
		assert.Equal(t, errors.TypeNotFound, errorType(t, err))
	})
}

func TestAcceptMovesRequesterOntoRoster(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	view, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, view.Participants)
	assert.Empty(t, view.PendingRequests)
	assert.Equal(t, domain.StatusOpen, view.Status)
}

func TestAcceptFillsSessionAtCapacity(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams()) // capacity 3

	for _, user := range []string{"bob", "carol"} {
		_, err := env.engine.RequestToJoin(context.Background(), created.ID, user)
		require.NoError(t, err)
		_, err = env.engine.AcceptRequest(context.Background(), created.ID, "alice", user)
		require.NoError(t, err)
	}

	view, err := env.engine.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFull, view.Status)
	assert.Equal(t, 0, view.SpotsLeft)

	_, err = env.engine.RequestToJoin(context.Background(), created.ID, "dave")
	assert.Equal(t, errors.TypeSessionFull, errorType(t, err))
}

func TestAcceptRejections(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	t.Run("non creator", func(t *testing.T) {
		_, err := env.engine.AcceptRequest(context.Background(), created.ID, "bob", "bob")
		assert.Equal(t, errors.TypeUnauthorized, errorType(t, err))
	})

	t.Run("no pending request", func(t *testing.T) {
		_, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "carol")
		assert.Equal(t, errors.TypeNoSuchRequest, errorType(t, err))
	})
}

func TestAcceptKeepsRequestPendingWhenFull(t *testing.T) {
	env := newTestEnv(t)

	params := validParams()
	params.Capacity = 2
	created := env.mustCreate(t, "alice", params)

	for _, user := range []string{"bob", "carol"} {
		_, err := env.engine.RequestToJoin(context.Background(), created.ID, user)
		require.NoError(t, err)
	}

	_, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)

	_, err = env.engine.AcceptRequest(context.Background(), created.ID, "alice", "carol")
	assert.Equal(t, errors.TypeSessionFull, errorType(t, err))

	view, err := env.engine.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, view.PendingRequests, "rejected accept must leave the request pending")
}

func TestDeclineDropsRequest(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	view, err := env.engine.DeclineRequest(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, view.PendingRequests)
	assert.NotContains(t, view.Participants, "bob")

	_, err = env.engine.DeclineRequest(context.Background(), created.ID, "alice", "bob")
	assert.Equal(t, errors.TypeNoSuchRequest, errorType(t, err))
}

func TestDeclinedUserCanRequestAgain(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)
	_, err = env.engine.DeclineRequest(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)

	view, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, view.PendingRequests)
}

func TestKickReopensFullSession(t *testing.T) {
	env := newTestEnv(t)

	params := validParams()
	params.Capacity = 2
	created := env.mustCreate(t, "alice", params)

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)
	view, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, domain.StatusFull, view.Status)

	view, err = env.engine.KickParticipant(context.Background(), created.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, view.Status)
	assert.Equal(t, []string{"alice"}, view.Participants)
}

func TestKickRejections(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	tests := []struct {
		name     string
		actorID  string
		targetID string
		expected errors.ErrorType
	}{
		{"creator cannot be removed", "alice", "alice", errors.TypeCannotRemoveCreator},
		{"target not on roster", "alice", "bob", errors.TypeNotAParticipant},
		{"non creator", "bob", "alice", errors.TypeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.KickParticipant(context.Background(), created.ID, tt.actorID, tt.targetID)
			assert.Equal(t, tt.expected, errorType(t, err))
		})
	}
}

func TestExpiredSessionRejectsMutations(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	// Jump past the scheduled end.
	env.clock.Advance(time.Hour + 91*time.Minute)

	ops := map[string]func() error{
		"request": func() error {
			_, err := env.engine.RequestToJoin(context.Background(), created.ID, "carol")
			return err
		},
		"accept": func() error {
			_, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "bob")
			return err
		},
		"decline": func() error {
			_, err := env.engine.DeclineRequest(context.Background(), created.ID, "alice", "bob")
			return err
		},
		"kick": func() error {
			_, err := env.engine.KickParticipant(context.Background(), created.ID, "alice", "bob")
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, errors.TypeExpired, errorType(t, op()))
		})
	}

	view, err := env.engine.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, view.Status, "reads must re-derive expiry from the clock")
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	t.Run("non creator rejected", func(t *testing.T) {
		err := env.engine.Delete(context.Background(), created.ID, "bob")
		assert.Equal(t, errors.TypeUnauthorized, errorType(t, err))
	})

	t.Run("creator can delete after expiry", func(t *testing.T) {
		env.clock.Advance(100 * time.Hour)

		err := env.engine.Delete(context.Background(), created.ID, "alice")
		require.NoError(t, err)
		assert.Len(t, env.events.deleted, 1)

		_, err = env.engine.Get(context.Background(), created.ID)
		assert.Equal(t, errors.TypeNotFound, errorType(t, err))
	})
}

func TestConcurrentAcceptsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)

	params := validParams()
	params.Capacity = 2 // creator plus one spot
	created := env.mustCreate(t, "alice", params)

	for _, user := range []string{"bob", "carol"} {
		_, err := env.engine.RequestToJoin(context.Background(), created.ID, user)
		require.NoError(t, err)
	}

	results := make(chan error, 2)
	for _, user := range []string{"bob", "carol"} {
		go func(user string) {
			_, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", user)
			results <- err
		}(user)
	}

	var accepted, rejected int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			accepted++
		} else {
			require.Equal(t, errors.TypeSessionFull, errors.AsStructuredError(err).Type)
			rejected++
		}
	}

	assert.Equal(t, 1, accepted, "exactly one accept must win the last spot")
	assert.Equal(t, 1, rejected)

	view, err := env.engine.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, view.Participants, 2)
	assert.Equal(t, domain.StatusFull, view.Status)
}

func TestConcurrentAcceptAndDecline(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	require.NoError(t, err)

	results := make(chan error, 2)
	go func() {
		_, err := env.engine.AcceptRequest(context.Background(), created.ID, "alice", "bob")
		results <- err
	}()
	go func() {
		_, err := env.engine.DeclineRequest(context.Background(), created.ID, "alice", "bob")
		results <- err
	}()

	var succeeded, noSuchRequest int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			succeeded++
		} else {
			require.Equal(t, errors.TypeNoSuchRequest, errors.AsStructuredError(err).Type)
			noSuchRequest++
		}
	}

	assert.Equal(t, 1, succeeded, "accept and decline must not both succeed")
	assert.Equal(t, 1, noSuchRequest)
}

type conflictingStore struct {
	domain.SessionStore
}

func (s *conflictingStore) CompareAndSwap(context.Context, *domain.Session, uint64) error {
	return domain.ErrVersionConflict
}

func TestMutationFailsAfterExhaustedRetries(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	env.engine.store = &conflictingStore{SessionStore: env.store}

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	assert.Equal(t, errors.TypeConflict, errorType(t, err))
}

type vanishingStore struct {
	domain.SessionStore
}

func (s *vanishingStore) CompareAndSwap(context.Context, *domain.Session, uint64) error {
	return domain.ErrSessionNotFound
}

func TestMutationOnSessionDeletedMidFlight(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	// The session vanishes between the read and the conditional write.
	env.engine.store = &vanishingStore{SessionStore: env.store}

	_, err := env.engine.RequestToJoin(context.Background(), created.ID, "bob")
	assert.Equal(t, errors.TypeNotFound, errorType(t, err))
}

func TestListOpen(t *testing.T) {
	env := newTestEnv(t)

	later := validParams()
	later.ScheduledStart = testStart.Add(3 * time.Hour)
	laterView := env.mustCreate(t, "alice", later)

	sooner := validParams()
	sooner.Title = "Databases Cram"
	sooner.Module = "CO2102"
	sooner.ScheduledStart = testStart.Add(time.Hour)
	soonerView := env.mustCreate(t, "bob", sooner)

	full := validParams()
	full.Capacity = 2
	fullView := env.mustCreate(t, "carol", full)
	_, err := env.engine.RequestToJoin(context.Background(), fullView.ID, "dave")
	require.NoError(t, err)
	_, err = env.engine.AcceptRequest(context.Background(), fullView.ID, "carol", "dave")
	require.NoError(t, err)

	t.Run("excludes full, sorts by start", func(t *testing.T) {
		views, err := env.engine.ListOpen(context.Background(), domain.ListFilter{})
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, soonerView.ID, views[0].ID)
		assert.Equal(t, laterView.ID, views[1].ID)
	})

	t.Run("filters by module", func(t *testing.T) {
		views, err := env.engine.ListOpen(context.Background(), domain.ListFilter{Module: "co2102"})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, soonerView.ID, views[0].ID)
	})

	t.Run("excludes sessions past their end", func(t *testing.T) {
		env.clock.Advance(6 * time.Hour)
		views, err := env.engine.ListOpen(context.Background(), domain.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, views)
	})
}

func TestListByCreatorAndJoined(t *testing.T) {
	env := newTestEnv(t)

	mine := env.mustCreate(t, "alice", validParams())
	theirs := env.mustCreate(t, "bob", validParams())

	_, err := env.engine.RequestToJoin(context.Background(), theirs.ID, "alice")
	require.NoError(t, err)
	_, err = env.engine.AcceptRequest(context.Background(), theirs.ID, "bob", "alice")
	require.NoError(t, err)

	created, err := env.engine.ListByCreator(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, mine.ID, created[0].ID)

	joined, err := env.engine.ListJoined(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, theirs.ID, joined[0].ID)
}

func TestListByCreatorIncludesExpired(t *testing.T) {
	env := newTestEnv(t)
	created := env.mustCreate(t, "alice", validParams())

	env.clock.Advance(100 * time.Hour)

	views, err := env.engine.ListByCreator(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, created.ID, views[0].ID)
	assert.Equal(t, domain.StatusExpired, views[0].Status)
}
