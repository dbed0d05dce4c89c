// Package redisstore implements domain.SessionStore on Redis. Each session
// is a hash session:{id} holding the JSON document plus a version token;
// conditional writes go through Lua scripts so the version check and the
// write commit atomically.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/studysync/internal/domain"
)

const (
	fieldData    = "data"
	fieldVersion = "version"

	scanPattern = "session:*"
	scanCount   = 100
)

type Store struct {
	rdb *goredis.Client
}

func New(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewClient creates a go-redis client from a URL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(newCircuitBreakerHook())

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Session, uint64, error) {
	vals, err := s.rdb.HMGet(ctx, sessionKey(id), fieldData, fieldVersion).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read session: %w", err)
	}

	data, dataOK := vals[0].(string)
	versionStr, versionOK := vals[1].(string)
	if !dataOK || !versionOK {
		return nil, 0, domain.ErrSessionNotFound
	}

	session, err := decodeSession(data)
	if err != nil {
		return nil, 0, err
	}

	version, err := strconv.ParseUint(versionStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad version %q: %v", domain.ErrCorruptRecord, versionStr, err)
	}

	return session, version, nil
}

func (s *Store) CreateIfAbsent(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := createIfAbsentScript.Run(ctx, s.rdb, []string{sessionKey(session.ID)}, string(data)).Int()
	if err != nil {
		return fmt.Errorf("create script failed: %w", err)
	}
	if created == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, session *domain.Session, version uint64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	result, err := compareAndSwapScript.Run(ctx, s.rdb, []string{sessionKey(session.ID)},
		strconv.FormatUint(version, 10),
		string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("compare-and-swap script failed: %w", err)
	}

	switch result {
	case -1:
		return domain.ErrSessionNotFound
	case 0:
		return domain.ErrVersionConflict
	default:
		return nil
	}
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Scan walks all session keys. Corrupt or vanished records are logged and
// skipped so callers iterating the whole keyspace never abort on one
// bad document.
func (s *Store) Scan(ctx context.Context) ([]*domain.Session, error) {
	var sessions []*domain.Session
	var cursor uint64

	for {
		select {
		case <-ctx.Done():
			return sessions, fmt.Errorf("scan cancelled after %d sessions: %w", len(sessions), ctx.Err())
		default:
		}

		keys, nextCursor, err := s.rdb.Scan(ctx, cursor, scanPattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			session, ok := s.readForScan(ctx, key)
			if ok {
				sessions = append(sessions, session)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

func (s *Store) readForScan(ctx context.Context, key string) (*domain.Session, bool) {
	data, err := s.rdb.HGet(ctx, key, fieldData).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Error("Scan: failed to read key", "key", key, "error", err)
		}
		return nil, false
	}

	session, err := decodeSession(data)
	if err != nil {
		slog.Warn("Scan: skipping corrupt session record", "key", key, "error", err)
		return nil, false
	}
	return session, true
}

// decodeSession maps a stored JSON document into a typed Session. Invalid or
// missing fields surface as ErrCorruptRecord rather than silent defaults.
func decodeSession(data string) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptRecord, err)
	}
	if session.ID == uuid.Nil || session.CreatorID == "" || session.Capacity <= 0 {
		return nil, fmt.Errorf("%w: missing required fields", domain.ErrCorruptRecord)
	}
	return &session, nil
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}
