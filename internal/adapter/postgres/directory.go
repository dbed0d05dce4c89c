package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/studysync/internal/domain"
)

// DirectoryRepo implements domain.Directory backed by the profiles table.
type DirectoryRepo struct {
	pool *pgxpool.Pool
}

func NewDirectoryRepo(pool *pgxpool.Pool) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

func (r *DirectoryRepo) DisplayNameOf(ctx context.Context, userID string) (string, error) {
	var displayName string
	err := r.pool.QueryRow(ctx, `
		SELECT display_name
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&displayName)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up profile: %w", err)
	}

	return displayName, nil
}

// UpsertProfile records or refreshes a user's display name. Called by the
// upstream auth integration whenever a user authenticates.
func (r *DirectoryRepo) UpsertProfile(ctx context.Context, userID, displayName string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			updated_at = NOW()
	`, userID, displayName)

	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
