package directory

import (
	"context"
	"fmt"
)

// Upserter writes a profile record to the backing directory.
type Upserter interface {
	UpsertProfile(ctx context.Context, userID, displayName string) error
}

// Profiles records display name updates and keeps the lookup cache honest.
type Profiles struct {
	upserter Upserter
	cache    *CachedDirectory
}

func NewProfiles(upserter Upserter, cache *CachedDirectory) *Profiles {
	return &Profiles{upserter: upserter, cache: cache}
}

func (p *Profiles) UpsertProfile(ctx context.Context, userID, displayName string) error {
	if err := p.upserter.UpsertProfile(ctx, userID, displayName); err != nil {
		return fmt.Errorf("failed to record profile: %w", err)
	}

	p.cache.Invalidate(userID)
	return nil
}
