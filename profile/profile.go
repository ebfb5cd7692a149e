// Package profile reads profile records for authenticated principals.
package profile

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/fieldware/sessiongate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Store implements sessiongate.ProfileStore over a bun database.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the profiles table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*sessiongate.Profile)(nil)).IfNotExists().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create profiles table")
	}
	return nil
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*sessiongate.Profile, error) {
	record := new(sessiongate.Profile)

	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, sessiongate.ErrProfileNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch profile").
			WithTextCode(sessiongate.TextCodeStorageError)
	}

	return record, nil
}

// Upsert writes a profile row, replacing an existing one for the same user.
// The gateway creates a row at registration time so the profile route has
// something to return.
func (s *Store) Upsert(ctx context.Context, record *sessiongate.Profile) error {
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("bio = EXCLUDED.bio").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to save profile").
			WithTextCode(sessiongate.TextCodeStorageError)
	}

	return nil
}
