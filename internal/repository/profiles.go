package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// ProfilesRepository provides persistence helpers for user profiles.
type ProfilesRepository struct {
	pool *pgxpool.Pool
}

const profileColumns = `id, display_name, is_admin, created_at`

// Upsert creates a user profile or refreshes its display name. Called when a
// user first signs in through the auth provider.
func (r *ProfilesRepository) Upsert(ctx context.Context, id, displayName string) (domain.UserProfile, error) {
	query := fmt.Sprintf(`
        INSERT INTO users_profiles (id, display_name)
        VALUES ($1,$2)
        ON CONFLICT (id)
        DO UPDATE SET display_name = EXCLUDED.display_name
        RETURNING %s
    `, profileColumns)

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id, displayName))
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// GetByID fetches a user profile.
func (r *ProfilesRepository) GetByID(ctx context.Context, id string) (domain.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM users_profiles WHERE id = $1`, profileColumns)

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, ErrNotFound
		}
		return domain.UserProfile{}, err
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (domain.UserProfile, error) {
	var profile domain.UserProfile
	err := row.Scan(&profile.ID, &profile.DisplayName, &profile.IsAdmin, &profile.CreatedAt)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}
