package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// Postgres implements Gateway directly against the application database.
// This is the self-hosted deployment path; hosted deployments use the REST
// client instead.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed gateway from a pgx pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ListFavorites returns every account id the user has favorited.
func (g *Postgres) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT account_id FROM favorites WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := g.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// InsertFavorite records a favorite pair.
func (g *Postgres) InsertFavorite(ctx context.Context, userID, accountID string) error {
	const query = `INSERT INTO favorites (user_id, account_id) VALUES ($1, $2)`
	if _, err := g.pool.Exec(ctx, query, userID, accountID); err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// DeleteFavorite removes a favorite pair. Absent pairs are a no-op.
func (g *Postgres) DeleteFavorite(ctx context.Context, userID, accountID string) error {
	const query = `DELETE FROM favorites WHERE user_id = $1 AND account_id = $2`
	if _, err := g.pool.Exec(ctx, query, userID, accountID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// RatingStats computes the aggregate for an account in a single query. The
// zero aggregate is a valid result for accounts without ratings.
func (g *Postgres) RatingStats(ctx context.Context, accountID string) (domain.RatingStats, error) {
	const query = `
        SELECT COALESCE(ROUND(AVG(stars)::numeric, 2), 0)::float8 AS average,
               COUNT(*)::int8 AS total,
               COUNT(*) FILTER (WHERE stars = 1)::int8,
               COUNT(*) FILTER (WHERE stars = 2)::int8,
               COUNT(*) FILTER (WHERE stars = 3)::int8,
               COUNT(*) FILTER (WHERE stars = 4)::int8,
               COUNT(*) FILTER (WHERE stars = 5)::int8
        FROM ratings
        WHERE account_id = $1
    `

	var stats domain.RatingStats
	err := g.pool.QueryRow(ctx, query, accountID).Scan(
		&stats.Average,
		&stats.Total,
		&stats.CountByStar[0],
		&stats.CountByStar[1],
		&stats.CountByStar[2],
		&stats.CountByStar[3],
		&stats.CountByStar[4],
	)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("rating stats: %w", err)
	}
	return stats, nil
}

const ratingColumns = `id, account_id, user_id, stars, comment, created_at, updated_at`

// UserRating retrieves one user's rating for an account.
func (g *Postgres) UserRating(ctx context.Context, userID, accountID string) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE user_id = $1 AND account_id = $2`, ratingColumns)

	rating, err := scanRating(g.pool.QueryRow(ctx, query, userID, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// ListRatings returns ratings for an account, newest first.
func (g *Postgres) ListRatings(ctx context.Context, accountID string, limit int) ([]domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE account_id = $1 ORDER BY created_at DESC`, ratingColumns)
	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}

// UpsertRating inserts or replaces the user's rating for an account.
func (g *Postgres) UpsertRating(ctx context.Context, params UpsertRatingParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        INSERT INTO ratings (user_id, account_id, stars, comment)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, account_id)
        DO UPDATE SET stars = EXCLUDED.stars, comment = EXCLUDED.comment, updated_at = now()
        RETURNING %s
    `, ratingColumns)

	rating, err := scanRating(g.pool.QueryRow(ctx, query, params.UserID, params.AccountID, params.Stars, params.Comment))
	if err != nil {
		return domain.Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

// DeleteRating removes the user's rating. Absent rows are a no-op.
func (g *Postgres) DeleteRating(ctx context.Context, userID, accountID string) error {
	const query = `DELETE FROM ratings WHERE user_id = $1 AND account_id = $2`
	if _, err := g.pool.Exec(ctx, query, userID, accountID); err != nil {
		return fmt.Errorf("delete rating: %w", err)
	}
	return nil
}

// DisplayNames resolves display names for a batch of user ids in one query.
func (g *Postgres) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	const query = `SELECT id, display_name FROM users_profiles WHERE id = ANY($1)`
	rows, err := g.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.AccountID,
		&rating.UserID,
		&rating.Stars,
		&rating.Comment,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}
