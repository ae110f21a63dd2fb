package gateway

import (
	"context"
	"errors"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// ErrNotFound indicates the requested entity does not exist upstream.
var ErrNotFound = errors.New("gateway: not found")

// UpsertRatingParams captures the payload required to create or update a rating.
type UpsertRatingParams struct {
	UserID    string
	AccountID string
	Stars     int
	Comment   *string
}

// Gateway is the remote persistence boundary the shared stores depend on.
// Implementations return typed results; callers never handle raw payloads.
type Gateway interface {
	// ListFavorites returns every account id the user has favorited.
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	// InsertFavorite records a favorite. Inserting an existing pair is an error.
	InsertFavorite(ctx context.Context, userID, accountID string) error
	// DeleteFavorite removes a favorite. Removing an absent pair is a no-op.
	DeleteFavorite(ctx context.Context, userID, accountID string) error

	// RatingStats returns the precomputed aggregate for an account. An account
	// with no ratings yields a zero-valued aggregate, not ErrNotFound.
	RatingStats(ctx context.Context, accountID string) (domain.RatingStats, error)
	// UserRating returns the user's rating for an account, or ErrNotFound.
	UserRating(ctx context.Context, userID, accountID string) (domain.Rating, error)
	// ListRatings returns ratings for an account, newest first. Author display
	// names are not resolved; callers batch that through DisplayNames.
	ListRatings(ctx context.Context, accountID string, limit int) ([]domain.Rating, error)
	// UpsertRating creates the user's rating or replaces an existing one.
	UpsertRating(ctx context.Context, params UpsertRatingParams) (domain.Rating, error)
	// DeleteRating removes the user's rating. Absent rows are a no-op.
	DeleteRating(ctx context.Context, userID, accountID string) error

	// DisplayNames resolves display names for a batch of user ids. Unknown ids
	// are simply missing from the result map.
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}
