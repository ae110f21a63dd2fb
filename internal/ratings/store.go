package ratings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/guiaperfil/guia-api/internal/domain"
	"github.com/guiaperfil/guia-api/internal/gateway"
	"github.com/guiaperfil/guia-api/internal/metrics"
	"github.com/guiaperfil/guia-api/internal/pubsub"
	"github.com/guiaperfil/guia-api/internal/session"
)

// ErrInvalidStars rejects rating values outside 1..5 before any gateway call.
var ErrInvalidStars = errors.New("ratings: stars must be between 1 and 5")

// fallbackAuthor is used when a rating author's display name cannot be resolved.
const fallbackAuthor = "User"

// StatsChange is broadcast whenever a fresh aggregate lands in the cache.
type StatsChange struct {
	AccountID string
	Stats     domain.RatingStats
}

type userKey struct {
	userID    string
	accountID string
}

// Store caches per-account rating aggregates and per-(user, account) ratings.
// Aggregates come precomputed from the gateway and are trusted as-is. Both
// caches are evicted and eagerly reloaded after every successful write, so
// callers never observe stale data after a submit or delete.
type Store struct {
	gw       gateway.Gateway
	sessions session.Provider
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu          sync.Mutex
	stats       map[string]domain.RatingStats
	userRatings map[userKey]*domain.Rating // nil value caches "no rating"

	changes     *pubsub.Broadcaster[StatsChange]
	unsubscribe func()
}

// New constructs the store. The user-rating cache is dropped on identity
// changes; aggregate entries are identity-independent and survive them.
func New(gw gateway.Gateway, sessions session.Provider, logger *log.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		gw:          gw,
		sessions:    sessions,
		logger:      logger,
		metrics:     m,
		stats:       make(map[string]domain.RatingStats),
		userRatings: make(map[userKey]*domain.Rating),
		changes:     pubsub.New[StatsChange](logger),
	}
	s.unsubscribe = sessions.Subscribe(func(session.Change) {
		s.mu.Lock()
		s.userRatings = make(map[userKey]*domain.Rating)
		s.mu.Unlock()
	})
	return s
}

// Close detaches the store from the session provider.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Subscribe registers a listener for aggregate updates.
func (s *Store) Subscribe(fn func(StatsChange)) func() {
	return s.changes.Subscribe(fn)
}

// Stats returns the rating aggregate for an account, read through the cache.
// An account without ratings yields a zero-valued aggregate.
func (s *Store) Stats(ctx context.Context, accountID string) (domain.RatingStats, error) {
	s.mu.Lock()
	if cached, ok := s.stats[accountID]; ok {
		s.mu.Unlock()
		s.metrics.IncCacheHit("stats")
		return cached, nil
	}
	s.mu.Unlock()
	s.metrics.IncCacheMiss("stats")

	stats, err := s.gw.RatingStats(ctx, accountID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			stats = domain.RatingStats{}
		} else {
			return domain.RatingStats{}, fmt.Errorf("ratings: load stats: %w", err)
		}
	}

	s.mu.Lock()
	s.stats[accountID] = stats
	s.mu.Unlock()
	s.changes.Notify(StatsChange{AccountID: accountID, Stats: stats})
	return stats, nil
}

// UserRating returns the signed-in user's rating for an account, or nil if
// there is none. Anonymous sessions resolve to nil without touching the cache,
// since the answer would be wrong as soon as a session starts.
func (s *Store) UserRating(ctx context.Context, accountID string) (*domain.Rating, error) {
	userID, ok := s.sessions.Identity(ctx)
	if !ok {
		return nil, nil
	}

	key := userKey{userID: userID, accountID: accountID}
	s.mu.Lock()
	if cached, ok := s.userRatings[key]; ok {
		s.mu.Unlock()
		s.metrics.IncCacheHit("user_rating")
		return copyRating(cached), nil
	}
	s.mu.Unlock()
	s.metrics.IncCacheMiss("user_rating")

	rating, err := s.gw.UserRating(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			s.mu.Lock()
			s.userRatings[key] = nil
			s.mu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("ratings: load user rating: %w", err)
	}

	s.mu.Lock()
	s.userRatings[key] = &rating
	s.mu.Unlock()
	return copyRating(&rating), nil
}

// List fetches the full rating list for an account, newest first, with author
// display names resolved through a single batched lookup. The list is never
// cached; it is reloaded in full after any mutation.
func (s *Store) List(ctx context.Context, accountID string, limit int) ([]domain.Rating, error) {
	records, err := s.gw.ListRatings(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ratings: list: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	seen := make(map[string]struct{}, len(records))
	userIDs := make([]string, 0, len(records))
	for _, record := range records {
		if _, ok := seen[record.UserID]; ok {
			continue
		}
		seen[record.UserID] = struct{}{}
		userIDs = append(userIDs, record.UserID)
	}

	names, err := s.gw.DisplayNames(ctx, userIDs)
	if err != nil {
		// Missing author names should not block the list itself.
		s.logger.Printf("ratings: resolve display names: %v", err)
		names = nil
	}
	for i := range records {
		if name, ok := names[records[i].UserID]; ok && name != "" {
			records[i].AuthorName = name
		} else {
			records[i].AuthorName = fallbackAuthor
		}
	}
	return records, nil
}

// Submit creates or updates the signed-in user's rating for an account, then
// evicts and eagerly reloads the aggregate, the user rating, and the list so
// there is no stale-read window after the call returns.
func (s *Store) Submit(ctx context.Context, accountID string, stars int, comment *string) error {
	if stars < 1 || stars > 5 {
		return ErrInvalidStars
	}
	userID, ok := s.sessions.Identity(ctx)
	if !ok {
		return session.ErrNotAuthenticated
	}

	_, err := s.gw.UpsertRating(ctx, gateway.UpsertRatingParams{
		UserID:    userID,
		AccountID: accountID,
		Stars:     stars,
		Comment:   comment,
	})
	if err != nil {
		return fmt.Errorf("ratings: submit: %w", err)
	}

	s.metrics.IncRatingsSubmitted()
	s.refresh(ctx, userID, accountID)
	return nil
}

// Delete removes the signed-in user's rating for an account. Deleting a
// rating that does not exist is a no-op success.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	userID, ok := s.sessions.Identity(ctx)
	if !ok {
		return session.ErrNotAuthenticated
	}

	if err := s.gw.DeleteRating(ctx, userID, accountID); err != nil {
		return fmt.Errorf("ratings: delete: %w", err)
	}

	s.metrics.IncRatingsDeleted()
	s.refresh(ctx, userID, accountID)
	return nil
}

// refresh evicts both cache entries for the account and reloads them along
// with the rating list. Reload failures only leave the entries evicted, so
// the next read fetches fresh data anyway.
func (s *Store) refresh(ctx context.Context, userID, accountID string) {
	s.mu.Lock()
	delete(s.stats, accountID)
	delete(s.userRatings, userKey{userID: userID, accountID: accountID})
	s.mu.Unlock()

	if _, err := s.Stats(ctx, accountID); err != nil {
		s.logger.Printf("ratings: reload stats for %s: %v", accountID, err)
	}
	if _, err := s.UserRating(ctx, accountID); err != nil {
		s.logger.Printf("ratings: reload user rating for %s: %v", accountID, err)
	}
	if _, err := s.List(ctx, accountID, 0); err != nil {
		s.logger.Printf("ratings: reload list for %s: %v", accountID, err)
	}
}

func copyRating(r *domain.Rating) *domain.Rating {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Comment != nil {
		comment := *r.Comment
		clone.Comment = &comment
	}
	return &clone
}
