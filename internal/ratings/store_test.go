package ratings

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/guiaperfil/guia-api/internal/domain"
	"github.com/guiaperfil/guia-api/internal/gateway"
	"github.com/guiaperfil/guia-api/internal/session"
)

type ratingRecordKey struct {
	userID    string
	accountID string
}

// fakeGateway stores ratings in memory and recomputes aggregates on demand,
// so cache invalidation tests observe genuinely fresh numbers.
type fakeGateway struct {
	mu      sync.Mutex
	ratings map[ratingRecordKey]domain.Rating
	names   map[string]string

	statsCalls      int
	userRatingCalls int
	listCalls       int
	namesCalls      int
	upsertCalls     int
	deleteCalls     int

	upsertErr error
	namesErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		ratings: make(map[ratingRecordKey]domain.Rating),
		names:   make(map[string]string),
	}
}

func (g *fakeGateway) RatingStats(ctx context.Context, accountID string) (domain.RatingStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statsCalls++

	var stats domain.RatingStats
	var sum int64
	for key, rating := range g.ratings {
		if key.accountID != accountID {
			continue
		}
		stats.Total++
		sum += int64(rating.Stars)
		stats.CountByStar[rating.Stars-1]++
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

func (g *fakeGateway) UserRating(ctx context.Context, userID, accountID string) (domain.Rating, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userRatingCalls++

	rating, ok := g.ratings[ratingRecordKey{userID: userID, accountID: accountID}]
	if !ok {
		return domain.Rating{}, gateway.ErrNotFound
	}
	return rating, nil
}

func (g *fakeGateway) ListRatings(ctx context.Context, accountID string, limit int) ([]domain.Rating, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++

	var list []domain.Rating
	for key, rating := range g.ratings {
		if key.accountID == accountID {
			list = append(list, rating)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (g *fakeGateway) UpsertRating(ctx context.Context, params gateway.UpsertRatingParams) (domain.Rating, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsertCalls++
	if g.upsertErr != nil {
		return domain.Rating{}, g.upsertErr
	}

	key := ratingRecordKey{userID: params.UserID, accountID: params.AccountID}
	now := time.Now()
	rating, ok := g.ratings[key]
	if !ok {
		rating = domain.Rating{
			ID:        uuid.NewString(),
			AccountID: params.AccountID,
			UserID:    params.UserID,
			CreatedAt: now,
		}
	}
	rating.Stars = params.Stars
	rating.Comment = params.Comment
	rating.UpdatedAt = now
	g.ratings[key] = rating
	return rating, nil
}

func (g *fakeGateway) DeleteRating(ctx context.Context, userID, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	delete(g.ratings, ratingRecordKey{userID: userID, accountID: accountID})
	return nil
}

func (g *fakeGateway) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.namesCalls++
	if g.namesErr != nil {
		return nil, g.namesErr
	}

	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := g.names[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (g *fakeGateway) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (g *fakeGateway) InsertFavorite(ctx context.Context, userID, accountID string) error {
	return nil
}

func (g *fakeGateway) DeleteFavorite(ctx context.Context, userID, accountID string) error {
	return nil
}

type RatingsStoreSuite struct {
	suite.Suite
	ctx       context.Context
	gw        *fakeGateway
	store     *Store
	userID    string
	accountID string
}

func (s *RatingsStoreSuite) SetupTest() {
	s.userID = uuid.NewString()
	s.accountID = uuid.NewString()
	s.ctx = session.WithIdentity(context.Background(), s.userID)
	s.gw = newFakeGateway()
	s.store = New(s.gw, session.ContextProvider{}, log.New(io.Discard, "", 0), nil)
}

func (s *RatingsStoreSuite) TearDownTest() {
	s.store.Close()
}

func TestRatingsStoreSuite(t *testing.T) {
	suite.Run(t, new(RatingsStoreSuite))
}

func (s *RatingsStoreSuite) TestStatsReadThroughCache() {
	first, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(domain.RatingStats{}, first)

	_, err = s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(1, s.gw.statsCalls, "second read must come from the cache")
}

func (s *RatingsStoreSuite) TestSubmitRejectsInvalidStars() {
	for _, stars := range []int{0, 6, -1} {
		err := s.store.Submit(s.ctx, s.accountID, stars, nil)
		s.Require().ErrorIs(err, ErrInvalidStars)
	}
	s.Equal(0, s.gw.upsertCalls, "invalid input must not reach the gateway")
	s.Equal(0, s.gw.statsCalls, "invalid input must not disturb the caches")
}

func (s *RatingsStoreSuite) TestSubmitRequiresAuthentication() {
	err := s.store.Submit(context.Background(), s.accountID, 4, nil)
	s.Require().ErrorIs(err, session.ErrNotAuthenticated)
	s.Equal(0, s.gw.upsertCalls)
}

func (s *RatingsStoreSuite) TestSubmitRefreshesCachedAggregate() {
	stats, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().EqualValues(0, stats.Total)

	comment := "great service"
	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 4, &comment))

	// The pre-submit aggregate was cached; the refreshed value must still win.
	stats, err = s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(4.0, stats.Average)
	s.EqualValues(1, stats.Total)
	s.EqualValues(1, stats.Count(4))

	rating, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().NotNil(rating)
	s.Equal(4, rating.Stars)
	s.Require().NotNil(rating.Comment)
	s.Equal(comment, *rating.Comment)
}

func (s *RatingsStoreSuite) TestSubmitFailureLeavesCachesUntouched() {
	_, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	rating, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().Nil(rating)

	s.gw.upsertErr = errors.New("row level security violation")
	err = s.store.Submit(s.ctx, s.accountID, 4, nil)
	s.Require().Error(err)
	s.Equal(1, s.gw.upsertCalls)

	// Both entries must still be served from the cache, not refetched.
	stats, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(domain.RatingStats{}, stats)
	rating, err = s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Nil(rating)
	s.Equal(1, s.gw.statsCalls, "failed submit must not evict the stats cache")
	s.Equal(1, s.gw.userRatingCalls, "failed submit must not evict the user-rating cache")
}

func (s *RatingsStoreSuite) TestResubmitUpdatesExistingRating() {
	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 4, nil))

	first, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 2, nil))

	second, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().NotNil(second)
	s.Equal(first.ID, second.ID, "resubmission updates, never duplicates")
	s.Equal(2, second.Stars)

	stats, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(2.0, stats.Average)
	s.EqualValues(1, stats.Total)
	s.EqualValues(1, stats.Count(2))
	s.EqualValues(0, stats.Count(4))
}

func (s *RatingsStoreSuite) TestDeleteIsIdempotent() {
	s.Require().NoError(s.store.Delete(s.ctx, s.accountID), "deleting a missing rating succeeds")

	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 5, nil))
	s.Require().NoError(s.store.Delete(s.ctx, s.accountID))
	s.Require().NoError(s.store.Delete(s.ctx, s.accountID))

	rating, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Nil(rating)

	stats, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.EqualValues(0, stats.Total)
}

func (s *RatingsStoreSuite) TestUserRatingCachesExplicitNone() {
	rating, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Nil(rating)

	rating, err = s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Nil(rating)
	s.Equal(1, s.gw.userRatingCalls, `"no rating" is a cacheable answer`)
}

func (s *RatingsStoreSuite) TestAnonymousUserRatingIsNeverCached() {
	rating, err := s.store.UserRating(context.Background(), s.accountID)
	s.Require().NoError(err)
	s.Nil(rating)
	s.Equal(0, s.gw.userRatingCalls, "anonymous lookups skip gateway and cache")

	// Signing in right after must see the real rating, not a memoized nil.
	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 3, nil))
	got, err := s.store.UserRating(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(3, got.Stars)
}

func (s *RatingsStoreSuite) TestListResolvesNamesInOneBatch() {
	other := uuid.NewString()
	s.gw.names[s.userID] = "Maria"
	// No entry for `other`: the list falls back to a generic author name.

	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 5, nil))
	otherCtx := session.WithIdentity(context.Background(), other)
	s.Require().NoError(s.store.Submit(otherCtx, s.accountID, 3, nil))

	s.gw.namesCalls = 0
	list, err := s.store.List(s.ctx, s.accountID, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(1, s.gw.namesCalls, "author names resolve through one batched lookup")

	byUser := make(map[string]string, len(list))
	for _, rating := range list {
		byUser[rating.UserID] = rating.AuthorName
	}
	s.Equal("Maria", byUser[s.userID])
	s.Equal(fallbackAuthor, byUser[other])
}

func (s *RatingsStoreSuite) TestListSurvivesNameLookupFailure() {
	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 5, nil))
	s.gw.namesErr = errors.New("profiles table unavailable")

	list, err := s.store.List(s.ctx, s.accountID, 0)
	s.Require().NoError(err, "missing author names must not fail the list")
	s.Require().Len(list, 1)
	s.Equal(fallbackAuthor, list[0].AuthorName)
}

func (s *RatingsStoreSuite) TestStatsChangeNotifications() {
	var changes []StatsChange
	unsubscribe := s.store.Subscribe(func(c StatsChange) { changes = append(changes, c) })
	defer unsubscribe()

	_, err := s.store.Stats(s.ctx, s.accountID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Submit(s.ctx, s.accountID, 5, nil))

	s.Require().NotEmpty(changes)
	last := changes[len(changes)-1]
	s.Equal(s.accountID, last.AccountID)
	s.EqualValues(1, last.Stats.Total)
	s.Equal(5.0, last.Stats.Average)
}
