package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guiaperfil/guia-api/internal/domain"
)

func newTestREST(t *testing.T, handler http.Handler) *REST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewREST(srv.URL, "test-api-key", 3*time.Second, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return g
}

func TestRESTListFavoritesFiltersAndAuth(t *testing.T) {
	var captured *http.Request
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"account_id":"acc-1"},{"account_id":"acc-2"}]`))
	}))

	ids, err := g.ListFavorites(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{"acc-1", "acc-2"}, ids)

	require.NotNil(t, captured)
	require.Equal(t, "/favorites", captured.URL.Path)
	require.Equal(t, "eq.user-1", captured.URL.Query().Get("user_id"))
	require.Equal(t, "account_id", captured.URL.Query().Get("select"))
	require.Equal(t, "test-api-key", captured.Header.Get("apikey"))
	require.Equal(t, "Bearer test-api-key", captured.Header.Get("Authorization"))
}

func TestRESTRatingStatsRPC(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		// The procedure's single row arrives as a one-element array.
		_, _ = w.Write([]byte(`[{"average_rating":4.5,"total_ratings":2,"rating_4":1,"rating_5":1}]`))
	}))

	stats, err := g.RatingStats(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/rpc/get_rating_stats", gotPath)
	require.Equal(t, "acc-1", gotBody["account_uuid"])
	require.Equal(t, 4.5, stats.Average)
	require.EqualValues(t, 2, stats.Total)
	require.EqualValues(t, 1, stats.Count(4))
	require.EqualValues(t, 1, stats.Count(5))
	require.EqualValues(t, 0, stats.Count(1))
}

func TestRESTRatingStatsEmptyResult(t *testing.T) {
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))

	stats, err := g.RatingStats(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, domain.RatingStats{}, stats)
}

func TestRESTUserRatingNotFound(t *testing.T) {
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))

	_, err := g.UserRating(context.Background(), "user-1", "acc-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRESTUpsertRatingMergesDuplicates(t *testing.T) {
	var gotPrefer string
	var gotBody map[string]any
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"r-1","account_id":"acc-1","user_id":"user-1","rating":5,"comment":null,"created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-01T10:00:00Z"}]`))
	}))

	rating, err := g.UpsertRating(context.Background(), UpsertRatingParams{
		UserID:    "user-1",
		AccountID: "acc-1",
		Stars:     5,
	})
	require.NoError(t, err)
	require.Equal(t, "resolution=merge-duplicates,return=representation", gotPrefer)
	require.Equal(t, float64(5), gotBody["rating"])
	require.Equal(t, "r-1", rating.ID)
	require.Equal(t, 5, rating.Stars)
	require.Nil(t, rating.Comment)
}

func TestRESTDisplayNamesBatchesWithInFilter(t *testing.T) {
	var captured *http.Request
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"u1","display_name":"Maria"},{"id":"u2","display_name":"Jo"}]`))
	}))

	names, err := g.DisplayNames(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"u1": "Maria", "u2": "Jo"}, names)

	require.NotNil(t, captured)
	require.Equal(t, "/users_profiles", captured.URL.Path)
	require.Equal(t, "in.(u1,u2)", captured.URL.Query().Get("id"))
}

func TestRESTDisplayNamesEmptyInputSkipsRequest(t *testing.T) {
	var requests int
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))

	names, err := g.DisplayNames(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, names)
	require.Zero(t, requests, "no request expected for an empty id list")
}

func TestRESTErrorStatuses(t *testing.T) {
	g := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ratings":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	_, err := g.ListRatings(context.Background(), "acc-1", 0)
	require.ErrorIs(t, err, ErrNotFound)

	err = g.InsertFavorite(context.Background(), "user-1", "acc-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

// TestRESTGatewaySmoke exercises the client against a live hosted backend when
// one is configured; CI runs without it.
func TestRESTGatewaySmoke(t *testing.T) {
	baseURL := os.Getenv("GATEWAY_URL")
	if baseURL == "" {
		t.Skip("GATEWAY_URL not provided")
	}
	apiKey := os.Getenv("GATEWAY_API_KEY")
	g, err := NewREST(baseURL, apiKey, 3*time.Second, log.New(io.Discard, "", 0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = g.DisplayNames(ctx, []string{"00000000-0000-0000-0000-000000000000"})
	require.NoError(t, err)
}
