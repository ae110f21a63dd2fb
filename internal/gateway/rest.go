package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guiaperfil/guia-api/internal/domain"
)

// REST implements Gateway against a PostgREST-style hosted backend, the
// service the directory originally delegated its persistence to. Row-level
// security upstream scopes every call to the authenticated user.
type REST struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *log.Logger
}

// NewREST constructs an HTTP-backed gateway.
func NewREST(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) (*REST, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	return &REST{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

type favoriteRow struct {
	AccountID string `json:"account_id"`
}

type favoriteInsert struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
}

type statsRow struct {
	AverageRating float64 `json:"average_rating"`
	TotalRatings  int64   `json:"total_ratings"`
	Rating1       int64   `json:"rating_1"`
	Rating2       int64   `json:"rating_2"`
	Rating3       int64   `json:"rating_3"`
	Rating4       int64   `json:"rating_4"`
	Rating5       int64   `json:"rating_5"`
}

type ratingRow struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	UserID    string    `json:"user_id"`
	Stars     int       `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ratingUpsert struct {
	UserID    string  `json:"user_id"`
	AccountID string  `json:"account_id"`
	Stars     int     `json:"rating"`
	Comment   *string `json:"comment"`
}

type profileRow struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type statsRPCRequest struct {
	AccountID string `json:"account_uuid"`
}

// ListFavorites implements Gateway.
func (g *REST) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "account_id")
	query.Set("user_id", "eq."+userID)

	var rows []favoriteRow
	if err := g.do(ctx, http.MethodGet, "/favorites", query, nil, "", &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AccountID)
	}
	return ids, nil
}

// InsertFavorite implements Gateway.
func (g *REST) InsertFavorite(ctx context.Context, userID, accountID string) error {
	payload := favoriteInsert{UserID: userID, AccountID: accountID}
	return g.do(ctx, http.MethodPost, "/favorites", nil, payload, "", nil)
}

// DeleteFavorite implements Gateway.
func (g *REST) DeleteFavorite(ctx context.Context, userID, accountID string) error {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("account_id", "eq."+accountID)
	return g.do(ctx, http.MethodDelete, "/favorites", query, nil, "", nil)
}

// RatingStats calls the upstream aggregate procedure. The RPC returns its
// single row as a one-element array; an empty result is the zero aggregate.
func (g *REST) RatingStats(ctx context.Context, accountID string) (domain.RatingStats, error) {
	var rows []statsRow
	err := g.do(ctx, http.MethodPost, "/rpc/get_rating_stats", nil, statsRPCRequest{AccountID: accountID}, "", &rows)
	if err != nil {
		return domain.RatingStats{}, err
	}
	if len(rows) == 0 {
		return domain.RatingStats{}, nil
	}
	row := rows[0]
	return domain.RatingStats{
		Average: row.AverageRating,
		Total:   row.TotalRatings,
		CountByStar: [5]int64{
			row.Rating1, row.Rating2, row.Rating3, row.Rating4, row.Rating5,
		},
	}, nil
}

// UserRating implements Gateway.
func (g *REST) UserRating(ctx context.Context, userID, accountID string) (domain.Rating, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("account_id", "eq."+accountID)
	query.Set("limit", "1")

	var rows []ratingRow
	if err := g.do(ctx, http.MethodGet, "/ratings", query, nil, "", &rows); err != nil {
		return domain.Rating{}, err
	}
	if len(rows) == 0 {
		return domain.Rating{}, ErrNotFound
	}
	return rows[0].toDomain(), nil
}

// ListRatings implements Gateway.
func (g *REST) ListRatings(ctx context.Context, accountID string, limit int) ([]domain.Rating, error) {
	query := url.Values{}
	query.Set("account_id", "eq."+accountID)
	query.Set("order", "created_at.desc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var rows []ratingRow
	if err := g.do(ctx, http.MethodGet, "/ratings", query, nil, "", &rows); err != nil {
		return nil, err
	}
	ratings := make([]domain.Rating, 0, len(rows))
	for _, row := range rows {
		ratings = append(ratings, row.toDomain())
	}
	return ratings, nil
}

// UpsertRating implements Gateway. The upstream merges on the
// (user_id, account_id) unique constraint.
func (g *REST) UpsertRating(ctx context.Context, params UpsertRatingParams) (domain.Rating, error) {
	payload := ratingUpsert{
		UserID:    params.UserID,
		AccountID: params.AccountID,
		Stars:     params.Stars,
		Comment:   params.Comment,
	}

	var rows []ratingRow
	prefer := "resolution=merge-duplicates,return=representation"
	if err := g.do(ctx, http.MethodPost, "/ratings", nil, payload, prefer, &rows); err != nil {
		return domain.Rating{}, err
	}
	if len(rows) == 0 {
		return domain.Rating{}, fmt.Errorf("gateway: upsert returned no representation")
	}
	return rows[0].toDomain(), nil
}

// DeleteRating implements Gateway.
func (g *REST) DeleteRating(ctx context.Context, userID, accountID string) error {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("account_id", "eq."+accountID)
	return g.do(ctx, http.MethodDelete, "/ratings", query, nil, "", nil)
}

// DisplayNames resolves all author names with a single in-filtered request.
func (g *REST) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	query := url.Values{}
	query.Set("select", "id,display_name")
	query.Set("id", "in.("+strings.Join(userIDs, ",")+")")

	var rows []profileRow
	if err := g.do(ctx, http.MethodGet, "/users_profiles", query, nil, "", &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.DisplayName
	}
	return names, nil
}

func (g *REST) do(ctx context.Context, method, path string, query url.Values, payload interface{}, prefer string, out interface{}) error {
	rel := &url.URL{Path: path}
	if query != nil {
		rel.RawQuery = query.Encode()
	}
	endpoint := g.baseURL.ResolveReference(rel)

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode gateway payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		g.logger.Printf("gateway: %s %s returned %d", method, path, resp.StatusCode)
		return fmt.Errorf("gateway: upstream returned %d", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func (r ratingRow) toDomain() domain.Rating {
	return domain.Rating{
		ID:        r.ID,
		AccountID: r.AccountID,
		UserID:    r.UserID,
		Stars:     r.Stars,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
