package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guiaperfil/guia-api/internal/domain"
	"github.com/guiaperfil/guia-api/internal/ratings"
	"github.com/guiaperfil/guia-api/internal/repository"
	"github.com/guiaperfil/guia-api/internal/session"
)

type ratingSubmitRequest struct {
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ratingStatsResponse struct {
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int64   `json:"totalRatings"`
	Rating1       int64   `json:"rating1"`
	Rating2       int64   `json:"rating2"`
	Rating3       int64   `json:"rating3"`
	Rating4       int64   `json:"rating4"`
	Rating5       int64   `json:"rating5"`
}

func (s *Server) handleRatingStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	stats, err := s.ratings.Stats(r.Context(), accountID)
	if err != nil {
		// A profile with an unreachable aggregate shows "no ratings yet"
		// rather than an error.
		s.logger.Printf("rating stats for %s degraded to empty: %v", accountID, err)
		stats = domain.RatingStats{}
	}
	s.respondJSON(w, http.StatusOK, toStatsResponse(stats))
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	limit := 0
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed < 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = parsed
	}

	list, err := s.ratings.List(r.Context(), accountID, limit)
	if err != nil {
		s.logger.Printf("list ratings error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list ratings")
		return
	}

	items := make([]ratingResponse, 0, len(list))
	for _, rating := range list {
		items = append(items, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if !s.accountExists(w, r, accountID) {
		return
	}

	var req ratingSubmitRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	err := s.ratings.Submit(r.Context(), accountID, req.Rating, normalizeStringPtr(req.Comment))
	if err != nil {
		switch {
		case errors.Is(err, ratings.ErrInvalidStars):
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating must be an integer between 1 and 5")
		case errors.Is(err, session.ErrNotAuthenticated):
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		default:
			s.logger.Printf("submit rating error: %v", err)
			s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit rating")
		}
		return
	}

	rating, err := s.ratings.UserRating(r.Context(), accountID)
	if err != nil || rating == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(*rating))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	if err := s.ratings.Delete(r.Context(), accountID); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
			return
		}
		s.logger.Printf("delete rating error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete rating")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUserRating(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	rating, err := s.ratings.UserRating(r.Context(), accountID)
	if err != nil {
		s.logger.Printf("get user rating error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch rating")
		return
	}
	if rating == nil {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(*rating))
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	ids, err := s.gw.ListFavorites(r.Context(), s.identity(r))
	if err != nil {
		s.logger.Printf("list favorites error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list favorites")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.respondJSON(w, http.StatusOK, ids)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !s.accountExists(w, r, accountID) {
		return
	}

	if err := s.gw.InsertFavorite(r.Context(), s.identity(r), accountID); err != nil {
		s.logger.Printf("add favorite error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to add favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := s.gw.DeleteFavorite(r.Context(), s.identity(r), accountID); err != nil {
		s.logger.Printf("remove favorite error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountExists guards rating/favorite writes against unknown account ids.
func (s *Server) accountExists(w http.ResponseWriter, r *http.Request, accountID string) bool {
	_, err := s.repo.Accounts.GetByID(r.Context(), accountID)
	if err == nil {
		return true
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return false
	}
	s.logger.Printf("account lookup error: %v", err)
	s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process request")
	return false
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        rating.ID,
		AccountID: rating.AccountID,
		Rating:    rating.Stars,
		Comment:   rating.Comment,
		Author:    rating.AuthorName,
		CreatedAt: rating.CreatedAt,
		UpdatedAt: rating.UpdatedAt,
	}
}

func toStatsResponse(stats domain.RatingStats) ratingStatsResponse {
	return ratingStatsResponse{
		AverageRating: stats.Average,
		TotalRatings:  stats.Total,
		Rating1:       stats.Count(1),
		Rating2:       stats.Count(2),
		Rating3:       stats.Count(3),
		Rating4:       stats.Count(4),
		Rating5:       stats.Count(5),
	}
}
