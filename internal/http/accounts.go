package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guiaperfil/guia-api/internal/domain"
	"github.com/guiaperfil/guia-api/internal/repository"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type accountCreateRequest struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Username    *string  `json:"username"`
	ProfileURL  string   `json:"profileUrl"`
	Description *string  `json:"description"`
	CategoryIDs []string `json:"categoryIds"`
}

type accountUpdateRequest struct {
	Name        string   `json:"name"`
	Username    *string  `json:"username"`
	ProfileURL  string   `json:"profileUrl"`
	Description *string  `json:"description"`
	CategoryIDs []string `json:"categoryIds"`
}

type accountListResponse struct {
	Items      []accountResponse `json:"items"`
	NextCursor *string           `json:"nextCursor,omitempty"`
}

type accountResponse struct {
	ID          string             `json:"id"`
	OwnerID     string             `json:"ownerId"`
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Username    *string            `json:"username,omitempty"`
	ProfileURL  string             `json:"profileUrl"`
	Description *string            `json:"description,omitempty"`
	Categories  []categoryResponse `json:"categories"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type categoryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type categoryCreateRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	filters, err := buildAccountFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Accounts.List(r.Context(), filters)
	if err != nil {
		s.logger.Printf("list accounts error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list accounts")
		return
	}

	items := make([]accountResponse, 0, len(result.Items))
	for _, account := range result.Items {
		items = append(items, toAccountResponse(account))
	}

	resp := accountListResponse{Items: items}
	if result.NextCursor != nil {
		resp.NextCursor = result.NextCursor
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildAccountFilters(query url.Values) (repository.AccountListFilters, error) {
	var filters repository.AccountListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Search = &q
	}
	if val := strings.TrimSpace(query.Get("type")); val != "" && val != "all" {
		accountType := domain.AccountType(val)
		if !accountType.Valid() {
			return filters, fmt.Errorf("invalid type value")
		}
		filters.Type = &accountType
	}
	if val := strings.TrimSpace(query.Get("category")); val != "" {
		filters.CategoryID = &val
	}
	if val := strings.TrimSpace(query.Get("owner")); val != "" {
		filters.OwnerID = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	accountType := domain.AccountType(strings.TrimSpace(req.Type))
	if !accountType.Valid() {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be one of instagram, whatsapp, whatsapp_group")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ProfileURL) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name and profileUrl are required")
		return
	}

	account, err := s.repo.Accounts.Create(r.Context(), repository.AccountCreateParams{
		OwnerID:     s.identity(r),
		Type:        accountType,
		Name:        strings.TrimSpace(req.Name),
		Username:    normalizeStringPtr(req.Username),
		ProfileURL:  strings.TrimSpace(req.ProfileURL),
		Description: normalizeStringPtr(req.Description),
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		s.logger.Printf("create account error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/accounts/%s", url.PathEscape(account.ID)))
	s.respondJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.repo.Accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("get account error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch account")
		return
	}
	s.respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.repo.Accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("fetch account for update error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update account")
		return
	}
	if account.OwnerID != s.identity(r) && !s.isAdmin(r) {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner can modify this account")
		return
	}

	var req accountUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ProfileURL) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name and profileUrl are required")
		return
	}

	updated, err := s.repo.Accounts.Update(r.Context(), account.ID, repository.AccountUpdateParams{
		Name:        strings.TrimSpace(req.Name),
		Username:    normalizeStringPtr(req.Username),
		ProfileURL:  strings.TrimSpace(req.ProfileURL),
		Description: normalizeStringPtr(req.Description),
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		s.logger.Printf("update account error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update account")
		return
	}
	s.respondJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.repo.Accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("fetch account for delete error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete account")
		return
	}
	if account.OwnerID != s.identity(r) && !s.isAdmin(r) {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner can delete this account")
		return
	}

	if err := s.repo.Accounts.Delete(r.Context(), account.ID); err != nil {
		s.logger.Printf("delete account error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.repo.Categories.List(r.Context())
	if err != nil {
		s.logger.Printf("list categories error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list categories")
		return
	}
	items := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		items = append(items, toCategoryResponse(category))
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Only administrators can manage categories")
		return
	}

	var req categoryCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
		return
	}

	category, err := s.repo.Categories.Create(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Color))
	if err != nil {
		s.logger.Printf("create category error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create category")
		return
	}
	s.respondJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Only administrators can manage categories")
		return
	}

	var req categoryCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
		return
	}

	category, err := s.repo.Categories.Update(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Name), strings.TrimSpace(req.Color))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("update category error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update category")
		return
	}
	s.respondJSON(w, http.StatusOK, toCategoryResponse(category))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Only administrators can manage categories")
		return
	}

	if err := s.repo.Categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
			return
		}
		s.logger.Printf("delete category error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func toAccountResponse(account domain.Account) accountResponse {
	categories := make([]categoryResponse, 0, len(account.Categories))
	for _, category := range account.Categories {
		categories = append(categories, toCategoryResponse(category))
	}
	return accountResponse{
		ID:          account.ID,
		OwnerID:     account.OwnerID,
		Type:        string(account.Type),
		Name:        account.Name,
		Username:    account.Username,
		ProfileURL:  account.ProfileURL,
		Description: account.Description,
		Categories:  categories,
		CreatedAt:   account.CreatedAt,
	}
}

func toCategoryResponse(category domain.Category) categoryResponse {
	return categoryResponse{
		ID:    category.ID,
		Name:  category.Name,
		Color: category.Color,
	}
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}
