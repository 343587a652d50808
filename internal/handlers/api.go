package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

var errBadRequest = errors.New("bad request")

type APIHandler struct {
	tokenService *services.TokenService
}

func NewAPIHandler(tokenService *services.TokenService) *APIHandler {
	return &APIHandler{tokenService: tokenService}
}

func (handler *APIHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	tokens, err := handler.tokenService.List(ctx, user.ID, models.TokenScopeAPI)
	if err != nil {
		slog.Error("listing tokens", "error", err)
		writeError(w, err, "failed to load tokens")
		return
	}
	if tokens == nil {
		tokens = []models.APIToken{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (handler *APIHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	name := r.FormValue("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	expiresInDays := 0
	if value := r.FormValue("expires_in_days"); value != "" {
		days, err := strconv.Atoi(value)
		if err != nil || days < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expires_in_days must be a non-negative integer"})
			return
		}
		expiresInDays = days
	}

	rawToken, created, err := handler.tokenService.Issue(ctx, user.ID, name, models.TokenScopeAPI, expiresInDays)
	if err != nil {
		slog.Error("creating token", "error", err)
		writeError(w, err, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         created.ID,
		"name":       created.Name,
		"expires_at": created.ExpiresAt,
		"token":      rawToken,
	})
}

func (handler *APIHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	if err := handler.tokenService.Revoke(ctx, user.ID, chi.URLParam(r, "id")); err != nil {
		slog.Error("deleting token", "error", err)
		writeError(w, err, "failed to delete token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// reported as a 500 with fallback as the message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, calendar.ErrEventNotFound),
		errors.Is(err, calendar.ErrCategoryNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repository.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "event was modified by someone else"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
