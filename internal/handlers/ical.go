package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

type ICalHandler struct {
	tokenService *services.TokenService
	userRepo     repository.UserRepository
	exporter     *services.ICalExporter
}

func NewICalHandler(tokenService *services.TokenService, userRepo repository.UserRepository, exporter *services.ICalExporter) *ICalHandler {
	return &ICalHandler{tokenService: tokenService, userRepo: userRepo, exporter: exporter}
}

// Feed serves the token owner's calendar. Only ical-scoped tokens are
// accepted.
func (handler *ICalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := handler.tokenService.Authenticate(ctx, r.URL.Query().Get("token"), models.TokenScopeICal)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, services.ErrTokenExpired) {
			slog.Error("authenticating ical token", "error", err)
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := handler.userRepo.FindByID(ctx, token.UserID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := handler.exporter.Export(ctx, user)
	if err != nil {
		slog.Error("exporting ical", "user_id", user.ID, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=spiretrack.ics")
	w.Write([]byte(body))
}

// Share issues a new ical token and returns the subscription URL for it.
func (handler *ICalHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	name := r.FormValue("name")
	if name == "" {
		name = "Calendar feed"
	}

	rawToken, created, err := handler.tokenService.Issue(ctx, user.ID, name, models.TokenScopeICal, 0)
	if err != nil {
		slog.Error("creating ical token", "user_id", user.ID, "error", err)
		writeError(w, err, "failed to create feed link")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":  created.ID,
		"url": handler.tokenService.FeedURL(rawToken),
	})
}
