package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type CategoryHandler struct {
	categoryRepo repository.CategoryRepository
	bootstrapper *calendar.Bootstrapper
	registry     *services.ViewRegistry
}

func NewCategoryHandler(categoryRepo repository.CategoryRepository, bootstrapper *calendar.Bootstrapper, registry *services.ViewRegistry) *CategoryHandler {
	return &CategoryHandler{categoryRepo: categoryRepo, bootstrapper: bootstrapper, registry: registry}
}

// List returns the user's categories, creating the defaults on first use.
func (handler *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	categories, err := handler.bootstrapper.Bootstrap(ctx, user.ID)
	if err != nil {
		slog.Error("bootstrapping categories", "user_id", user.ID, "error", err)
		writeError(w, err, "failed to load categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// Create ensures a category with the given name exists. Posting an existing
// name returns the stored category unchanged.
func (handler *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	var body struct {
		Name     string `json:"name"`
		Color    string `json:"color"`
		Position int    `json:"position"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err, "")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" {
		writeError(w, fmt.Errorf("%w: name is required", errBadRequest), "")
		return
	}
	if body.Color == "" {
		body.Color = "#6B7280"
	}
	if !hexColor.MatchString(body.Color) {
		writeError(w, fmt.Errorf("%w: color must look like #RRGGBB", errBadRequest), "")
		return
	}

	category, err := handler.categoryRepo.Ensure(ctx, models.CalendarCategory{
		UserID:   user.ID,
		Name:     body.Name,
		Color:    body.Color,
		Position: body.Position,
	})
	if err != nil {
		slog.Error("creating category", "user_id", user.ID, "error", err)
		writeError(w, err, "failed to create category")
		return
	}

	if view, err := handler.registry.Get(ctx, user.ID); err == nil {
		view.AddCategory(category)
	}
	writeJSON(w, http.StatusCreated, category)
}
