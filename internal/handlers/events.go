package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

// maxImportBytes bounds an uploaded .ics body.
const maxImportBytes = 5 << 20

type EventHandler struct {
	registry *services.ViewRegistry
	importer *services.ICalImporter
	location *time.Location
}

func NewEventHandler(registry *services.ViewRegistry, importer *services.ICalImporter, location *time.Location) *EventHandler {
	return &EventHandler{registry: registry, importer: importer, location: location}
}

func (handler *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var event models.CalendarEvent
	if err := decodeJSON(r, &event); err != nil {
		writeError(w, err, "")
		return
	}
	if err := validateEvent(event); err != nil {
		writeError(w, err, "")
		return
	}
	event.ID = ""
	event.Version = 0
	event.Category = nil

	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	created, err := view.CreateEvent(r.Context(), event)
	if err != nil {
		writeError(w, err, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update patches an event. The id may name a synthetic instance, in which
// case the repeating event it came from is patched.
func (handler *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err, "")
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, fmt.Errorf("%w: title must not be empty", errBadRequest), "")
		return
	}
	if patch.RepeatPattern != nil && !patch.RepeatPattern.Valid() {
		writeError(w, fmt.Errorf("%w: unknown repeat pattern %q", errBadRequest, *patch.RepeatPattern), "")
		return
	}

	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	updated, err := view.UpdateEvent(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (handler *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	if err := view.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move drops an event on another day, keeping its time of day and duration.
func (handler *EventHandler) Move(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date            string `json:"date"`
		ExpectedVersion int    `json:"expected_version"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err, "")
		return
	}
	day, err := time.ParseInLocation(dateLayout, body.Date, handler.location)
	if err != nil {
		writeError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest), "")
		return
	}

	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	moved, err := view.MoveEvent(r.Context(), chi.URLParam(r, "id"), day, body.ExpectedVersion)
	if err != nil {
		writeError(w, err, "failed to move event")
		return
	}
	writeJSON(w, http.StatusOK, moved)
}

// Import reads an iCalendar body and creates one event per VEVENT. The
// optional category query parameter files them under that category, which
// is switched on in the user's view.
func (handler *EventHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)

	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	result, err := handler.importer.Import(ctx, user.ID, body, r.URL.Query().Get("category"))
	if err != nil {
		slog.Error("importing ical", "user_id", user.ID, "error", err)
		if errors.Is(err, services.ErrInvalidCalendar) {
			writeError(w, fmt.Errorf("%w: %v", errBadRequest, err), "")
			return
		}
		writeError(w, err, "failed to import events")
		return
	}

	if view, err := handler.registry.Get(ctx, user.ID); err == nil {
		if result.Category != nil {
			view.AddCategory(*result.Category)
		}
		if err := view.Refresh(ctx); err != nil {
			slog.Warn("refreshing view after import", "user_id", user.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, result)
}

func (handler *EventHandler) view(w http.ResponseWriter, r *http.Request) (*calendar.View, bool) {
	user := middleware.GetUser(r.Context())
	view, err := handler.registry.Get(r.Context(), user.ID)
	if err != nil {
		slog.Error("opening calendar view", "user_id", user.ID, "error", err)
		writeError(w, err, "failed to open calendar")
		return nil, false
	}
	return view, true
}

func validateEvent(event models.CalendarEvent) error {
	if strings.TrimSpace(event.Title) == "" {
		return fmt.Errorf("%w: title is required", errBadRequest)
	}
	if event.StartTime.IsZero() || event.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", errBadRequest)
	}
	if !event.RepeatPattern.Valid() {
		return fmt.Errorf("%w: unknown repeat pattern %q", errBadRequest, event.RepeatPattern)
	}
	return nil
}
