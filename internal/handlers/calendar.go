package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

const dateLayout = "2006-01-02"

type CalendarHandler struct {
	events       *services.EventService
	categoryRepo repository.CategoryRepository
	registry     *services.ViewRegistry
	location     *time.Location
	weekStart    time.Weekday
	now          func() time.Time
}

func NewCalendarHandler(
	events *services.EventService,
	categoryRepo repository.CategoryRepository,
	registry *services.ViewRegistry,
	location *time.Location,
	weekStart time.Weekday,
) *CalendarHandler {
	return &CalendarHandler{
		events:       events,
		categoryRepo: categoryRepo,
		registry:     registry,
		location:     location,
		weekStart:    weekStart,
		now:          time.Now,
	}
}

type monthResponse struct {
	Window    calendar.Window          `json:"window"`
	Instances []calendar.EventInstance `json:"instances"`
}

// Month materializes a month from query parameters alone; it does not touch
// the caller's view.
func (handler *CalendarHandler) Month(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(ctx)
	query := r.URL.Query()

	anchor, err := handler.parseAnchor(query.Get("date"), query.Get("year"), query.Get("month"))
	if err != nil {
		writeError(w, err, "")
		return
	}
	window := calendar.FetchWindow(anchor, handler.weekStart)

	filter := calendar.Filter{
		HidePast:        queryBool(query.Get("hide_past")),
		AllDayOnly:      queryBool(query.Get("all_day")),
		RequireLocation: queryBool(query.Get("has_location")),
		WeekdaysOnly:    queryBool(query.Get("weekdays")),
		Search:          query.Get("q"),
	}
	if query.Has("categories") {
		filter.ActiveCategories = calendar.NewCategorySet(splitList(query.Get("categories"))...)
	} else {
		categories, err := handler.categoryRepo.FindByUser(ctx, user.ID)
		if err != nil {
			slog.Error("finding categories", "error", err)
			writeError(w, err, "failed to load categories")
			return
		}
		filter.ActiveCategories = calendar.NewCategorySet()
		for _, category := range categories {
			filter.ActiveCategories[category.ID] = true
		}
	}

	events, err := handler.events.FindInWindow(ctx, user.ID, window)
	if err != nil {
		slog.Error("finding events", "error", err)
		writeError(w, err, "failed to load events")
		return
	}

	instances := calendar.Materialize(events, window, filter, handler.now())
	if instances == nil {
		instances = []calendar.EventInstance{}
	}
	writeJSON(w, http.StatusOK, monthResponse{Window: window, Instances: instances})
}

type viewResponse struct {
	calendar.ViewState
	Visible []calendar.EventInstance `json:"visible"`
}

func (handler *CalendarHandler) View(w http.ResponseWriter, r *http.Request) {
	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	handler.writeView(w, view)
}

func (handler *CalendarHandler) SetAnchor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err, "")
		return
	}
	anchor, err := handler.parseAnchor(body.Date, "", "")
	if err != nil {
		writeError(w, err, "")
		return
	}

	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	if err := view.SetAnchor(r.Context(), anchor); err != nil {
		writeError(w, err, "failed to move calendar")
		return
	}
	handler.writeView(w, view)
}

// SetFilter replaces the filter settings. Omitting active_categories keeps
// the current toggles.
func (handler *CalendarHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var filter calendar.Filter
	if err := decodeJSON(r, &filter); err != nil {
		writeError(w, err, "")
		return
	}

	view, ok := handler.view(w, r)
	if !ok {
		return
	}
	view.SetFilter(filter)
	handler.writeView(w, view)
}

func (handler *CalendarHandler) ToggleCategory(w http.ResponseWriter, r *http.Request) {
	view, ok := handler.view(w, r)
	if !ok {
		return
	}

	active, err := view.ToggleCategory(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "failed to toggle category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (handler *CalendarHandler) view(w http.ResponseWriter, r *http.Request) (*calendar.View, bool) {
	user := middleware.GetUser(r.Context())
	view, err := handler.registry.Get(r.Context(), user.ID)
	if err != nil {
		slog.Error("opening calendar view", "user_id", user.ID, "error", err)
		writeError(w, err, "failed to open calendar")
		return nil, false
	}
	return view, true
}

func (handler *CalendarHandler) writeView(w http.ResponseWriter, view *calendar.View) {
	response := viewResponse{ViewState: view.State(), Visible: view.Visible()}
	if response.Instances == nil {
		response.Instances = []calendar.EventInstance{}
	}
	if response.Visible == nil {
		response.Visible = []calendar.EventInstance{}
	}
	writeJSON(w, http.StatusOK, response)
}

// parseAnchor accepts either a YYYY-MM-DD date or a year and month. With
// neither it anchors on today.
func (handler *CalendarHandler) parseAnchor(date, year, month string) (time.Time, error) {
	if date != "" {
		anchor, err := time.ParseInLocation(dateLayout, date, handler.location)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest)
		}
		return anchor, nil
	}

	if year == "" && month == "" {
		return handler.now().In(handler.location), nil
	}

	y, yearErr := strconv.Atoi(year)
	m, monthErr := strconv.Atoi(month)
	if yearErr != nil || monthErr != nil || m < 1 || m > 12 {
		return time.Time{}, fmt.Errorf("%w: year and month must be numeric, month 1-12", errBadRequest)
	}
	return time.Date(y, time.Month(m), 1, 0, 0, 0, 0, handler.location), nil
}

func queryBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
