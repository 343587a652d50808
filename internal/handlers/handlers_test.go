package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/testutil"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db           *sql.DB
	user         models.User
	events       *services.EventService
	categoryRepo *repository.SQLiteCategoryRepository
	bootstrapper *calendar.Bootstrapper
	registry     *services.ViewRegistry
	tokens       *services.TokenService
}

func setupTestEnv(t *testing.T) testEnv {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	feed := changefeed.NewMemoryFeed()
	categoryRepo := repository.NewCategoryRepository(db)
	events := services.NewEventService(repository.NewEventRepository(db), feed)
	bootstrapper := calendar.NewBootstrapper(categoryRepo)
	registry := services.NewViewRegistry(events, bootstrapper, feed, calendar.ViewConfig{
		Location:  time.UTC,
		WeekStart: time.Sunday,
		Now:       func() time.Time { return testNow },
	})
	t.Cleanup(registry.CloseAll)

	return testEnv{
		db:           db,
		user:         testutil.CreateUser(t, db, "planner"),
		events:       events,
		categoryRepo: categoryRepo,
		bootstrapper: bootstrapper,
		registry:     registry,
		tokens:       services.NewTokenService(repository.NewAPITokenRepository(db), "https://cal.example.com"),
	}
}

// categoryID returns the id of the user's bootstrapped category called name.
func (env testEnv) categoryID(t *testing.T, name string) string {
	t.Helper()
	categories, err := env.bootstrapper.Bootstrap(context.Background(), env.user.ID)
	if err != nil {
		t.Fatalf("bootstrapping categories: %v", err)
	}
	for _, category := range categories {
		if category.Name == name {
			return category.ID
		}
	}
	t.Fatalf("no category named %s", name)
	return ""
}

// createStandup stores a weekly 09:00 meeting starting Monday 4 March 2024.
func (env testEnv) createStandup(t *testing.T) models.CalendarEvent {
	t.Helper()
	categoryID := env.categoryID(t, "Work")
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	event, err := env.events.Create(context.Background(), models.CalendarEvent{
		UserID:        env.user.ID,
		CategoryID:    &categoryID,
		Title:         "Standup",
		Location:      "Room 1",
		StartTime:     start,
		EndTime:       start.Add(45 * time.Minute),
		RepeatPattern: models.RepeatWeekly,
	})
	if err != nil {
		t.Fatalf("creating standup: %v", err)
	}
	return event
}

func requestWithUser(request *http.Request, user models.User) *http.Request {
	ctx := context.WithValue(request.Context(), middleware.UserContextKey, user)
	return request.WithContext(ctx)
}

func serve(t *testing.T, router chi.Router, user models.User, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}

	request := httptest.NewRequest(method, target, &payload)
	request.Header.Set("Content-Type", "application/json")
	request = requestWithUser(request, user)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(target); err != nil {
		t.Fatalf("decoding response %q: %v", recorder.Body.String(), err)
	}
}
