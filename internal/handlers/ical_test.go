package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

func setupICalHandler(t *testing.T) (*ICalHandler, testEnv) {
	t.Helper()
	env := setupTestEnv(t)
	handler := NewICalHandler(env.tokens, repository.NewUserRepository(env.db), services.NewICalExporter(env.events))
	return handler, env
}

func TestICalHandler_RejectsApiScopedToken(t *testing.T) {
	handler, env := setupICalHandler(t)

	rawToken, _, err := env.tokens.Issue(context.Background(), env.user.ID, "API Token", models.TokenScopeAPI, 0)
	if err != nil {
		t.Fatalf("creating api token: %v", err)
	}

	router := chi.NewRouter()
	router.Get("/ical", handler.Feed)

	request := httptest.NewRequest(http.MethodGet, "/ical?token="+rawToken, nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for api-scoped token on iCal route, got %d", recorder.Code)
	}
}

func TestICalHandler_RejectsMissingToken(t *testing.T) {
	handler, _ := setupICalHandler(t)

	router := chi.NewRouter()
	router.Get("/ical", handler.Feed)

	for _, target := range []string{"/ical", "/ical?token=unknown"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", target, recorder.Code)
		}
	}
}

func TestICalHandler_ShareThenFeed(t *testing.T) {
	handler, env := setupICalHandler(t)
	env.createStandup(t)

	router := chi.NewRouter()
	router.Get("/ical", handler.Feed)
	router.Post("/calendar/share", handler.Share)

	recorder := serve(t, router, env.user, http.MethodPost, "/calendar/share", nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var shared map[string]string
	decodeBody(t, recorder, &shared)

	feedURL := shared["url"]
	if !strings.HasPrefix(feedURL, "https://cal.example.com/ical?token=") {
		t.Fatalf("unexpected feed url %q", feedURL)
	}

	request := httptest.NewRequest(http.MethodGet, strings.TrimPrefix(feedURL, "https://cal.example.com"), nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "text/calendar") {
		t.Errorf("expected text/calendar, got %q", contentType)
	}
	body := recorder.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Standup", "FREQ=WEEKLY"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected feed to contain %q", want)
		}
	}
}
