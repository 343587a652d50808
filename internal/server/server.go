package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/config"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/handlers"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/middleware"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	router   *chi.Mux
	config   config.Config
	registry *services.ViewRegistry
}

func New(database *sql.DB, cfg config.Config, authService *services.AuthService, feed changefeed.Feed) (*Server, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekStart, err := cfg.FirstWeekday()
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(database)
	categoryRepo := repository.NewCategoryRepository(database)
	eventRepo := repository.NewEventRepository(database)
	tokenRepo := repository.NewAPITokenRepository(database)

	eventService := services.NewEventService(eventRepo, feed)
	tokenService := services.NewTokenService(tokenRepo, cfg.BaseURL)
	bootstrapper := calendar.NewBootstrapper(categoryRepo)
	registry := services.NewViewRegistry(eventService, bootstrapper, feed, calendar.ViewConfig{
		Location:  location,
		WeekStart: weekStart,
	})

	authHandler := handlers.NewAuthHandler(authService, registry)
	calendarHandler := handlers.NewCalendarHandler(eventService, categoryRepo, registry, location, weekStart)
	eventHandler := handlers.NewEventHandler(registry, services.NewICalImporter(eventService, categoryRepo), location)
	categoryHandler := handlers.NewCategoryHandler(categoryRepo, bootstrapper, registry)
	icalHandler := handlers.NewICalHandler(tokenService, userRepo, services.NewICalExporter(eventService))
	apiHandler := handlers.NewAPIHandler(tokenService)

	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/login", authHandler.LoginPage)
	router.Get("/auth/callback", authHandler.Callback)
	router.Get("/logout", authHandler.Logout)

	router.Get("/ical", icalHandler.Feed)

	// The same routes serve browsers with a session cookie and scripts with
	// an api-scoped bearer token under /api.
	mount := func(r chi.Router) {
		r.Get("/calendar", calendarHandler.Month)
		r.Get("/calendar/view", calendarHandler.View)
		r.Post("/calendar/view/anchor", calendarHandler.SetAnchor)
		r.Post("/calendar/view/filter", calendarHandler.SetFilter)
		r.Post("/calendar/view/categories/{id}/toggle", calendarHandler.ToggleCategory)
		r.Post("/calendar/share", icalHandler.Share)

		r.Get("/categories", categoryHandler.List)
		r.Post("/categories", categoryHandler.Create)

		r.Post("/events", eventHandler.Create)
		r.Post("/events/import", eventHandler.Import)
		r.Patch("/events/{id}", eventHandler.Update)
		r.Delete("/events/{id}", eventHandler.Delete)
		r.Post("/events/{id}/move", eventHandler.Move)

		r.Get("/tokens", apiHandler.ListTokens)
		r.Post("/tokens", apiHandler.CreateToken)
		r.Delete("/tokens/{id}", apiHandler.DeleteToken)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authService))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/calendar/view", http.StatusFound)
		})
		mount(r)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APITokenAuth(tokenService, userRepo))
		mount(r)
	})

	server := &Server{
		router:   router,
		config:   cfg,
		registry: registry,
	}

	return server, nil
}

func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) Views() *services.ViewRegistry {
	return server.registry
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// closes every open calendar view.
func (server *Server) Start(ctx context.Context) error {
	address := ":" + server.config.Port
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("starting server", "address", address)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		server.registry.CloseAll()
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	server.registry.CloseAll()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
