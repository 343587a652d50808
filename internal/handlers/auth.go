package handlers

import (
	"log/slog"
	"net/http"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
)

const stateCookieName = "oauth_state"

type AuthHandler struct {
	authService *services.AuthService
	registry    *services.ViewRegistry
}

func NewAuthHandler(authService *services.AuthService, registry *services.ViewRegistry) *AuthHandler {
	return &AuthHandler{authService: authService, registry: registry}
}

// LoginPage starts the OIDC flow. Without an issuer configured it signs in
// the local development user instead.
func (handler *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if !handler.authService.OIDCConfigured() {
		handler.devLogin(w, r)
		return
	}

	state, err := handler.authService.NewState()
	if err != nil {
		slog.Error("generating state", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, handler.authService.LoginURL(state), http.StatusFound)
}

func (handler *AuthHandler) devLogin(w http.ResponseWriter, r *http.Request) {
	user, err := handler.authService.DevLogin(r.Context())
	if err != nil {
		slog.Error("dev login", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}
	if err := handler.authService.SetSession(w, user.ID); err != nil {
		slog.Error("setting session", "error", err)
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/calendar/view", http.StatusFound)
}

func (handler *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}

	user, err := handler.authService.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("handling callback", "error", err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	if err := handler.authService.SetSession(w, user.ID); err != nil {
		slog.Error("setting session", "error", err)
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/calendar/view", http.StatusFound)
}

// Logout clears the session and drops the user's live view.
func (handler *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID, err := handler.authService.SessionUserID(r); err == nil {
		handler.registry.Close(userID)
	}
	handler.authService.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}
