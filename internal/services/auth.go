package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/securecookie"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/config"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"golang.org/x/oauth2"
)

const (
	sessionCookieName = "session"
	sessionMaxAge     = 30 * 24 * 60 * 60
	localSubject      = "dev"
)

var ErrOIDCDisabled = errors.New("OIDC not configured")

// AuthService signs users in and tracks them with a signed cookie holding
// only their user ID. Without an issuer it falls back to a single local
// account for development.
type AuthService struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	cookies  *securecookie.SecureCookie
	users    repository.UserRepository
}

// identity is what a sign-in learns about the person behind it.
type identity struct {
	subject string
	email   string
	name    string
}

func NewAuthService(ctx context.Context, cfg config.Config, users repository.UserRepository) (*AuthService, error) {
	service := &AuthService{
		cookies: securecookie.New([]byte(cfg.SessionSecret), nil).MaxAge(sessionMaxAge),
		users:   users,
	}

	if cfg.OIDCIssuer == "" {
		slog.Warn("OIDC not configured, using development login")
		return service, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("creating OIDC provider: %w", err)
	}
	service.oauth = &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	service.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	return service, nil
}

func (service *AuthService) OIDCConfigured() bool {
	return service.oauth != nil
}

func (service *AuthService) LoginURL(state string) string {
	if service.oauth == nil {
		return ""
	}
	return service.oauth.AuthCodeURL(state)
}

// NewState returns a random value for the OAuth state parameter.
func (service *AuthService) NewState() (string, error) {
	state := make([]byte, 32)
	if _, err := rand.Read(state); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(state), nil
}

// Exchange trades an authorization code for the signed-in user, creating the
// user on first sign-in.
func (service *AuthService) Exchange(ctx context.Context, code string) (models.User, error) {
	if service.oauth == nil {
		return models.User{}, ErrOIDCDisabled
	}

	token, err := service.oauth.Exchange(ctx, code)
	if err != nil {
		return models.User{}, fmt.Errorf("exchanging code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return models.User{}, errors.New("no id_token in response")
	}
	idToken, err := service.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return models.User{}, fmt.Errorf("verifying id token: %w", err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.User{}, fmt.Errorf("parsing claims: %w", err)
	}

	return service.signIn(ctx, identity{
		subject: claims.Subject,
		email:   claims.Email,
		name:    firstNonEmpty(claims.Name, claims.PreferredUsername, claims.Email),
	})
}

// DevLogin signs in the local account. It is refused once an issuer is
// configured.
func (service *AuthService) DevLogin(ctx context.Context) (models.User, error) {
	if service.OIDCConfigured() {
		return models.User{}, errors.New("development login disabled when OIDC is configured")
	}
	return service.signIn(ctx, identity{subject: localSubject, email: "dev@localhost", name: "Dev User"})
}

// signIn returns the user owning the subject. Profile fields are only
// recorded when the user is first created.
func (service *AuthService) signIn(ctx context.Context, who identity) (models.User, error) {
	user, err := service.users.FindByOIDCSubject(ctx, who.subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.User{}, fmt.Errorf("looking up user: %w", err)
	}

	user, err = service.users.Create(ctx, models.User{
		OIDCSubject: who.subject,
		Email:       who.email,
		Name:        who.name,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}
	slog.Info("provisioned new user", "id", user.ID, "name", user.Name)
	return user, nil
}

func (service *AuthService) SetSession(w http.ResponseWriter, userID string) error {
	value, err := service.cookies.Encode(sessionCookieName, userID)
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionMaxAge,
	})
	return nil
}

// SessionUserID returns the user ID carried by the request's session cookie.
func (service *AuthService) SessionUserID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", fmt.Errorf("no session cookie: %w", err)
	}

	var userID string
	if err := service.cookies.Decode(sessionCookieName, cookie.Value, &userID); err != nil {
		return "", fmt.Errorf("decoding session cookie: %w", err)
	}
	return userID, nil
}

func (service *AuthService) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (service *AuthService) CurrentUser(r *http.Request) (models.User, error) {
	userID, err := service.SessionUserID(r)
	if err != nil {
		return models.User{}, err
	}

	user, err := service.users.FindByID(r.Context(), userID)
	if err != nil {
		return models.User{}, fmt.Errorf("finding user: %w", err)
	}
	return user, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
