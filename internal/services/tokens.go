package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
)

var ErrTokenExpired = errors.New("token expired")

type TokenService struct {
	tokenRepo repository.APITokenRepository
	baseURL   string
}

func NewTokenService(tokenRepo repository.APITokenRepository, baseURL string) *TokenService {
	return &TokenService{tokenRepo: tokenRepo, baseURL: baseURL}
}

// Issue creates a token for the user and returns the raw secret alongside
// the stored record. Only the hash is persisted. expiresInDays of zero
// means the token never expires.
func (service *TokenService) Issue(ctx context.Context, userID string, name string, scope models.TokenScope, expiresInDays int) (string, models.APIToken, error) {
	raw, err := generateToken()
	if err != nil {
		return "", models.APIToken{}, err
	}

	var expiresAt *time.Time
	if expiresInDays > 0 {
		expiry := time.Now().AddDate(0, 0, expiresInDays)
		expiresAt = &expiry
	}

	token, err := service.tokenRepo.Create(ctx, models.APIToken{
		Name:      name,
		TokenHash: repository.HashToken(raw),
		Scope:     scope,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", models.APIToken{}, fmt.Errorf("issuing %s token: %w", scope, err)
	}
	return raw, token, nil
}

// Authenticate resolves a raw token of the given scope to its record.
func (service *TokenService) Authenticate(ctx context.Context, raw string, scope models.TokenScope) (models.APIToken, error) {
	if raw == "" {
		return models.APIToken{}, repository.ErrNotFound
	}

	token, err := service.tokenRepo.FindByTokenHash(ctx, repository.HashToken(raw))
	if err != nil {
		return models.APIToken{}, err
	}
	if token.Scope != scope {
		return models.APIToken{}, fmt.Errorf("token scope %s used as %s: %w", token.Scope, scope, repository.ErrNotFound)
	}
	if token.Expired(time.Now()) {
		return models.APIToken{}, ErrTokenExpired
	}
	return token, nil
}

func (service *TokenService) List(ctx context.Context, userID string, scope models.TokenScope) ([]models.APIToken, error) {
	return service.tokenRepo.FindByUser(ctx, userID, scope)
}

func (service *TokenService) Revoke(ctx context.Context, userID string, id string) error {
	return service.tokenRepo.Delete(ctx, userID, id)
}

// FeedURL is the subscription address for an ical-scoped token.
func (service *TokenService) FeedURL(rawToken string) string {
	return strings.TrimRight(service.baseURL, "/") + "/ical?token=" + rawToken
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
