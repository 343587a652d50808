package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

type APITokenRepository interface {
	Create(ctx context.Context, token models.APIToken) (models.APIToken, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (models.APIToken, error)
	FindByUser(ctx context.Context, userID string, scope models.TokenScope) ([]models.APIToken, error)
	Delete(ctx context.Context, userID string, id string) error
}

type SQLiteAPITokenRepository struct {
	database *sql.DB
}

func NewAPITokenRepository(database *sql.DB) *SQLiteAPITokenRepository {
	return &SQLiteAPITokenRepository{database: database}
}

// HashToken is the only form in which tokens are stored.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

const selectTokens = "SELECT id, name, token_hash, scope, user_id, expires_at, created_at FROM api_tokens"

func (repository *SQLiteAPITokenRepository) Create(ctx context.Context, token models.APIToken) (models.APIToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.Scope == "" {
		token.Scope = models.TokenScopeAPI
	}
	token.CreatedAt = storedTime(time.Now())

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO api_tokens (id, name, token_hash, scope, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.Name, token.TokenHash, string(token.Scope), token.UserID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return models.APIToken{}, fmt.Errorf("creating api token: %w", err)
	}
	return token, nil
}

func (repository *SQLiteAPITokenRepository) FindByTokenHash(ctx context.Context, tokenHash string) (models.APIToken, error) {
	token, err := scanToken(repository.database.QueryRowContext(ctx, selectTokens+" WHERE token_hash = ?", tokenHash))
	if err != nil {
		return models.APIToken{}, fmt.Errorf("finding token by hash: %w", notFound(err))
	}
	return token, nil
}

func (repository *SQLiteAPITokenRepository) FindByUser(ctx context.Context, userID string, scope models.TokenScope) ([]models.APIToken, error) {
	rows, err := repository.database.QueryContext(ctx,
		selectTokens+" WHERE user_id = ? AND scope = ? ORDER BY created_at DESC", userID, string(scope),
	)
	if err != nil {
		return nil, fmt.Errorf("finding tokens by user: %w", err)
	}
	defer rows.Close()

	var tokens []models.APIToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (repository *SQLiteAPITokenRepository) Delete(ctx context.Context, userID string, id string) error {
	result, err := repository.database.ExecContext(ctx,
		"DELETE FROM api_tokens WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("deleting token %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanToken(scanner rowScanner) (models.APIToken, error) {
	var (
		token     models.APIToken
		scope     string
		expiresAt sql.NullTime
	)
	if err := scanner.Scan(&token.ID, &token.Name, &token.TokenHash, &scope, &token.UserID, &expiresAt, &token.CreatedAt); err != nil {
		return models.APIToken{}, err
	}
	token.Scope = models.TokenScope(scope)
	if expiresAt.Valid {
		token.ExpiresAt = &expiresAt.Time
	}
	return token, nil
}
