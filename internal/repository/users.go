package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByOIDCSubject(ctx context.Context, subject string) (models.User, error)
	FindAll(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, user models.User) (models.User, error)
}

type SQLiteUserRepository struct {
	database *sql.DB
}

func NewUserRepository(database *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{database: database}
}

const selectUsers = "SELECT id, oidc_subject, email, name, created_at, updated_at FROM users"

func (repository *SQLiteUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(repository.database.QueryRowContext(ctx, selectUsers+" WHERE id = ?", id))
	if err != nil {
		return models.User{}, fmt.Errorf("finding user by id: %w", notFound(err))
	}
	return user, nil
}

func (repository *SQLiteUserRepository) FindByOIDCSubject(ctx context.Context, subject string) (models.User, error) {
	user, err := scanUser(repository.database.QueryRowContext(ctx, selectUsers+" WHERE oidc_subject = ?", subject))
	if err != nil {
		return models.User{}, fmt.Errorf("finding user by oidc subject: %w", notFound(err))
	}
	return user, nil
}

func (repository *SQLiteUserRepository) FindAll(ctx context.Context) ([]models.User, error) {
	rows, err := repository.database.QueryContext(ctx, selectUsers+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("finding users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (repository *SQLiteUserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := storedTime(time.Now())
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO users (id, oidc_subject, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.OIDCSubject, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

func scanUser(scanner rowScanner) (models.User, error) {
	var user models.User
	err := scanner.Scan(&user.ID, &user.OIDCSubject, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
