package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

type CategoryRepository interface {
	FindByID(ctx context.Context, userID string, id string) (models.CalendarCategory, error)
	FindByUser(ctx context.Context, userID string) ([]models.CalendarCategory, error)
	Ensure(ctx context.Context, category models.CalendarCategory) (models.CalendarCategory, error)
	ReplaceCategories(ctx context.Context, userID string, replacements map[string]string) error
}

type SQLiteCategoryRepository struct {
	database *sql.DB
}

func NewCategoryRepository(database *sql.DB) *SQLiteCategoryRepository {
	return &SQLiteCategoryRepository{database: database}
}

const selectCategories = `SELECT id, user_id, name, color, is_default, position, created_at
FROM calendar_categories`

func (repository *SQLiteCategoryRepository) FindByID(ctx context.Context, userID string, id string) (models.CalendarCategory, error) {
	category, err := scanCategory(repository.database.QueryRowContext(ctx,
		selectCategories+" WHERE id = ? AND user_id = ?", id, userID,
	))
	if err != nil {
		return models.CalendarCategory{}, fmt.Errorf("finding category by id: %w", notFound(err))
	}
	return category, nil
}

// FindByUser returns the user's categories in display order: position, then
// creation time. The first row for a given name is the one bootstrap keeps.
func (repository *SQLiteCategoryRepository) FindByUser(ctx context.Context, userID string) ([]models.CalendarCategory, error) {
	return repository.query(ctx,
		selectCategories+" WHERE user_id = ? ORDER BY position, created_at, rowid", userID,
	)
}

func (repository *SQLiteCategoryRepository) query(ctx context.Context, query string, args ...any) ([]models.CalendarCategory, error) {
	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding categories: %w", err)
	}
	defer rows.Close()

	var categories []models.CalendarCategory
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// Ensure inserts the category unless the user already has one with the same
// name, and returns the stored row either way.
func (repository *SQLiteCategoryRepository) Ensure(ctx context.Context, category models.CalendarCategory) (models.CalendarCategory, error) {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO calendar_categories (id, user_id, name, color, is_default, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO NOTHING`,
		category.ID, category.UserID, category.Name, category.Color, category.IsDefault,
		category.Position, storedTime(time.Now()),
	)
	if err != nil {
		return models.CalendarCategory{}, fmt.Errorf("ensuring category %q: %w", category.Name, err)
	}

	stored, err := scanCategory(repository.database.QueryRowContext(ctx,
		selectCategories+" WHERE user_id = ? AND name = ?", category.UserID, category.Name,
	))
	if err != nil {
		return models.CalendarCategory{}, fmt.Errorf("reading ensured category %q: %w", category.Name, notFound(err))
	}
	return stored, nil
}

// ReplaceCategories reassigns the events of every key category to the mapped
// category and deletes the key categories, all in one transaction. Without
// the reassignment the events would lose their category on delete.
func (repository *SQLiteCategoryRepository) ReplaceCategories(ctx context.Context, userID string, replacements map[string]string) error {
	if len(replacements) == 0 {
		return nil
	}

	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning category replacement: %w", err)
	}
	defer transaction.Rollback()

	now := storedTime(time.Now())
	for replacedID, keptID := range replacements {
		_, err := transaction.ExecContext(ctx,
			`UPDATE calendar_events SET category_id = ?, version = version + 1, updated_at = ?
			WHERE user_id = ? AND category_id = ?`,
			keptID, now, userID, replacedID,
		)
		if err != nil {
			return fmt.Errorf("moving events to category %s: %w", keptID, err)
		}

		_, err = transaction.ExecContext(ctx,
			"DELETE FROM calendar_categories WHERE user_id = ? AND id = ?", userID, replacedID,
		)
		if err != nil {
			return fmt.Errorf("deleting category %s: %w", replacedID, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("committing category replacement: %w", err)
	}
	return nil
}

func scanCategory(scanner rowScanner) (models.CalendarCategory, error) {
	var category models.CalendarCategory
	err := scanner.Scan(
		&category.ID, &category.UserID, &category.Name, &category.Color,
		&category.IsDefault, &category.Position, &category.CreatedAt,
	)
	return category, err
}
