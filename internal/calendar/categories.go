package calendar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

type DefaultCategory struct {
	Name     string
	Color    string
	Position int
}

// DefaultCategories is the palette every user is guaranteed to have.
var DefaultCategories = []DefaultCategory{
	{Name: "Work", Color: "#3B82F6", Position: 0},
	{Name: "Personal", Color: "#10B981", Position: 1},
	{Name: "Important", Color: "#EF4444", Position: 2},
	{Name: "Meetings", Color: "#8B5CF6", Position: 3},
	{Name: "Travel", Color: "#F59E0B", Position: 4},
	{Name: "Health", Color: "#EC4899", Position: 5},
	{Name: "Finance", Color: "#14B8A6", Position: 6},
	{Name: "Social", Color: "#F97316", Position: 7},
}

type CategoryStore interface {
	FindByUser(ctx context.Context, userID string) ([]models.CalendarCategory, error)
	Ensure(ctx context.Context, category models.CalendarCategory) (models.CalendarCategory, error)
	// ReplaceCategories moves the events of each key category onto the
	// mapped category, then deletes the key categories.
	ReplaceCategories(ctx context.Context, userID string, replacements map[string]string) error
}

// DedupeCategories keeps the first category seen for each name. The second
// result maps the id of every later row sharing a name to the kept row's id.
func DedupeCategories(categories []models.CalendarCategory) ([]models.CalendarCategory, map[string]string) {
	keptByName := make(map[string]string, len(categories))
	kept := make([]models.CalendarCategory, 0, len(categories))
	duplicates := make(map[string]string)

	for _, category := range categories {
		if keptID, ok := keptByName[category.Name]; ok {
			duplicates[category.ID] = keptID
			continue
		}
		keptByName[category.Name] = category.ID
		kept = append(kept, category)
	}
	return kept, duplicates
}

// MissingDefaults lists the default categories absent from categories.
func MissingDefaults(categories []models.CalendarCategory) []DefaultCategory {
	present := make(map[string]bool, len(categories))
	for _, category := range categories {
		present[category.Name] = true
	}

	var missing []DefaultCategory
	for _, defaultCategory := range DefaultCategories {
		if !present[defaultCategory.Name] {
			missing = append(missing, defaultCategory)
		}
	}
	return missing
}

type Bootstrapper struct {
	store CategoryStore
}

func NewBootstrapper(store CategoryStore) *Bootstrapper {
	return &Bootstrapper{store: store}
}

// Bootstrap returns the user's category set after removing duplicate names
// and backfilling missing defaults. Events filed under a duplicate move to
// the surviving category. Duplicate removal is awaited and its failure is
// returned.
func (bootstrapper *Bootstrapper) Bootstrap(ctx context.Context, userID string) ([]models.CalendarCategory, error) {
	categories, err := bootstrapper.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	categories, duplicates := DedupeCategories(categories)
	if len(duplicates) > 0 {
		slog.Warn("removing duplicate categories", "user_id", userID, "count", len(duplicates))
		if err := bootstrapper.store.ReplaceCategories(ctx, userID, duplicates); err != nil {
			return nil, fmt.Errorf("removing duplicate categories: %w", err)
		}
	}

	for _, missing := range MissingDefaults(categories) {
		created, err := bootstrapper.store.Ensure(ctx, models.CalendarCategory{
			UserID:    userID,
			Name:      missing.Name,
			Color:     missing.Color,
			IsDefault: true,
			Position:  missing.Position,
		})
		if err != nil {
			return nil, fmt.Errorf("creating default category %q: %w", missing.Name, err)
		}
		categories = append(categories, created)
	}

	return categories, nil
}
