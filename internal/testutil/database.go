package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/database"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
)

func NewTestDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateUser inserts a user whose OIDC subject is derived from name.
func CreateUser(t *testing.T, db *sql.DB, name string) models.User {
	t.Helper()

	user, err := repository.NewUserRepository(db).Create(context.Background(), models.User{
		OIDCSubject: "sub-" + name,
		Email:       name + "@example.com",
		Name:        name,
	})
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return user
}
