// Package testdb opens throwaway SQLite databases with the production schema
// for package tests.
package testdb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ManuelReschke/PixelPremium/app/models"
	"github.com/ManuelReschke/PixelPremium/app/repository"
	"github.com/ManuelReschke/PixelPremium/internal/pkg/database"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns an isolated database file under t.TempDir(). The file outlives
// a connection dropped by a cancelled transaction, unlike an in-memory
// database. It is limited to a single connection, so code under test must run
// every statement of a transaction on the tx handle.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "premium.db")
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser validates and inserts a plain, non-premium user.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()

	user := &models.User{
		Name:   name,
		Email:  fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Role:   models.ROLE_USER,
		Status: models.STATUS_ACTIVE,
	}
	if err := user.Validate(); err != nil {
		t.Fatalf("invalid test user %q: %v", name, err)
	}
	if err := repository.NewUserRepository(db).Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
