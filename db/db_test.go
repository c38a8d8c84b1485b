// ABOUTME: Tests for database opening and schema initialization
// ABOUTME: Also provides the shared temp-database test helper
package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"habitly/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createUser(t *testing.T, database *sql.DB, email string) int64 {
	t.Helper()
	user := &models.User{Username: email, Email: email, PasswordHash: "hash"}
	if err := CreateUser(database, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.ID
}

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	var count int
	err = database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count < 7 {
		t.Errorf("Expected at least 7 tables, got %d", count)
	}

	var mode string
	err = database.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL mode, got %s", mode)
	}
}

func TestOpenDatabaseReinitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("Initial OpenDatabase failed: %v", err)
	}
	database.Close()

	// Re-opening must not fail on existing tables.
	database, err = OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase re-initialization failed: %v", err)
	}
	database.Close()
}

func TestUserCRUD(t *testing.T) {
	database := setupTestDB(t)

	user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}
	if err := CreateUser(database, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Error("CreateUser did not set the id")
	}

	got, err := GetUser(database, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Email != "alice@example.com" {
		t.Errorf("GetUser = %+v, want alice", got)
	}

	byEmail, err := GetUserByEmail(database, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail = %+v, want id %d", byEmail, user.ID)
	}

	missing, err := GetUserByEmail(database, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown email, got %+v", missing)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	database := setupTestDB(t)
	createUser(t, database, "dup@example.com")

	err := CreateUser(database, &models.User{Username: "other", Email: "dup@example.com", PasswordHash: "h"})
	if err == nil {
		t.Error("Expected unique constraint error for duplicate email")
	}
}
