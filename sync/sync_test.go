// ABOUTME: Shared test fixtures for the sync package
// ABOUTME: Provides a scriptable fake provider and a temp database helper
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"habitly/db"
	"habitly/models"
)

// testLogger discards everything.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is a scriptable Provider for exercising the orchestrator and
// token manager without network access.
type fakeProvider struct {
	name models.Provider

	refreshFn func(ctx context.Context, refreshToken string) (*Credential, error)
	createFn  func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error)
	updateFn  func(ctx context.Context, accessToken, eventID string, desc *EventDescriptor) error
	deleteFn  func(ctx context.Context, accessToken, eventID string) error
	listFn    func(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteEvent, error)

	refreshCalls int
	createCalls  int
	updateCalls  int
	deleteCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{name: models.ProviderGoogle}
}

func (f *fakeProvider) Name() models.Provider { return f.name }

func (f *fakeProvider) AuthURL(state string) string {
	return "https://example.com/auth?state=" + state
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	return &Credential{AccessToken: "at-" + code, RefreshToken: "rt-" + code, ExpiresIn: 3600}, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*Credential, error) {
	f.refreshCalls++
	if f.refreshFn != nil {
		return f.refreshFn(ctx, refreshToken)
	}
	return &Credential{
		AccessToken:  fmt.Sprintf("refreshed-%d", f.refreshCalls),
		RefreshToken: "rotated-" + refreshToken,
		ExpiresIn:    3600,
	}, nil
}

func (f *fakeProvider) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteEvent, error) {
	if f.listFn != nil {
		return f.listFn(ctx, accessToken, from, to)
	}
	return nil, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
	f.createCalls++
	if f.createFn != nil {
		return f.createFn(ctx, accessToken, desc)
	}
	return fmt.Sprintf("evt-%d", f.createCalls), nil
}

func (f *fakeProvider) UpdateEvent(ctx context.Context, accessToken, eventID string, desc *EventDescriptor) error {
	f.updateCalls++
	if f.updateFn != nil {
		return f.updateFn(ctx, accessToken, eventID, desc)
	}
	return nil
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	f.deleteCalls++
	if f.deleteFn != nil {
		return f.deleteFn(ctx, accessToken, eventID)
	}
	return nil
}

// openTestDB returns a schema-initialized database in a temp dir.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// createTestUser inserts a user and returns its id.
func createTestUser(t *testing.T, database *sql.DB, email string) int64 {
	t.Helper()
	user := &models.User{Username: "tester", Email: email, PasswordHash: "x"}
	if err := db.CreateUser(database, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

// linkCalendar stores a calendar link expiring an hour out.
func linkCalendar(t *testing.T, database *sql.DB, userID int64, provider models.Provider) *models.CalendarLink {
	t.Helper()
	link := &models.CalendarLink{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  "access-initial",
		RefreshToken: "refresh-initial",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
	if err := db.UpsertCalendarLink(database, link); err != nil {
		t.Fatalf("failed to link calendar: %v", err)
	}
	return link
}
