// ABOUTME: OAuth token lifecycle management for calendar links
// ABOUTME: Refreshes credentials inside the expiry buffer, serialized per link
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"habitly/db"
	"habitly/models"
)

// refreshBuffer is the safety margin before expiry within which a refresh is
// forced, so no provider call ever goes out with a nearly-dead token.
const refreshBuffer = 5 * time.Minute

// TokenManager decides whether a stored credential needs refreshing before
// any adapter call, performs the refresh, and persists the result.
//
// Refreshes are serialized per (user, provider): providers rotate the
// refresh token on use, so two concurrent refreshes would strand one caller
// with a dead credential.
type TokenManager struct {
	db        *sql.DB
	providers Registry
	logger    *slog.Logger
	now       func() time.Time

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func NewTokenManager(database *sql.DB, providers Registry, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		db:        database,
		providers: providers,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*gosync.Mutex),
	}
}

// EnsureValid returns a link whose access token is good for at least the
// buffer window, refreshing and persisting if needed.
func (m *TokenManager) EnsureValid(ctx context.Context, link *models.CalendarLink) (*models.CalendarLink, error) {
	lock := m.lockFor(link)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.reload(link)
	if err != nil {
		return nil, err
	}

	if !m.needsRefresh(current) {
		return current, nil
	}

	return m.refreshLocked(ctx, current)
}

// ForceRefresh refreshes regardless of the stored expiry, used when a
// provider rejected a token the store still believed valid. If another
// caller refreshed while we waited for the lock, the newer credential is
// returned without issuing a second refresh.
func (m *TokenManager) ForceRefresh(ctx context.Context, link *models.CalendarLink) (*models.CalendarLink, error) {
	lock := m.lockFor(link)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.reload(link)
	if err != nil {
		return nil, err
	}

	if current.AccessToken != link.AccessToken {
		// A concurrent caller already rotated the credential.
		return current, nil
	}

	return m.refreshLocked(ctx, current)
}

func (m *TokenManager) needsRefresh(link *models.CalendarLink) bool {
	return !m.now().UTC().Before(link.ExpiresAt.Add(-refreshBuffer))
}

func (m *TokenManager) refreshLocked(ctx context.Context, link *models.CalendarLink) (*models.CalendarLink, error) {
	provider := m.providers.Get(link.Provider)
	if provider == nil {
		return nil, newError(KindNotConnected, link.Provider, "refresh",
			fmt.Errorf("no adapter registered for provider %q", link.Provider))
	}

	cred, err := provider.RefreshToken(ctx, link.RefreshToken)
	if err != nil {
		// Classified by the adapter; a rejected grant surfaces as
		// KindAuthInvalid and must reach the caller untouched.
		return nil, err
	}

	updated := &models.CalendarLink{
		UserID:       link.UserID,
		Provider:     link.Provider,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt(m.now()),
	}

	if err := db.UpsertCalendarLink(m.db, updated); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Info("refreshed calendar credential",
		"user_id", link.UserID,
		"provider", link.Provider,
		"expires_at", updated.ExpiresAt)

	return updated, nil
}

// reload re-reads the link inside the lock so the check always runs against
// current store state, not the caller's possibly stale copy.
func (m *TokenManager) reload(link *models.CalendarLink) (*models.CalendarLink, error) {
	current, err := db.GetCalendarLinkForProvider(m.db, link.UserID, link.Provider)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, newError(KindNotConnected, link.Provider, "refresh",
			fmt.Errorf("calendar link gone for user %d", link.UserID))
	}
	return current, nil
}

func (m *TokenManager) lockFor(link *models.CalendarLink) *gosync.Mutex {
	key := fmt.Sprintf("%d/%s", link.UserID, link.Provider)

	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[key]
	if !ok {
		lock = &gosync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}
