// ABOUTME: Provider capability interface for calendar backends
// ABOUTME: Defines the operations every provider adapter must implement
package sync

import (
	"context"
	"time"

	"habitly/models"
)

// Credential is the result of an OAuth code exchange or token refresh.
// ExpiresIn is the provider-reported lifetime in seconds.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// ExpiresAt converts the relative lifetime into an absolute UTC instant.
func (c *Credential) ExpiresAt(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(c.ExpiresIn) * time.Second)
}

// RemoteEvent is a provider-neutral view of an event fetched from the
// external calendar, used only for the import direction.
type RemoteEvent struct {
	ID          string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}

// Provider is the capability interface implemented once per calendar
// backend. Credentials are threaded explicitly through every call; adapters
// hold OAuth client configuration but never token state. All times crossing
// this boundary are UTC. Every failure returned from these methods must be a
// classified *Error.
type Provider interface {
	// Name identifies the backend.
	Name() models.Provider

	// AuthURL builds the OAuth consent URL for the given CSRF state.
	AuthURL(state string) string

	// ExchangeCode trades an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*Credential, error)

	// RefreshToken trades a refresh token for a fresh credential pair.
	RefreshToken(ctx context.Context, refreshToken string) (*Credential, error)

	// ListEvents fetches events in [from, to); import direction only.
	ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteEvent, error)

	// CreateEvent pushes a new event and returns its external id.
	CreateEvent(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error)

	// UpdateEvent rewrites an existing event in place.
	UpdateEvent(ctx context.Context, accessToken string, eventID string, desc *EventDescriptor) error

	// DeleteEvent removes an event.
	DeleteEvent(ctx context.Context, accessToken string, eventID string) error
}

// Registry resolves a provider tag from the store into an adapter. The
// orchestrator holds adapters only through the Provider interface.
type Registry map[models.Provider]Provider

// Get returns the adapter for a provider tag, or nil.
func (r Registry) Get(p models.Provider) Provider {
	return r[p]
}
