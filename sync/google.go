// ABOUTME: Google Calendar provider adapter
// ABOUTME: Implements the Provider interface against the Calendar v3 API
package sync

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"habitly/models"
)

const googleCalendarID = "primary"

// GoogleProvider talks to the Google Calendar v3 API. It holds only OAuth
// client configuration; access tokens are passed into every call.
type GoogleProvider struct {
	config *oauth2.Config

	// endpoint overrides the Calendar API base URL in tests.
	endpoint string
}

// NewGoogleProvider builds the adapter from OAuth client credentials.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() models.Provider {
	return models.ProviderGoogle
}

func (p *GoogleProvider) AuthURL(state string) string {
	// offline + consent so Google issues a refresh token every time.
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, p.classifyToken("exchange code", err)
	}
	return tokenCredential(token), nil
}

func (p *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (*Credential, error) {
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, p.classifyToken("refresh token", err)
	}

	cred := tokenCredential(token)
	if cred.RefreshToken == "" {
		// Google omits the refresh token when it is unchanged.
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func (p *GoogleProvider) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteEvent, error) {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Events.List(googleCalendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, p.classify("list events", err)
	}

	var events []RemoteEvent
	for _, item := range resp.Items {
		// Skip all-day events (they carry Date instead of DateTime) and
		// anything missing either endpoint of its time range.
		if item.Start == nil || item.Start.DateTime == "" {
			continue
		}
		if item.End == nil || item.End.DateTime == "" {
			continue
		}

		start, _ := time.Parse(time.RFC3339, item.Start.DateTime)
		end, _ := time.Parse(time.RFC3339, item.End.DateTime)

		events = append(events, RemoteEvent{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
			StartTime:   start.UTC(),
			EndTime:     end.UTC(),
		})
	}

	return events, nil
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(googleCalendarID, p.toGoogleEvent(desc)).Context(ctx).Do()
	if err != nil {
		return "", p.classify("create event", err)
	}

	return created.Id, nil
}

func (p *GoogleProvider) UpdateEvent(ctx context.Context, accessToken string, eventID string, desc *EventDescriptor) error {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return err
	}

	if _, err := svc.Events.Update(googleCalendarID, eventID, p.toGoogleEvent(desc)).Context(ctx).Do(); err != nil {
		return p.classify("update event", err)
	}
	return nil
}

func (p *GoogleProvider) DeleteEvent(ctx context.Context, accessToken string, eventID string) error {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(googleCalendarID, eventID).Context(ctx).Do(); err != nil {
		return p.classify("delete event", err)
	}
	return nil
}

func (p *GoogleProvider) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	opts := []option.ClientOption{option.WithTokenSource(src)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, newError(KindProviderUnavailable, models.ProviderGoogle, "create service", err)
	}
	return svc, nil
}

func (p *GoogleProvider) toGoogleEvent(desc *EventDescriptor) *calendar.Event {
	event := &calendar.Event{
		Summary:     desc.Title,
		Description: desc.Description,
		Start: &calendar.EventDateTime{
			DateTime: desc.StartTime.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: desc.EndTime.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      true,
			ForceSendFields: []string{"UseDefault"},
		},
	}

	if desc.Recurrence != "" {
		event.Recurrence = []string{"RRULE:" + desc.Recurrence}
	}

	return event
}

// classify maps Calendar API failures onto the sync error taxonomy.
func (p *GoogleProvider) classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return newError(KindAuthExpired, models.ProviderGoogle, op, err)
		case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusUnprocessableEntity:
			return newError(KindValidation, models.ProviderGoogle, op, err)
		case apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusTooManyRequests:
			// 403 from Calendar is almost always rate limiting.
			return newError(KindProviderUnavailable, models.ProviderGoogle, op, err)
		case apiErr.Code >= 500:
			return newError(KindProviderUnavailable, models.ProviderGoogle, op, err)
		}
		return newError(KindUnknown, models.ProviderGoogle, op, err)
	}

	// Transport-level failure (DNS, timeout, connection reset).
	return newError(KindProviderUnavailable, models.ProviderGoogle, op, err)
}

// classifyToken maps token endpoint failures. A rejected grant means the
// refresh token was revoked and the user must reconnect.
func (p *GoogleProvider) classifyToken(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized {
			return newError(KindAuthInvalid, models.ProviderGoogle, op, err)
		}
		return newError(KindProviderUnavailable, models.ProviderGoogle, op, err)
	}
	return newError(KindProviderUnavailable, models.ProviderGoogle, op, err)
}

func tokenCredential(token *oauth2.Token) *Credential {
	expiresIn := int64(time.Until(token.Expiry) / time.Second)
	if token.Expiry.IsZero() {
		expiresIn = 3600
	}
	return &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    expiresIn,
	}
}
