// ABOUTME: Microsoft Outlook calendar provider adapter
// ABOUTME: Implements the Provider interface against the Graph v1.0 REST API
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"habitly/models"
)

const (
	msGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	outlookTimeFormat = "2006-01-02T15:04:05"
)

// MicrosoftProvider talks to Microsoft Graph. Like the Google adapter it is
// stateless with respect to tokens.
type MicrosoftProvider struct {
	config  *oauth2.Config
	client  *http.Client
	baseURL string
}

// NewMicrosoftProvider builds the adapter from OAuth client credentials.
func NewMicrosoftProvider(clientID, clientSecret, redirectURL string) *MicrosoftProvider {
	return &MicrosoftProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"offline_access", "Calendars.ReadWrite"},
			Endpoint:     microsoft.AzureADEndpoint("common"),
		},
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: msGraphBaseURL,
	}
}

func (p *MicrosoftProvider) Name() models.Provider {
	return models.ProviderMicrosoft
}

func (p *MicrosoftProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *MicrosoftProvider) ExchangeCode(ctx context.Context, code string) (*Credential, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, p.classifyToken("exchange code", err)
	}
	return tokenCredential(token), nil
}

func (p *MicrosoftProvider) RefreshToken(ctx context.Context, refreshToken string) (*Credential, error) {
	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, p.classifyToken("refresh token", err)
	}

	cred := tokenCredential(token)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func (p *MicrosoftProvider) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteEvent, error) {
	params := url.Values{}
	params.Set("$orderby", "start/dateTime")
	params.Set("$filter", fmt.Sprintf("start/dateTime ge '%s' and end/dateTime le '%s'",
		from.UTC().Format(outlookTimeFormat), to.UTC().Format(outlookTimeFormat)))

	endpoint := p.baseURL + "/me/calendar/events?" + params.Encode()

	resp, err := p.do(ctx, accessToken, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, p.classify("list events", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, p.classify("list events", p.statusError(resp), resp.StatusCode)
	}

	var result struct {
		Value []outlookEvent `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newError(KindProviderUnavailable, models.ProviderMicrosoft, "list events", err)
	}

	events := make([]RemoteEvent, 0, len(result.Value))
	for _, ev := range result.Value {
		events = append(events, ev.toRemote())
	}
	return events, nil
}

func (p *MicrosoftProvider) CreateEvent(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
	body, err := json.Marshal(p.toOutlookEvent(desc))
	if err != nil {
		return "", newError(KindValidation, models.ProviderMicrosoft, "create event", err)
	}

	resp, err := p.do(ctx, accessToken, http.MethodPost, p.baseURL+"/me/calendar/events", body)
	if err != nil {
		return "", p.classify("create event", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return "", p.classify("create event", p.statusError(resp), resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", newError(KindProviderUnavailable, models.ProviderMicrosoft, "create event", err)
	}
	return created.ID, nil
}

func (p *MicrosoftProvider) UpdateEvent(ctx context.Context, accessToken string, eventID string, desc *EventDescriptor) error {
	body, err := json.Marshal(p.toOutlookEvent(desc))
	if err != nil {
		return newError(KindValidation, models.ProviderMicrosoft, "update event", err)
	}

	resp, err := p.do(ctx, accessToken, http.MethodPatch, p.baseURL+"/me/calendar/events/"+eventID, body)
	if err != nil {
		return p.classify("update event", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return p.classify("update event", p.statusError(resp), resp.StatusCode)
	}
	return nil
}

func (p *MicrosoftProvider) DeleteEvent(ctx context.Context, accessToken string, eventID string) error {
	resp, err := p.do(ctx, accessToken, http.MethodDelete, p.baseURL+"/me/calendar/events/"+eventID, nil)
	if err != nil {
		return p.classify("delete event", err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return p.classify("delete event", p.statusError(resp), resp.StatusCode)
	}
	return nil
}

func (p *MicrosoftProvider) do(ctx context.Context, accessToken, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return p.client.Do(req)
}

func (p *MicrosoftProvider) statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("graph returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// classify maps a Graph response status (or transport error when status is
// zero) onto the sync error taxonomy.
func (p *MicrosoftProvider) classify(op string, err error, status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return newError(KindAuthExpired, models.ProviderMicrosoft, op, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return newError(KindValidation, models.ProviderMicrosoft, op, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return newError(KindProviderUnavailable, models.ProviderMicrosoft, op, err)
	case status == 0:
		// No HTTP status at all: transport failure.
		return newError(KindProviderUnavailable, models.ProviderMicrosoft, op, err)
	}
	return newError(KindUnknown, models.ProviderMicrosoft, op, err)
}

func (p *MicrosoftProvider) classifyToken(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized {
			return newError(KindAuthInvalid, models.ProviderMicrosoft, op, err)
		}
		return newError(KindProviderUnavailable, models.ProviderMicrosoft, op, err)
	}
	return newError(KindProviderUnavailable, models.ProviderMicrosoft, op, err)
}

type outlookEvent struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Start outlookDateTime `json:"start"`
	End   outlookDateTime `json:"end"`
}

type outlookDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

func (ev *outlookEvent) toRemote() RemoteEvent {
	start, _ := time.ParseInLocation(outlookTimeFormat, ev.Start.DateTime, time.UTC)
	end, _ := time.ParseInLocation(outlookTimeFormat, ev.End.DateTime, time.UTC)

	return RemoteEvent{
		ID:          ev.ID,
		Title:       ev.Subject,
		Description: ev.Body.Content,
		StartTime:   start,
		EndTime:     end,
	}
}

func (p *MicrosoftProvider) toOutlookEvent(desc *EventDescriptor) map[string]any {
	event := map[string]any{
		"subject": desc.Title,
		"body": map[string]string{
			"contentType": "text",
			"content":     desc.Description,
		},
		"start": outlookDateTime{
			DateTime: desc.StartTime.UTC().Format(outlookTimeFormat),
			TimeZone: "UTC",
		},
		"end": outlookDateTime{
			DateTime: desc.EndTime.UTC().Format(outlookTimeFormat),
			TimeZone: "UTC",
		},
	}

	if rec := p.toRecurrence(desc); rec != nil {
		event["recurrence"] = rec
	}

	return event
}

// toRecurrence translates the descriptor's RRULE body into Graph's
// patternedRecurrence shape. Graph has no free-form RRULE field.
func (p *MicrosoftProvider) toRecurrence(desc *EventDescriptor) map[string]any {
	var pattern map[string]any

	switch desc.Recurrence {
	case "FREQ=DAILY":
		pattern = map[string]any{"type": "daily", "interval": 1}
	case "FREQ=WEEKLY":
		pattern = map[string]any{
			"type":       "weekly",
			"interval":   1,
			"daysOfWeek": []string{strings.ToLower(desc.StartTime.UTC().Weekday().String())},
		}
	case "FREQ=MONTHLY":
		pattern = map[string]any{
			"type":       "absoluteMonthly",
			"interval":   1,
			"dayOfMonth": desc.StartTime.UTC().Day(),
		}
	default:
		return nil
	}

	return map[string]any{
		"pattern": pattern,
		"range": map[string]any{
			"type":      "noEnd",
			"startDate": desc.StartTime.UTC().Format("2006-01-02"),
		},
	}
}
