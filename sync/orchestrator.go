// ABOUTME: Per-user sync attempt coordinator for the calendar engine
// ABOUTME: Pushes habits and tasks to providers with bounded classified retries
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

// maxAttempts caps provider-error retries per item. AuthExpired
// classifications do not count against this bound.
const maxAttempts = 3

// ItemResult statuses.
const (
	StatusSynced  = "synced"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ItemResult reports the outcome of mirroring one habit or task.
type ItemResult struct {
	ItemType        string `json:"item_type"`
	ItemID          int64  `json:"item_id"`
	Title           string `json:"title"`
	ExternalEventID string `json:"external_event_id,omitempty"`
	Attempts        int    `json:"attempts"`
	Status          string `json:"status"`
	ErrorKind       string `json:"error_kind,omitempty"`
}

// SyncResult aggregates one user's sync pass.
type SyncResult struct {
	UserID   int64           `json:"user_id"`
	Provider models.Provider `json:"provider"`
	Items    []ItemResult    `json:"items"`
	Synced   int             `json:"synced"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
	Success  bool            `json:"success"`
}

// Orchestrator coordinates one user's sync pass: gather items, map them,
// ensure a valid token, push create/update through the provider adapter, and
// persist event refs. Passes for the same user never overlap.
type Orchestrator struct {
	db        *sql.DB
	providers Registry
	tokens    *TokenManager
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu        gosync.Mutex
	userLocks map[int64]*gosync.Mutex
}

func NewOrchestrator(database *sql.DB, providers Registry, tokens *TokenManager, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:        database,
		providers: providers,
		tokens:    tokens,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
		userLocks: make(map[int64]*gosync.Mutex),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SyncUser runs one sync pass for a user. It returns a classified
// KindNotConnected error when the user has no calendar link, and a
// KindAuthInvalid error when the provider revoked the grant mid-pass (the
// partial result is still returned). Items are otherwise independent: one
// item exhausting its retries does not stop the rest.
func (o *Orchestrator) SyncUser(ctx context.Context, userID int64) (*SyncResult, error) {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	link, err := db.GetCalendarLink(o.db, userID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, newError(KindNotConnected, "", "sync user",
			fmt.Errorf("no calendar link for user %d", userID))
	}

	provider := o.providers.Get(link.Provider)
	if provider == nil {
		return nil, newError(KindNotConnected, link.Provider, "sync user",
			fmt.Errorf("no adapter registered for provider %q", link.Provider))
	}

	habits, err := db.ListHabits(o.db, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := db.ListTasks(o.db, userID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{UserID: userID, Provider: link.Provider}
	now := o.now()

	type workItem struct {
		itemType string
		itemID   int64
		title    string
		desc     *EventDescriptor
		mapErr   error
	}

	items := make([]workItem, 0, len(habits)+len(tasks))
	for i := range habits {
		h := &habits[i]
		items = append(items, workItem{models.ItemTypeHabit, h.ID, h.Title, MapHabit(h, now), nil})
	}
	for i := range tasks {
		t := &tasks[i]
		desc, mapErr := MapTask(t, now)
		items = append(items, workItem{models.ItemTypeTask, t.ID, t.Title, desc, mapErr})
	}

	for _, item := range items {
		if item.mapErr != nil {
			// Unmappable item; same treatment as a provider-side
			// validation rejection.
			o.logger.Warn("skipping unmappable item",
				"user_id", userID, "item_type", item.itemType, "item_id", item.itemID, "error", item.mapErr)
			result.record(ItemResult{
				ItemType:  item.itemType,
				ItemID:    item.itemID,
				Title:     item.title,
				Status:    StatusSkipped,
				ErrorKind: KindValidation.String(),
			})
			continue
		}

		itemResult, updatedLink, fatal := o.syncItem(ctx, link, provider, item.itemType, item.itemID, item.title, item.desc)
		link = updatedLink
		result.record(itemResult)

		if fatal != nil {
			// Revoked grant: abort remaining items, the user must
			// reconnect before anything else can succeed.
			o.logger.Error("aborting sync pass",
				"user_id", userID, "provider", link.Provider, "error", fatal)
			result.Success = false
			return result, fatal
		}
	}

	result.Success = result.Failed == 0
	return result, nil
}

// syncItem pushes one item with the bounded retry loop. The possibly
// refreshed link is threaded back to the caller so later items reuse the
// fresh credential. A non-nil fatal error means the whole pass must stop.
func (o *Orchestrator) syncItem(
	ctx context.Context,
	link *models.CalendarLink,
	provider Provider,
	itemType string,
	itemID int64,
	title string,
	desc *EventDescriptor,
) (ItemResult, *models.CalendarLink, error) {
	result := ItemResult{ItemType: itemType, ItemID: itemID, Title: title}

	attempts := 0
	for {
		valid, err := o.tokens.EnsureValid(ctx, link)
		if err != nil {
			if KindOf(err) == KindAuthInvalid {
				result.Status = StatusFailed
				result.ErrorKind = KindAuthInvalid.String()
				result.Attempts = attempts
				return result, link, err
			}
			result.Status = StatusFailed
			result.ErrorKind = KindOf(err).String()
			result.Attempts = attempts
			return result, link, nil
		}
		link = valid

		ref, err := db.GetEventRef(o.db, itemType, itemID, link.Provider)
		if err != nil {
			result.Status = StatusFailed
			result.ErrorKind = KindUnknown.String()
			result.Attempts = attempts
			return result, link, nil
		}

		attempts++

		var opErr error
		externalID := ""
		if ref == nil {
			externalID, opErr = provider.CreateEvent(ctx, link.AccessToken, desc)
			if opErr == nil {
				opErr = db.SaveEventRef(o.db, &models.CalendarEventRef{
					ItemType:        itemType,
					ItemID:          itemID,
					Provider:        link.Provider,
					ExternalEventID: externalID,
				})
			}
		} else {
			externalID = ref.ExternalEventID
			opErr = provider.UpdateEvent(ctx, link.AccessToken, ref.ExternalEventID, desc)
		}

		if opErr == nil {
			result.Status = StatusSynced
			result.ExternalEventID = externalID
			result.Attempts = attempts
			return result, link, nil
		}

		switch KindOf(opErr) {
		case KindAuthExpired:
			// Stale token despite the buffer check (revoked server-side or
			// clock skew). Refresh and retry without consuming an attempt.
			attempts--
			refreshed, refreshErr := o.tokens.ForceRefresh(ctx, link)
			if refreshErr != nil {
				kind := KindOf(refreshErr)
				result.Status = StatusFailed
				result.ErrorKind = kind.String()
				result.Attempts = attempts
				if kind == KindAuthInvalid {
					return result, link, refreshErr
				}
				return result, link, nil
			}
			link = refreshed

		case KindProviderUnavailable:
			if attempts >= maxAttempts {
				o.logger.Warn("item failed after retry cap",
					"item_type", itemType, "item_id", itemID, "attempts", attempts)
				result.Status = StatusFailed
				result.ErrorKind = KindProviderUnavailable.String()
				result.Attempts = attempts
				return result, link, nil
			}
			// Linear backoff: 1s after the first failure, 2s after the second.
			if err := o.sleep(ctx, time.Duration(attempts)*time.Second); err != nil {
				// Deadline hit while backing off; report as a transient
				// failure and let the next pass self-heal.
				result.Status = StatusFailed
				result.ErrorKind = KindProviderUnavailable.String()
				result.Attempts = attempts
				return result, link, nil
			}

		case KindValidation:
			o.logger.Warn("provider rejected event payload",
				"item_type", itemType, "item_id", itemID, "error", opErr)
			result.Status = StatusSkipped
			result.ErrorKind = KindValidation.String()
			result.Attempts = attempts
			return result, link, nil

		case KindAuthInvalid:
			result.Status = StatusFailed
			result.ErrorKind = KindAuthInvalid.String()
			result.Attempts = attempts
			return result, link, opErr

		default:
			result.Status = StatusFailed
			result.ErrorKind = KindOf(opErr).String()
			result.Attempts = attempts
			return result, link, nil
		}
	}
}

// DeleteItemEvents removes the external events and refs for a deleted item.
// Provider-side deletion is best effort: a dangling external event is
// harmless once the ref is gone.
func (o *Orchestrator) DeleteItemEvents(ctx context.Context, userID int64, itemType string, itemID int64) {
	refs, err := db.ListEventRefsForItem(o.db, itemType, itemID)
	if err != nil {
		o.logger.Error("failed to list event refs for deleted item",
			"item_type", itemType, "item_id", itemID, "error", err)
		return
	}

	for _, ref := range refs {
		provider := o.providers.Get(ref.Provider)
		if provider == nil {
			continue
		}

		link, err := db.GetCalendarLinkForProvider(o.db, userID, ref.Provider)
		if err != nil || link == nil {
			continue
		}

		link, err = o.tokens.EnsureValid(ctx, link)
		if err != nil {
			continue
		}

		if err := provider.DeleteEvent(ctx, link.AccessToken, ref.ExternalEventID); err != nil {
			o.logger.Warn("failed to delete external event",
				"provider", ref.Provider, "external_event_id", ref.ExternalEventID, "error", err)
		}
	}

	if err := db.DeleteEventRefsForItem(o.db, itemType, itemID); err != nil {
		o.logger.Error("failed to delete event refs",
			"item_type", itemType, "item_id", itemID, "error", err)
	}
}

func (r *SyncResult) record(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case StatusSynced:
		r.Synced++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
}

func (o *Orchestrator) userLock(userID int64) *gosync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &gosync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}
