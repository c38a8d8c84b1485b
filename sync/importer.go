// ABOUTME: Import direction: provider calendar events become tasks
// ABOUTME: Fetches the next month of events and dedupes through the import log
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"habitly/db"
	"habitly/models"
)

// importWindow is how far ahead the importer looks.
const importWindow = 31 * 24 * time.Hour

// ImportResult reports one import run.
type ImportResult struct {
	Provider models.Provider `json:"provider"`
	Fetched  int             `json:"fetched"`
	Imported int             `json:"imported"`
	Skipped  int             `json:"skipped"`
}

// Importer pulls upcoming provider events into the task list. Events that
// were already imported (or that this app itself exported) are skipped via
// the import log and event refs.
type Importer struct {
	db        *sql.DB
	providers Registry
	tokens    *TokenManager
	logger    *slog.Logger
	now       func() time.Time
}

func NewImporter(database *sql.DB, providers Registry, tokens *TokenManager, logger *slog.Logger) *Importer {
	return &Importer{
		db:        database,
		providers: providers,
		tokens:    tokens,
		logger:    logger,
		now:       time.Now,
	}
}

// ImportForUser fetches the next month of events and creates medium-priority
// tasks for the ones not seen before.
func (i *Importer) ImportForUser(ctx context.Context, userID int64) (*ImportResult, error) {
	link, err := db.GetCalendarLink(i.db, userID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, newError(KindNotConnected, "", "import",
			fmt.Errorf("no calendar link for user %d", userID))
	}

	provider := i.providers.Get(link.Provider)
	if provider == nil {
		return nil, newError(KindNotConnected, link.Provider, "import",
			fmt.Errorf("no adapter registered for provider %q", link.Provider))
	}

	link, err = i.tokens.EnsureValid(ctx, link)
	if err != nil {
		return nil, err
	}

	from := i.now().UTC()
	events, err := provider.ListEvents(ctx, link.AccessToken, from, from.Add(importWindow))
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Provider: link.Provider, Fetched: len(events)}

	for _, event := range events {
		imported, err := db.CheckImported(i.db, link.Provider, event.ID)
		if err != nil {
			return result, err
		}
		if imported || i.isExported(event.ID) {
			result.Skipped++
			continue
		}

		due := event.StartTime
		task := &models.Task{
			UserID:      userID,
			Title:       event.Title,
			Description: event.Description,
			Priority:    models.PriorityMedium,
			DueDate:     &due,
		}
		if err := db.CreateTask(i.db, task); err != nil {
			return result, fmt.Errorf("failed to create task from event: %w", err)
		}

		id := ulid.Make().String()
		if err := db.RecordImport(i.db, id, link.Provider, event.ID, task.ID); err != nil {
			return result, err
		}

		result.Imported++
	}

	i.logger.Info("calendar import complete",
		"user_id", userID,
		"provider", link.Provider,
		"fetched", result.Fetched,
		"imported", result.Imported)

	return result, nil
}

// isExported reports whether this event id was created by our own export
// sync, so we don't import our own mirror back as a task.
func (i *Importer) isExported(externalEventID string) bool {
	var count int
	err := i.db.QueryRow(`
		SELECT COUNT(*) FROM calendar_event_refs WHERE external_event_id = ?
	`, externalEventID).Scan(&count)
	return err == nil && count > 0
}
