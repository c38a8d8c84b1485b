// ABOUTME: Database operations for calendar links, event refs, and import log
// ABOUTME: Manages OAuth credentials and the idempotency records for sync
package db

import (
	"database/sql"
	"fmt"
	"time"

	"habitly/models"
)

// UpsertCalendarLink inserts or replaces the link for (user, provider).
// The store guarantees at most one row per pair.
func UpsertCalendarLink(db *sql.DB, link *models.CalendarLink) error {
	_, err := db.Exec(`
		INSERT INTO calendar_links (user_id, provider, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, link.UserID, string(link.Provider), link.AccessToken, link.RefreshToken, link.ExpiresAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert calendar link: %w", err)
	}
	return nil
}

// GetCalendarLink returns the user's link for any provider, or nil if the
// user has no calendar connected.
func GetCalendarLink(db *sql.DB, userID int64) (*models.CalendarLink, error) {
	return scanLink(db.QueryRow(`
		SELECT user_id, provider, access_token, refresh_token, expires_at
		FROM calendar_links WHERE user_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`, userID))
}

// GetCalendarLinkForProvider returns the user's link for one provider, or nil.
func GetCalendarLinkForProvider(db *sql.DB, userID int64, provider models.Provider) (*models.CalendarLink, error) {
	return scanLink(db.QueryRow(`
		SELECT user_id, provider, access_token, refresh_token, expires_at
		FROM calendar_links WHERE user_id = ? AND provider = ?
	`, userID, string(provider)))
}

func scanLink(row *sql.Row) (*models.CalendarLink, error) {
	link := &models.CalendarLink{}
	var provider string
	var expiresAt time.Time

	err := row.Scan(&link.UserID, &provider, &link.AccessToken, &link.RefreshToken, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar link: %w", err)
	}

	link.Provider = models.Provider(provider)
	link.ExpiresAt = expiresAt.UTC()
	return link, nil
}

// ListCalendarLinks returns all links for a user.
func ListCalendarLinks(db *sql.DB, userID int64) ([]models.CalendarLink, error) {
	rows, err := db.Query(`
		SELECT user_id, provider, access_token, refresh_token, expires_at
		FROM calendar_links WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []models.CalendarLink
	for rows.Next() {
		var link models.CalendarLink
		var provider string
		var expiresAt time.Time

		if err := rows.Scan(&link.UserID, &provider, &link.AccessToken, &link.RefreshToken, &expiresAt); err != nil {
			return nil, err
		}
		link.Provider = models.Provider(provider)
		link.ExpiresAt = expiresAt.UTC()
		links = append(links, link)
	}

	return links, rows.Err()
}

// DeleteCalendarLink removes the link and all event refs for that provider,
// so a later reconnect starts from a clean slate instead of updating events
// that may no longer exist.
func DeleteCalendarLink(db *sql.DB, userID int64, provider models.Provider) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM calendar_links WHERE user_id = ? AND provider = ?
	`, userID, string(provider)); err != nil {
		return fmt.Errorf("failed to delete calendar link: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM calendar_event_refs
		WHERE provider = ? AND (
			(item_type = 'habit' AND item_id IN (SELECT id FROM habits WHERE user_id = ?)) OR
			(item_type = 'task' AND item_id IN (SELECT id FROM tasks WHERE user_id = ?))
		)
	`, string(provider), userID, userID); err != nil {
		return fmt.Errorf("failed to delete event refs: %w", err)
	}

	return tx.Commit()
}

// ListLinkedUserIDs returns the ids of all users holding at least one
// calendar link. Drives the scheduler's pass.
func ListLinkedUserIDs(db *sql.DB) ([]int64, error) {
	rows, err := db.Query(`SELECT DISTINCT user_id FROM calendar_links ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SaveEventRef records the external event id for an item. Upsert keeps the
// (item_type, item_id, provider) uniqueness invariant.
func SaveEventRef(db *sql.DB, ref *models.CalendarEventRef) error {
	_, err := db.Exec(`
		INSERT INTO calendar_event_refs (item_type, item_id, provider, external_event_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(item_type, item_id, provider) DO UPDATE SET
			external_event_id = excluded.external_event_id
	`, ref.ItemType, ref.ItemID, string(ref.Provider), ref.ExternalEventID)

	if err != nil {
		return fmt.Errorf("failed to save event ref: %w", err)
	}
	return nil
}

// GetEventRef returns the ref for an item, or nil if the item has never been
// pushed to that provider.
func GetEventRef(db *sql.DB, itemType string, itemID int64, provider models.Provider) (*models.CalendarEventRef, error) {
	ref := &models.CalendarEventRef{}
	var prov string

	err := db.QueryRow(`
		SELECT item_type, item_id, provider, external_event_id
		FROM calendar_event_refs
		WHERE item_type = ? AND item_id = ? AND provider = ?
	`, itemType, itemID, string(provider)).Scan(&ref.ItemType, &ref.ItemID, &prov, &ref.ExternalEventID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event ref: %w", err)
	}

	ref.Provider = models.Provider(prov)
	return ref, nil
}

// ListEventRefsForItem returns all refs across providers for one item.
func ListEventRefsForItem(db *sql.DB, itemType string, itemID int64) ([]models.CalendarEventRef, error) {
	rows, err := db.Query(`
		SELECT item_type, item_id, provider, external_event_id
		FROM calendar_event_refs WHERE item_type = ? AND item_id = ?
	`, itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event refs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []models.CalendarEventRef
	for rows.Next() {
		var ref models.CalendarEventRef
		var prov string
		if err := rows.Scan(&ref.ItemType, &ref.ItemID, &prov, &ref.ExternalEventID); err != nil {
			return nil, err
		}
		ref.Provider = models.Provider(prov)
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// DeleteEventRefsForItem removes all refs for one item (item deleted).
func DeleteEventRefsForItem(db *sql.DB, itemType string, itemID int64) error {
	_, err := db.Exec(`
		DELETE FROM calendar_event_refs WHERE item_type = ? AND item_id = ?
	`, itemType, itemID)
	return err
}

// CheckImported reports whether a provider event was already imported.
func CheckImported(db *sql.DB, provider models.Provider, externalEventID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM import_log WHERE provider = ? AND external_event_id = ?
	`, string(provider), externalEventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check import log: %w", err)
	}
	return count > 0, nil
}

// RecordImport creates an import log entry for an imported provider event.
func RecordImport(db *sql.DB, id string, provider models.Provider, externalEventID string, taskID int64) error {
	_, err := db.Exec(`
		INSERT INTO import_log (id, provider, external_event_id, task_id)
		VALUES (?, ?, ?, ?)
	`, id, string(provider), externalEventID, taskID)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}
