// ABOUTME: Tests for calendar link, event ref, and import log operations
// ABOUTME: Covers upsert semantics, uniqueness, and cascading disconnect
package db

import (
	"testing"
	"time"

	"habitly/models"
)

func testLink(userID int64, provider models.Provider) *models.CalendarLink {
	return &models.CalendarLink{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
}

func TestUpsertCalendarLink(t *testing.T) {
	database := setupTestDB(t)
	userID := createUser(t, database, "link@example.com")

	link := testLink(userID, models.ProviderGoogle)
	if err := UpsertCalendarLink(database, link); err != nil {
		t.Fatalf("UpsertCalendarLink failed: %v", err)
	}

	// Upserting again must replace, not duplicate.
	link.AccessToken = "access-2"
	if err := UpsertCalendarLink(database, link); err != nil {
		t.Fatalf("second UpsertCalendarLink failed: %v", err)
	}

	links, err := ListCalendarLinks(database, userID)
	if err != nil {
		t.Fatalf("ListCalendarLinks failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("Expected 1 link after upsert, got %d", len(links))
	}

	got, err := GetCalendarLinkForProvider(database, userID, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("GetCalendarLinkForProvider failed: %v", err)
	}
	if got == nil || got.AccessToken != "access-2" {
		t.Errorf("link not replaced: %+v", got)
	}
}

func TestGetCalendarLinkNone(t *testing.T) {
	database := setupTestDB(t)
	userID := createUser(t, database, "nolink@example.com")

	got, err := GetCalendarLink(database, userID)
	if err != nil {
		t.Fatalf("GetCalendarLink failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil without a link, got %+v", got)
	}
}

func TestListLinkedUserIDs(t *testing.T) {
	database := setupTestDB(t)
	alice := createUser(t, database, "la@example.com")
	bob := createUser(t, database, "lb@example.com")
	createUser(t, database, "lc@example.com") // never linked

	if err := UpsertCalendarLink(database, testLink(alice, models.ProviderGoogle)); err != nil {
		t.Fatalf("UpsertCalendarLink failed: %v", err)
	}
	// Alice has two providers but must appear once.
	if err := UpsertCalendarLink(database, testLink(alice, models.ProviderMicrosoft)); err != nil {
		t.Fatalf("UpsertCalendarLink failed: %v", err)
	}
	if err := UpsertCalendarLink(database, testLink(bob, models.ProviderMicrosoft)); err != nil {
		t.Fatalf("UpsertCalendarLink failed: %v", err)
	}

	ids, err := ListLinkedUserIDs(database)
	if err != nil {
		t.Fatalf("ListLinkedUserIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 linked users, got %v", ids)
	}
}

func TestEventRefUpsert(t *testing.T) {
	database := setupTestDB(t)
	userID := createUser(t, database, "refs@example.com")

	habit := &models.Habit{UserID: userID, Title: "Run", Frequency: models.FrequencyDaily}
	if err := CreateHabit(database, habit); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}

	ref := &models.CalendarEventRef{
		ItemType:        models.ItemTypeHabit,
		ItemID:          habit.ID,
		Provider:        models.ProviderGoogle,
		ExternalEventID: "evt-1",
	}
	if err := SaveEventRef(database, ref); err != nil {
		t.Fatalf("SaveEventRef failed: %v", err)
	}

	// Same item+provider with a new external id replaces the row.
	ref.ExternalEventID = "evt-2"
	if err := SaveEventRef(database, ref); err != nil {
		t.Fatalf("second SaveEventRef failed: %v", err)
	}

	got, err := GetEventRef(database, models.ItemTypeHabit, habit.ID, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("GetEventRef failed: %v", err)
	}
	if got == nil || got.ExternalEventID != "evt-2" {
		t.Errorf("ref not replaced: %+v", got)
	}

	refs, err := ListEventRefsForItem(database, models.ItemTypeHabit, habit.ID)
	if err != nil {
		t.Fatalf("ListEventRefsForItem failed: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("Expected 1 ref, got %d", len(refs))
	}
}

func TestDeleteCalendarLinkRemovesRefs(t *testing.T) {
	database := setupTestDB(t)
	userID := createUser(t, database, "disconnect@example.com")

	if err := UpsertCalendarLink(database, testLink(userID, models.ProviderGoogle)); err != nil {
		t.Fatalf("UpsertCalendarLink failed: %v", err)
	}

	habit := &models.Habit{UserID: userID, Title: "Run", Frequency: models.FrequencyDaily}
	if err := CreateHabit(database, habit); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if err := SaveEventRef(database, &models.CalendarEventRef{
		ItemType: models.ItemTypeHabit, ItemID: habit.ID,
		Provider: models.ProviderGoogle, ExternalEventID: "evt-1",
	}); err != nil {
		t.Fatalf("SaveEventRef failed: %v", err)
	}

	if err := DeleteCalendarLink(database, userID, models.ProviderGoogle); err != nil {
		t.Fatalf("DeleteCalendarLink failed: %v", err)
	}

	link, err := GetCalendarLinkForProvider(database, userID, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("GetCalendarLinkForProvider failed: %v", err)
	}
	if link != nil {
		t.Error("link still present after disconnect")
	}

	refs, err := ListEventRefsForItem(database, models.ItemTypeHabit, habit.ID)
	if err != nil {
		t.Fatalf("ListEventRefsForItem failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("refs survived disconnect: %+v", refs)
	}
}

func TestImportLog(t *testing.T) {
	database := setupTestDB(t)
	userID := createUser(t, database, "importlog@example.com")

	task := &models.Task{UserID: userID, Title: "Imported", Priority: models.PriorityMedium}
	if err := CreateTask(database, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	seen, err := CheckImported(database, models.ProviderGoogle, "ext-1")
	if err != nil {
		t.Fatalf("CheckImported failed: %v", err)
	}
	if seen {
		t.Error("event should not be imported yet")
	}

	if err := RecordImport(database, "01ARZ3NDEKTSV4RRFFQ69G5FAV", models.ProviderGoogle, "ext-1", task.ID); err != nil {
		t.Fatalf("RecordImport failed: %v", err)
	}

	seen, err = CheckImported(database, models.ProviderGoogle, "ext-1")
	if err != nil {
		t.Fatalf("CheckImported failed: %v", err)
	}
	if !seen {
		t.Error("event should be recorded as imported")
	}

	// Same external id on the other provider is a different event.
	seen, err = CheckImported(database, models.ProviderMicrosoft, "ext-1")
	if err != nil {
		t.Fatalf("CheckImported failed: %v", err)
	}
	if seen {
		t.Error("import log leaked across providers")
	}
}
