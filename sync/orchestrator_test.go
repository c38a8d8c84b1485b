// ABOUTME: Tests for the per-user sync orchestrator
// ABOUTME: Covers retries, token refresh mid-pass, aborts, and idempotency
package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitly/db"
	"habitly/models"
)

func TestSyncUserCreatesEventsAndRefs(t *testing.T) {
	provider := newFakeProvider()
	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "a@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)

	habit := &models.Habit{UserID: userID, Title: "Run", Frequency: models.FrequencyDaily}
	require.NoError(t, db.CreateHabit(database, habit))
	due := tuesdayMorning.Add(48 * time.Hour)
	task := &models.Task{UserID: userID, Title: "Taxes", Priority: models.PriorityHigh, DueDate: &due}
	require.NoError(t, db.CreateTask(database, task))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, provider.createCalls)
	assert.Equal(t, 0, provider.updateCalls)

	ref, err := db.GetEventRef(database, models.ItemTypeHabit, habit.ID, models.ProviderGoogle)
	require.NoError(t, err)
	require.NotNil(t, ref, "habit must have an event ref after sync")
	assert.NotEmpty(t, ref.ExternalEventID)

	for _, item := range result.Items {
		assert.Equal(t, 1, item.Attempts)
		assert.Equal(t, StatusSynced, item.Status)
	}
}

func TestSyncUserSecondPassUpdates(t *testing.T) {
	provider := newFakeProvider()
	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "b@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Run", Frequency: models.FrequencyDaily,
	}))

	_, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)
	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	// Idempotent: one create on the first pass, one update on the second.
	assert.Equal(t, 1, provider.createCalls)
	assert.Equal(t, 1, provider.updateCalls)
	assert.Equal(t, 1, result.Synced)
}

func TestSyncUserNotConnected(t *testing.T) {
	provider := newFakeProvider()
	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())

	userID := createTestUser(t, database, "c@example.com")

	_, err := orch.SyncUser(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, KindNotConnected, KindOf(err))
	assert.Equal(t, 0, provider.createCalls, "no provider call without a link")
}

func TestSyncUserRetriesTransientFailure(t *testing.T) {
	provider := newFakeProvider()
	failures := 2
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		if failures > 0 {
			failures--
			return "", newError(KindProviderUnavailable, provider.name, "create event", errors.New("503"))
		}
		return "evt-ok", nil
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }
	var sleeps []time.Duration
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	userID := createTestUser(t, database, "d@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Run", Frequency: models.FrequencyDaily,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	// Two failures then success on the third and final attempt.
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusSynced, result.Items[0].Status)
	assert.Equal(t, 3, result.Items[0].Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps, "linear backoff")
}

func TestSyncUserFailsAtRetryCap(t *testing.T) {
	provider := newFakeProvider()
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		return "", newError(KindProviderUnavailable, provider.name, "create event", errors.New("503"))
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }
	orch.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	userID := createTestUser(t, database, "e@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Run", Frequency: models.FrequencyDaily,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err, "exhausted retries are not a pass-level error")

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFailed, result.Items[0].Status)
	assert.Equal(t, 3, result.Items[0].Attempts)
	assert.Equal(t, KindProviderUnavailable.String(), result.Items[0].ErrorKind)
	assert.False(t, result.Success)
	assert.Equal(t, 3, provider.createCalls, "exactly the attempt cap, no more")

	// No ref was written for the failed item.
	refs, err := db.ListEventRefsForItem(database, models.ItemTypeHabit, result.Items[0].ItemID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSyncUserItemsAreIndependent(t *testing.T) {
	provider := newFakeProvider()
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		if desc.Title == "[Habit] Broken" {
			return "", newError(KindProviderUnavailable, provider.name, "create event", errors.New("503"))
		}
		return "evt-ok", nil
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }
	orch.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	userID := createTestUser(t, database, "f@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Broken", Frequency: models.FrequencyDaily,
	}))
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Fine", Frequency: models.FrequencyDaily,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Success)
}

func TestSyncUserRefreshesMidPassWithoutConsumingAttempt(t *testing.T) {
	provider := newFakeProvider()
	rejected := false
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		if !rejected {
			rejected = true
			return "", newError(KindAuthExpired, provider.name, "create event", errors.New("401"))
		}
		return "evt-ok", nil
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		t.Error("auth refresh must not back off")
		return nil
	}

	userID := createTestUser(t, database, "g@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Run", Frequency: models.FrequencyDaily,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusSynced, result.Items[0].Status)
	assert.Equal(t, 1, result.Items[0].Attempts, "auth retry does not count against the cap")
	assert.Equal(t, 1, provider.refreshCalls)
	assert.Equal(t, 2, provider.createCalls)
}

func TestSyncUserAbortsOnRevokedGrant(t *testing.T) {
	provider := newFakeProvider()
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		return "", newError(KindAuthInvalid, provider.name, "create event", errors.New("invalid_grant"))
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "h@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	for _, title := range []string{"One", "Two", "Three"} {
		require.NoError(t, db.CreateHabit(database, &models.Habit{
			UserID: userID, Title: title, Frequency: models.FrequencyDaily,
		}))
	}

	result, err := orch.SyncUser(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, KindAuthInvalid, KindOf(err))

	// Remaining items were abandoned, but the partial result reports the one
	// that was attempted.
	require.NotNil(t, result)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 1, provider.createCalls)
}

func TestSyncUserSkipsUnmappableTask(t *testing.T) {
	provider := newFakeProvider()
	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "i@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateTask(database, &models.Task{
		UserID: userID, Title: "No due date", Priority: models.PriorityLow,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusSkipped, result.Items[0].Status)
	assert.Equal(t, KindValidation.String(), result.Items[0].ErrorKind)
	assert.True(t, result.Success, "skips do not fail the pass")
	assert.Equal(t, 0, provider.createCalls)
}

func TestSyncUserSkipsProviderRejectedPayload(t *testing.T) {
	provider := newFakeProvider()
	provider.createFn = func(ctx context.Context, accessToken string, desc *EventDescriptor) (string, error) {
		return "", newError(KindValidation, provider.name, "create event", errors.New("400"))
	}

	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "j@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	require.NoError(t, db.CreateHabit(database, &models.Habit{
		UserID: userID, Title: "Odd", Frequency: models.FrequencyDaily,
	}))

	result, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusSkipped, result.Items[0].Status)
	assert.Equal(t, 1, provider.createCalls, "validation rejections are not retried")
}

func TestDeleteItemEvents(t *testing.T) {
	provider := newFakeProvider()
	database := openTestDB(t)
	registry := Registry{provider.name: provider}
	tokens := NewTokenManager(database, registry, testLogger())
	orch := NewOrchestrator(database, registry, tokens, testLogger())
	orch.now = func() time.Time { return tuesdayMorning }

	userID := createTestUser(t, database, "k@example.com")
	linkCalendar(t, database, userID, models.ProviderGoogle)
	habit := &models.Habit{UserID: userID, Title: "Run", Frequency: models.FrequencyDaily}
	require.NoError(t, db.CreateHabit(database, habit))

	_, err := orch.SyncUser(context.Background(), userID)
	require.NoError(t, err)

	orch.DeleteItemEvents(context.Background(), userID, models.ItemTypeHabit, habit.ID)

	assert.Equal(t, 1, provider.deleteCalls)
	refs, err := db.ListEventRefsForItem(database, models.ItemTypeHabit, habit.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)
}
