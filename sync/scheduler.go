// ABOUTME: Periodic scheduler driving sync passes over all linked users
// ABOUTME: Fans out per-user work with an in-flight set to prevent overlap
package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/robfig/cron/v3"
)

// UserSyncer is the orchestrator capability the scheduler needs.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID int64) (*SyncResult, error)
}

// Scheduler fires a sync pass on a fixed period. Failures inside a pass are
// logged and contained; nothing propagates back to the timer. A user whose
// previous pass is still in flight is skipped, never queued.
type Scheduler struct {
	syncer    UserSyncer
	listUsers func(ctx context.Context) ([]int64, error)
	logger    *slog.Logger
	spec      string

	cron *cron.Cron

	mu       gosync.Mutex
	inFlight map[int64]struct{}
}

// Every 4 hours, matching the original deployment cadence.
const defaultCronSpec = "0 */4 * * *"

// NewScheduler wires the periodic trigger. listUsers is pluggable so tests
// can drive passes without a database, and spec overrides the default
// 4-hourly cron expression when non-empty.
func NewScheduler(syncer UserSyncer, listUsers func(ctx context.Context) ([]int64, error), logger *slog.Logger, spec string) *Scheduler {
	if spec == "" {
		spec = defaultCronSpec
	}
	return &Scheduler{
		syncer:    syncer,
		listUsers: listUsers,
		logger:    logger,
		spec:      spec,
		inFlight:  make(map[int64]struct{}),
	}
}

// Start registers the cron entry and begins firing passes in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunPass(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync pass: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sync scheduler started", "spec", s.spec)
	return nil
}

// Stop halts the timer. In-flight passes run to completion.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunPass executes one pass over all linked users. Per-user work is
// concurrent and isolated: one user's failure never aborts another's sync.
func (s *Scheduler) RunPass(ctx context.Context) {
	userIDs, err := s.listUsers(ctx)
	if err != nil {
		s.logger.Error("failed to enumerate linked users", "error", err)
		return
	}

	s.logger.Info("starting sync pass", "users", len(userIDs))

	var wg gosync.WaitGroup
	for _, userID := range userIDs {
		if !s.claim(userID) {
			s.logger.Warn("skipping user, previous sync still running", "user_id", userID)
			continue
		}

		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			defer s.release(userID)
			s.syncOne(ctx, userID)
		}(userID)
	}
	wg.Wait()

	s.logger.Info("sync pass finished")
}

func (s *Scheduler) syncOne(ctx context.Context, userID int64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during user sync", "user_id", userID, "panic", r)
		}
	}()

	result, err := s.syncer.SyncUser(ctx, userID)
	if err != nil {
		s.logger.Error("user sync failed", "user_id", userID, "error", err)
		return
	}

	s.logger.Info("user sync complete",
		"user_id", userID,
		"synced", result.Synced,
		"failed", result.Failed,
		"skipped", result.Skipped)
}

// claim marks a user in flight; false means a pass for them is running.
func (s *Scheduler) claim(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.inFlight[userID]; running {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Scheduler) release(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}
