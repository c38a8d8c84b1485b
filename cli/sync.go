// ABOUTME: Manual sync CLI command
// ABOUTME: Runs one calendar sync pass for a single user or all linked users
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"habitly/db"
	"habitly/sync"
)

// SyncCommand runs one sync pass from the terminal. With -user it syncs a
// single account; otherwise it walks every user with a calendar link.
func SyncCommand(database *sql.DB, orch *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	userID := fs.Int64("user", 0, "Sync only this user id")
	_ = fs.Parse(args)

	ctx := context.Background()

	userIDs := []int64{*userID}
	if *userID == 0 {
		var err error
		userIDs, err = db.ListLinkedUserIDs(database)
		if err != nil {
			return err
		}
		if len(userIDs) == 0 {
			fmt.Println("No users with linked calendars.")
			return nil
		}
	}

	var failures int
	for _, id := range userIDs {
		result, err := orch.SyncUser(ctx, id)
		if err != nil {
			failures++
			fmt.Printf("user %d: sync failed: %v\n", id, err)
			continue
		}
		fmt.Printf("user %d: %d synced, %d failed, %d skipped\n",
			id, result.Synced, result.Failed, result.Skipped)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d users failed to sync", failures, len(userIDs))
	}
	return nil
}
