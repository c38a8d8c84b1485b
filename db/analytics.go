// ABOUTME: Aggregate queries behind the analytics report
// ABOUTME: Groups tasks, rewards, and completions over a reporting window
package db

import (
	"database/sql"
	"time"
)

// TaskPriorityStat counts tasks created since the window start, per priority.
type TaskPriorityStat struct {
	Priority  string
	Total     int
	Completed int
}

func GetTaskStatsByPriority(db *sql.DB, userID int64, since time.Time) ([]TaskPriorityStat, error) {
	rows, err := db.Query(`
		SELECT priority, COUNT(*), COALESCE(SUM(completed), 0)
		FROM tasks
		WHERE user_id = ? AND created_at >= ?
		GROUP BY priority
		ORDER BY priority
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []TaskPriorityStat
	for rows.Next() {
		var s TaskPriorityStat
		if err := rows.Scan(&s.Priority, &s.Total, &s.Completed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// DailyTaskStat counts tasks per creation day.
type DailyTaskStat struct {
	Date      string
	Total     int
	Completed int
}

func GetDailyTaskStats(db *sql.DB, userID int64, since time.Time) ([]DailyTaskStat, error) {
	rows, err := db.Query(`
		SELECT date(created_at), COUNT(*), COALESCE(SUM(completed), 0)
		FROM tasks
		WHERE user_id = ? AND created_at >= ?
		GROUP BY date(created_at)
		ORDER BY date(created_at)
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stats []DailyTaskStat
	for rows.Next() {
		var s DailyTaskStat
		if err := rows.Scan(&s.Date, &s.Total, &s.Completed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetPointsEarnedSince sums reward points earned inside the window.
func GetPointsEarnedSince(db *sql.DB, userID int64, since time.Time) (int, error) {
	var total int
	err := db.QueryRow(`
		SELECT COALESCE(SUM(points), 0) FROM rewards
		WHERE user_id = ? AND earned_at >= ?
	`, userID, since).Scan(&total)
	return total, err
}

// CountCompletionsSince counts reward rows whose reason starts with the
// given prefix, which is how habit and task completions are recorded.
func CountCompletionsSince(db *sql.DB, userID int64, reasonPrefix string, since time.Time) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM rewards
		WHERE user_id = ? AND badge LIKE ? || '%' AND earned_at >= ?
	`, userID, reasonPrefix, since).Scan(&count)
	return count, err
}
