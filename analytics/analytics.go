// ABOUTME: Analytics report over habits, tasks, and rewards
// ABOUTME: Computes completion rates, streak distribution, and a productivity score
package analytics

import (
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"habitly/db"
	"habitly/models"
	"habitly/rewards"
)

// Supported reporting windows. The empty string defaults to a week.
const (
	RangeWeek    = "7days"
	RangeMonth   = "30days"
	RangeQuarter = "90days"
)

// ErrInvalidRange is returned for a range outside the supported set.
var ErrInvalidRange = errors.New("range must be 7days, 30days, or 90days")

// HabitStreak names a habit and its current streak.
type HabitStreak struct {
	Title  string `json:"title"`
	Streak int    `json:"streak"`
}

// HabitStats summarizes the user's habits over the window.
type HabitStats struct {
	Total              int            `json:"total"`
	Completions        int            `json:"completions"`
	CompletionRate     float64        `json:"completion_rate"`
	ByFrequency        map[string]int `json:"by_frequency"`
	StreakDistribution map[string]int `json:"streak_distribution"`
	BestPerforming     []HabitStreak  `json:"best_performing"`
}

// PriorityStat breaks task completion down by priority.
type PriorityStat struct {
	Priority       string  `json:"priority"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// TaskStats summarizes tasks created inside the window.
type TaskStats struct {
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	CompletionRate float64        `json:"completion_rate"`
	ByPriority     []PriorityStat `json:"by_priority"`
}

// DayProgress counts tasks per creation day.
type DayProgress struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Report is the full analytics view for one user and window.
type Report struct {
	Range             string        `json:"range"`
	Habits            HabitStats    `json:"habits"`
	Tasks             TaskStats     `json:"tasks"`
	DailyProgress     []DayProgress `json:"daily_progress"`
	PointsEarned      int           `json:"points_earned"`
	ProductivityScore float64       `json:"productivity_score"`
	Performance       string        `json:"performance"`
	Recommendations   []string      `json:"recommendations"`
}

// rangeDays maps a range name to its day count.
func rangeDays(rng string) (string, int, error) {
	switch rng {
	case "", RangeWeek:
		return RangeWeek, 7, nil
	case RangeMonth:
		return RangeMonth, 30, nil
	case RangeQuarter:
		return RangeQuarter, 90, nil
	}
	return "", 0, ErrInvalidRange
}

// GetReport assembles the analytics report for a user.
func GetReport(database *sql.DB, userID int64, rng string) (*Report, error) {
	name, days, err := rangeDays(rng)
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	habits, err := db.ListHabits(database, userID)
	if err != nil {
		return nil, err
	}
	completions, err := db.CountCompletionsSince(database, userID, rewards.HabitReasonPrefix, since)
	if err != nil {
		return nil, err
	}
	habitStats := buildHabitStats(habits, completions, days)

	priorityStats, err := db.GetTaskStatsByPriority(database, userID, since)
	if err != nil {
		return nil, err
	}
	taskStats := buildTaskStats(priorityStats)

	daily, err := db.GetDailyTaskStats(database, userID, since)
	if err != nil {
		return nil, err
	}
	progress := make([]DayProgress, 0, len(daily))
	for _, d := range daily {
		progress = append(progress, DayProgress{Date: d.Date, Total: d.Total, Completed: d.Completed})
	}

	points, err := db.GetPointsEarnedSince(database, userID, since)
	if err != nil {
		return nil, err
	}

	score := productivityScore(taskStats, habitStats)

	return &Report{
		Range:             name,
		Habits:            habitStats,
		Tasks:             taskStats,
		DailyProgress:     progress,
		PointsEarned:      points,
		ProductivityScore: score,
		Performance:       performanceLevel(score),
		Recommendations:   recommendations(habitStats, taskStats),
	}, nil
}

// buildHabitStats derives the habit view from current streaks and the number
// of completions recorded inside the window.
func buildHabitStats(habits []models.Habit, completions, days int) HabitStats {
	stats := HabitStats{
		Total:              len(habits),
		Completions:        completions,
		ByFrequency:        make(map[string]int),
		StreakDistribution: map[string]int{"0": 0, "1-7": 0, "8-30": 0, "30+": 0},
	}

	expected := 0
	for _, h := range habits {
		stats.ByFrequency[h.Frequency]++
		stats.StreakDistribution[streakBucket(h.Streak)]++
		expected += expectedCompletions(h.Frequency, days)
	}

	if expected > 0 {
		rate := float64(completions) / float64(expected) * 100
		if rate > 100 {
			rate = 100
		}
		stats.CompletionRate = round2(rate)
	}

	best := make([]HabitStreak, 0, len(habits))
	for _, h := range habits {
		if h.Streak > 0 {
			best = append(best, HabitStreak{Title: h.Title, Streak: h.Streak})
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].Streak > best[j].Streak })
	if len(best) > 3 {
		best = best[:3]
	}
	stats.BestPerforming = best

	return stats
}

func streakBucket(streak int) string {
	switch {
	case streak <= 0:
		return "0"
	case streak <= 7:
		return "1-7"
	case streak <= 30:
		return "8-30"
	}
	return "30+"
}

// expectedCompletions is how many times a habit should be completed over the
// window, given its frequency.
func expectedCompletions(frequency string, days int) int {
	switch frequency {
	case models.FrequencyDaily:
		return days
	case models.FrequencyWeekly:
		return max(days/7, 1)
	case models.FrequencyMonthly:
		return max(days/30, 1)
	}
	return 0
}

func buildTaskStats(stats []db.TaskPriorityStat) TaskStats {
	out := TaskStats{ByPriority: make([]PriorityStat, 0, len(stats))}
	for _, s := range stats {
		p := PriorityStat{Priority: s.Priority, Total: s.Total, Completed: s.Completed}
		if s.Total > 0 {
			p.CompletionRate = round2(float64(s.Completed) / float64(s.Total) * 100)
		}
		out.Total += s.Total
		out.Completed += s.Completed
		out.ByPriority = append(out.ByPriority, p)
	}
	if out.Total > 0 {
		out.CompletionRate = round2(float64(out.Completed) / float64(out.Total) * 100)
	}
	return out
}

// productivityScore blends task and habit completion, each contributing up
// to 50 points.
func productivityScore(tasks TaskStats, habits HabitStats) float64 {
	return round2((tasks.CompletionRate + habits.CompletionRate) / 2)
}

func performanceLevel(score float64) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	}
	return "Needs Improvement"
}

func recommendations(habits HabitStats, tasks TaskStats) []string {
	recs := make([]string, 0, 3)
	if habits.Total > 0 && habits.CompletionRate < 60 {
		recs = append(recs, "Try focusing on fewer habits to build consistency")
	}
	for _, h := range habits.BestPerforming {
		if h.Streak > 30 {
			recs = append(recs, "Great job maintaining long streaks! Consider adding a new challenge")
			break
		}
	}
	if tasks.Total > 0 && tasks.CompletionRate < 50 {
		recs = append(recs, "Consider breaking tasks into smaller, more manageable pieces")
	}
	return recs
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
