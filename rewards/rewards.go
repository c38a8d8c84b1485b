// ABOUTME: Reward arithmetic: points, badges, and level progression
// ABOUTME: Awards points for completions and badges at point thresholds
package rewards

import (
	"database/sql"
	"fmt"
	"math"

	"habitly/db"
	"habitly/models"
)

// Badge describes an earnable badge and its point threshold.
type Badge struct {
	Name        string `json:"name"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// Catalog is the fixed badge set.
var Catalog = []Badge{
	{Name: "Early Bird", Points: 50, Description: "Complete morning habits consistently"},
	{Name: "Task Warrior", Points: 75, Description: "Complete 50 tasks"},
	{Name: "Streak Master", Points: 100, Description: "Maintain a habit streak for 30 days"},
	{Name: "Fitness Pro", Points: 100, Description: "Complete fitness-related habits consistently"},
	{Name: "Productivity Guru", Points: 150, Description: "Complete all daily tasks for a week"},
}

// Points awarded per completion.
const (
	habitCompletionPoints = 10
	taskCompletionPoints  = 5
)

// Reason prefixes recorded with completion awards. Analytics counts
// completions by matching these against stored reward rows.
const (
	HabitReasonPrefix = "Completed habit: "
	TaskReasonPrefix  = "Completed task: "
)

// Summary is the aggregate view returned to the user.
type Summary struct {
	Rewards     []models.Reward `json:"rewards"`
	TotalPoints int             `json:"total_points"`
	Badges      []string        `json:"badges"`
	Level       int             `json:"level"`
}

// AwardResult reports one award operation.
type AwardResult struct {
	Points      int      `json:"points"`
	TotalPoints int      `json:"total_points"`
	NewBadges   []string `json:"new_badges,omitempty"`
	Level       int      `json:"level"`
}

// Level computes the user level from total points:
// level = floor(sqrt(points/100)) + 1, so each level costs progressively more.
func Level(points int) int {
	if points <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(points)/100))) + 1
}

// HabitPoints returns the award for completing a habit at the given streak.
// Longer streaks earn a small bonus.
func HabitPoints(streak int) int {
	bonus := streak / 5
	if bonus > 10 {
		bonus = 10
	}
	return habitCompletionPoints + bonus
}

// TaskPoints returns the award for completing a task.
func TaskPoints(priority string) int {
	if priority == models.PriorityHigh {
		return taskCompletionPoints * 2
	}
	return taskCompletionPoints
}

// Award records a point award and grants any badges the new total unlocks.
func Award(database *sql.DB, userID int64, points int, reason string) (*AwardResult, error) {
	if err := db.CreateReward(database, &models.Reward{
		UserID: userID,
		Badge:  reason,
		Points: points,
	}); err != nil {
		return nil, fmt.Errorf("failed to record reward: %w", err)
	}

	total, err := db.GetTotalPoints(database, userID)
	if err != nil {
		return nil, err
	}

	newBadges, err := grantBadges(database, userID, total)
	if err != nil {
		return nil, err
	}

	return &AwardResult{
		Points:      points,
		TotalPoints: total,
		NewBadges:   newBadges,
		Level:       Level(total),
	}, nil
}

// GetSummary assembles the user's reward state.
func GetSummary(database *sql.DB, userID int64) (*Summary, error) {
	rewards, err := db.ListRewards(database, userID)
	if err != nil {
		return nil, err
	}
	total, err := db.GetTotalPoints(database, userID)
	if err != nil {
		return nil, err
	}
	badges, err := db.GetBadges(database, userID)
	if err != nil {
		return nil, err
	}

	earned := make([]string, 0)
	known := badgeNames()
	for _, b := range badges {
		if _, ok := known[b]; ok {
			earned = append(earned, b)
		}
	}

	return &Summary{
		Rewards:     rewards,
		TotalPoints: total,
		Badges:      earned,
		Level:       Level(total),
	}, nil
}

// grantBadges awards every catalog badge whose threshold the total reaches
// and that the user doesn't hold yet. Badge rows carry zero points.
func grantBadges(database *sql.DB, userID int64, totalPoints int) ([]string, error) {
	held, err := db.GetBadges(database, userID)
	if err != nil {
		return nil, err
	}

	heldSet := make(map[string]bool, len(held))
	for _, b := range held {
		heldSet[b] = true
	}

	var granted []string
	for _, badge := range Catalog {
		if heldSet[badge.Name] || totalPoints < badge.Points {
			continue
		}
		if err := db.CreateReward(database, &models.Reward{
			UserID: userID,
			Badge:  badge.Name,
			Points: 0,
		}); err != nil {
			return granted, err
		}
		granted = append(granted, badge.Name)
	}

	return granted, nil
}

func badgeNames() map[string]struct{} {
	names := make(map[string]struct{}, len(Catalog))
	for _, b := range Catalog {
		names[b.Name] = struct{}{}
	}
	return names
}
