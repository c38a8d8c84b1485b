// ABOUTME: Reward database operations
// ABOUTME: Handles reward rows, point totals, and earned badge lookups
package db

import (
	"database/sql"
	"time"

	"habitly/models"
)

func CreateReward(db *sql.DB, reward *models.Reward) error {
	reward.EarnedAt = time.Now().UTC()

	res, err := db.Exec(`
		INSERT INTO rewards (user_id, badge, points, earned_at)
		VALUES (?, ?, ?, ?)
	`, reward.UserID, reward.Badge, reward.Points, reward.EarnedAt)
	if err != nil {
		return err
	}

	reward.ID, err = res.LastInsertId()
	return err
}

func ListRewards(db *sql.DB, userID int64) ([]models.Reward, error) {
	rows, err := db.Query(`
		SELECT id, user_id, badge, points, earned_at
		FROM rewards WHERE user_id = ?
		ORDER BY earned_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rewards []models.Reward
	for rows.Next() {
		var reward models.Reward
		if err := rows.Scan(&reward.ID, &reward.UserID, &reward.Badge, &reward.Points, &reward.EarnedAt); err != nil {
			return nil, err
		}
		rewards = append(rewards, reward)
	}

	return rewards, rows.Err()
}

func GetTotalPoints(db *sql.DB, userID int64) (int, error) {
	var total int
	err := db.QueryRow(`
		SELECT COALESCE(SUM(points), 0) FROM rewards WHERE user_id = ?
	`, userID).Scan(&total)
	return total, err
}

func GetBadges(db *sql.DB, userID int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT badge FROM rewards WHERE user_id = ? ORDER BY badge
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var badges []string
	for rows.Next() {
		var badge string
		if err := rows.Scan(&badge); err != nil {
			return nil, err
		}
		badges = append(badges, badge)
	}

	return badges, rows.Err()
}
