// ABOUTME: Habit database operations
// ABOUTME: Handles CRUD operations and streak updates for habits
package db

import (
	"database/sql"
	"time"

	"habitly/models"
)

func CreateHabit(db *sql.DB, habit *models.Habit) error {
	habit.CreatedAt = time.Now().UTC()

	res, err := db.Exec(`
		INSERT INTO habits (user_id, title, description, frequency, preferred_time, preferred_day, streak, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, habit.UserID, habit.Title, habit.Description, habit.Frequency, habit.PreferredTime, habit.PreferredDay, habit.CreatedAt)
	if err != nil {
		return err
	}

	habit.ID, err = res.LastInsertId()
	return err
}

func GetHabit(db *sql.DB, id, userID int64) (*models.Habit, error) {
	habit := &models.Habit{}
	var description, preferredTime sql.NullString

	err := db.QueryRow(`
		SELECT id, user_id, title, description, frequency, preferred_time, preferred_day, streak, created_at
		FROM habits WHERE id = ? AND user_id = ?
	`, id, userID).Scan(
		&habit.ID,
		&habit.UserID,
		&habit.Title,
		&description,
		&habit.Frequency,
		&preferredTime,
		&habit.PreferredDay,
		&habit.Streak,
		&habit.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	habit.Description = description.String
	habit.PreferredTime = preferredTime.String
	return habit, nil
}

func ListHabits(db *sql.DB, userID int64) ([]models.Habit, error) {
	rows, err := db.Query(`
		SELECT id, user_id, title, description, frequency, preferred_time, preferred_day, streak, created_at
		FROM habits WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var habits []models.Habit
	for rows.Next() {
		var habit models.Habit
		var description, preferredTime sql.NullString

		if err := rows.Scan(
			&habit.ID,
			&habit.UserID,
			&habit.Title,
			&description,
			&habit.Frequency,
			&preferredTime,
			&habit.PreferredDay,
			&habit.Streak,
			&habit.CreatedAt,
		); err != nil {
			return nil, err
		}

		habit.Description = description.String
		habit.PreferredTime = preferredTime.String
		habits = append(habits, habit)
	}

	return habits, rows.Err()
}

func UpdateHabit(db *sql.DB, habit *models.Habit) error {
	_, err := db.Exec(`
		UPDATE habits SET title = ?, description = ?, frequency = ?, preferred_time = ?, preferred_day = ?
		WHERE id = ? AND user_id = ?
	`, habit.Title, habit.Description, habit.Frequency, habit.PreferredTime, habit.PreferredDay, habit.ID, habit.UserID)
	return err
}

func UpdateHabitStreak(db *sql.DB, id, userID int64, streak int) error {
	_, err := db.Exec(`
		UPDATE habits SET streak = ? WHERE id = ? AND user_id = ?
	`, streak, id, userID)
	return err
}

func DeleteHabit(db *sql.DB, id, userID int64) error {
	_, err := db.Exec(`DELETE FROM habits WHERE id = ? AND user_id = ?`, id, userID)
	return err
}
