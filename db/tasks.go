// ABOUTME: Task database operations
// ABOUTME: Handles CRUD operations, filtering, and completion toggling
package db

import (
	"database/sql"
	"time"

	"habitly/models"
)

func CreateTask(db *sql.DB, task *models.Task) error {
	task.CreatedAt = time.Now().UTC()
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	res, err := db.Exec(`
		INSERT INTO tasks (user_id, title, description, priority, due_date, completed, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, task.UserID, task.Title, task.Description, task.Priority, task.DueDate, task.CreatedAt)
	if err != nil {
		return err
	}

	task.ID, err = res.LastInsertId()
	return err
}

func GetTask(db *sql.DB, id, userID int64) (*models.Task, error) {
	task := &models.Task{}
	var description sql.NullString
	var dueDate sql.NullTime

	err := db.QueryRow(`
		SELECT id, user_id, title, description, priority, due_date, completed, created_at
		FROM tasks WHERE id = ? AND user_id = ?
	`, id, userID).Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&task.Priority,
		&dueDate,
		&task.Completed,
		&task.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	if dueDate.Valid {
		t := dueDate.Time
		task.DueDate = &t
	}
	return task, nil
}

func ListTasks(db *sql.DB, userID int64) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, user_id, title, description, priority, due_date, completed, created_at
		FROM tasks WHERE user_id = ?
		ORDER BY due_date ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var description sql.NullString
		var dueDate sql.NullTime

		if err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.Title,
			&description,
			&task.Priority,
			&dueDate,
			&task.Completed,
			&task.CreatedAt,
		); err != nil {
			return nil, err
		}

		task.Description = description.String
		if dueDate.Valid {
			t := dueDate.Time
			task.DueDate = &t
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

func UpdateTask(db *sql.DB, task *models.Task) error {
	_, err := db.Exec(`
		UPDATE tasks SET title = ?, description = ?, priority = ?, due_date = ?
		WHERE id = ? AND user_id = ?
	`, task.Title, task.Description, task.Priority, task.DueDate, task.ID, task.UserID)
	return err
}

func SetTaskCompleted(db *sql.DB, id, userID int64, completed bool) error {
	_, err := db.Exec(`
		UPDATE tasks SET completed = ? WHERE id = ? AND user_id = ?
	`, completed, id, userID)
	return err
}

func DeleteTask(db *sql.DB, id, userID int64) error {
	_, err := db.Exec(`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	return err
}
