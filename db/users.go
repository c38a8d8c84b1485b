// ABOUTME: User database operations
// ABOUTME: Handles user creation and lookups by id and email
package db

import (
	"database/sql"
	"time"

	"habitly/models"
)

func CreateUser(db *sql.DB, user *models.User) error {
	user.CreatedAt = time.Now().UTC()

	res, err := db.Exec(`
		INSERT INTO users (username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return err
	}

	user.ID, err = res.LastInsertId()
	return err
}

func GetUser(db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func GetUserByEmail(db *sql.DB, email string) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE email = ?
	`, email).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}
