// ABOUTME: Account creation CLI command
// ABOUTME: Prompts for a password without echo and stores the bcrypt hash
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"habitly/auth"
	"habitly/db"
	"habitly/models"
)

// AddUserCommand creates a user account from the terminal.
func AddUserCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email address (required)")
	_ = fs.Parse(args)

	if *username == "" || *email == "" {
		return fmt.Errorf("both -username and -email are required")
	}

	existing, err := db.GetUserByEmail(database, *email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("a user with email %s already exists", *email)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	user := &models.User{
		Username:     strings.TrimSpace(*username),
		Email:        strings.TrimSpace(*email),
		PasswordHash: hash,
	}
	if err := db.CreateUser(database, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created user %s (id %d)\n", user.Username, user.ID)
	return nil
}
