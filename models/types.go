// ABOUTME: Data models for habit tracker entities
// ABOUTME: Defines User, Habit, Task, Reward, and calendar link/ref structs
package models

import (
	"time"
)

// Provider identifies an external calendar provider.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderMicrosoft
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Habit struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Frequency     string    `json:"frequency"`
	PreferredTime string    `json:"preferred_time,omitempty"` // "HH:MM", empty means 09:00
	PreferredDay  int       `json:"preferred_day,omitempty"`  // 0=Sunday..6=Saturday, weekly habits
	Streak        int       `json:"streak"`
	CreatedAt     time.Time `json:"created_at"`
}

type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Reward struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Badge    string    `json:"badge"`
	Points   int       `json:"points"`
	EarnedAt time.Time `json:"earned_at"`
}

// CalendarLink is a user's OAuth credential for one provider. At most one
// link exists per (user, provider); writes upsert.
type CalendarLink struct {
	UserID       int64     `json:"user_id"`
	Provider     Provider  `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CalendarEventRef maps a domain item to its external calendar event. Its
// presence is what makes sync idempotent: ref present means update, absent
// means create.
type CalendarEventRef struct {
	ItemType        string   `json:"item_type"`
	ItemID          int64    `json:"item_id"`
	Provider        Provider `json:"provider"`
	ExternalEventID string   `json:"external_event_id"`
}

// Habit frequency constants.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Task priority constants.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Item type constants for calendar event refs.
const (
	ItemTypeHabit = "habit"
	ItemTypeTask  = "task"
)
