// ABOUTME: Pure mapping from habits and tasks to calendar event descriptors
// ABOUTME: Computes next occurrence times and recurrence rules without I/O
package sync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"habitly/models"
)

// EventDescriptor is the provider-agnostic representation of a calendar
// event. It is never persisted; every sync pass recomputes it from current
// item state.
type EventDescriptor struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	// Recurrence is an RRULE body like "FREQ=DAILY", or empty for
	// non-recurring events.
	Recurrence string
}

const (
	habitDuration = 30 * time.Minute
	taskDuration  = time.Hour

	defaultPreferredTime = "09:00"
)

// Monday, matching the original default for weekly habits.
const defaultPreferredDay = 1

var errNoDueDate = errors.New("task has no due date")

// MapHabit converts a habit into its next calendar occurrence. Deterministic
// given the habit and the current instant; all results are UTC.
//
// Daily habits land on today at the preferred time, rolled to tomorrow if
// that instant has already passed. Weekly habits land on the next occurrence
// of the preferred day at the preferred time. Monthly habits behave like
// daily for the first occurrence and recur monthly. Unrecognized frequencies
// produce a one-off event starting now.
func MapHabit(habit *models.Habit, now time.Time) *EventDescriptor {
	now = now.UTC()
	start := now

	switch habit.Frequency {
	case models.FrequencyDaily, models.FrequencyMonthly:
		start = nextAtPreferredTime(habit.PreferredTime, now)
	case models.FrequencyWeekly:
		start = nextWeekday(habit.PreferredTime, habit.PreferredDay, now)
	}

	return &EventDescriptor{
		Title:       "[Habit] " + habit.Title,
		Description: habit.Description,
		StartTime:   start,
		EndTime:     start.Add(habitDuration),
		Recurrence:  habitRecurrence(habit.Frequency),
	}
}

// MapTask converts a task into a single non-recurring event at its due date
// with a fixed one hour duration. A task without a due date cannot be
// mirrored and is reported as a validation failure.
func MapTask(task *models.Task, now time.Time) (*EventDescriptor, error) {
	if task.DueDate == nil {
		return nil, errNoDueDate
	}

	start := task.DueDate.UTC()
	return &EventDescriptor{
		Title:       "[Task] " + task.Title,
		Description: task.Description,
		StartTime:   start,
		EndTime:     start.Add(taskDuration),
	}, nil
}

func habitRecurrence(frequency string) string {
	switch frequency {
	case models.FrequencyDaily:
		return "FREQ=DAILY"
	case models.FrequencyWeekly:
		return "FREQ=WEEKLY"
	case models.FrequencyMonthly:
		return "FREQ=MONTHLY"
	default:
		return ""
	}
}

// nextAtPreferredTime returns today at the preferred wall-clock time, or
// tomorrow if that instant is not after now.
func nextAtPreferredTime(preferred string, now time.Time) time.Time {
	hour, minute := parsePreferredTime(preferred)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// nextWeekday returns the next occurrence of the preferred weekday at the
// preferred time, today included if that instant is still ahead.
func nextWeekday(preferred string, day int, now time.Time) time.Time {
	if day < 0 || day > 6 {
		day = defaultPreferredDay
	}

	hour, minute := parsePreferredTime(preferred)
	anchor := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekday(day)},
		Dtstart:   anchor.AddDate(0, 0, -7),
	})
	if err != nil {
		// Only reachable with an invalid option set; fall back to the anchor.
		return anchor
	}

	return r.After(now, false).UTC()
}

func rruleWeekday(day int) rrule.Weekday {
	// 0=Sunday .. 6=Saturday, matching time.Weekday.
	switch time.Weekday(day) {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

func parsePreferredTime(preferred string) (hour, minute int) {
	if preferred == "" {
		preferred = defaultPreferredTime
	}

	parts := strings.SplitN(preferred, ":", 2)
	if len(parts) != 2 {
		return mustClock(defaultPreferredTime)
	}

	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return mustClock(defaultPreferredTime)
	}

	return h, m
}

func mustClock(s string) (int, int) {
	var h, m int
	_, _ = fmt.Sscanf(s, "%d:%d", &h, &m)
	return h, m
}
