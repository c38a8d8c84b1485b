// ABOUTME: Habit CRUD and completion handlers
// ABOUTME: Completion bumps the streak and awards points through rewards
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"habitly/db"
	"habitly/models"
	"habitly/rewards"
)

type habitRequest struct {
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	Frequency     string `json:"frequency" binding:"required"`
	PreferredTime string `json:"preferred_time"`
	PreferredDay  *int   `json:"preferred_day"`
}

func (r *habitRequest) validate() error {
	switch r.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		return fmt.Errorf("frequency must be daily, weekly, or monthly")
	}
	if r.PreferredTime != "" {
		if _, err := time.Parse("15:04", r.PreferredTime); err != nil {
			return fmt.Errorf("preferred_time must be HH:MM")
		}
	}
	if r.PreferredDay != nil && (*r.PreferredDay < 0 || *r.PreferredDay > 6) {
		return fmt.Errorf("preferred_day must be 0 (Sunday) through 6 (Saturday)")
	}
	return nil
}

func (s *Server) handleListHabits(c *gin.Context) {
	habits, err := db.ListHabits(s.db, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"habits": habits})
}

func (s *Server) handleCreateHabit(c *gin.Context) {
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and frequency are required"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit := &models.Habit{
		UserID:        currentUser(c),
		Title:         req.Title,
		Description:   req.Description,
		Frequency:     req.Frequency,
		PreferredTime: req.PreferredTime,
	}
	if req.PreferredDay != nil {
		habit.PreferredDay = *req.PreferredDay
	}

	if err := db.CreateHabit(s.db, habit); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, habit)
}

func (s *Server) handleGetHabit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	habit, err := db.GetHabit(s.db, id, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.JSON(http.StatusOK, habit)
}

func (s *Server) handleUpdateHabit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and frequency are required"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := db.GetHabit(s.db, id, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}

	habit.Title = req.Title
	habit.Description = req.Description
	habit.Frequency = req.Frequency
	habit.PreferredTime = req.PreferredTime
	if req.PreferredDay != nil {
		habit.PreferredDay = *req.PreferredDay
	}

	if err := db.UpdateHabit(s.db, habit); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, habit)
}

func (s *Server) handleDeleteHabit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	habit, err := db.GetHabit(s.db, id, userID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}

	// Remove the mirrored calendar events before the refs go away.
	s.orch.DeleteItemEvents(c.Request.Context(), userID, models.ItemTypeHabit, id)

	if err := db.DeleteHabit(s.db, id, userID); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleCompleteHabit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	habit, err := db.GetHabit(s.db, id, userID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}

	streak := habit.Streak + 1
	if err := db.UpdateHabitStreak(s.db, id, userID, streak); err != nil {
		s.internalError(c, err)
		return
	}

	award, err := rewards.Award(s.db, userID, rewards.HabitPoints(streak),
		rewards.HabitReasonPrefix+habit.Title)
	if err != nil {
		s.internalError(c, err)
		return
	}

	habit.Streak = streak
	c.JSON(http.StatusOK, gin.H{"habit": habit, "reward": award})
}

// handleIncompleteHabit undoes a completion: a broken habit resets the
// streak to zero. Points already awarded are not clawed back.
func (s *Server) handleIncompleteHabit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	habit, err := db.GetHabit(s.db, id, userID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}

	if err := db.UpdateHabitStreak(s.db, id, userID, 0); err != nil {
		s.internalError(c, err)
		return
	}

	habit.Streak = 0
	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

func (s *Server) handleRewards(c *gin.Context) {
	summary, err := rewards.GetSummary(s.db, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
