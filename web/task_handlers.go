// ABOUTME: Task CRUD and completion handlers
// ABOUTME: Completion awards points weighted by priority
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

type taskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func (r *taskRequest) validate() error {
	if r.Priority == "" {
		r.Priority = models.PriorityMedium
	}
	switch r.Priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return nil
	default:
		return fmt.Errorf("priority must be low, medium, or high")
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := db.ListTasks(s.db, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := &models.Task{
		UserID:      currentUser(c),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}
	if err := db.CreateTask(s.db, task); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := db.GetTask(s.db, id, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := db.GetTask(s.db, id, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	task.Title = req.Title
	task.Description = req.Description
	task.Priority = req.Priority
	task.DueDate = req.DueDate

	if err := db.UpdateTask(s.db, task); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	task, err := db.GetTask(s.db, id, userID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	s.orch.DeleteItemEvents(c.Request.Context(), userID, models.ItemTypeTask, id)

	if err := db.DeleteTask(s.db, id, userID); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	task, err := db.GetTask(s.db, id, userID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if task.Completed {
		c.JSON(http.StatusOK, gin.H{"task": task})
		return
	}

	if err := db.SetTaskCompleted(s.db, id, userID, true); err != nil {
		s.internalError(c, err)
		return
	}

	award, err := rewards.Award(s.db, userID, rewards.TaskPoints(task.Priority),
		rewards.TaskReasonPrefix+task.Title)
	if err != nil {
		s.internalError(c, err)
		return
	}

	task.Completed = true
	c.JSON(http.StatusOK, gin.H{"task": task, "reward": award})
}
