// ABOUTME: Analytics report handler
// ABOUTME: Serves completion stats and the productivity score per user
package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"habitly/analytics"
)

func (s *Server) handleAnalytics(c *gin.Context) {
	report, err := analytics.GetReport(s.db, currentUser(c), c.Query("range"))
	if errors.Is(err, analytics.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
