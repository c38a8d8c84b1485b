// ABOUTME: HTTP API server wiring routes, auth middleware, and JSON handlers
// ABOUTME: Exposes habits, tasks, rewards, and calendar sync over gin
package web

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/gin-gonic/gin"

	"habitly/auth"
	"habitly/config"
	"habitly/models"
	"habitly/sync"
)

// Server is the habitly API server.
type Server struct {
	db        *sql.DB
	cfg       *config.Config
	providers sync.Registry
	orch      *sync.Orchestrator
	importer  *sync.Importer
	logger    *slog.Logger
	router    *gin.Engine

	// Pending OAuth consent flows, keyed by CSRF state.
	mu     gosync.Mutex
	states map[string]oauthState
}

// oauthState ties a consent redirect back to the user who started it.
type oauthState struct {
	userID   int64
	provider models.Provider
	expires  time.Time
}

// stateLifetime bounds how long a consent redirect may take.
const stateLifetime = 10 * time.Minute

// NewServer builds the router and registers all routes.
func NewServer(database *sql.DB, cfg *config.Config, providers sync.Registry, orch *sync.Orchestrator, importer *sync.Importer, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		db:        database,
		cfg:       cfg,
		providers: providers,
		orch:      orch,
		importer:  importer,
		logger:    logger,
		router:    router,
		states:    make(map[string]oauthState),
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/login", s.handleLogin)

		// The consent callback arrives as a browser redirect with no
		// bearer token; the state parameter carries identity instead.
		api.GET("/calendar/callback/:provider", s.handleOAuthCallback)

		authed := api.Group("", s.requireAuth)
		{
			authed.GET("/habits", s.handleListHabits)
			authed.POST("/habits", s.handleCreateHabit)
			authed.GET("/habits/:id", s.handleGetHabit)
			authed.PUT("/habits/:id", s.handleUpdateHabit)
			authed.DELETE("/habits/:id", s.handleDeleteHabit)
			authed.POST("/habits/:id/complete", s.handleCompleteHabit)
			authed.POST("/habits/:id/incomplete", s.handleIncompleteHabit)

			authed.GET("/tasks", s.handleListTasks)
			authed.POST("/tasks", s.handleCreateTask)
			authed.GET("/tasks/:id", s.handleGetTask)
			authed.PUT("/tasks/:id", s.handleUpdateTask)
			authed.DELETE("/tasks/:id", s.handleDeleteTask)
			authed.POST("/tasks/:id/complete", s.handleCompleteTask)

			authed.GET("/rewards", s.handleRewards)
			authed.GET("/analytics", s.handleAnalytics)

			authed.GET("/calendar/connect/:provider", s.handleOAuthConnect)
			authed.GET("/calendar/connected", s.handleCalendarStatus)
			authed.POST("/calendar/sync", s.handleSync)
			authed.POST("/calendar/import", s.handleImport)
			authed.DELETE("/calendar/disconnect/:provider", s.handleDisconnect)
		}
	}

	return s
}

// Run starts serving on the configured port.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("http server listening", "addr", addr)
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAuth validates the bearer token and stashes the user id.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	userID, err := auth.VerifyToken(s.cfg.JWTSecret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Set("user_id", userID)
	c.Next()
}

// currentUser returns the authenticated user id set by requireAuth.
func currentUser(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
