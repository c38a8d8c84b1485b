// ABOUTME: Calendar connection, OAuth callback, and sync trigger handlers
// ABOUTME: Maps sync error kinds onto HTTP statuses for API callers
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"habitly/db"
	"habitly/models"
	"habitly/sync"
)

// pathProvider parses and validates the :provider path parameter, also
// checking that OAuth credentials are configured for it.
func (s *Server) pathProvider(c *gin.Context) (models.Provider, bool) {
	provider := models.Provider(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be google or microsoft"})
		return "", false
	}
	if s.providers.Get(provider) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(provider) + " is not configured"})
		return "", false
	}
	return provider, true
}

func (s *Server) handleOAuthConnect(c *gin.Context) {
	provider, ok := s.pathProvider(c)
	if !ok {
		return
	}

	state := uuid.NewString()
	s.mu.Lock()
	s.pruneStatesLocked()
	s.states[state] = oauthState{
		userID:   currentUser(c),
		provider: provider,
		expires:  time.Now().Add(stateLifetime),
	}
	s.mu.Unlock()

	url := s.providers.Get(provider).AuthURL(state)
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	provider, ok := s.pathProvider(c)
	if !ok {
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state are required"})
		return
	}

	s.mu.Lock()
	pending, found := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()

	if !found || pending.provider != provider || time.Now().After(pending.expires) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired state"})
		return
	}

	cred, err := s.providers.Get(provider).ExchangeCode(c.Request.Context(), code)
	if err != nil {
		s.syncError(c, err)
		return
	}

	link := &models.CalendarLink{
		UserID:       pending.userID,
		Provider:     provider,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt(time.Now()),
	}
	if err := db.UpsertCalendarLink(s.db, link); err != nil {
		s.internalError(c, err)
		return
	}

	s.logger.Info("calendar connected", "user_id", pending.userID, "provider", provider)
	c.JSON(http.StatusOK, gin.H{"connected": true, "provider": provider})
}

func (s *Server) handleCalendarStatus(c *gin.Context) {
	links, err := db.ListCalendarLinks(s.db, currentUser(c))
	if err != nil {
		s.internalError(c, err)
		return
	}

	connected := make([]gin.H, 0, len(links))
	for _, link := range links {
		connected = append(connected, gin.H{
			"provider":   link.Provider,
			"expires_at": link.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"connections": connected})
}

func (s *Server) handleSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.SyncTimeout)
	defer cancel()

	result, err := s.orch.SyncUser(ctx, currentUser(c))
	if err != nil {
		// A partial result still tells the caller which items landed.
		if result != nil {
			c.JSON(s.statusForError(err), gin.H{"error": err.Error(), "result": result})
			return
		}
		s.syncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleImport(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.SyncTimeout)
	defer cancel()

	result, err := s.importer.ImportForUser(ctx, currentUser(c))
	if err != nil {
		s.syncError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	provider := models.Provider(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be google or microsoft"})
		return
	}

	userID := currentUser(c)
	link, err := db.GetCalendarLinkForProvider(s.db, userID, provider)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "calendar not connected"})
		return
	}

	if err := db.DeleteCalendarLink(s.db, userID, provider); err != nil {
		s.internalError(c, err)
		return
	}

	s.logger.Info("calendar disconnected", "user_id", userID, "provider", provider)
	c.JSON(http.StatusOK, gin.H{"disconnected": true})
}

// syncError renders a sync-layer error with a status matching its kind.
func (s *Server) syncError(c *gin.Context, err error) {
	status := s.statusForError(err)
	if status == http.StatusInternalServerError {
		s.internalError(c, err)
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": sync.KindOf(err).String()})
}

func (s *Server) statusForError(err error) int {
	switch sync.KindOf(err) {
	case sync.KindNotConnected:
		return http.StatusBadRequest
	case sync.KindAuthExpired, sync.KindAuthInvalid:
		return http.StatusUnauthorized
	case sync.KindValidation:
		return http.StatusUnprocessableEntity
	case sync.KindProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// pruneStatesLocked drops expired consent states. Caller holds s.mu.
func (s *Server) pruneStatesLocked() {
	now := time.Now()
	for state, pending := range s.states {
		if now.After(pending.expires) {
			delete(s.states, state)
		}
	}
}
