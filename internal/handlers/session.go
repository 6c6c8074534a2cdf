package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sarthi/gateway/internal/middleware"
	"sarthi/gateway/internal/service"
	"sarthi/gateway/internal/session"
)

// controller resolves the session controller of the calling browser
// context, resuming its persisted session on first use.
func (h HandlerSet) controller(c *gin.Context) (*session.Controller, bool) {
	contextID := c.GetString(middleware.ContextIDKey)
	if contextID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	ctrl, err := h.sessions.Get(c.Request.Context(), contextID)
	if err != nil {
		h.log.Error().Err(err).Str("context_id", contextID).Msg("start session failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session_unavailable"})
		return nil, false
	}
	return ctrl, true
}

func (h HandlerSet) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h HandlerSet) OpenPortal(c *gin.Context) {
	h.transition(c, session.OpenPortal())
}

func (h HandlerSet) Back(c *gin.Context) {
	h.transition(c, session.Back())
}

func (h HandlerSet) CompleteSetup(c *gin.Context) {
	h.transition(c, session.SetupCompleted())
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.transition(c, session.Logout())
}

type selectServiceRequest struct {
	Service string `json:"service" binding:"required"`
}

func (h HandlerSet) SelectService(c *gin.Context) {
	var req selectServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.transition(c, session.SelectService(req.Service))
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and, on success, feeds the user record to the
// controller. Credentials are only checked while the portal is showing.
func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if ctrl.CurrentState() != session.StatePortal {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "state": ctrl.CurrentState()})
		return
	}

	user, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		case errors.Is(err, service.ErrLoginUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login_unavailable"})
		default:
			h.log.Error().Err(err).Msg("login lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		}
		return
	}

	h.apply(c, ctrl, session.LoginSucceeded(user))
}

func (h HandlerSet) transition(c *gin.Context, ev session.Event) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.apply(c, ctrl, ev)
}

func (h HandlerSet) apply(c *gin.Context, ctrl *session.Controller, ev session.Event) {
	snap, err := ctrl.Transition(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "state": snap.State})
		case errors.Is(err, session.ErrUnknownRole),
			errors.Is(err, session.ErrMissingUser),
			errors.Is(err, session.ErrEmptyService):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error().Err(err).Str("event", string(ev.Kind)).Msg("session transition failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session_storage_failed"})
		}
		return
	}
	c.JSON(http.StatusOK, snap)
}
