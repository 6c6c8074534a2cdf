package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sarthi/gateway/internal/ids"
	"sarthi/gateway/internal/security"
)

type contextResponse struct {
	ContextID string    `json:"contextId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateContext hands a new browser context its token. Every later session
// call carries it so the slot stays per context.
func (h HandlerSet) CreateContext(c *gin.Context) {
	contextID := ids.New()
	ttl := h.cfg.Security.ContextTokenTTL

	token, err := security.GenerateContextToken(h.cfg.Security.ContextTokenSecret, contextID, ttl)
	if err != nil {
		h.log.Error().Err(err).Msg("issue context token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, contextResponse{
		ContextID: contextID,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	})
}
