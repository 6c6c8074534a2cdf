package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sarthi/gateway/internal/cachestore"
	"sarthi/gateway/internal/offline"
)

// Proxy answers every non-API request through the offline worker.
func (h HandlerSet) Proxy(c *gin.Context) {
	req, err := offline.FromHTTP(c.Request, h.origin)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.offline.Fetch(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, offline.ErrNotHandled):
			c.JSON(http.StatusBadRequest, gin.H{"error": "not_handled"})
		case errors.Is(err, offline.ErrNetworkUnavailable) && req.Navigate():
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline"})
		case errors.Is(err, offline.ErrNetworkUnavailable):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "network_unavailable"})
		case errors.Is(err, offline.ErrWorkerStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting_down"})
		default:
			h.log.Error().Err(err).Str("url", req.URL.String()).Msg("offline fetch failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "bad_gateway"})
		}
		return
	}

	writeSnapshot(c, snap)
}

func writeSnapshot(c *gin.Context, snap *cachestore.Snapshot) {
	header := c.Writer.Header()
	for name, values := range snap.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	header.Set("Content-Length", strconv.Itoa(len(snap.Body)))
	c.Status(snap.Status)
	c.Writer.WriteHeaderNow()
	if c.Request.Method == http.MethodHead {
		return
	}
	_, _ = c.Writer.Write(snap.Body)
}

type generationItem struct {
	Tag         string     `json:"tag"`
	CorePaths   []string   `json:"corePaths"`
	InstalledAt time.Time  `json:"installedAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	Live        bool       `json:"live"`
}

func (h HandlerSet) ListGenerations(c *gin.Context) {
	if h.generations == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal_disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	generations, err := h.generations.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]generationItem, 0, len(generations))
	for _, g := range generations {
		items = append(items, generationItem{
			Tag:         g.Tag,
			CorePaths:   g.CorePaths,
			InstalledAt: g.InstalledAt,
			ActivatedAt: g.ActivatedAt,
			DeletedAt:   g.DeletedAt,
			Live:        g.Live(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"current": h.offline.Manager().Tag(),
		"items":   items,
	})
}

func (h HandlerSet) InstallGeneration(c *gin.Context) {
	if err := h.offline.Install(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, offline.ErrInstallFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.lifecycleStatus(c)
}

func (h HandlerSet) ActivateGeneration(c *gin.Context) {
	if err := h.offline.Activate(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, offline.ErrNotInstalled) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.lifecycleStatus(c)
}

func (h HandlerSet) PurgeGeneration(c *gin.Context) {
	removed, err := h.offline.Manager().Purge(c.Request.Context(), c.Param("tag"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, offline.ErrCurrentGeneration) || errors.Is(err, offline.ErrNewerGeneration) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "generation_not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) lifecycleStatus(c *gin.Context) {
	manager := h.offline.Manager()
	c.JSON(http.StatusOK, gin.H{
		"cacheTag":    manager.Tag(),
		"phase":       manager.Phase(),
		"controlling": manager.Controlling(),
	})
}
