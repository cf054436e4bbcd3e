package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *handlers) health(c *gin.Context) {
	status, db, code := "ok", "connected", http.StatusOK
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health.Ping(ctx); err != nil {
			h.Log.Warn("health: database ping failed", zap.Error(err))
			status, db, code = "degraded", "disconnected", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"db":        db,
		"uptime":    int64(h.now().Sub(h.started).Seconds()),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) listLogs(c *gin.Context) {
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "offset must be an integer")
		return
	}
	entries, err := h.Activity.List(c.Request.Context(), projectID(c), limit, offset)
	if err != nil {
		respondError(c, err, h.Log)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *handlers) realtimeStats(c *gin.Context) {
	if h.Realtime == nil {
		respondMessage(c, http.StatusNotFound, "realtime is disabled")
		return
	}
	pid := projectID(c)
	st := h.Realtime.Stats(pid)
	c.JSON(http.StatusOK, gin.H{"projectId": pid, "connections": st.Connections, "tables": st.Tables})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
