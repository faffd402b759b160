// Package status exposes a small read-only HTTP API for operators:
// liveness, connection counts and the room table.
package status

import (
	"github.com/gin-gonic/gin"

	"github.com/ogas1024/chat-room/internal/registry"
	"github.com/ogas1024/chat-room/internal/room"
	"github.com/ogas1024/chat-room/pkg/log"
	"github.com/ogas1024/chat-room/pkg/response"
)

type Handler struct {
	reg   *registry.Registry
	rooms *room.Manager
}

func NewHandler(reg *registry.Registry, rooms *room.Manager) *Handler {
	return &Handler{reg: reg, rooms: rooms}
}

// Router builds the gin engine for the status listener.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(log.L()))

	r.GET("/healthz", h.healthz)
	r.GET("/status", h.status)
	r.GET("/status/rooms", h.roomTable)
	return r
}

func (h *Handler) healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *Handler) status(c *gin.Context) {
	response.Success(c, gin.H{
		"connections": h.reg.Count(),
		"online":      h.reg.OnlineCount(),
		"rooms":       len(h.rooms.Snapshot()),
	})
}

func (h *Handler) roomTable(c *gin.Context) {
	response.Success(c, h.rooms.Snapshot())
}
