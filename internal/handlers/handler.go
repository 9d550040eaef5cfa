package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/monocle-dev/oncall/internal/audit"
	"github.com/monocle-dev/oncall/internal/incident"
	"github.com/monocle-dev/oncall/internal/realtime"
	"github.com/monocle-dev/oncall/internal/schedule"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Schedules *schedule.Service
	Incidents *incident.Service
	Audit     *audit.Aggregator
	Hub       *realtime.Hub
	Directory store.DirectoryStore
	Log       *zap.Logger
}

type Handler struct {
	schedules *schedule.Service
	incidents *incident.Service
	audit     *audit.Aggregator
	hub       *realtime.Hub
	directory store.DirectoryStore
	log       *zap.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Handler{
		schedules: d.Schedules,
		incidents: d.Incidents,
		audit:     d.Audit,
		hub:       d.Hub,
		directory: d.Directory,
		log:       log,
	}
}

// writeError maps service errors to a status and a JSON error body. fallback
// is the message shown for unexpected failures, whose details are only logged.
func (h *Handler) writeError(ctx *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, types.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, types.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrInvalidRoster):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrConflict), errors.Is(err, types.ErrInvalidTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		_ = ctx.Error(err)
		h.log.Error(fallback,
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(types.ContextRequestIDKey)),
			zap.Error(err))
		ctx.JSON(status, gin.H{"error": fallback})
		return
	}

	ctx.JSON(status, gin.H{"error": err.Error()})
}
