package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monocle-dev/oncall/internal/types"
	"github.com/monocle-dev/oncall/internal/utils"
)

// WebSocket subscribes a team member to the team's refresh events.
func (h *Handler) WebSocket(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	teamID, err := utils.ParseIDParam(ctx, "team_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Team ID is required"})
		return
	}

	if _, err := h.directory.GetMembership(ctx.Request.Context(), teamID, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this team"})
			return
		}
		h.writeError(ctx, err, "Failed to verify team membership")
		return
	}

	h.hub.Serve(ctx.Writer, ctx.Request, teamID)
}
