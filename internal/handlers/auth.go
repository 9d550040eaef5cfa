package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/monocle-dev/oncall/internal/utils"
)

// Me returns the member behind the session token.
func (h *Handler) Me(ctx *gin.Context) {
	member, err := utils.GetCurrentMember(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	ctx.JSON(http.StatusOK, member)
}
