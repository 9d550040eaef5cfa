package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/monocle-dev/oncall/internal/middleware"
	"github.com/monocle-dev/oncall/internal/types"
)

func GetCurrentMember(ctx *gin.Context) (middleware.AuthenticatedMember, error) {
	member, exists := ctx.Get(types.ContextMemberKey)

	if !exists {
		return middleware.AuthenticatedMember{}, fmt.Errorf("%w: member not authenticated", types.ErrUnauthorized)
	}

	authenticated, ok := member.(middleware.AuthenticatedMember)

	if !ok {
		return middleware.AuthenticatedMember{}, fmt.Errorf("invalid member type in context")
	}

	return authenticated, nil
}

func GetCurrentMemberID(ctx *gin.Context) (uint, error) {
	member, err := GetCurrentMember(ctx)

	if err != nil {
		return 0, err
	}

	return member.ID, nil
}

// ParseIDParam reads a positive numeric path parameter.
func ParseIDParam(ctx *gin.Context, name string) (uint, error) {
	raw := ctx.Param(name)

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", types.ErrInvalidInput, name, raw)
	}

	return uint(id), nil
}
