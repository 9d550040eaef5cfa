package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/monocle-dev/oncall/internal/auth"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

type AuthenticatedMember struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth rejects requests without a valid bearer token for a known user.
func Auth(tokens TokenVerifier, users store.DirectoryStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("Authorization") == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		member, status, msg := authenticate(ctx, tokens, users)
		if status != 0 {
			ctx.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		ctx.Set(types.ContextMemberKey, member)
		ctx.Next()
	}
}

// OptionalAuth sets the member when a valid bearer token is present and lets
// anonymous requests through. A malformed or invalid token is still rejected.
func OptionalAuth(tokens TokenVerifier, users store.DirectoryStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("Authorization") == "" {
			ctx.Next()
			return
		}

		member, status, msg := authenticate(ctx, tokens, users)
		if status != 0 {
			ctx.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		ctx.Set(types.ContextMemberKey, member)
		ctx.Next()
	}
}

func authenticate(ctx *gin.Context, tokens TokenVerifier, users store.DirectoryStore) (AuthenticatedMember, int, string) {
	parts := strings.SplitN(ctx.GetHeader("Authorization"), " ", 2)

	if len(parts) != 2 || parts[0] != "Bearer" {
		return AuthenticatedMember{}, http.StatusUnauthorized, "Authorization header format must be Bearer {token}"
	}

	claims, err := tokens.Verify(parts[1])
	if err != nil {
		return AuthenticatedMember{}, http.StatusUnauthorized, "Invalid or expired token"
	}

	user, err := users.GetUser(ctx.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return AuthenticatedMember{}, http.StatusUnauthorized, "User not found"
		}
		return AuthenticatedMember{}, http.StatusInternalServerError, "Failed to load user"
	}

	return AuthenticatedMember{ID: user.ID, Name: user.Name, Email: user.Email}, 0, ""
}

// RequestID tags each request with an id, reusing X-Request-ID when sent.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		ctx.Set(types.ContextRequestIDKey, id)
		ctx.Header("X-Request-ID", id)
		ctx.Next()
	}
}
