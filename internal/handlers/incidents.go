package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/monocle-dev/oncall/internal/ackauth"
	"github.com/monocle-dev/oncall/internal/audit"
	"github.com/monocle-dev/oncall/internal/incident"
	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/utils"
)

type ReportIncidentRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	ServiceID   *uint  `json:"service_id"`
	AssigneeID  *uint  `json:"assignee_id"`
}

type AcknowledgeRequest struct {
	Token    string `json:"token"`
	MemberID uint   `json:"member_id"`
	Channel  string `json:"channel"`
}

type IssueAckTokenRequest struct {
	MemberID uint   `json:"member_id" binding:"required"`
	Channel  string `json:"channel" binding:"required"`
}

type IssueAckTokenResponse struct {
	Token     string    `json:"token"`
	MemberID  uint      `json:"member_id"`
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IncidentResponse struct {
	ID               uint       `json:"id"`
	TeamID           uint       `json:"team_id"`
	ServiceID        *uint      `json:"service_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Severity         string     `json:"severity"`
	Status           string     `json:"status"`
	CreatedByID      uint       `json:"created_by_id"`
	AssigneeID       *uint      `json:"assignee_id"`
	AcknowledgedByID *uint      `json:"acknowledged_by_id"`
	CreatedAt        time.Time  `json:"created_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at"`
	ResolvedAt       *time.Time `json:"resolved_at"`
}

func (h *Handler) ReportIncident(ctx *gin.Context) {
	var body ReportIncidentRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	teamID, err := utils.ParseIDParam(ctx, "team_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid team ID")
		return
	}

	inc, err := h.incidents.ReportIncident(ctx.Request.Context(), userID, incident.ReportInput{
		TeamID:      teamID,
		ServiceID:   body.ServiceID,
		Title:       body.Title,
		Description: body.Description,
		Severity:    models.Severity(body.Severity),
		AssigneeID:  body.AssigneeID,
	})
	if err != nil {
		h.writeError(ctx, err, "Failed to report incident")
		return
	}

	ctx.JSON(http.StatusCreated, incidentResponse(inc))
}

func (h *Handler) GetIncident(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	incidentID, err := utils.ParseIDParam(ctx, "incident_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid incident ID")
		return
	}

	inc, err := h.incidents.GetIncident(ctx.Request.Context(), userID, incidentID)
	if err != nil {
		h.writeError(ctx, err, "Failed to retrieve incident")
		return
	}

	ctx.JSON(http.StatusOK, incidentResponse(inc))
}

// PatchIncident accepts any JSON object; keys outside the editable set are
// ignored. "channel" selects the acknowledgment channel.
func (h *Handler) PatchIncident(ctx *gin.Context) {
	var raw map[string]json.RawMessage

	if err := ctx.ShouldBindJSON(&raw); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	incidentID, err := utils.ParseIDParam(ctx, "incident_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid incident ID")
		return
	}

	patch, err := incident.SanitizePatch(raw)
	if err != nil {
		h.writeError(ctx, err, "Invalid request")
		return
	}

	var channel string
	if value, ok := raw["channel"]; ok {
		if err := json.Unmarshal(value, &channel); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "channel must be a string"})
			return
		}
	}

	inc, err := h.incidents.PatchIncident(ctx.Request.Context(), userID, incidentID, patch, models.AckChannel(channel))
	if err != nil {
		h.writeError(ctx, err, "Failed to update incident")
		return
	}

	ctx.JSON(http.StatusOK, incidentResponse(inc))
}

// AcknowledgeIncident works with a session or, for out-of-band channels,
// with a token and member_id in the body.
func (h *Handler) AcknowledgeIncident(ctx *gin.Context) {
	var body AcknowledgeRequest

	if err := bindOptionalJSON(ctx, &body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	incidentID, err := utils.ParseIDParam(ctx, "incident_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid incident ID")
		return
	}

	req := ackauth.Request{
		Token:    body.Token,
		MemberID: body.MemberID,
		Channel:  models.AckChannel(body.Channel),
	}
	if member, err := utils.GetCurrentMember(ctx); err == nil {
		req.Session = &ackauth.Identity{MemberID: member.ID, Email: member.Email}
	}

	inc, err := h.incidents.AcknowledgeIncident(ctx.Request.Context(), incidentID, req)
	if err != nil {
		h.writeError(ctx, err, "Failed to acknowledge incident")
		return
	}

	ctx.JSON(http.StatusOK, incidentResponse(inc))
}

func (h *Handler) IssueAckToken(ctx *gin.Context) {
	var body IssueAckTokenRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	incidentID, err := utils.ParseIDParam(ctx, "incident_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid incident ID")
		return
	}

	secret, token, err := h.incidents.IssueAckToken(ctx.Request.Context(), userID, incidentID, body.MemberID, models.AckChannel(body.Channel))
	if err != nil {
		h.writeError(ctx, err, "Failed to issue acknowledgment token")
		return
	}

	ctx.JSON(http.StatusCreated, IssueAckTokenResponse{
		Token:     secret,
		MemberID:  token.UserID,
		Channel:   string(token.Channel),
		ExpiresAt: token.ExpiresAt,
	})
}

func (h *Handler) GetIncidentAudit(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	incidentID, err := utils.ParseIDParam(ctx, "incident_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid incident ID")
		return
	}

	if _, err := h.incidents.GetIncident(ctx.Request.Context(), userID, incidentID); err != nil {
		h.writeError(ctx, err, "Failed to retrieve incident")
		return
	}

	entries, err := h.audit.Timeline(ctx.Request.Context(), incidentID)
	if err != nil {
		h.writeError(ctx, err, "Failed to retrieve audit timeline")
		return
	}

	if entries == nil {
		entries = []audit.Entry{}
	}

	ctx.JSON(http.StatusOK, entries)
}

func incidentResponse(inc models.Incident) IncidentResponse {
	return IncidentResponse{
		ID:               inc.ID,
		TeamID:           inc.TeamID,
		ServiceID:        inc.ServiceID,
		Title:            inc.Title,
		Description:      inc.Description,
		Severity:         string(inc.Severity),
		Status:           string(inc.Status),
		CreatedByID:      inc.CreatedByID,
		AssigneeID:       inc.AssigneeID,
		AcknowledgedByID: inc.AcknowledgedByID,
		CreatedAt:        inc.CreatedAt,
		AcknowledgedAt:   inc.AcknowledgedAt,
		ResolvedAt:       inc.ResolvedAt,
	}
}

// bindOptionalJSON binds a body that may be absent. Chunked requests report
// an unknown length, so emptiness is detected from the decoder instead.
func bindOptionalJSON(ctx *gin.Context, obj any) error {
	if ctx.Request.Body == nil {
		return nil
	}
	if err := ctx.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
