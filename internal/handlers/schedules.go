package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/schedule"
	"github.com/monocle-dev/oncall/internal/types"
	"github.com/monocle-dev/oncall/internal/utils"
)

// defaultListDays is the range returned when a listing omits "to".
const defaultListDays = 30

type CreateScheduleRequest struct {
	Name      string  `json:"name" binding:"required"`
	Frequency int     `json:"frequency" binding:"required"`
	Unit      string  `json:"unit" binding:"required"`
	StartDate string  `json:"start_date" binding:"required"`
	EndDate   *string `json:"end_date"`
	Timezone  string  `json:"timezone"`
	Members   []uint  `json:"members" binding:"required"`
}

type UpdateScheduleRequest struct {
	Name         *string `json:"name"`
	Frequency    *int    `json:"frequency"`
	Unit         *string `json:"unit"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	ClearEndDate bool    `json:"clear_end_date"`
	Timezone     *string `json:"timezone"`
	Members      []uint  `json:"members"`
}

type UpsertAssignmentRequest struct {
	MemberID uint   `json:"member_id" binding:"required"`
	Date     string `json:"date" binding:"required"`
}

type ScheduleResponse struct {
	ID        uint    `json:"id"`
	TeamID    uint    `json:"team_id"`
	Name      string  `json:"name"`
	Frequency int     `json:"frequency"`
	Unit      string  `json:"unit"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Timezone  string  `json:"timezone"`
	Members   []uint  `json:"members"`
}

type AssignmentResponse struct {
	ID         uint   `json:"id"`
	ScheduleID uint   `json:"schedule_id"`
	MemberID   uint   `json:"member_id"`
	Date       string `json:"date"`
}

type AssignmentsStatusResponse struct {
	schedule.AssignmentsStatus
	Items []AssignmentResponse `json:"items"`
}

type ScheduleResultResponse struct {
	Schedule    ScheduleResponse          `json:"schedule"`
	Assignments AssignmentsStatusResponse `json:"assignments"`
}

func (h *Handler) CreateSchedule(ctx *gin.Context) {
	var body CreateScheduleRequest

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

	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		h.writeError(ctx, err, "Invalid start date")
		return
	}

	end, err := parseOptionalDate("end_date", body.EndDate)
	if err != nil {
		h.writeError(ctx, err, "Invalid end date")
		return
	}

	result, err := h.schedules.CreateSchedule(ctx.Request.Context(), userID, schedule.CreateInput{
		TeamID:    teamID,
		Name:      body.Name,
		Cadence:   rotation.Cadence{Frequency: body.Frequency, Unit: rotation.Unit(body.Unit)},
		StartDate: start,
		EndDate:   end,
		Timezone:  body.Timezone,
		Members:   body.Members,
	})
	if err != nil {
		h.writeError(ctx, err, "Failed to create schedule")
		return
	}

	ctx.JSON(http.StatusCreated, resultResponse(result))
}

func (h *Handler) UpdateSchedule(ctx *gin.Context) {
	var body UpdateScheduleRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	in := schedule.UpdateInput{
		Name:         body.Name,
		Frequency:    body.Frequency,
		ClearEndDate: body.ClearEndDate,
		Timezone:     body.Timezone,
		Members:      body.Members,
	}
	if body.Unit != nil {
		unit := rotation.Unit(*body.Unit)
		in.Unit = &unit
	}
	if in.StartDate, err = parseOptionalDate("start_date", body.StartDate); err != nil {
		h.writeError(ctx, err, "Invalid start date")
		return
	}
	if in.EndDate, err = parseOptionalDate("end_date", body.EndDate); err != nil {
		h.writeError(ctx, err, "Invalid end date")
		return
	}

	result, err := h.schedules.UpdateSchedule(ctx.Request.Context(), userID, scheduleID, in)
	if err != nil {
		h.writeError(ctx, err, "Failed to update schedule")
		return
	}

	ctx.JSON(http.StatusOK, resultResponse(result))
}

func (h *Handler) GetSchedule(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	s, err := h.schedules.GetSchedule(ctx.Request.Context(), userID, scheduleID)
	if err != nil {
		h.writeError(ctx, err, "Failed to retrieve schedule")
		return
	}

	ctx.JSON(http.StatusOK, scheduleResponse(s))
}

func (h *Handler) DeleteSchedule(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	if err := h.schedules.DeleteSchedule(ctx.Request.Context(), userID, scheduleID); err != nil {
		h.writeError(ctx, err, "Failed to delete schedule")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) UpsertAssignment(ctx *gin.Context) {
	var body UpsertAssignmentRequest

	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	date, err := parseDate("date", body.Date)
	if err != nil {
		h.writeError(ctx, err, "Invalid date")
		return
	}

	assignment, err := h.schedules.UpsertAssignment(ctx.Request.Context(), userID, scheduleID, body.MemberID, date)
	if err != nil {
		h.writeError(ctx, err, "Failed to save assignment")
		return
	}

	ctx.JSON(http.StatusOK, assignmentResponse(assignment))
}

func (h *Handler) ListAssignments(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	from := rotation.Day(time.Now())
	if raw := ctx.Query("from"); raw != "" {
		if from, err = parseDate("from", raw); err != nil {
			h.writeError(ctx, err, "Invalid from date")
			return
		}
	}

	to := from.AddDate(0, 0, defaultListDays)
	if raw := ctx.Query("to"); raw != "" {
		if to, err = parseDate("to", raw); err != nil {
			h.writeError(ctx, err, "Invalid to date")
			return
		}
	}

	rows, err := h.schedules.ListAssignments(ctx.Request.Context(), userID, scheduleID, from, to)
	if err != nil {
		h.writeError(ctx, err, "Failed to retrieve assignments")
		return
	}

	response := make([]AssignmentResponse, 0, len(rows))
	for _, row := range rows {
		response = append(response, assignmentResponse(row))
	}

	ctx.JSON(http.StatusOK, response)
}

func (h *Handler) OnCall(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	scheduleID, err := utils.ParseIDParam(ctx, "schedule_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid schedule ID")
		return
	}

	day := time.Now()
	if raw := ctx.Query("date"); raw != "" {
		if day, err = parseDate("date", raw); err != nil {
			h.writeError(ctx, err, "Invalid date")
			return
		}
	}

	assignment, err := h.schedules.OnCall(ctx.Request.Context(), userID, scheduleID, day)
	if err != nil {
		h.writeError(ctx, err, "Failed to retrieve on-call member")
		return
	}

	ctx.JSON(http.StatusOK, assignmentResponse(assignment))
}

func (h *Handler) DeleteAssignment(ctx *gin.Context) {
	userID, err := utils.GetCurrentMemberID(ctx)
	if err != nil {
		h.writeError(ctx, err, "User not authenticated")
		return
	}

	assignmentID, err := utils.ParseIDParam(ctx, "assignment_id")
	if err != nil {
		h.writeError(ctx, err, "Invalid assignment ID")
		return
	}

	if err := h.schedules.DeleteAssignment(ctx.Request.Context(), userID, assignmentID); err != nil {
		h.writeError(ctx, err, "Failed to delete assignment")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", types.ErrInvalidInput, field)
	}
	return t, nil
}

func parseOptionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDate(field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scheduleResponse(s models.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:        s.ID,
		TeamID:    s.TeamID,
		Name:      s.Name,
		Frequency: s.Frequency,
		Unit:      s.Unit,
		StartDate: s.Start().Format(time.DateOnly),
		Timezone:  s.Timezone,
		Members:   s.Roster(),
	}
	if end := s.End(); end != nil {
		formatted := end.Format(time.DateOnly)
		resp.EndDate = &formatted
	}
	return resp
}

func assignmentResponse(a models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:         a.ID,
		ScheduleID: a.ScheduleID,
		MemberID:   a.UserID,
		Date:       a.Day().Format(time.DateOnly),
	}
}

func resultResponse(r schedule.Result) ScheduleResultResponse {
	items := make([]AssignmentResponse, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		items = append(items, assignmentResponse(a))
	}

	return ScheduleResultResponse{
		Schedule:    scheduleResponse(r.Schedule),
		Assignments: AssignmentsStatusResponse{AssignmentsStatus: r.Status, Items: items},
	}
}
