// Package schedule manages on-call schedules and keeps their assignments in
// step with the rotation cadence and roster.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/monocle-dev/oncall/internal/metrics"
	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

// DefaultHorizonDays bounds regeneration for schedules without an end date.
const DefaultHorizonDays = 90

// Store is the persistence the schedule service needs.
type Store interface {
	store.DirectoryStore
	store.ScheduleStore
	store.AssignmentStore
}

// Broadcaster is notified after a team's schedules change.
type Broadcaster interface {
	BroadcastRefresh(teamID uint, reason string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastRefresh(uint, string) {}

// CreateInput describes a new schedule.
type CreateInput struct {
	TeamID    uint
	Name      string
	Cadence   rotation.Cadence
	StartDate time.Time
	EndDate   *time.Time
	Timezone  string
	Members   []uint
}

// UpdateInput carries the fields to change; nil means unchanged.
type UpdateInput struct {
	Name         *string
	Frequency    *int
	Unit         *rotation.Unit
	StartDate    *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	Timezone     *string
	Members      []uint
}

// AssignmentsStatus reports how assignment regeneration went. A schedule
// mutation can succeed while this reports a failure.
type AssignmentsStatus struct {
	OK          bool   `json:"ok"`
	Regenerated bool   `json:"regenerated"`
	Count       int    `json:"count"`
	Reason      string `json:"reason,omitempty"`
}

// Err returns types.ErrSoftFailure when regeneration did not complete.
func (s AssignmentsStatus) Err() error {
	if s.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", types.ErrSoftFailure, s.Reason)
}

// Result is the two-phase outcome of a schedule mutation.
type Result struct {
	Schedule    models.Schedule
	Assignments []models.Assignment
	Status      AssignmentsStatus
}

type Service struct {
	store      Store
	reconciler *Reconciler
	log        *zap.Logger
	metrics    metrics.Collector
	events     Broadcaster
	now        func() time.Time
	horizon    int
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHorizon sets how many days past today open-ended schedules are filled.
func WithHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizon = days
		}
	}
}

// WithReconciler overrides the reconciler built from the store.
func WithReconciler(r *Reconciler) Option {
	return func(s *Service) { s.reconciler = r }
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		log:     zap.NewNop(),
		metrics: metrics.NewNop(),
		events:  nopBroadcaster{},
		now:     time.Now,
		horizon: DefaultHorizonDays,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.reconciler == nil {
		s.reconciler = NewReconciler(st)
	}

	return s
}

func (s *Service) today() time.Time {
	return rotation.Day(s.now())
}

// CreateSchedule validates and stores a schedule, then fills assignments from
// today (or the start date, if later) to the end date or the horizon.
func (s *Service) CreateSchedule(ctx context.Context, actorID uint, in CreateInput) (Result, error) {
	in.Name = strings.TrimSpace(in.Name)

	if in.TeamID == 0 {
		return Result{}, fmt.Errorf("%w: team is required", types.ErrInvalidInput)
	}
	if in.Name == "" {
		return Result{}, fmt.Errorf("%w: name is required", types.ErrInvalidInput)
	}
	if err := in.Cadence.Validate(); err != nil {
		return Result{}, err
	}
	if in.StartDate.IsZero() {
		return Result{}, fmt.Errorf("%w: start date is required", types.ErrInvalidInput)
	}
	if err := validateDates(in.StartDate, in.EndDate); err != nil {
		return Result{}, err
	}
	if len(in.Members) == 0 {
		return Result{}, types.ErrInvalidRoster
	}

	if err := s.requireAdmin(ctx, in.TeamID, actorID); err != nil {
		return Result{}, err
	}
	if err := s.requireTeamMembers(ctx, in.TeamID, in.Members); err != nil {
		return Result{}, err
	}

	unit, _ := rotation.ParseUnit(string(in.Cadence.Unit))
	schedule := models.Schedule{
		TeamID:    in.TeamID,
		Name:      in.Name,
		Frequency: in.Cadence.Frequency,
		Unit:      string(unit),
		StartDate: datatypes.Date(rotation.Day(in.StartDate)),
		EndDate:   dateOrNil(in.EndDate),
		Timezone:  in.Timezone,
		Members:   rosterRows(in.Members),
	}

	if err := s.store.CreateSchedule(ctx, &schedule); err != nil {
		return Result{}, fmt.Errorf("create schedule: %w", err)
	}

	from := s.today()
	if start := schedule.Start(); start.After(from) {
		from = start
	}

	result := Result{Schedule: schedule}
	result.Assignments, result.Status = s.regenerate(ctx, schedule, from, s.windowEnd(schedule))

	s.log.Info("schedule created",
		zap.Uint("schedule_id", schedule.ID),
		zap.Uint("team_id", schedule.TeamID),
		zap.Int("assignments", result.Status.Count),
		zap.Bool("assignments_ok", result.Status.OK))

	s.events.BroadcastRefresh(schedule.TeamID, "schedule_created")
	return result, nil
}

// UpdateSchedule applies the edits. When the cadence, dates or roster
// change, assignments from today forward are regenerated; earlier days are
// kept as the record of who actually served.
func (s *Service) UpdateSchedule(ctx context.Context, actorID uint, scheduleID uint, in UpdateInput) (Result, error) {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return Result{}, err
	}

	if err := s.requireAdmin(ctx, schedule.TeamID, actorID); err != nil {
		return Result{}, err
	}

	previousEnd := s.windowEnd(schedule)
	regenerate := false

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Result{}, fmt.Errorf("%w: name cannot be empty", types.ErrInvalidInput)
		}
		schedule.Name = name
	}

	if in.Timezone != nil {
		schedule.Timezone = *in.Timezone
	}

	cadence := rotation.Cadence{Frequency: schedule.Frequency, Unit: rotation.Unit(schedule.Unit)}
	if in.Frequency != nil {
		cadence.Frequency = *in.Frequency
	}
	if in.Unit != nil {
		cadence.Unit = *in.Unit
	}
	if err := cadence.Validate(); err != nil {
		return Result{}, err
	}
	unit, _ := rotation.ParseUnit(string(cadence.Unit))
	if cadence.Frequency != schedule.Frequency || string(unit) != schedule.Unit {
		schedule.Frequency = cadence.Frequency
		schedule.Unit = string(unit)
		regenerate = true
	}

	start := schedule.Start()
	if in.StartDate != nil {
		start = rotation.Day(*in.StartDate)
	}
	end := schedule.End()
	if in.ClearEndDate {
		end = nil
	} else if in.EndDate != nil {
		end = in.EndDate
	}
	if err := validateDates(start, end); err != nil {
		return Result{}, err
	}
	if !start.Equal(schedule.Start()) || !sameDate(end, schedule.End()) {
		schedule.StartDate = datatypes.Date(start)
		schedule.EndDate = dateOrNil(end)
		regenerate = true
	}

	var roster []uint
	if in.Members != nil {
		if len(in.Members) == 0 {
			return Result{}, types.ErrInvalidRoster
		}
		if err := s.requireTeamMembers(ctx, schedule.TeamID, in.Members); err != nil {
			return Result{}, err
		}
		if !slices.Equal(in.Members, schedule.Roster()) {
			roster = in.Members
			regenerate = true
		}
	}

	if err := s.store.UpdateSchedule(ctx, &schedule, roster); err != nil {
		return Result{}, fmt.Errorf("update schedule: %w", err)
	}

	result := Result{Schedule: schedule, Status: AssignmentsStatus{OK: true}}

	if regenerate {
		from := s.today()
		to := s.windowEnd(schedule)
		clearTo := to
		if previousEnd.After(clearTo) {
			clearTo = previousEnd
		}
		result.Assignments, result.Status = s.regenerate(ctx, schedule, from, clearTo)
	}

	s.log.Info("schedule updated",
		zap.Uint("schedule_id", schedule.ID),
		zap.Bool("regenerated", regenerate),
		zap.Bool("assignments_ok", result.Status.OK))

	s.events.BroadcastRefresh(schedule.TeamID, "schedule_updated")
	return result, nil
}

// GetSchedule returns the schedule if the actor belongs to its team.
func (s *Service) GetSchedule(ctx context.Context, actorID, scheduleID uint) (models.Schedule, error) {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return models.Schedule{}, err
	}

	if err := s.requireMember(ctx, schedule.TeamID, actorID); err != nil {
		return models.Schedule{}, err
	}

	return schedule, nil
}

// DeleteSchedule removes the schedule together with all its assignments.
func (s *Service) DeleteSchedule(ctx context.Context, actorID, scheduleID uint) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	if err := s.requireAdmin(ctx, schedule.TeamID, actorID); err != nil {
		return err
	}

	if err := s.store.DeleteSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}

	s.log.Info("schedule deleted", zap.Uint("schedule_id", scheduleID))
	s.events.BroadcastRefresh(schedule.TeamID, "schedule_deleted")
	return nil
}

// UpsertAssignment puts member on call for one day, replacing whatever
// assignments existed for that date.
func (s *Service) UpsertAssignment(ctx context.Context, actorID, scheduleID, memberID uint, date time.Time) (models.Assignment, error) {
	if memberID == 0 {
		return models.Assignment{}, fmt.Errorf("%w: member is required", types.ErrInvalidInput)
	}
	if date.IsZero() {
		return models.Assignment{}, fmt.Errorf("%w: date is required", types.ErrInvalidInput)
	}

	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return models.Assignment{}, err
	}

	if err := s.requireAdmin(ctx, schedule.TeamID, actorID); err != nil {
		return models.Assignment{}, err
	}
	if err := s.requireTeamMembers(ctx, schedule.TeamID, []uint{memberID}); err != nil {
		return models.Assignment{}, err
	}

	day := rotation.Day(date)
	if _, err := s.reconciler.Apply(ctx, scheduleID, day, day, []rotation.Entry{{Date: day, MemberID: memberID}}); err != nil {
		return models.Assignment{}, fmt.Errorf("upsert assignment: %w", err)
	}

	current, err := s.currentFor(ctx, scheduleID, day)
	if err != nil {
		return models.Assignment{}, err
	}

	s.events.BroadcastRefresh(schedule.TeamID, "assignment_updated")
	return current, nil
}

// DeleteAssignment removes a single assignment row.
func (s *Service) DeleteAssignment(ctx context.Context, actorID, assignmentID uint) error {
	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	schedule, err := s.store.GetSchedule(ctx, assignment.ScheduleID)
	if err != nil {
		return err
	}

	if err := s.requireAdmin(ctx, schedule.TeamID, actorID); err != nil {
		return err
	}

	if err := s.store.DeleteAssignment(ctx, assignmentID); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}

	s.events.BroadcastRefresh(schedule.TeamID, "assignment_deleted")
	return nil
}

// ListAssignments returns the authoritative assignment per day in [from, to].
func (s *Service) ListAssignments(ctx context.Context, actorID, scheduleID uint, from, to time.Time) ([]models.Assignment, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end is before its start", types.ErrInvalidInput)
	}

	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if err := s.requireMember(ctx, schedule.TeamID, actorID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListAssignments(ctx, scheduleID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	return CurrentAssignments(rows), nil
}

// OnCall returns who is on call for the schedule on the given day.
func (s *Service) OnCall(ctx context.Context, actorID, scheduleID uint, day time.Time) (models.Assignment, error) {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return models.Assignment{}, err
	}

	if err := s.requireMember(ctx, schedule.TeamID, actorID); err != nil {
		return models.Assignment{}, err
	}

	return s.currentFor(ctx, scheduleID, rotation.Day(day))
}

func (s *Service) currentFor(ctx context.Context, scheduleID uint, day time.Time) (models.Assignment, error) {
	rows, err := s.store.ListAssignments(ctx, scheduleID, day, day)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("list assignments: %w", err)
	}

	current := CurrentAssignments(rows)
	if len(current) == 0 {
		return models.Assignment{}, fmt.Errorf("assignment for %s: %w", day.Format(time.DateOnly), types.ErrNotFound)
	}
	return current[0], nil
}

// regenerate rebuilds assignments in [from, clearTo]. Failures never undo the
// schedule mutation; they are logged and reported in the status.
func (s *Service) regenerate(ctx context.Context, schedule models.Schedule, from, clearTo time.Time) ([]models.Assignment, AssignmentsStatus) {
	to := s.windowEnd(schedule)
	cadence := rotation.Cadence{Frequency: schedule.Frequency, Unit: rotation.Unit(schedule.Unit)}

	entries, err := rotation.GenerateWindow(schedule.Roster(), schedule.Start(), from, to, cadence)
	if err == nil {
		var rows []models.Assignment
		rows, err = s.reconciler.Apply(ctx, schedule.ID, from, clearTo, entries)
		if err == nil {
			s.metrics.AssignmentsGenerated(len(rows))
			return rows, AssignmentsStatus{OK: true, Regenerated: true, Count: len(rows)}
		}
	}

	s.metrics.AssignmentSoftFailure()
	s.log.Warn("assignment regeneration failed; schedule change kept",
		zap.Uint("schedule_id", schedule.ID),
		zap.Time("from", from),
		zap.Time("to", clearTo),
		zap.Error(err))

	return nil, AssignmentsStatus{OK: false, Regenerated: true, Reason: err.Error()}
}

// windowEnd is the last day assignments are kept for: the end date when set,
// otherwise today plus the horizon.
func (s *Service) windowEnd(schedule models.Schedule) time.Time {
	if end := schedule.End(); end != nil {
		return rotation.Day(*end)
	}
	return s.today().AddDate(0, 0, s.horizon)
}

func (s *Service) requireMember(ctx context.Context, teamID, userID uint) error {
	if _, err := s.store.GetMembership(ctx, teamID, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: not a member of team %d", types.ErrForbidden, teamID)
		}
		return err
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, teamID, userID uint) error {
	membership, err := s.store.GetMembership(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: not a member of team %d", types.ErrForbidden, teamID)
		}
		return err
	}

	if !membership.IsAdmin() {
		return fmt.Errorf("%w: team admin role required", types.ErrForbidden)
	}
	return nil
}

func (s *Service) requireTeamMembers(ctx context.Context, teamID uint, members []uint) error {
	for _, id := range members {
		if id == 0 {
			return fmt.Errorf("%w: member id is required", types.ErrInvalidInput)
		}
		if _, err := s.store.GetMembership(ctx, teamID, id); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: user %d is not a member of team %d", types.ErrInvalidInput, id, teamID)
			}
			return err
		}
	}
	return nil
}

func validateDates(start time.Time, end *time.Time) error {
	if end != nil && rotation.Day(*end).Before(rotation.Day(start)) {
		return fmt.Errorf("%w: end date is before start date", types.ErrInvalidInput)
	}
	return nil
}

func dateOrNil(t *time.Time) *datatypes.Date {
	if t == nil {
		return nil
	}
	d := datatypes.Date(rotation.Day(*t))
	return &d
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return rotation.Day(*a).Equal(rotation.Day(*b))
}

func rosterRows(members []uint) []models.ScheduleMember {
	rows := make([]models.ScheduleMember, 0, len(members))
	for i, id := range members {
		rows = append(rows, models.ScheduleMember{UserID: id, Position: i})
	}
	return rows
}
