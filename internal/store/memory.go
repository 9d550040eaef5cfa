package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/types"
)

// MemoryStore keeps all rows in process. It backs the "memory" database
// driver and the service tests.
//
// Unlike GormStore it does not enforce uniqueness of (schedule, date), so
// readers must resolve duplicate assignments themselves.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID uint

	users       map[uint]models.User
	memberships []models.TeamMembership
	schedules   map[uint]models.Schedule
	assignments []models.Assignment
	incidents   map[uint]models.Incident
	updates     []models.IncidentUpdate
	acks        []models.IncidentAcknowledgment
	notifs      []models.NotificationLog
	escalations []models.EscalationLog
	ackTokens   []models.AckToken
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store stamping rows with now. A nil now
// uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}

	return &MemoryStore{
		now:       now,
		users:     make(map[uint]models.User),
		schedules: make(map[uint]models.Schedule),
		incidents: make(map[uint]models.Incident),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

// AddUser seeds a user; the identity service owns users in production.
func (s *MemoryStore) AddUser(name, email string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := models.User{Name: name, Email: email}
	user.ID = s.id()
	user.CreatedAt = s.now()
	s.users[user.ID] = user
	return user
}

// AddMembership seeds a team membership.
func (s *MemoryStore) AddMembership(teamID, userID uint, role string) models.TeamMembership {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership := models.TeamMembership{TeamID: teamID, UserID: userID, Role: role}
	membership.ID = s.id()
	membership.CreatedAt = s.now()
	s.memberships = append(s.memberships, membership)
	return membership
}

// AddNotificationLog records a row as the paging subsystem would.
func (s *MemoryStore) AddNotificationLog(log models.NotificationLog) models.NotificationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = s.id()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	s.notifs = append(s.notifs, log)
	return log
}

// AddEscalationLog records a row as the paging subsystem would.
func (s *MemoryStore) AddEscalationLog(log models.EscalationLog) models.EscalationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = s.id()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	s.escalations = append(s.escalations, log)
	return log
}

func (s *MemoryStore) GetUser(_ context.Context, id uint) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user: %w", types.ErrNotFound)
	}
	return user, nil
}

func (s *MemoryStore) GetMembership(_ context.Context, teamID, userID uint) (models.TeamMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.TeamID == teamID && m.UserID == userID {
			return m, nil
		}
	}
	return models.TeamMembership{}, fmt.Errorf("team membership: %w", types.ErrNotFound)
}

func (s *MemoryStore) CreateSchedule(_ context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	schedule.ID = s.id()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	for i := range schedule.Members {
		schedule.Members[i].ID = s.id()
		schedule.Members[i].ScheduleID = schedule.ID
		schedule.Members[i].CreatedAt = now
	}

	s.schedules[schedule.ID] = cloneSchedule(*schedule)
	return nil
}

func (s *MemoryStore) GetSchedule(_ context.Context, id uint) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return models.Schedule{}, fmt.Errorf("schedule: %w", types.ErrNotFound)
	}

	out := cloneSchedule(schedule)
	sort.SliceStable(out.Members, func(i, j int) bool {
		return out.Members[i].Position < out.Members[j].Position
	})
	return out, nil
}

func (s *MemoryStore) UpdateSchedule(_ context.Context, schedule *models.Schedule, roster []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[schedule.ID]
	if !ok {
		return fmt.Errorf("schedule: %w", types.ErrNotFound)
	}

	now := s.now()
	schedule.UpdatedAt = now

	if roster != nil {
		members := make([]models.ScheduleMember, 0, len(roster))
		for i, userID := range roster {
			m := models.ScheduleMember{ScheduleID: schedule.ID, UserID: userID, Position: i}
			m.ID = s.id()
			m.CreatedAt = now
			members = append(members, m)
		}
		schedule.Members = members
	} else {
		schedule.Members = existing.Members
	}

	s.schedules[schedule.ID] = cloneSchedule(*schedule)
	return nil
}

func (s *MemoryStore) DeleteSchedule(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule: %w", types.ErrNotFound)
	}
	delete(s.schedules, id)

	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.ScheduleID != id {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
	return nil
}

func (s *MemoryStore) CreateAssignments(_ context.Context, assignments []models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range assignments {
		if _, ok := s.schedules[a.ScheduleID]; !ok {
			return fmt.Errorf("schedule %d: %w", a.ScheduleID, types.ErrNotFound)
		}

		a.ID = s.id()
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		a.UpdatedAt = a.CreatedAt
		s.assignments = append(s.assignments, a)
	}
	return nil
}

func (s *MemoryStore) DeleteAssignments(_ context.Context, scheduleID uint, from, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to = rotation.Day(from), rotation.Day(to)
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.ScheduleID == scheduleID && inRange(a.Day(), from, to) {
			continue
		}
		kept = append(kept, a)
	}
	s.assignments = kept
	return nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, scheduleID uint, from, to time.Time) ([]models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = rotation.Day(from), rotation.Day(to)
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.ScheduleID == scheduleID && inRange(a.Day(), from, to) {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Day().Before(out[j].Day())
	})
	return out, nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, id uint) (models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Assignment{}, fmt.Errorf("assignment: %w", types.ErrNotFound)
}

func (s *MemoryStore) DeleteAssignment(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.assignments {
		if a.ID == id {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("assignment: %w", types.ErrNotFound)
}

func (s *MemoryStore) CreateIncident(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	incident.ID = s.id()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	incident.UpdatedAt = now
	s.incidents[incident.ID] = *incident
	return nil
}

func (s *MemoryStore) GetIncident(_ context.Context, id uint) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident: %w", types.ErrNotFound)
	}
	return incident, nil
}

func (s *MemoryStore) SaveIncident(_ context.Context, incident models.Incident, fields []string, updates []models.IncidentUpdate, ack *models.IncidentAcknowledgment) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.incidents[incident.ID]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident: %w", types.ErrNotFound)
	}

	now := s.now()
	for _, field := range fields {
		if err := copyIncidentField(&stored, incident, field); err != nil {
			return models.Incident{}, err
		}
	}
	if len(fields) > 0 {
		stored.UpdatedAt = now
	}
	s.incidents[stored.ID] = stored

	if ack != nil {
		ack.ID = s.id()
		if ack.CreatedAt.IsZero() {
			ack.CreatedAt = now
		}
		s.acks = append(s.acks, *ack)
	}

	for _, u := range updates {
		u.ID = s.id()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		s.updates = append(s.updates, u)
	}

	return stored, nil
}

func (s *MemoryStore) ListIncidentUpdates(_ context.Context, incidentID uint) ([]models.IncidentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.IncidentUpdate
	for _, u := range s.updates {
		if u.IncidentID == incidentID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAcknowledgments(_ context.Context, incidentID uint) ([]models.IncidentAcknowledgment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.IncidentAcknowledgment
	for _, a := range s.acks {
		if a.IncidentID == incidentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListNotificationLogs(_ context.Context, incidentID uint) ([]models.NotificationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NotificationLog
	for _, n := range s.notifs {
		if n.IncidentID == incidentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListEscalationLogs(_ context.Context, incidentID uint) ([]models.EscalationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.EscalationLog
	for _, e := range s.escalations {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateAckToken(_ context.Context, token *models.AckToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.ID = s.id()
	token.CreatedAt = s.now()
	s.ackTokens = append(s.ackTokens, *token)
	return nil
}

func (s *MemoryStore) ListActiveAckTokens(_ context.Context, incidentID, userID uint, now time.Time) ([]models.AckToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AckToken
	for _, t := range s.ackTokens {
		if t.IncidentID == incidentID && t.UserID == userID && t.UsedAt == nil && t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkAckTokenUsed(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ackTokens {
		if s.ackTokens[i].ID == id && s.ackTokens[i].UsedAt == nil {
			used := at
			s.ackTokens[i].UsedAt = &used
			return nil
		}
	}
	return fmt.Errorf("%w: acknowledgment token already used", types.ErrUnauthorized)
}

func copyIncidentField(dst *models.Incident, src models.Incident, field string) error {
	switch field {
	case FieldTitle:
		dst.Title = src.Title
	case FieldDescription:
		dst.Description = src.Description
	case FieldStatus:
		dst.Status = src.Status
	case FieldSeverity:
		dst.Severity = src.Severity
	case FieldAssigneeID:
		dst.AssigneeID = src.AssigneeID
	case FieldServiceID:
		dst.ServiceID = src.ServiceID
	case FieldResolvedAt:
		dst.ResolvedAt = src.ResolvedAt
	case FieldAcknowledgedAt:
		dst.AcknowledgedAt = src.AcknowledgedAt
	case FieldAcknowledgedByID:
		dst.AcknowledgedByID = src.AcknowledgedByID
	default:
		return fmt.Errorf("incident field %q is not writable", field)
	}
	return nil
}

func cloneSchedule(s models.Schedule) models.Schedule {
	s.Members = append([]models.ScheduleMember(nil), s.Members...)
	return s
}

func inRange(day, from, to time.Time) bool {
	return !day.Before(from) && !day.After(to)
}
