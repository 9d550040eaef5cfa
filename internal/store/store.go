// Package store persists schedules, assignments, incidents and their audit
// records. Services depend on the narrow interfaces declared here; GormStore
// backs them with a SQL database and MemoryStore keeps everything in process.
package store

import (
	"context"
	"time"

	"github.com/monocle-dev/oncall/internal/models"
)

// Incident columns that a transition may write.
const (
	FieldTitle            = "Title"
	FieldDescription      = "Description"
	FieldStatus           = "Status"
	FieldSeverity         = "Severity"
	FieldAssigneeID       = "AssigneeID"
	FieldServiceID        = "ServiceID"
	FieldResolvedAt       = "ResolvedAt"
	FieldAcknowledgedAt   = "AcknowledgedAt"
	FieldAcknowledgedByID = "AcknowledgedByID"
)

type DirectoryStore interface {
	GetUser(ctx context.Context, id uint) (models.User, error)
	GetMembership(ctx context.Context, teamID, userID uint) (models.TeamMembership, error)
}

type ScheduleStore interface {
	// CreateSchedule inserts the schedule together with its roster rows.
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	// GetSchedule loads a schedule with its roster ordered by position.
	GetSchedule(ctx context.Context, id uint) (models.Schedule, error)
	// UpdateSchedule saves scalar fields. A non-nil roster replaces the
	// schedule's members in the given order.
	UpdateSchedule(ctx context.Context, schedule *models.Schedule, roster []uint) error
	// DeleteSchedule removes the schedule, its roster and all assignments.
	DeleteSchedule(ctx context.Context, id uint) error
}

type AssignmentStore interface {
	// CreateAssignments is a best-effort batch insert. Rows written before
	// a failure stay written.
	CreateAssignments(ctx context.Context, assignments []models.Assignment) error
	// DeleteAssignments removes every assignment of the schedule dated in [from, to].
	DeleteAssignments(ctx context.Context, scheduleID uint, from, to time.Time) error
	// ListAssignments returns raw rows dated in [from, to], duplicates included.
	ListAssignments(ctx context.Context, scheduleID uint, from, to time.Time) ([]models.Assignment, error)
	GetAssignment(ctx context.Context, id uint) (models.Assignment, error)
	DeleteAssignment(ctx context.Context, id uint) error
}

type IncidentStore interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id uint) (models.Incident, error)
	// SaveIncident writes the named fields of incident and appends the audit
	// records, returning the stored row.
	SaveIncident(ctx context.Context, incident models.Incident, fields []string, updates []models.IncidentUpdate, ack *models.IncidentAcknowledgment) (models.Incident, error)
}

type AuditStore interface {
	ListIncidentUpdates(ctx context.Context, incidentID uint) ([]models.IncidentUpdate, error)
	ListAcknowledgments(ctx context.Context, incidentID uint) ([]models.IncidentAcknowledgment, error)
	ListNotificationLogs(ctx context.Context, incidentID uint) ([]models.NotificationLog, error)
	ListEscalationLogs(ctx context.Context, incidentID uint) ([]models.EscalationLog, error)
}

type AckTokenStore interface {
	CreateAckToken(ctx context.Context, token *models.AckToken) error
	// ListActiveAckTokens returns unused tokens for the pair that expire after now.
	ListActiveAckTokens(ctx context.Context, incidentID, userID uint, now time.Time) ([]models.AckToken, error)
	// MarkAckTokenUsed consumes an unused token. It fails with
	// types.ErrUnauthorized when the token was already consumed.
	MarkAckTokenUsed(ctx context.Context, id uint, at time.Time) error
}

// Store is the full persistence surface.
type Store interface {
	DirectoryStore
	ScheduleStore
	AssignmentStore
	IncidentStore
	AuditStore
	AckTokenStore
}
