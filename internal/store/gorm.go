package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/types"
)

const assignmentBatchSize = 200

// GormStore implements Store on top of a gorm connection.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", entity, types.ErrNotFound)
	}
	return err
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, notFound(err, "user")
	}
	return user, nil
}

func (s *GormStore) GetMembership(ctx context.Context, teamID, userID uint) (models.TeamMembership, error) {
	var membership models.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&membership).Error
	if err != nil {
		return models.TeamMembership{}, notFound(err, "team membership")
	}
	return membership, nil
}

func (s *GormStore) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	return s.db.WithContext(ctx).Create(schedule).Error
}

func (s *GormStore) GetSchedule(ctx context.Context, id uint) (models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&schedule, id).Error
	if err != nil {
		return models.Schedule{}, notFound(err, "schedule")
	}
	return schedule, nil
}

func (s *GormStore) UpdateSchedule(ctx context.Context, schedule *models.Schedule, roster []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(schedule).Error; err != nil {
			return err
		}

		if roster == nil {
			return nil
		}

		if err := tx.Where("schedule_id = ?", schedule.ID).Delete(&models.ScheduleMember{}).Error; err != nil {
			return err
		}

		members := make([]models.ScheduleMember, 0, len(roster))
		for i, userID := range roster {
			members = append(members, models.ScheduleMember{ScheduleID: schedule.ID, UserID: userID, Position: i})
		}

		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}

		schedule.Members = members
		return nil
	})
}

func (s *GormStore) DeleteSchedule(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Schedule{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("schedule: %w", types.ErrNotFound)
		}

		if err := tx.Where("schedule_id = ?", id).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}

		return tx.Where("schedule_id = ?", id).Delete(&models.ScheduleMember{}).Error
	})
}

// CreateAssignments upserts on (schedule_id, date) so a replayed batch never
// produces duplicate rows.
func (s *GormStore) CreateAssignments(ctx context.Context, assignments []models.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "schedule_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "created_at", "updated_at"}),
		}).
		CreateInBatches(&assignments, assignmentBatchSize).Error
}

func (s *GormStore) DeleteAssignments(ctx context.Context, scheduleID uint, from, to time.Time) error {
	return s.db.WithContext(ctx).
		Where("schedule_id = ? AND date >= ? AND date <= ?", scheduleID, dateArg(from), dateArg(to)).
		Delete(&models.Assignment{}).Error
}

func (s *GormStore) ListAssignments(ctx context.Context, scheduleID uint, from, to time.Time) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := s.db.WithContext(ctx).
		Where("schedule_id = ? AND date >= ? AND date <= ?", scheduleID, dateArg(from), dateArg(to)).
		Order("date ASC").
		Order("created_at DESC").
		Find(&assignments).Error
	return assignments, err
}

func (s *GormStore) GetAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := s.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, notFound(err, "assignment")
	}
	return assignment, nil
}

func (s *GormStore) DeleteAssignment(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Assignment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("assignment: %w", types.ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateIncident(ctx context.Context, incident *models.Incident) error {
	return s.db.WithContext(ctx).Create(incident).Error
}

func (s *GormStore) GetIncident(ctx context.Context, id uint) (models.Incident, error) {
	var incident models.Incident
	if err := s.db.WithContext(ctx).First(&incident, id).Error; err != nil {
		return models.Incident{}, notFound(err, "incident")
	}
	return incident, nil
}

func (s *GormStore) SaveIncident(ctx context.Context, incident models.Incident, fields []string, updates []models.IncidentUpdate, ack *models.IncidentAcknowledgment) (models.Incident, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fields) > 0 {
			err := tx.Model(&models.Incident{Model: gorm.Model{ID: incident.ID}}).
				Select(fields).
				Updates(&incident).Error
			if err != nil {
				return err
			}
		}

		if ack != nil {
			if err := tx.Create(ack).Error; err != nil {
				return err
			}
		}

		if len(updates) > 0 {
			if err := tx.Create(&updates).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return models.Incident{}, err
	}

	return s.GetIncident(ctx, incident.ID)
}

func (s *GormStore) ListIncidentUpdates(ctx context.Context, incidentID uint) ([]models.IncidentUpdate, error) {
	var updates []models.IncidentUpdate
	err := s.db.WithContext(ctx).Where("incident_id = ?", incidentID).Order("created_at DESC").Find(&updates).Error
	return updates, err
}

func (s *GormStore) ListAcknowledgments(ctx context.Context, incidentID uint) ([]models.IncidentAcknowledgment, error) {
	var acks []models.IncidentAcknowledgment
	err := s.db.WithContext(ctx).Where("incident_id = ?", incidentID).Order("created_at DESC").Find(&acks).Error
	return acks, err
}

func (s *GormStore) ListNotificationLogs(ctx context.Context, incidentID uint) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	err := s.db.WithContext(ctx).Where("incident_id = ?", incidentID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

func (s *GormStore) ListEscalationLogs(ctx context.Context, incidentID uint) ([]models.EscalationLog, error) {
	var logs []models.EscalationLog
	err := s.db.WithContext(ctx).Where("incident_id = ?", incidentID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

func (s *GormStore) CreateAckToken(ctx context.Context, token *models.AckToken) error {
	return s.db.WithContext(ctx).Create(token).Error
}

func (s *GormStore) ListActiveAckTokens(ctx context.Context, incidentID, userID uint, now time.Time) ([]models.AckToken, error) {
	var tokens []models.AckToken
	err := s.db.WithContext(ctx).
		Where("incident_id = ? AND user_id = ? AND used_at IS NULL AND expires_at > ?", incidentID, userID, now).
		Order("created_at DESC").
		Find(&tokens).Error
	return tokens, err
}

func (s *GormStore) MarkAckTokenUsed(ctx context.Context, id uint, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.AckToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: acknowledgment token already used", types.ErrUnauthorized)
	}
	return nil
}

func dateArg(t time.Time) datatypes.Date {
	return datatypes.Date(rotation.Day(t))
}
