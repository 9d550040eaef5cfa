package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/monocle-dev/oncall/internal/ackauth"
	"github.com/monocle-dev/oncall/internal/metrics"
	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

// Store is the persistence the incident service needs.
type Store interface {
	store.DirectoryStore
	store.IncidentStore
}

// Authorizer resolves an acknowledgment request to a member. Consume spends
// the proof behind a grant and is called only once the grant is accepted.
type Authorizer interface {
	Authorize(ctx context.Context, req ackauth.Request) (ackauth.Grant, error)
	Consume(ctx context.Context, grant ackauth.Grant) error
}

// TokenIssuer mints acknowledgment tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, incidentID, memberID uint, channel models.AckChannel) (string, models.AckToken, error)
}

// Broadcaster is notified after a team's incidents change.
type Broadcaster interface {
	BroadcastRefresh(teamID uint, reason string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastRefresh(uint, string) {}

// ReportInput describes a newly reported incident.
type ReportInput struct {
	TeamID      uint
	ServiceID   *uint
	Title       string
	Description string
	Severity    models.Severity
	AssigneeID  *uint
}

type Service struct {
	store   Store
	auth    Authorizer
	issuer  TokenIssuer
	policy  Policy
	log     *zap.Logger
	metrics metrics.Collector
	events  Broadcaster
	now     func() time.Time
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

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithTokenIssuer(i TokenIssuer) Option {
	return func(s *Service) { s.issuer = i }
}

func NewService(st Store, auth Authorizer, opts ...Option) *Service {
	s := &Service{
		store:   st,
		auth:    auth,
		policy:  PolicyStrict,
		log:     zap.NewNop(),
		metrics: metrics.NewNop(),
		events:  nopBroadcaster{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ReportIncident opens a new incident on behalf of a team member.
func (s *Service) ReportIncident(ctx context.Context, actorID uint, in ReportInput) (models.Incident, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.TeamID == 0 {
		return models.Incident{}, fmt.Errorf("%w: team is required", types.ErrInvalidInput)
	}
	if in.Title == "" {
		return models.Incident{}, fmt.Errorf("%w: title is required", types.ErrInvalidInput)
	}
	if in.Severity == "" {
		in.Severity = models.SeverityUnknown
	}
	if !in.Severity.Valid() {
		return models.Incident{}, fmt.Errorf("%w: unknown severity %q", types.ErrInvalidInput, in.Severity)
	}

	if err := s.requireMember(ctx, in.TeamID, actorID); err != nil {
		return models.Incident{}, err
	}
	if in.AssigneeID != nil {
		if err := s.requireAssignable(ctx, in.TeamID, *in.AssigneeID); err != nil {
			return models.Incident{}, err
		}
	}

	incident := models.Incident{
		TeamID:      in.TeamID,
		ServiceID:   in.ServiceID,
		Title:       in.Title,
		Description: in.Description,
		Severity:    in.Severity,
		Status:      models.StatusOpen,
		CreatedByID: actorID,
		AssigneeID:  in.AssigneeID,
	}
	incident.CreatedAt = s.now()

	if err := s.store.CreateIncident(ctx, &incident); err != nil {
		return models.Incident{}, fmt.Errorf("create incident: %w", err)
	}

	s.log.Info("incident reported",
		zap.Uint("incident_id", incident.ID),
		zap.Uint("team_id", incident.TeamID),
		zap.String("severity", string(incident.Severity)))

	s.events.BroadcastRefresh(incident.TeamID, "incident_reported")
	return incident, nil
}

// GetIncident returns the incident if the actor belongs to its team.
func (s *Service) GetIncident(ctx context.Context, actorID, incidentID uint) (models.Incident, error) {
	incident, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return models.Incident{}, err
	}

	if err := s.requireMember(ctx, incident.TeamID, actorID); err != nil {
		return models.Incident{}, err
	}

	return incident, nil
}

// PatchIncident applies the patch through the transition rules and persists
// the result together with its audit records. channel is used when the patch
// acknowledges the incident.
func (s *Service) PatchIncident(ctx context.Context, actorID, incidentID uint, patch Patch, channel models.AckChannel) (models.Incident, error) {
	if channel != "" && !channel.Valid() {
		return models.Incident{}, fmt.Errorf("%w: unknown channel %q", types.ErrInvalidInput, channel)
	}

	incident, err := s.GetIncident(ctx, actorID, incidentID)
	if err != nil {
		return models.Incident{}, err
	}

	if patch.AssigneeID.Set && patch.AssigneeID.Value != nil {
		if err := s.requireAssignable(ctx, incident.TeamID, *patch.AssigneeID.Value); err != nil {
			return models.Incident{}, err
		}
	}

	outcome, err := Transition(incident, patch, TransitionContext{
		ActorID: actorID,
		Now:     s.now(),
		Channel: channel,
		Policy:  s.policy,
		Names:   s.displayName(ctx),
	})
	if err != nil {
		return models.Incident{}, err
	}

	return s.commit(ctx, incident, outcome, "incident_updated")
}

// AcknowledgeIncident authorizes the caller by session or token and marks
// the incident acknowledged. Repeating it is a no-op that returns the
// current incident.
func (s *Service) AcknowledgeIncident(ctx context.Context, incidentID uint, req ackauth.Request) (models.Incident, error) {
	req.IncidentID = incidentID

	grant, err := s.auth.Authorize(ctx, req)
	if err != nil {
		return models.Incident{}, err
	}

	incident, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return models.Incident{}, err
	}

	if err := s.requireMember(ctx, incident.TeamID, grant.MemberID); err != nil {
		return models.Incident{}, err
	}

	if err := s.auth.Consume(ctx, grant); err != nil {
		return models.Incident{}, err
	}

	outcome := Acknowledge(incident, TransitionContext{
		ActorID: grant.MemberID,
		Now:     s.now(),
		Channel: grant.Channel,
		Policy:  s.policy,
	})

	s.log.Debug("acknowledgment authorized",
		zap.Uint("incident_id", incidentID),
		zap.Uint("member_id", grant.MemberID),
		zap.String("method", string(grant.Method)),
		zap.String("channel", string(grant.Channel)))

	return s.commit(ctx, incident, outcome, "incident_acknowledged")
}

// IssueAckToken mints a token that lets memberID acknowledge the incident
// without a session. The plaintext token is returned once.
func (s *Service) IssueAckToken(ctx context.Context, actorID, incidentID, memberID uint, channel models.AckChannel) (string, models.AckToken, error) {
	if s.issuer == nil {
		return "", models.AckToken{}, errors.New("acknowledgment tokens are not enabled")
	}

	incident, err := s.GetIncident(ctx, actorID, incidentID)
	if err != nil {
		return "", models.AckToken{}, err
	}
	if incident.Status != models.StatusOpen {
		return "", models.AckToken{}, fmt.Errorf("%w: incident is already %s", types.ErrConflict, incident.Status)
	}
	if err := s.requireAssignable(ctx, incident.TeamID, memberID); err != nil {
		return "", models.AckToken{}, err
	}

	secret, token, err := s.issuer.Issue(ctx, incidentID, memberID, channel)
	if err != nil {
		return "", models.AckToken{}, err
	}

	s.log.Info("acknowledgment token issued",
		zap.Uint("incident_id", incidentID),
		zap.Uint("member_id", memberID),
		zap.String("channel", string(channel)),
		zap.Time("expires_at", token.ExpiresAt))

	return secret, token, nil
}

func (s *Service) commit(ctx context.Context, before models.Incident, outcome Outcome, reason string) (models.Incident, error) {
	if !outcome.Changed() {
		return before, nil
	}

	saved, err := s.store.SaveIncident(ctx, outcome.Incident, outcome.Fields, outcome.Updates, outcome.Acknowledgment)
	if err != nil {
		return models.Incident{}, fmt.Errorf("save incident: %w", err)
	}

	if saved.Status != before.Status {
		s.metrics.IncidentTransition(string(before.Status), string(saved.Status))
	}
	if outcome.Acknowledgment != nil {
		s.metrics.Acknowledgment(string(outcome.Acknowledgment.Channel))
	}

	s.log.Info("incident updated",
		zap.Uint("incident_id", saved.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(saved.Status)),
		zap.Strings("fields", outcome.Fields),
		zap.Int("audit_records", len(outcome.Updates)))

	s.events.BroadcastRefresh(saved.TeamID, reason)
	return saved, nil
}

func (s *Service) displayName(ctx context.Context) NameFunc {
	return func(id uint) (string, bool) {
		user, err := s.store.GetUser(ctx, id)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				s.log.Warn("member lookup failed", zap.Uint("user_id", id), zap.Error(err))
			}
			return "", false
		}
		return user.Name, true
	}
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

func (s *Service) requireAssignable(ctx context.Context, teamID, userID uint) error {
	if _, err := s.store.GetMembership(ctx, teamID, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("%w: assignee %d is not a member of team %d", types.ErrInvalidInput, userID, teamID)
		}
		return err
	}
	return nil
}
