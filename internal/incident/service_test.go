package incident

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monocle-dev/oncall/internal/ackauth"
	"github.com/monocle-dev/oncall/internal/metrics"
	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

const team = uint(42)

type recorder struct {
	metrics.Nop

	mu          sync.Mutex
	reasons     []string
	transitions []string
	channels    []string
}

func (r *recorder) BroadcastRefresh(_ uint, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) IncidentTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recorder) Acknowledgment(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
}

type env struct {
	store    *store.MemoryStore
	svc      *Service
	rec      *recorder
	alice    models.User
	bob      models.User
	outsider models.User
}

func newEnv(t *testing.T, verifier ackauth.TokenVerifier, opts ...Option) *env {
	t.Helper()

	clock := func() time.Time { return now }
	mem := store.NewMemoryStore(clock)
	e := &env{store: mem, rec: &recorder{}}

	e.alice = mem.AddUser("Alice", "alice@example.com")
	e.bob = mem.AddUser("Bob", "bob@example.com")
	e.outsider = mem.AddUser("Mallory", "mallory@example.com")
	mem.AddMembership(team, e.alice.ID, models.RoleAdmin)
	mem.AddMembership(team, e.bob.ID, models.RoleMember)

	base := []Option{WithClock(clock), WithBroadcaster(e.rec), WithMetrics(e.rec)}
	e.svc = NewService(mem, ackauth.NewAuthorizer(verifier, nil), append(base, opts...)...)
	return e
}

func (e *env) report(t *testing.T) models.Incident {
	t.Helper()

	inc, err := e.svc.ReportIncident(context.Background(), e.alice.ID, ReportInput{
		TeamID:   team,
		Title:    "Queue backlog",
		Severity: models.SeverityMedium,
	})
	require.NoError(t, err)
	return inc
}

func TestReportIncident(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()

	inc := e.report(t)
	assert.Equal(t, models.StatusOpen, inc.Status)
	assert.Equal(t, e.alice.ID, inc.CreatedByID)
	assert.Equal(t, []string{"incident_reported"}, e.rec.reasons)

	_, err := e.svc.ReportIncident(ctx, e.outsider.ID, ReportInput{TeamID: team, Title: "x"})
	require.ErrorIs(t, err, types.ErrForbidden)

	_, err = e.svc.ReportIncident(ctx, e.alice.ID, ReportInput{TeamID: team, Title: " "})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = e.svc.ReportIncident(ctx, e.alice.ID, ReportInput{TeamID: team, Title: "x", AssigneeID: &e.outsider.ID})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	unknown, err := e.svc.ReportIncident(ctx, e.alice.ID, ReportInput{TeamID: team, Title: "no severity"})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityUnknown, unknown.Severity)
}

func TestPatchIncident_AcknowledgeOnce(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	patch := Patch{Status: Some(models.StatusAcknowledged)}

	got, err := e.svc.PatchIncident(ctx, e.bob.ID, inc.ID, patch, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedAt)
	require.NotNil(t, got.AcknowledgedByID)
	assert.Equal(t, e.bob.ID, *got.AcknowledgedByID)

	again, err := e.svc.PatchIncident(ctx, e.bob.ID, inc.ID, patch, "")
	require.NoError(t, err)
	assert.Equal(t, got.Status, again.Status)

	updates, err := e.store.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	ackUpdates := 0
	for _, u := range updates {
		if u.Type == models.UpdateAcknowledgment {
			ackUpdates++
		}
	}
	assert.Equal(t, 1, ackUpdates)

	acks, err := e.store.ListAcknowledgments(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, models.ChannelWeb, acks[0].Channel)

	assert.Equal(t, []string{"open->acknowledged"}, e.rec.transitions)
	assert.Equal(t, []string{"web"}, e.rec.channels)
}

func TestPatchIncident_StrictDowngradeLeavesStoreUntouched(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	_, err := e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{Status: Some(models.StatusResolved)}, "")
	require.NoError(t, err)

	_, err = e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{Status: Some(models.StatusOpen), Title: Some("reopened")}, "")
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	stored, err := e.store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, stored.Status)
	assert.Equal(t, "Queue backlog", stored.Title)
}

func TestPatchIncident_LenientDowngradeAppliesOtherFields(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{}, WithPolicy(PolicyLenient))
	ctx := context.Background()
	inc := e.report(t)

	_, err := e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{Status: Some(models.StatusResolved)}, "")
	require.NoError(t, err)

	got, err := e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{Status: Some(models.StatusOpen), Title: Some("reopened")}, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, "reopened", got.Title)
	require.NotNil(t, got.ResolvedAt)
}

func TestPatchIncident_Assignee(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	got, err := e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{AssigneeID: Some(&e.bob.ID)}, "")
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, e.bob.ID, *got.AssigneeID)

	updates, err := e.store.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "Assignee changed from unassigned to Bob", updates[0].Message)

	_, err = e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{AssigneeID: Some(&e.outsider.ID)}, "")
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestPatchIncident_Errors(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	_, err := e.svc.PatchIncident(ctx, e.alice.ID, 9999, Patch{Title: Some("x")}, "")
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = e.svc.PatchIncident(ctx, e.outsider.ID, inc.ID, Patch{Title: Some("x")}, "")
	require.ErrorIs(t, err, types.ErrForbidden)

	_, err = e.svc.PatchIncident(ctx, e.alice.ID, inc.ID, Patch{Status: Some(models.StatusAcknowledged)}, "carrier-pigeon")
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestAcknowledgeIncident_TokenAndMember(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	got, err := e.svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{
		Token:    "sms-token",
		MemberID: e.bob.ID,
		Channel:  models.ChannelSMS,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedByID)
	assert.Equal(t, e.bob.ID, *got.AcknowledgedByID)

	acks, err := e.store.ListAcknowledgments(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, models.ChannelSMS, acks[0].Channel)
	assert.Equal(t, e.bob.ID, acks[0].UserID)

	updates, err := e.store.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, models.UpdateAcknowledgment, updates[0].Type)
}

func TestAcknowledgeIncident_NoProof(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	inc := e.report(t)

	_, err := e.svc.AcknowledgeIncident(context.Background(), inc.ID, ackauth.Request{})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	stored, err := e.store.GetIncident(context.Background(), inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
}

func TestAcknowledgeIncident_Idempotent(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)
	session := &ackauth.Identity{MemberID: e.alice.ID}

	first, err := e.svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Session: session})
	require.NoError(t, err)

	second, err := e.svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: "t", MemberID: e.bob.ID})
	require.NoError(t, err)
	assert.Equal(t, first.AcknowledgedByID, second.AcknowledgedByID)

	acks, err := e.store.ListAcknowledgments(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, acks, 1)
}

func TestAcknowledgeIncident_Errors(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	ctx := context.Background()
	inc := e.report(t)

	_, err := e.svc.AcknowledgeIncident(ctx, 9999, ackauth.Request{Session: &ackauth.Identity{MemberID: e.alice.ID}})
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = e.svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: "t", MemberID: e.outsider.ID})
	require.ErrorIs(t, err, types.ErrForbidden)
}

func TestAcknowledgeIncident_BoundToken(t *testing.T) {
	clock := func() time.Time { return now }
	mem := store.NewMemoryStore(clock)
	alice := mem.AddUser("Alice", "alice@example.com")
	mem.AddMembership(team, alice.ID, models.RoleMember)

	svc := NewService(mem, ackauth.NewAuthorizer(ackauth.NewBoundTokenVerifier(mem, clock), nil), WithClock(clock))
	issuer := ackauth.NewIssuer(mem, ackauth.WithCost(4), ackauth.WithIssuerClock(clock))
	ctx := context.Background()

	inc, err := svc.ReportIncident(ctx, alice.ID, ReportInput{TeamID: team, Title: "Disk full"})
	require.NoError(t, err)

	_, err = svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: "made-up", MemberID: alice.ID})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	secret, _, err := issuer.Issue(ctx, inc.ID, alice.ID, models.ChannelVoice)
	require.NoError(t, err)

	got, err := svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: secret, MemberID: alice.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)

	acks, err := mem.ListAcknowledgments(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, models.ChannelVoice, acks[0].Channel)
}

func TestAcknowledgeIncident_NonMemberKeepsToken(t *testing.T) {
	clock := func() time.Time { return now }
	mem := store.NewMemoryStore(clock)
	alice := mem.AddUser("Alice", "alice@example.com")
	former := mem.AddUser("Frank", "frank@example.com")
	mem.AddMembership(team, alice.ID, models.RoleMember)

	svc := NewService(mem, ackauth.NewAuthorizer(ackauth.NewBoundTokenVerifier(mem, clock), nil), WithClock(clock))
	issuer := ackauth.NewIssuer(mem, ackauth.WithCost(4), ackauth.WithIssuerClock(clock))
	ctx := context.Background()

	inc, err := svc.ReportIncident(ctx, alice.ID, ReportInput{TeamID: team, Title: "Cert expiry"})
	require.NoError(t, err)

	// Frank was paged while still on the team and has since left it.
	secret, issued, err := issuer.Issue(ctx, inc.ID, former.ID, models.ChannelSMS)
	require.NoError(t, err)

	_, err = svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: secret, MemberID: former.ID})
	require.ErrorIs(t, err, types.ErrForbidden)

	active, err := mem.ListActiveAckTokens(ctx, inc.ID, former.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 1, "a rejected acknowledgment leaves the token unspent")
	assert.Equal(t, issued.ID, active[0].ID)

	got, err := svc.GetIncident(ctx, alice.ID, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestIssueAckToken(t *testing.T) {
	clock := func() time.Time { return now }
	mem := store.NewMemoryStore(clock)
	alice := mem.AddUser("Alice", "alice@example.com")
	bob := mem.AddUser("Bob", "bob@example.com")
	outsider := mem.AddUser("Mallory", "mallory@example.com")
	mem.AddMembership(team, alice.ID, models.RoleAdmin)
	mem.AddMembership(team, bob.ID, models.RoleMember)

	issuer := ackauth.NewIssuer(mem, ackauth.WithCost(4), ackauth.WithIssuerClock(clock))
	auth := ackauth.NewAuthorizer(ackauth.NewBoundTokenVerifier(mem, clock), nil)
	svc := NewService(mem, auth, WithClock(clock), WithTokenIssuer(issuer))
	ctx := context.Background()

	inc, err := svc.ReportIncident(ctx, alice.ID, ReportInput{TeamID: team, Title: "Error budget burn"})
	require.NoError(t, err)

	_, _, err = svc.IssueAckToken(ctx, alice.ID, inc.ID, outsider.ID, models.ChannelSMS)
	require.ErrorIs(t, err, types.ErrInvalidInput)

	_, _, err = svc.IssueAckToken(ctx, outsider.ID, inc.ID, bob.ID, models.ChannelSMS)
	require.ErrorIs(t, err, types.ErrForbidden)

	secret, token, err := svc.IssueAckToken(ctx, alice.ID, inc.ID, bob.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, token.UserID)
	assert.True(t, token.ExpiresAt.After(now))

	got, err := svc.AcknowledgeIncident(ctx, inc.ID, ackauth.Request{Token: secret, MemberID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, got.Status)

	_, _, err = svc.IssueAckToken(ctx, alice.ID, inc.ID, bob.ID, models.ChannelSMS)
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestIssueAckToken_Disabled(t *testing.T) {
	e := newEnv(t, ackauth.PresenceVerifier{})
	inc := e.report(t)

	_, _, err := e.svc.IssueAckToken(context.Background(), e.alice.ID, inc.ID, e.bob.ID, models.ChannelSMS)
	require.Error(t, err)
}
