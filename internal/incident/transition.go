// Package incident implements the incident lifecycle: open, acknowledged,
// resolved. Transition is a pure function over the stored incident and a
// patch; Service loads, authorizes, persists and announces the result.
package incident

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

// Policy decides what happens when a patch moves the status backwards.
type Policy string

const (
	// PolicyStrict rejects the patch with types.ErrInvalidTransition.
	PolicyStrict Policy = "strict"
	// PolicyLenient ignores the status edit and applies the other fields.
	PolicyLenient Policy = "lenient"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	}
	return "", fmt.Errorf("%w: unknown transition policy %q", types.ErrInvalidInput, s)
}

// NameFunc resolves a member to a display name.
type NameFunc func(memberID uint) (string, bool)

// TransitionContext carries everything a transition needs besides the data.
type TransitionContext struct {
	ActorID uint
	Now     time.Time
	Channel models.AckChannel
	Policy  Policy
	Names   NameFunc
}

// Outcome is the result of a transition: the new incident, the columns that
// changed, and the audit records to append with it.
type Outcome struct {
	Incident       models.Incident
	Fields         []string
	Updates        []models.IncidentUpdate
	Acknowledgment *models.IncidentAcknowledgment
}

// Changed reports whether anything needs to be written.
func (o Outcome) Changed() bool {
	return len(o.Fields) > 0 || len(o.Updates) > 0 || o.Acknowledgment != nil
}

// Transition applies patch to current:
//
//  1. moving to acknowledged stamps the acknowledger and records the ack
//  2. moving to resolved stamps resolvedAt (from the patch or now)
//  3. any status change appends a STATUS_CHANGE update
//  4. an assignee change appends an ASSIGNMENT_CHANGE update
//  5. remaining allow-listed fields are copied
//
// A patch that changes nothing yields an unchanged Outcome.
func Transition(current models.Incident, patch Patch, tc TransitionContext) (Outcome, error) {
	out := Outcome{Incident: current}
	next := &out.Incident
	channel := tc.Channel
	if channel == "" {
		channel = models.ChannelWeb
	}

	from := current.Status
	to := from
	if patch.Status.Set {
		if !patch.Status.Value.Valid() {
			return Outcome{}, fmt.Errorf("%w: unknown status %q", types.ErrInvalidInput, patch.Status.Value)
		}
		to = patch.Status.Value
	}

	if to.Rank() < from.Rank() {
		if tc.Policy == PolicyLenient {
			to = from
		} else {
			return Outcome{}, fmt.Errorf("%w: %s to %s", types.ErrInvalidTransition, from, to)
		}
	}

	// Rule 1
	if to == models.StatusAcknowledged && from != models.StatusAcknowledged {
		ack := acknowledge(next, tc.ActorID, channel, tc.Now)
		out.Acknowledgment = &ack
		out.Fields = append(out.Fields, store.FieldAcknowledgedAt, store.FieldAcknowledgedByID)
		out.Updates = append(out.Updates, update(current.ID, tc, models.UpdateAcknowledgment,
			"Incident acknowledged via "+string(channel), map[string]any{"channel": channel}))
	}

	// Rule 2
	if to == models.StatusResolved && from != models.StatusResolved {
		resolvedAt := tc.Now
		if patch.ResolvedAt.Set && patch.ResolvedAt.Value != nil {
			resolvedAt = *patch.ResolvedAt.Value
		}
		next.ResolvedAt = &resolvedAt
		out.Fields = append(out.Fields, store.FieldResolvedAt)
		out.Updates = append(out.Updates, update(current.ID, tc, models.UpdateResolution,
			"Incident resolved", map[string]any{"resolved_at": resolvedAt}))
	} else if to == models.StatusResolved && patch.ResolvedAt.Set && patch.ResolvedAt.Value != nil &&
		!sameTime(next.ResolvedAt, patch.ResolvedAt.Value) {
		resolvedAt := *patch.ResolvedAt.Value
		next.ResolvedAt = &resolvedAt
		out.Fields = append(out.Fields, store.FieldResolvedAt)
	}

	// Rule 3
	if to != from {
		next.Status = to
		out.Fields = append(out.Fields, store.FieldStatus)
		out.Updates = append(out.Updates, update(current.ID, tc, models.UpdateStatusChange,
			fmt.Sprintf("Status changed from %s to %s", from, to), map[string]any{"from": from, "to": to}))
	}

	// Rule 4
	if patch.AssigneeID.Set && !sameID(current.AssigneeID, patch.AssigneeID.Value) {
		oldName := displayName(current.AssigneeID, tc.Names)
		newName := displayName(patch.AssigneeID.Value, tc.Names)
		next.AssigneeID = copyID(patch.AssigneeID.Value)
		out.Fields = append(out.Fields, store.FieldAssigneeID)
		out.Updates = append(out.Updates, update(current.ID, tc, models.UpdateAssignmentChange,
			fmt.Sprintf("Assignee changed from %s to %s", oldName, newName),
			map[string]any{"from": current.AssigneeID, "to": patch.AssigneeID.Value}))
	}

	// Rule 5
	if patch.Title.Set && patch.Title.Value != current.Title {
		next.Title = patch.Title.Value
		out.Fields = append(out.Fields, store.FieldTitle)
	}
	if patch.Description.Set && patch.Description.Value != current.Description {
		next.Description = patch.Description.Value
		out.Fields = append(out.Fields, store.FieldDescription)
	}
	if patch.Severity.Set && patch.Severity.Value != current.Severity {
		if !patch.Severity.Value.Valid() {
			return Outcome{}, fmt.Errorf("%w: unknown severity %q", types.ErrInvalidInput, patch.Severity.Value)
		}
		next.Severity = patch.Severity.Value
		out.Fields = append(out.Fields, store.FieldSeverity)
	}
	if patch.ServiceID.Set && !sameID(current.ServiceID, patch.ServiceID.Value) {
		next.ServiceID = copyID(patch.ServiceID.Value)
		out.Fields = append(out.Fields, store.FieldServiceID)
	}

	return out, nil
}

// Acknowledge records an acknowledgment without the generic status-change
// update. Acknowledging an incident that is already acknowledged or resolved
// is a no-op.
func Acknowledge(current models.Incident, tc TransitionContext) Outcome {
	out := Outcome{Incident: current}
	if current.Status.Rank() >= models.StatusAcknowledged.Rank() {
		return out
	}

	channel := tc.Channel
	if channel == "" {
		channel = models.ChannelWeb
	}

	ack := acknowledge(&out.Incident, tc.ActorID, channel, tc.Now)
	out.Incident.Status = models.StatusAcknowledged
	out.Acknowledgment = &ack
	out.Fields = []string{store.FieldStatus, store.FieldAcknowledgedAt, store.FieldAcknowledgedByID}
	out.Updates = []models.IncidentUpdate{update(current.ID, tc, models.UpdateAcknowledgment,
		"Incident acknowledged via "+string(channel), map[string]any{"channel": channel})}
	return out
}

func acknowledge(inc *models.Incident, actorID uint, channel models.AckChannel, now time.Time) models.IncidentAcknowledgment {
	at := now
	by := actorID
	inc.AcknowledgedAt = &at
	inc.AcknowledgedByID = &by

	ack := models.IncidentAcknowledgment{
		IncidentID: inc.ID,
		UserID:     actorID,
		Channel:    channel,
	}
	ack.CreatedAt = now
	return ack
}

func update(incidentID uint, tc TransitionContext, kind models.UpdateType, message string, meta map[string]any) models.IncidentUpdate {
	u := models.IncidentUpdate{
		IncidentID: incidentID,
		UserID:     tc.ActorID,
		Message:    message,
		Type:       kind,
	}
	u.CreatedAt = tc.Now

	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			u.Metadata = b
		}
	}
	return u
}

func displayName(id *uint, names NameFunc) string {
	if id == nil {
		return "unassigned"
	}
	if names != nil {
		if name, ok := names(*id); ok && name != "" {
			return name
		}
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
