// Package audit merges the records written about an incident into a single
// timeline, most recent first.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/store"
)

// EntryType names the stream an entry came from.
type EntryType string

const (
	TypeUpdate         EntryType = "update"
	TypeNotification   EntryType = "notification"
	TypeEscalation     EntryType = "escalation"
	TypeAcknowledgment EntryType = "acknowledgment"
)

// Entry is one item of the timeline. Details holds the fields specific to
// the source record.
type Entry struct {
	Type      EntryType       `json:"type"`
	ID        uint            `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    *uint           `json:"user_id,omitempty"`
	Summary   string          `json:"summary"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Store is the read side the aggregator needs.
type Store interface {
	store.AuditStore
}

type Aggregator struct {
	store Store
}

func NewAggregator(s Store) *Aggregator {
	return &Aggregator{store: s}
}

// Timeline fetches the four streams concurrently and merges them by
// timestamp, newest first. Entries with equal timestamps keep stream order:
// updates, notifications, escalations, acknowledgments. Nothing is
// deduplicated across streams.
func (a *Aggregator) Timeline(ctx context.Context, incidentID uint) ([]Entry, error) {
	var (
		updates       []models.IncidentUpdate
		notifications []models.NotificationLog
		escalations   []models.EscalationLog
		acks          []models.IncidentAcknowledgment
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		updates, err = a.store.ListIncidentUpdates(gctx, incidentID)
		if err != nil {
			return fmt.Errorf("list incident updates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		notifications, err = a.store.ListNotificationLogs(gctx, incidentID)
		if err != nil {
			return fmt.Errorf("list notification logs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		escalations, err = a.store.ListEscalationLogs(gctx, incidentID)
		if err != nil {
			return fmt.Errorf("list escalation logs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		acks, err = a.store.ListAcknowledgments(gctx, incidentID)
		if err != nil {
			return fmt.Errorf("list acknowledgments: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(updates)+len(notifications)+len(escalations)+len(acks))

	for _, u := range updates {
		userID := u.UserID
		entries = append(entries, Entry{
			Type:      TypeUpdate,
			ID:        u.ID,
			Timestamp: u.CreatedAt,
			UserID:    &userID,
			Summary:   u.Message,
			Details:   details(map[string]any{"update_type": u.Type, "metadata": rawOrNil(u.Metadata)}),
		})
	}

	for _, n := range notifications {
		userID := n.UserID
		at := n.CreatedAt
		if n.SentAt != nil {
			at = *n.SentAt
		}
		entries = append(entries, Entry{
			Type:      TypeNotification,
			ID:        n.ID,
			Timestamp: at,
			UserID:    &userID,
			Summary:   fmt.Sprintf("%s notification %s", n.Channel, n.Status),
			Details:   details(map[string]any{"channel": n.Channel, "status": n.Status, "message": n.Message}),
		})
	}

	for _, e := range escalations {
		entries = append(entries, Entry{
			Type:      TypeEscalation,
			ID:        e.ID,
			Timestamp: e.CreatedAt,
			UserID:    e.ToUserID,
			Summary:   fmt.Sprintf("Escalated to level %d", e.Level),
			Details: details(map[string]any{
				"level":        e.Level,
				"from_user_id": e.FromUserID,
				"to_user_id":   e.ToUserID,
				"reason":       e.Reason,
			}),
		})
	}

	for _, ack := range acks {
		userID := ack.UserID
		entries = append(entries, Entry{
			Type:      TypeAcknowledgment,
			ID:        ack.ID,
			Timestamp: ack.CreatedAt,
			UserID:    &userID,
			Summary:   "Acknowledged via " + string(ack.Channel),
			Details:   details(map[string]any{"channel": ack.Channel}),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries, nil
}

func details(fields map[string]any) json.RawMessage {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return b
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
