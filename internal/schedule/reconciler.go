package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/store"
)

// Reconciler writes generated rotations over the persisted assignments.
type Reconciler struct {
	store store.AssignmentStore
}

func NewReconciler(s store.AssignmentStore) *Reconciler {
	return &Reconciler{store: s}
}

// Apply replaces every assignment of the schedule dated in [from, to] with
// the given entries. Entries outside the range are ignored. Applying the same
// input twice leaves the same current assignments.
//
// The delete and the insert are separate writes: if the insert fails the
// range may be left partially filled and the caller is expected to retry.
func (r *Reconciler) Apply(ctx context.Context, scheduleID uint, from, to time.Time, entries []rotation.Entry) ([]models.Assignment, error) {
	from, to = rotation.Day(from), rotation.Day(to)

	rows := make([]models.Assignment, 0, len(entries))
	for _, e := range entries {
		day := rotation.Day(e.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		rows = append(rows, models.Assignment{
			ScheduleID: scheduleID,
			UserID:     e.MemberID,
			Date:       datatypes.Date(day),
		})
	}

	if to.Before(from) {
		return rows, nil
	}

	if err := r.store.DeleteAssignments(ctx, scheduleID, from, to); err != nil {
		return nil, fmt.Errorf("clear assignments %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}

	if err := r.store.CreateAssignments(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert %d assignments: %w", len(rows), err)
	}

	return rows, nil
}

// CurrentAssignments resolves duplicate rows for the same (schedule, date):
// the row created last wins, ties go to the higher ID. The result is ordered
// by date.
func CurrentAssignments(rows []models.Assignment) []models.Assignment {
	type key struct {
		schedule uint
		day      time.Time
	}

	latest := make(map[key]models.Assignment, len(rows))
	for _, row := range rows {
		k := key{schedule: row.ScheduleID, day: rotation.Day(row.Day())}
		current, seen := latest[k]
		if !seen || newer(row, current) {
			latest[k] = row
		}
	}

	out := make([]models.Assignment, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Day(), out[j].Day()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].ScheduleID < out[j].ScheduleID
	})

	return out
}

func newer(a, b models.Assignment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
