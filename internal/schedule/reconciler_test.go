package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/rotation"
	"github.com/monocle-dev/oncall/internal/store"
)

func seededSchedule(t *testing.T, mem *store.MemoryStore) models.Schedule {
	t.Helper()

	schedule := models.Schedule{
		TeamID:    teamID,
		Name:      "Primary",
		Frequency: 1,
		Unit:      string(rotation.UnitWeekly),
		StartDate: datatypes.Date(day("2024-01-01")),
	}
	require.NoError(t, mem.CreateSchedule(context.Background(), &schedule))
	return schedule
}

func TestReconcilerApply_Idempotent(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	schedule := seededSchedule(t, mem)
	r := NewReconciler(mem)
	ctx := context.Background()

	from, to := day("2024-01-01"), day("2024-01-15")
	entries, err := rotation.Generate([]uint{7, 8}, from, to, rotation.Cadence{Frequency: 1, Unit: rotation.UnitWeekly})
	require.NoError(t, err)

	_, err = r.Apply(ctx, schedule.ID, from, to, entries)
	require.NoError(t, err)

	rows, err := mem.ListAssignments(ctx, schedule.ID, from, to)
	require.NoError(t, err)
	first := byDate(CurrentAssignments(rows))

	_, err = r.Apply(ctx, schedule.ID, from, to, entries)
	require.NoError(t, err)

	rows, err = mem.ListAssignments(ctx, schedule.ID, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 15, "the range is cleared before inserting")

	if diff := cmp.Diff(first, byDate(CurrentAssignments(rows))); diff != "" {
		t.Errorf("assignments changed on re-apply (-first +second):\n%s", diff)
	}
}

func TestReconcilerApply_OnlyTouchesRange(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	schedule := seededSchedule(t, mem)
	r := NewReconciler(mem)
	ctx := context.Background()

	all, err := rotation.Generate([]uint{1}, day("2024-01-01"), day("2024-01-10"), rotation.Cadence{Frequency: 1, Unit: rotation.UnitDaily})
	require.NoError(t, err)
	_, err = r.Apply(ctx, schedule.ID, day("2024-01-01"), day("2024-01-10"), all)
	require.NoError(t, err)

	replacement, err := rotation.Generate([]uint{2}, day("2024-01-01"), day("2024-01-10"), rotation.Cadence{Frequency: 1, Unit: rotation.UnitDaily})
	require.NoError(t, err)
	written, err := r.Apply(ctx, schedule.ID, day("2024-01-05"), day("2024-01-06"), replacement)
	require.NoError(t, err)
	require.Len(t, written, 2)

	rows, err := mem.ListAssignments(ctx, schedule.ID, day("2024-01-01"), day("2024-01-10"))
	require.NoError(t, err)

	got := byDate(CurrentAssignments(rows))
	require.Len(t, got, 10)
	require.Equal(t, uint(1), got["2024-01-04"])
	require.Equal(t, uint(2), got["2024-01-05"])
	require.Equal(t, uint(2), got["2024-01-06"])
	require.Equal(t, uint(1), got["2024-01-07"])
}

func TestReconcilerApply_EmptyRange(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	schedule := seededSchedule(t, mem)

	rows, err := NewReconciler(mem).Apply(context.Background(), schedule.ID, day("2024-01-05"), day("2024-01-01"), nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestCurrentAssignments_LatestWins(t *testing.T) {
	base := day("2024-03-01")
	row := func(id, user uint, date string, created time.Time) models.Assignment {
		return models.Assignment{
			BaseModel:  models.BaseModel{ID: id, CreatedAt: created},
			ScheduleID: 1,
			UserID:     user,
			Date:       datatypes.Date(day(date)),
		}
	}

	rows := []models.Assignment{
		row(1, 10, "2024-03-02", base),
		row(2, 11, "2024-03-02", base.Add(time.Minute)),
		row(3, 12, "2024-03-01", base),
		row(5, 13, "2024-03-03", base),
		row(4, 14, "2024-03-03", base),
	}

	got := CurrentAssignments(rows)
	require.Len(t, got, 3)

	require.Equal(t, uint(12), got[0].UserID)
	require.Equal(t, uint(11), got[1].UserID, "created later wins")
	require.Equal(t, uint(13), got[2].UserID, "same timestamp goes to the higher id")
}

func TestCurrentAssignments_Empty(t *testing.T) {
	require.Empty(t, CurrentAssignments(nil))
}
