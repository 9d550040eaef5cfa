package rotation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/monocle-dev/oncall/internal/types"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCadence_PeriodDays(t *testing.T) {
	tests := []struct {
		name    string
		cadence Cadence
		want    int
	}{
		{"daily", Cadence{Frequency: 3, Unit: UnitDaily}, 3},
		{"weekly", Cadence{Frequency: 2, Unit: UnitWeekly}, 14},
		{"biweekly", Cadence{Frequency: 1, Unit: UnitBiweekly}, 14},
		{"monthly uses flat approximation", Cadence{Frequency: 2, Unit: UnitMonthly}, 2 * DaysPerMonth},
		{"unit is case insensitive", Cadence{Frequency: 1, Unit: "Weekly"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cadence.PeriodDays()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCadence_Validate(t *testing.T) {
	t.Run("rejects non-positive frequency", func(t *testing.T) {
		err := Cadence{Frequency: 0, Unit: UnitDaily}.Validate()
		require.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("rejects unknown unit", func(t *testing.T) {
		err := Cadence{Frequency: 1, Unit: "fortnightly"}.Validate()
		require.ErrorIs(t, err, types.ErrInvalidInput)
	})
}

func TestGenerate_WeeklyScenario(t *testing.T) {
	const a, b = uint(1), uint(2)
	entries, err := Generate([]uint{a, b}, date("2024-01-01"), date("2024-01-15"), Cadence{Frequency: 1, Unit: UnitWeekly})
	require.NoError(t, err)
	require.Len(t, entries, 15)

	for i := 0; i < 7; i++ {
		require.Equal(t, a, entries[i].MemberID, "day %d", i+1)
	}
	for i := 7; i < 14; i++ {
		require.Equal(t, b, entries[i].MemberID, "day %d", i+1)
	}
	require.Equal(t, a, entries[14].MemberID, "day 15")
}

func TestGenerate_OneEntryPerDay(t *testing.T) {
	roster := []uint{10, 20, 30}
	cadences := []Cadence{
		{Frequency: 1, Unit: UnitDaily},
		{Frequency: 2, Unit: UnitWeekly},
		{Frequency: 1, Unit: UnitBiweekly},
		{Frequency: 1, Unit: UnitMonthly},
	}
	start := date("2024-02-20")

	for _, c := range cadences {
		for _, span := range []int{0, 1, 13, 95} {
			end := start.AddDate(0, 0, span)
			entries, err := Generate(roster, start, end, c)
			require.NoError(t, err)
			require.Len(t, entries, span+1)

			for i, e := range entries {
				require.True(t, e.Date.Equal(start.AddDate(0, 0, i)), "entry %d has date %s", i, e.Date)
				require.Contains(t, roster, e.MemberID)
			}
		}
	}
}

func TestGenerate_Periodicity(t *testing.T) {
	roster := []uint{7, 8, 9, 11}
	start := date("2023-12-30")
	cadences := []Cadence{
		{Frequency: 1, Unit: UnitDaily},
		{Frequency: 3, Unit: UnitDaily},
		{Frequency: 1, Unit: UnitWeekly},
		{Frequency: 1, Unit: UnitMonthly},
	}

	for _, c := range cadences {
		period, err := c.PeriodDays()
		require.NoError(t, err)

		end := start.AddDate(0, 0, period*len(roster)*3)
		entries, err := Generate(roster, start, end, c)
		require.NoError(t, err)

		for k := 0; k*period*len(roster) < len(entries); k++ {
			require.Equal(t, entries[0].MemberID, entries[k*period*len(roster)].MemberID)
		}
		for k := 0; k*period < len(entries); k++ {
			require.Equal(t, roster[k%len(roster)], entries[k*period].MemberID, "cadence %+v boundary %d", c, k)
		}
	}
}

func TestGenerate_EmptyRange(t *testing.T) {
	entries, err := Generate([]uint{1}, date("2024-01-10"), date("2024-01-09"), Cadence{Frequency: 1, Unit: UnitDaily})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerate_EmptyRoster(t *testing.T) {
	_, err := Generate(nil, date("2024-01-01"), date("2024-01-09"), Cadence{Frequency: 1, Unit: UnitDaily})
	require.ErrorIs(t, err, types.ErrInvalidRoster)
}

func TestGenerate_IgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	start := time.Date(2024, 3, 1, 23, 30, 0, 0, loc)
	end := time.Date(2024, 3, 3, 0, 15, 0, 0, loc)

	entries, err := Generate([]uint{1, 2}, start, end, Cadence{Frequency: 1, Unit: UnitDaily})
	require.NoError(t, err)

	want := []Entry{
		{Date: date("2024-03-01"), MemberID: 1},
		{Date: date("2024-03-02"), MemberID: 2},
		{Date: date("2024-03-03"), MemberID: 1},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", diff)
	}
}

func TestGenerateWindow_KeepsAnchorPhase(t *testing.T) {
	roster := []uint{1, 2}
	cadence := Cadence{Frequency: 1, Unit: UnitWeekly}
	anchor := date("2024-01-01")

	full, err := Generate(roster, anchor, date("2024-02-29"), cadence)
	require.NoError(t, err)

	window, err := GenerateWindow(roster, anchor, date("2024-01-20"), date("2024-02-29"), cadence)
	require.NoError(t, err)

	if diff := cmp.Diff(full[19:], window); diff != "" {
		t.Fatalf("window diverges from full rotation (-want +got):\n%s", diff)
	}
}

func TestGenerateWindow_ClampsToAnchor(t *testing.T) {
	entries, err := GenerateWindow([]uint{5}, date("2024-05-10"), date("2024-05-01"), date("2024-05-11"), Cadence{Frequency: 1, Unit: UnitDaily})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Date.Equal(date("2024-05-10")))
}
