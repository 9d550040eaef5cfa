package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/monocle-dev/oncall/internal/types"
)

const twoMemberRoster = `
members:
  - id: 1
    name: alice
  - id: 2
    name: bob
`

func TestRunPreview_Weekly(t *testing.T) {
	var out bytes.Buffer

	err := runPreview(strings.NewReader(twoMemberRoster), &out, previewOptions{
		start:     "2024-01-01",
		days:      21,
		frequency: 1,
		unit:      "weekly",
	})
	require.NoError(t, err)

	var days []previewDay
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &days))
	require.Len(t, days, 21)

	assert.Equal(t, previewDay{Date: "2024-01-01", MemberID: 1, Name: "alice"}, days[0])
	assert.Equal(t, previewDay{Date: "2024-01-07", MemberID: 1, Name: "alice"}, days[6])
	assert.Equal(t, previewDay{Date: "2024-01-08", MemberID: 2, Name: "bob"}, days[7])
	assert.Equal(t, previewDay{Date: "2024-01-15", MemberID: 1, Name: "alice"}, days[14])
}

func TestRunPreview_Errors(t *testing.T) {
	base := previewOptions{start: "2024-01-01", days: 7, frequency: 1, unit: "daily"}

	t.Run("empty roster", func(t *testing.T) {
		err := runPreview(strings.NewReader("members: []\n"), &bytes.Buffer{}, base)
		assert.True(t, errors.Is(err, types.ErrInvalidRoster))
	})

	t.Run("bad unit", func(t *testing.T) {
		opts := base
		opts.unit = "hourly"
		err := runPreview(strings.NewReader(twoMemberRoster), &bytes.Buffer{}, opts)
		assert.True(t, errors.Is(err, types.ErrInvalidInput))
	})

	t.Run("bad start", func(t *testing.T) {
		opts := base
		opts.start = "01/01/2024"
		err := runPreview(strings.NewReader(twoMemberRoster), &bytes.Buffer{}, opts)
		assert.Error(t, err)
	})

	t.Run("zero days", func(t *testing.T) {
		opts := base
		opts.days = 0
		err := runPreview(strings.NewReader(twoMemberRoster), &bytes.Buffer{}, opts)
		assert.Error(t, err)
	})
}
