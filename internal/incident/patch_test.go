package incident

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/types"
)

func decode(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestSanitizePatch_AllowList(t *testing.T) {
	p, err := SanitizePatch(decode(t, `{
		"title": "DB failover",
		"status": "Acknowledged",
		"severity": "critical",
		"assignee_id": 4,
		"service_id": null,
		"resolved_at": "2024-01-10T15:00:00Z",
		"id": 999,
		"team_id": 7,
		"created_by_id": 1,
		"acknowledged_at": "2020-01-01T00:00:00Z"
	}`))
	require.NoError(t, err)

	assert.Equal(t, Some("DB failover"), p.Title)
	assert.Equal(t, Some(models.StatusAcknowledged), p.Status)
	assert.Equal(t, Some(models.SeverityCritical), p.Severity)
	require.True(t, p.AssigneeID.Set)
	require.NotNil(t, p.AssigneeID.Value)
	assert.Equal(t, uint(4), *p.AssigneeID.Value)
	assert.True(t, p.ServiceID.Set)
	assert.Nil(t, p.ServiceID.Value)
	require.NotNil(t, p.ResolvedAt.Value)
	assert.True(t, p.ResolvedAt.Value.Equal(time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)))
	assert.False(t, p.Description.Set)
}

func TestSanitizePatch_OnlyUnknownKeys(t *testing.T) {
	p, err := SanitizePatch(decode(t, `{"id": 1, "foo": "bar"}`))
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestSanitizePatch_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown status":   `{"status": "closed"}`,
		"unknown severity": `{"severity": "sev1"}`,
		"blank title":      `{"title": "  "}`,
		"title not string": `{"title": 5}`,
		"bad assignee":     `{"assignee_id": "bob"}`,
		"negative service": `{"service_id": -1}`,
		"bad time":         `{"resolved_at": "yesterday"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := SanitizePatch(decode(t, body))
			require.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}
