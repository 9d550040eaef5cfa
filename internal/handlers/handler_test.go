package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/monocle-dev/oncall/internal/types"
)

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: no token", types.ErrUnauthorized), http.StatusUnauthorized, "unauthorized: no token"},
		{types.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("incident 3: %w", types.ErrNotFound), http.StatusNotFound, "incident 3: not found"},
		{types.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{types.ErrInvalidRoster, http.StatusBadRequest, types.ErrInvalidRoster.Error()},
		{types.ErrConflict, http.StatusConflict, "conflict"},
		{types.ErrInvalidTransition, http.StatusConflict, types.ErrInvalidTransition.Error()},
		{errors.New("connection reset"), http.StatusInternalServerError, "Something failed"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			h := New(Deps{Log: zap.New(core)})

			w := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(w)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.writeError(ctx, tt.err, "Something failed")

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["error"])

			if tt.status == http.StatusInternalServerError {
				require.Equal(t, 1, logs.Len())
				assert.Equal(t, "Something failed", logs.All()[0].Message)
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("date", "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.Format("2006-01-02"))

	_, err = parseDate("date", "2024-02-30")
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	got, err := parseOptionalDate("end_date", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
