package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
)

func TestWriteError_ConflictCarriesSeat(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "hold failed", apperrors.SeatTaken(13))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Success bool `json:"success"`
		Detail  struct {
			ID     int64  `json:"id"`
			Reason string `json:"reason"`
		} `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, int64(13), body.Detail.ID)
	assert.Equal(t, apperrors.ReasonTaken, body.Detail.Reason)
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, "hold failed", errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGenerateTxnRef(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ref := GenerateTxnRef("u1", 5, now)

	assert.True(t, strings.HasPrefix(ref, "u1_5_1700000000_"))
	assert.NotEqual(t, ref, GenerateTxnRef("u1", 5, now))
}
