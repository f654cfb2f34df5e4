package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) status {
	t.Helper()
	var st status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestLivenessAlwaysOK(t *testing.T) {
	t.Parallel()

	s := New(0)
	rec := httptest.NewRecorder()
	s.respond(rec, false)

	assert.Equal(t, 200, rec.Code)
	st := decodeStatus(t, rec)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "tlahtollid", st.Service)
}

func TestReadinessGated(t *testing.T) {
	t.Parallel()

	s := New(0)

	rec := httptest.NewRecorder()
	s.respond(rec, true)
	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "not_ready", decodeStatus(t, rec).Status)

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.respond(rec, true)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", decodeStatus(t, rec).Status)
}
