package cu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

func TestDecodeEnvelope(t *testing.T) {
	body := []byte(`{"id":"op-1","status":"inProgress","extra":{"keep":true}}`)
	env, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, "op-1", env.ID)
	assert.Equal(t, operation.StatusRunning, env.State())

	out, err := env.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, string(body), string(out), "envelope is returned unmodified")

	_, err = DecodeEnvelope([]byte("  "))
	assert.Error(t, err)
	_, err = DecodeEnvelope([]byte("<html>"))
	assert.Error(t, err)
}

func TestDecodeErrorDetail(t *testing.T) {
	d := DecodeErrorDetail([]byte(`{"error":{"code":"InvalidRequest","message":"bad","innererror":{"code":"ModelNotFound","message":"no model","innererror":{"code":"Deep"}}},"details":[]}`))
	assert.Equal(t, "InvalidRequest: bad (inner ModelNotFound: no model) (inner Deep)", d.Describe())

	bare := DecodeErrorDetail([]byte(`{"code":"Throttled","message":"slow down"}`))
	assert.Equal(t, "Throttled: slow down", bare.Describe())

	raw := DecodeErrorDetail([]byte("upstream " + strings.Repeat("é", 600)))
	assert.Equal(t, 500, len([]rune(raw.Raw)))
	assert.True(t, strings.HasPrefix(raw.Describe(), "body: upstream"))

	assert.True(t, DecodeErrorDetail(nil).Empty())
}

func TestFailureDetail_FallsBackToRawBody(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"status":"failed","reason":"quota"}`))
	require.NoError(t, err)
	d := failureDetail(env)
	assert.Contains(t, d.Raw, "quota")
}
