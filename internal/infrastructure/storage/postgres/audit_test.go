package postgres

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAudit_PackSmallChangesStaysPlain(t *testing.T) {
	a, err := NewRecordAudit(nil)
	require.NoError(t, err)

	var e AuditEntry
	a.pack(&e, []byte(`{"Name":{"old":"a","new":"b"}}`))

	assert.Equal(t, CompressionNone, e.CompressionAlgo)
	assert.Nil(t, e.ChangesCompressed)
	assert.JSONEq(t, `{"Name":{"old":"a","new":"b"}}`, string(e.Changes))
}

func TestRecordAudit_PackLargeChangesRoundTrip(t *testing.T) {
	a, err := NewRecordAudit(nil)
	require.NoError(t, err)

	payload := map[string]any{"Notes": map[string]any{"old": nil, "new": strings.Repeat("x", 20*1024)}}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var e AuditEntry
	a.pack(&e, raw)
	require.Equal(t, CompressionZstd, e.CompressionAlgo)
	assert.Nil(t, e.Changes)
	assert.Less(t, len(e.ChangesCompressed), len(raw))

	require.NoError(t, a.unpack(&e))
	assert.Equal(t, raw, []byte(e.Changes))
	assert.Nil(t, e.ChangesCompressed)
}
