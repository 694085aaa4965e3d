package activity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*Activity {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return []*Activity{
		{ID: "a1", UserID: "u1", Action: ActionLogin, Outcome: OutcomeFailure, Timestamp: ts, IPAddress: "10.0.0.1"},
		{ID: "a2", UserID: "u2", Action: ActionUserCreated, Outcome: OutcomeSuccess, Timestamp: ts.Add(time.Minute)},
	}
}

func TestExportJSON(t *testing.T) {
	out, err := Export(sampleRecords(), ExportFormatJSON)
	require.NoError(t, err)

	var decoded []*Activity
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a1", decoded[0].ID)
	assert.Equal(t, OutcomeFailure, decoded[0].Outcome)
}

func TestExportNDJSON(t *testing.T) {
	out, err := Export(sampleRecords(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var a Activity
		require.NoError(t, json.Unmarshal([]byte(line), &a))
	}
}

func TestExportCSV(t *testing.T) {
	out, err := Export(sampleRecords(), ExportFormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Action")
	assert.Contains(t, lines[1], "login")
	assert.Contains(t, lines[1], "10.0.0.1")
	assert.Contains(t, lines[2], "user_created")
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(sampleRecords(), ExportFormat("xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")
}
