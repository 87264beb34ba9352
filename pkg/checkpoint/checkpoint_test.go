package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckpointCreatesPendingItems(t *testing.T) {
	inputs := []json.RawMessage{
		json.RawMessage(`{"x":1}`),
		json.RawMessage(`{"x":2}`),
	}
	cp := NewCheckpoint(inputs)

	require.Len(t, cp.Items, 2)
	assert.Equal(t, "item-0", cp.Items[0].ID)
	assert.Equal(t, "item-1", cp.Items[1].ID)
	for _, it := range cp.Items {
		assert.Equal(t, StatusPending, it.Status)
		assert.Zero(t, it.Attempts)
	}
	assert.NotEmpty(t, cp.JobID)
	assert.NotEmpty(t, cp.StartTime)
}

func TestRecomputeCountersTracksCompletedAndExhaustedFailures(t *testing.T) {
	cp := NewCheckpoint([]json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`), json.RawMessage(`3`)})
	cp.Items[0].EnterProcessing()
	cp.Items[0].EnterCompleted(json.RawMessage(`10`))

	cp.Items[1].EnterProcessing()
	cp.Items[1].EnterProcessing()
	cp.Items[1].EnterProcessing()
	cp.Items[1].EnterFailed("boom", 3) // attempts == maxRetries, exhausted

	cp.Items[2].EnterProcessing()
	cp.Items[2].EnterFailed("transient", 3) // attempts 1 < 3, not exhausted

	cp.RecomputeCounters(3)
	assert.Equal(t, 1, cp.CompletedCount)
	assert.Equal(t, 1, cp.FailedCount)
}

func TestValidateCatchesCompletedWithoutOutput(t *testing.T) {
	cp := NewCheckpoint([]json.RawMessage{json.RawMessage(`1`)})
	cp.Items[0].Status = StatusCompleted
	err := cp.Validate(3)
	assert.Error(t, err)
}

func TestMarshalRoundTripPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"jobId": "job-1",
		"startTime": "2026-01-01T00:00:00Z",
		"items": [],
		"completedCount": 0,
		"failedCount": 0,
		"schemaVersion": 2,
		"note": "added by a future engine version"
	}`)

	var cp Checkpoint
	require.NoError(t, json.Unmarshal(raw, &cp))
	assert.Equal(t, float64(2), cp.Extra["schemaVersion"])
	assert.Equal(t, "added by a future engine version", cp.Extra["note"])

	out, err := json.Marshal(&cp)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, float64(2), roundTripped["schemaVersion"])
	assert.Equal(t, "added by a future engine version", roundTripped["note"])
	assert.Equal(t, "job-1", roundTripped["jobId"])
}

func TestMarshalRoundTripKnownFieldsWinOverStaleExtra(t *testing.T) {
	cp := NewCheckpoint([]json.RawMessage{json.RawMessage(`1`)})
	cp.Extra = map[string]any{"jobId": "stale-value"}

	out, err := json.Marshal(&cp)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, cp.JobID, roundTripped["jobId"])
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	store := NewStore(path)

	cp := NewCheckpoint([]json.RawMessage{json.RawMessage(`{"x":1}`)})
	require.NoError(t, store.Save(cp))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cp.JobID, loaded.JobID)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, cp.Items[0].ID, loaded.Items[0].ID)
}

func TestStoreLoadMissingFileReturnsNilNil(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	cp, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, cp)
}

func TestStoreSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")
	store := NewStore(path)

	require.NoError(t, store.Save(NewCheckpoint(nil)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "checkpoint.json", entries[0].Name())
}

func TestItemEnterAwaitingAgentNeverConsumesRetryBudget(t *testing.T) {
	it := NewItem("item-0", json.RawMessage(`{}`))
	it.EnterProcessing()
	require.Equal(t, 1, it.Attempts)
	it.EnterAwaitingAgent(json.RawMessage(`{"question":"?"}`))
	assert.Equal(t, 0, it.Attempts)
	assert.Equal(t, StatusAwaitingAgent, it.Status)
}

func TestConfigSetDefaultsAndValidate(t *testing.T) {
	cfg := &Config{InputData: "[]", CheckpointPath: "checkpoint.json"}
	cfg.SetDefaults()
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 3, cfg.GetMaxRetries())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBothInputSources(t *testing.T) {
	cfg := &Config{InputData: "[]", InputPath: "in.json", CheckpointPath: "c.json"}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsNeitherInputSource(t *testing.T) {
	cfg := &Config{CheckpointPath: "c.json"}
	assert.Error(t, cfg.Validate())
}
