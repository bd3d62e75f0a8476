package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

type snapshot struct {
	Jobs   []logmodel.Job `json:"jobs"`
	Source string         `json:"source"`
}

func sampleSnapshot() snapshot {
	return snapshot{
		Jobs: []logmodel.Job{
			logmodel.NewJob("prod_logs.run_stdout", 0, 100, false),
			logmodel.NewJob("prod_logs.audit_activity", 500, 100, true),
		},
		Source: "q:embed:failed",
	}
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := sampleSnapshot()

	require.NoError(t, SaveState(dir, "failed-jobs", NewJSONCodec(), state))

	var restored snapshot

	require.NoError(t, LoadState(dir, "failed-jobs", NewJSONCodec(), &restored))

	assert.Equal(t, state.Source, restored.Source)
	require.Len(t, restored.Jobs, 2)
	assert.Equal(t, state.Jobs[0].JobID, restored.Jobs[0].JobID)
	assert.True(t, restored.Jobs[1].Priority)
}

func TestLZ4JSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	state := sampleSnapshot()

	require.NoError(t, SaveState(dir, "failed-jobs", NewLZ4JSONCodec(), state))

	// The frame on disk is not plain JSON.
	raw, err := os.ReadFile(filepath.Join(dir, "failed-jobs.json.lz4"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw[:4]), "{")

	var restored snapshot

	require.NoError(t, LoadState(dir, "failed-jobs", NewLZ4JSONCodec(), &restored))

	assert.Equal(t, state.Jobs[0].Table, restored.Jobs[0].Table)
}

func TestCodecForPath(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &LZ4JSONCodec{}, CodecForPath("out.json.lz4"))
	assert.IsType(t, &JSONCodec{}, CodecForPath("out.json"))
}

func TestWriteFile_PicksCodecFromExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "export.json.lz4")

	require.NoError(t, WriteFile(path, sampleSnapshot()))

	var restored snapshot

	file, err := os.Open(path)
	require.NoError(t, err)

	defer file.Close()

	require.NoError(t, NewLZ4JSONCodec().Decode(file, &restored))
	assert.Equal(t, "q:embed:failed", restored.Source)
}

func TestLoadState_MissingFile(t *testing.T) {
	t.Parallel()

	var restored snapshot

	err := LoadState(t.TempDir(), "nope", NewJSONCodec(), &restored)

	assert.Error(t, err)
}
