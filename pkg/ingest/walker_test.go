package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitch000001/hrv-sync/pkg/hrv"
	"github.com/mitch000001/hrv-sync/pkg/record"
	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestWalker(t *testing.T) (*Walker, *store.Store) {
	t.Helper()
	s, err := store.Load(filepath.Join(t.TempDir(), "processed.json"))
	require.NoError(t, err)
	w := NewWalker(s, Options{
		Extension:       ".txt",
		SkipPrefix:      "_",
		MeasurementType: "awake",
		Location:        time.UTC,
	}, nil)
	return w, s
}

func collect(t *testing.T, w *Walker, root string) []string {
	t.Helper()
	var paths []string
	for path, err := range w.Discover(root) {
		require.NoError(t, err)
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)
	return paths
}

func TestDiscover_Filters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Julian", "2024-03-07 21-43-06.txt"), "800\n")
	writeFile(t, filepath.Join(root, "Julian", "nested", "2024-03-08 05-52-35.txt"), "800\n")
	writeFile(t, filepath.Join(root, "Julian", "_2024-03-09 06-00-00.txt"), "800\n")
	writeFile(t, filepath.Join(root, "Julian", "2024-03-09 06-00-00.csv"), "800\n")
	writeFile(t, filepath.Join(root, "readme.md"), "hi\n")

	w, _ := newTestWalker(t)
	assert.Equal(t, []string{
		"Julian/2024-03-07 21-43-06.txt",
		"Julian/nested/2024-03-08 05-52-35.txt",
	}, collect(t, w, root))
}

func TestDiscover_StopsEarly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "1\n")
	writeFile(t, filepath.Join(root, "b.txt"), "1\n")

	w, _ := newTestWalker(t)
	n := 0
	for range w.Discover(root) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestIngestFile(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, filepath.Join(root, "2024-03-07 21-43-06.txt"), "800\n810\n\n805\n")

	w, s := newTestWalker(t)
	identity, err := w.IngestFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-07 21-43-06", identity)

	got, ok := s.Get(identity)
	require.True(t, ok)
	assert.Equal(t, "2024-03-07T21:43:06Z", got.HRV.DateTime)
	assert.Equal(t, "awake", got.HRV.MeasurementType)
	assert.InDelta(t, math.Sqrt(125), got.HRV.RMSSD, 1e-9)
	assert.False(t, got.HRV.SentToAPI)
	assert.Equal(t, runalyze.HeartRateRest{DateTime: "2024-03-07T21:43:06Z", HeartRate: 74}, got.RestingHR.HeartRateRest)
	assert.False(t, got.RestingHR.SentToAPI)

	persisted, err := store.Load(s.Path())
	require.NoError(t, err)
	assert.True(t, persisted.Has(identity))
}

func TestIngestFile_WindowsLineEndings(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "2024-03-07 21-43-06.txt"), "1000\r\n1000\r\n1000\r\n")

	w, s := newTestWalker(t)
	identity, err := w.IngestFile(path)
	require.NoError(t, err)
	got, _ := s.Get(identity)
	assert.Equal(t, 60, got.RestingHR.HeartRate)
	assert.Equal(t, 0.0, got.HRV.RMSSD)
}

func TestIngestFile_MalformedFileName(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "morning.txt"), "800\n810\n805\n")

	w, s := newTestWalker(t)
	_, err := w.IngestFile(path)
	assert.ErrorIs(t, err, record.ErrMalformedFileName)
	assert.Equal(t, 0, s.Len())
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngestFile_MalformedIntervals(t *testing.T) {
	dir := t.TempDir()
	w, s := newTestWalker(t)

	_, err := w.IngestFile(writeFile(t, filepath.Join(dir, "2024-03-07 21-43-06.txt"), "800\nabc\n805\n"))
	assert.ErrorIs(t, err, hrv.ErrMalformedIntervalData)

	_, err = w.IngestFile(writeFile(t, filepath.Join(dir, "2024-03-08 05-52-35.txt"), "800\n810\n"))
	assert.ErrorIs(t, err, hrv.ErrMalformedIntervalData)

	assert.Equal(t, 0, s.Len())
}

func TestIngestFile_AlreadyProcessedKeepsFlags(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "2024-03-07 21-43-06.txt"), "800\n810\n805\n")

	w, s := newTestWalker(t)
	identity, err := w.IngestFile(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkDelivered(identity, runalyze.KindHRV))

	writeFile(t, path, "900\n950\n1000\n")
	again, err := w.IngestFile(path)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, identity, again)

	got, _ := s.Get(identity)
	assert.True(t, got.HRV.SentToAPI)
	assert.InDelta(t, math.Sqrt(125), got.HRV.RMSSD, 1e-9)
}

func TestRun_ContinuesPastBadFilesAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Julian", "2024-03-07 21-43-06.txt"), "800\n810\n805\n")
	writeFile(t, filepath.Join(root, "Julian", "2024-03-08 05-52-35.txt"), "1000\n1000\n1000\n")
	writeFile(t, filepath.Join(root, "Julian", "2024-03-09 06-00-00.txt"), "800\nnot-a-number\n")
	writeFile(t, filepath.Join(root, "Julian", "garbage.txt"), "800\n810\n805\n")

	w, s := newTestWalker(t)
	summary, err := w.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Summary{Discovered: 4, Ingested: 2, Failed: 2}, summary)
	require.NoError(t, s.MarkDelivered("2024-03-08 05-52-35", runalyze.KindRestingHR))
	require.NoError(t, s.Save())

	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	summary, err = w.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Summary{Discovered: 4, Skipped: 2, Failed: 2}, summary)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRun_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2024-03-07 21-43-06.txt"), "800\n810\n805\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, s := newTestWalker(t)
	_, err := w.Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}
