package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mitch000001/hrv-sync/pkg/http/rate"
	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

func TestPrintStatus(t *testing.T) {
	color.NoColor = true
	s, err := store.Load(filepath.Join(t.TempDir(), "processed.json"))
	require.NoError(t, err)
	s.Upsert("2024-03-07 21-43-06", store.Record{})
	s.Upsert("2024-03-08 05-52-35", store.Record{})
	require.NoError(t, s.MarkDelivered("2024-03-07 21-43-06", runalyze.KindHRV))

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, s))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2024-03-07 21-43-06  hrv: sent  resting_hr: pending", lines[0])
	assert.Equal(t, "2024-03-08 05-52-35  hrv: pending  resting_hr: pending", lines[1])
	assert.Equal(t, "2 records, 1 payloads delivered, 3 pending", lines[2])
}

func TestRootCommand_MissingTokenIngestsThenFails(t *testing.T) {
	t.Setenv("RUNALYZE_API_TOKEN", "")
	dir := t.TempDir()
	raw := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(raw, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(raw, "2024-03-07 21-43-06.txt"), []byte("800\n810\n805\n"), 0o644))
	storePath := filepath.Join(dir, "processed.json")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`configuration:
  raw_data_path: `+raw+`
  processed_data_log_path: `+storePath+`
  timezone: UTC
log:
  level: error
`), 0o644))

	rootCmd.SetArgs([]string{"--config", cfgPath})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apitoken")

	s, err := store.Load(storePath)
	require.NoError(t, err)
	assert.True(t, s.Has("2024-03-07 21-43-06"))
	assert.Len(t, s.Pending(), 2)
}

func TestInstrumentRoundTripperRateLimitHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "150")
		w.Header().Set("X-RateLimit-Remaining", "120")
		w.Header().Set("X-RateLimit-Reset", "1800")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := &http.Client{Transport: instrumentTransport(rate.DefaultHeaderKeys, zap.NewNop())(http.DefaultTransport)}
	resp, err := client.Post(srv.URL+"/metrics/hrv", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 150.0, testutil.ToFloat64(rateLimiterLimitGauge))
	assert.Equal(t, 120.0, testutil.ToFloat64(rateLimiterRemainingGauge))
	assert.Equal(t, 1800.0, testutil.ToFloat64(rateLimiterResetsAfterGauge))
	assert.GreaterOrEqual(t, testutil.ToFloat64(clientRequestCounter.WithLabelValues("201", "post")), 1.0)
}

func TestWriteMetrics(t *testing.T) {
	require.NoError(t, writeMetrics(""))

	path := filepath.Join(t.TempDir(), "hrv_sync.prom")
	require.NoError(t, writeMetrics(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hrvsync_last_run_timestamp_seconds")
}
