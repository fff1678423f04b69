package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorConcurrentCounters(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("hits")
			m.AddCounter("bytes", 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetCounterValue("hits"))
	assert.Equal(t, int64(500), m.GetCounterValue("bytes"))
	assert.Zero(t, m.GetCounterValue("missing"))
}

func TestMetricsCollectorGaugesAndHistograms(t *testing.T) {
	m := NewMetricsCollector()
	m.IncGauge("busy")
	m.IncGauge("busy")
	m.DecGauge("busy")
	m.RecordHistogram("latency", 30)
	m.RecordHistogram("latency", 10)
	m.RecordHistogram("latency", 20)

	assert.Equal(t, int64(1), m.GetGauge("busy"))

	snapshot := m.GetMetrics()
	hist := snapshot["histograms"].(map[string]map[string]int64)["latency"]
	assert.Equal(t, int64(3), hist["count"])
	assert.Equal(t, int64(60), hist["sum"])
	assert.Equal(t, int64(10), hist["min"])
	assert.Equal(t, int64(30), hist["max"])
}

func TestNotesMetrics(t *testing.T) {
	nm := NewNotesMetrics(NewMetricsCollector(), NewNopLogger())

	nm.RecordAPIRequest("POST", 200, time.Millisecond)
	nm.RecordAPIRequest("GET", 404, time.Millisecond)
	nm.RecordTranscriptFetch("blocked", time.Millisecond)
	nm.RecordSummary("google gemini", "gemini-2.5-flash", 42, time.Millisecond, false)
	nm.RecordSummary("google gemini", "gemini-2.5-flash", 0, time.Millisecond, true)
	nm.RecordManualSubmission()
	done := nm.TrackInFlight()
	assert.Equal(t, int64(1), nm.Collector().GetGauge("notes_in_flight"))
	done()

	c := nm.Collector()
	assert.Equal(t, int64(1), c.GetCounterValue("api_responses_2xx"))
	assert.Equal(t, int64(1), c.GetCounterValue("api_responses_4xx"))
	assert.Equal(t, int64(1), c.GetCounterValue("transcript_fetch_blocked"))
	assert.Equal(t, int64(2), c.GetCounterValue("llm_requests_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("llm_requests_failed"))
	assert.Equal(t, int64(42), c.GetCounterValue("llm_tokens_total"))
	assert.Equal(t, int64(1), c.GetCounterValue("manual_transcripts_total"))
	assert.Zero(t, c.GetGauge("notes_in_flight"))
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("info", false)
	l.SetOutput(&buf)

	l.Debug("hidden", nil)
	l.Warn("transcript blocked", map[string]interface{}{"video_id": "ABC123"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "transcript blocked", entry["msg"])
	assert.Equal(t, "ABC123", entry["video_id"])
}

func TestLoggerFileOutput(t *testing.T) {
	l := NewLogger("debug", true)
	logFile := filepath.Join(t.TempDir(), "nested", "app.log")

	require.NoError(t, l.InitFile(logFile))
	l.Infof("started on port %s", "8080")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "started on port 8080")
	assert.Equal(t, DEBUG, l.Level())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARNING, ParseLogLevel("warn"))
	assert.Equal(t, ERROR, ParseLogLevel("error"))
	assert.Equal(t, INFO, ParseLogLevel("whatever"))
}
