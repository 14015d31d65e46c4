package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhd-bridge/dhd-go/pkg/log"
)

const connA = "abc12345-6789-0123-4567-890abcdef012"

func boolPtr(b bool) *bool { return &b }

func sampleEvents() []log.Event {
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return []log.Event{
		{
			Timestamp: ts, Direction: log.DirectionOut, Layer: log.LayerClient, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "DISCONNECTED", NewState: "CONNECTING"},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: connA, RemoteAddr: "10.0.0.20:80",
			Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: log.NewFrameEvent([]byte(`{"method":"subscribe","path":"audio/mixers/0"}`)),
		},
		{
			Timestamp: ts.Add(2 * time.Second), ConnectionID: connA,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{
				Method: "update", Kind: "UPDATE", Path: "audio/mixers/0",
				Payload: map[string]any{"audio": map[string]any{"level": -3.0}}, Deliveries: 2,
			},
		},
		{
			Timestamp: ts.Add(3 * time.Second), ConnectionID: connA,
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryHeartbeat,
			Message: &log.MessageEvent{Method: "get", Path: "general/_uptime"},
		},
		{
			Timestamp: ts.Add(4 * time.Second), ConnectionID: connA,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Method: "set", Kind: "FAILURE", Path: "control/logics/1", Success: boolPtr(false), Error: "denied"},
		},
		{
			Timestamp: ts.Add(5 * time.Second), ConnectionID: connA,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerWire, Message: "frame is not valid JSON", Context: "decode"},
		},
	}
}

func writeCapture(t *testing.T) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "bridge.dlog")
	fl, err := log.NewFileLogger(name)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return name
}

func TestRunView(t *testing.T) {
	name := writeCapture(t)

	t.Run("All", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RunView(name, log.Filter{}, &buf))
		out := buf.String()

		assert.Contains(t, out, "2026-03-04T10:00:00.000000Z [conn:-] OUT CLIENT State")
		assert.Contains(t, out, "DISCONNECTED -> CONNECTING")
		assert.Contains(t, out, "[conn:abc12345] OUT TRANSPORT Frame")
		assert.Contains(t, out, `Data: {"method":"subscribe","path":"audio/mixers/0"}`)
		assert.Contains(t, out, "IN  WIRE UPDATE")
		assert.Contains(t, out, `Payload: {"audio":{"level":-3}}`)
		assert.Contains(t, out, "Deliveries: 2")
		assert.Contains(t, out, "Success: false")
		assert.Contains(t, out, "Message: frame is not valid JSON")
	})

	t.Run("Filtered", func(t *testing.T) {
		o := FilterOptions{Category: "heartbeat"}
		filter, err := o.Filter()
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, RunView(name, filter, &buf))
		assert.Equal(t, 1, strings.Count(buf.String(), "[conn:"))
		assert.Contains(t, buf.String(), "general/_uptime")
	})

	t.Run("MissingFile", func(t *testing.T) {
		err := RunView(filepath.Join(t.TempDir(), "none.dlog"), log.Filter{}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestFilterOptions(t *testing.T) {
	t.Run("Parses", func(t *testing.T) {
		o := FilterOptions{
			Layer: "WIRE", Direction: "in", Category: "error", Method: "GET", Path: "audio",
			TimeStart: "2026-03-04T10:00:00Z", TimeEnd: "2026-03-04T11:00:00Z",
		}
		f, err := o.Filter()
		require.NoError(t, err)
		assert.Equal(t, log.LayerWire, *f.Layer)
		assert.Equal(t, log.DirectionIn, *f.Direction)
		assert.Equal(t, log.CategoryError, *f.Category)
		assert.Equal(t, "get", f.Method)
		assert.Equal(t, "audio", f.PathPrefix)
		assert.NotNil(t, f.TimeStart)
		assert.NotNil(t, f.TimeEnd)
	})

	for _, o := range []FilterOptions{
		{Layer: "service"},
		{Direction: "sideways"},
		{Category: "control"},
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
	} {
		_, err := o.Filter()
		assert.Error(t, err, "%+v", o)
	}
}

func TestRunFilter(t *testing.T) {
	name := writeCapture(t)
	out := filepath.Join(t.TempDir(), "one.dlog")

	n, err := RunFilter(name, FilterOptions{Output: out, Path: "audio/mixers"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the decoded update carries a path below audio/mixers")

	events, err := log.ReadAll(out, log.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "UPDATE", events[0].Message.Kind)
}

func TestRunExport(t *testing.T) {
	name := writeCapture(t)
	dir := t.TempDir()

	t.Run("JSONL", func(t *testing.T) {
		out := filepath.Join(dir, "out.jsonl")
		require.NoError(t, RunExport(name, "jsonl", out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, len(sampleEvents()))
		assert.Contains(t, lines[2], `"Path":"audio/mixers/0"`)
	})

	t.Run("CSV", func(t *testing.T) {
		out := filepath.Join(dir, "out.csv")
		require.NoError(t, RunExport(name, "csv", out))
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, len(sampleEvents())+1)
		assert.True(t, strings.HasPrefix(lines[0], "timestamp,connection_id"))
		assert.Contains(t, lines[3], "UPDATE,update,audio/mixers/0,2")
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		assert.Error(t, RunExport(name, "xml", ""))
	})
}

func TestStats(t *testing.T) {
	name := writeCapture(t)

	stats, err := Collect(name)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalEvents)
	assert.Equal(t, 4, stats.EventsByLayer[log.LayerWire])
	assert.Equal(t, 1, stats.EventsByCategory[log.CategoryHeartbeat])
	assert.Equal(t, 1, stats.FramesByKind["UPDATE"])
	assert.Equal(t, 2, stats.Deliveries)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Errors)
	require.Contains(t, stats.Connections, connA)
	assert.Equal(t, 5, stats.Connections[connA].Events)
	assert.Equal(t, 1, stats.Connections[connA].Heartbeats)
	assert.Equal(t, "10.0.0.20:80", stats.Connections[connA].RemoteAddr)
	assert.Equal(t, 5*time.Second, stats.TimeRange.End.Sub(stats.TimeRange.Start))

	var buf bytes.Buffer
	require.NoError(t, RunStats(name, &buf))
	out := buf.String()
	assert.Contains(t, out, "Total Events: 6")
	assert.Contains(t, out, "Connections: 1")
	assert.Contains(t, out, "[abc12345] 5 events, 1 heartbeats")
	assert.Contains(t, out, "Failures: 1")
}

func TestShortenConnID(t *testing.T) {
	assert.Equal(t, "-", shortenConnID(""))
	assert.Equal(t, "abc", shortenConnID("abc"))
	assert.Equal(t, "abc12345", shortenConnID(connA))
}
