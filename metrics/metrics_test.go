package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.BurstRead()
	m.FrameCaptured(10)
	m.SetPending(0)
	m.FrameEncoded(42)
	m.ChunkReceived()
	m.FramePlayed()
	m.Error("capture", "Unknown")
	m.EventDropped()
	m.StatusChanged("recorderStatus", "Playing")
	m.Reconnect()
	m.MethodCall("startRecording", true)
}

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FrameCaptured(40)
	m.FrameEncoded(37)
	m.FrameEncoded(41)
	m.Error("playback", "EmptyDecode")
	m.StatusChanged("playerStatus", "Playing")
	m.MethodCall("writeChunk", false)

	if got := testutil.ToFloat64(m.PendingSamples); got != 40 {
		t.Errorf("Expected 40 pending samples, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesEncoded); got != 2 {
		t.Errorf("Expected 2 encoded frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("playback", "EmptyDecode")); got != 1 {
		t.Errorf("Expected 1 playback error, got %v", got)
	}
	if got := testutil.ToFloat64(m.StatusTransitions.WithLabelValues("playerStatus", "Playing")); got != 1 {
		t.Errorf("Expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.MethodCalls.WithLabelValues("writeChunk", "error")); got != 1 {
		t.Errorf("Expected 1 failed method call, got %v", got)
	}
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Reconnect()

	s := NewServer(":0", "", reg, func() any {
		return map[string]string{"recorder": "Playing"}
	}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "soundstream_transport_reconnects_total 1") {
		t.Errorf("Unexpected /metrics response %d: %s", code, body)
	}

	code, body = get("/health")
	var health map[string]any
	if code != http.StatusOK || json.Unmarshal([]byte(body), &health) != nil || health["status"] != "healthy" {
		t.Errorf("Unexpected /health response %d: %s", code, body)
	}

	code, body = get("/status")
	if code != http.StatusOK || !strings.Contains(body, `"recorder":"Playing"`) {
		t.Errorf("Unexpected /status response %d: %s", code, body)
	}
}

func TestServerStatusUnavailable(t *testing.T) {
	s := NewServer(":0", "/m", prometheus.NewRegistry(), nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
