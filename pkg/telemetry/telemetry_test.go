package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json", Service: "nfv-manager"}, &buf)

	logger.NewComponentLogger("reconciler").
		WithOwner("alice").
		WithRecordID("nsr-1").
		WithResourceID("open5gcore").
		Info("refreshed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}

	want := map[string]string{
		"component":   "reconciler",
		"owner":       "alice",
		"nsr_id":      "nsr-1",
		"resource_id": "open5gcore",
		"service":     "nfv-manager",
		"message":     "refreshed",
		"level":       "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("expected %s=%q, got %v", k, v, entry[k])
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn line, got %q", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	ctx := logger.WithOwner("bob").WithContext(context.Background())
	FromContext(ctx).Info("hello")

	if !strings.Contains(buf.String(), `"owner":"bob"`) {
		t.Errorf("expected owner field from context logger, got %q", buf.String())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"otlp tracing", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp"; c.Tracing.SamplingRate = 0.1 }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"missing metrics address", func(c *Config) { c.Metrics.ListenAddress = "" }, true},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "nfv_manager", Path: "/metrics", ListenAddress: ":0"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordDeployment("catalog", "success", 2*time.Second)
	m.RecordRelease("success")
	m.RecordOrchestratorCall("get_nsr", 10*time.Millisecond, errors.New("boom"))
	m.SetTrackedRecords(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`nfv_manager_deployments_total{branch="catalog",outcome="success"} 1`,
		`nfv_manager_releases_total{outcome="success"} 1`,
		`nfv_manager_orchestrator_errors_total{operation="get_nsr"} 1`,
		`nfv_manager_tracked_records 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	m.RecordDeployment("catalog", "success", time.Second)
	m.RecordSkipped("fetch")

	var nilMetrics *Metrics
	nilMetrics.RecordRelease("success")
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByType(EventTypeRecordReleased))

	_ = ep.PublishRecordDeployed("alice", "nsr-1", "NULL")
	_ = ep.PublishRecordReleased("alice", "nsr-1")

	if len(got) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(got))
	}
	if got[0].RecordID != "nsr-1" || got[0].ID == "" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: true})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var (
		mu    sync.Mutex
		count int
	)
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, FilterByOwner("alice"))

	_ = ep.PublishReconcileCompleted(map[string][]string{"alice": {"{}"}})
	_ = ep.PublishRecordStatusChanged("alice", "nsr-1", "NULL", "ACTIVE")
	_ = ep.PublishRecordStatusChanged("bob", "nsr-2", "NULL", "ACTIVE")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 event for alice, got %d", count)
	}
}

func TestRecordOrchestratorOperation(t *testing.T) {
	// Without telemetry in the context the call passes through.
	called := false
	err := RecordOrchestratorOperation(context.Background(), "list_projects", func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected pass-through call, called=%v err=%v", called, err)
	}

	tel := NewNopTelemetry()
	ctx := tel.WithContext(context.Background())
	want := errors.New("nfvo down")
	err = RecordOrchestratorOperation(ctx, "get_nsr", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected error to be returned unchanged, got %v", err)
	}
}
