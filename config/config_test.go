package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `http:
  addr: ":9000"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "dispatch-1"
  telemetry_topic: "fleet/+/telemetry"
  qos:
    telemetry: 1
    emergency: 1
fleet:
  battery_floor: 25
queue:
  expiry_seconds: 90
dispatch:
  max_candidates: 5
metrics:
  prometheus_enabled: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.addr", cfg.HTTP.Addr, ":9000"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "dispatch-1"},
		{"telemetry_topic", cfg.MQTT.TelemetryTopic, "fleet/+/telemetry"},
		{"qos", cfg.MQTT.QoS["telemetry"], byte(1)},
		{"battery_floor", cfg.Fleet.BatteryFloor, 25.0},
		{"expiry_seconds", cfg.Queue.ExpirySeconds, 90},
		{"max_candidates", cfg.Dispatch.MaxCandidates, 5},
		{"prometheus", cfg.Metrics.PrometheusEnabled, true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"mqtt":{"broker":"tcp://localhost:1883"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr default: got %s", cfg.HTTP.Addr)
	}
	if cfg.Fleet.BatteryFloor != 20 {
		t.Errorf("battery floor default: got %v", cfg.Fleet.BatteryFloor)
	}
	if cfg.Queue.ExpirySeconds != 120 {
		t.Errorf("expiry default: got %d", cfg.Queue.ExpirySeconds)
	}
	if cfg.Dispatch.MaxCandidates != 3 {
		t.Errorf("max candidates default: got %d", cfg.Dispatch.MaxCandidates)
	}
	if cfg.MQTT.TelemetryTopic != "fleet/+/telemetry" {
		t.Errorf("telemetry topic default: got %s", cfg.MQTT.TelemetryTopic)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("mqtt:\n  broker: \"tcp://localhost:1883\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SC_HTTP__ADDR", ":7000")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Errorf("env override not applied: got %s", cfg.HTTP.Addr)
	}
}
