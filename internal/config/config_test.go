package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"../configs/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Must not panic.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
tracker:
  max_motor_step: 80
  dead_zone: 0.1
  smoothing_factor: 0.5
perception:
  type: "replay"
  replay_path: "testdata/session.csv"
  replay_hz: 30
pan_stepper:
  step_pin: 17
  dir_pin: 27
  enable_pin: 5
  steps_per_rev: 200
  microstepping: 16
  min_position: -3200
  max_position: 3200
tilt_stepper:
  step_pin: 22
  dir_pin: 23
  enable_pin: 6
  steps_per_rev: 200
  microstepping: 16
actuator:
  steppers: true
  degrees_per_unit: 0.1
  udp_addr: "127.0.0.1:9751"
  mqtt:
    enabled: true
    broker: "tcp://localhost:1883"
    qos: 1
lens:
  name: "Pi Camera v2"
  focal_length_mm: 3.04
sensor:
  width_mm: 3.68
  height_mm: 2.76
event_log:
  backend: "sqlite"
  path: "history.db"
analysis:
  model: "mistral"
wake:
  wind_down_minutes: 15
defaults:
  move_speed_ms: 3
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracker.MaxMotorStep != 80 || cfg.Tracker.DeadZone != 0.1 || cfg.Tracker.SmoothingFactor != 0.5 {
		t.Errorf("tracker = %+v, want {80 0.1 0.5}", cfg.Tracker)
	}
	if cfg.Perception.Type != "replay" {
		t.Errorf("perception.type = %q, want replay", cfg.Perception.Type)
	}
	if cfg.PanStepper.MinPosition != -3200 || cfg.PanStepper.MaxPosition != 3200 {
		t.Errorf("pan limits = [%d, %d], want [-3200, 3200]", cfg.PanStepper.MinPosition, cfg.PanStepper.MaxPosition)
	}
	if cfg.Actuator.MQTT.Topic != "babycam/motor/command" {
		t.Errorf("mqtt.topic default = %q", cfg.Actuator.MQTT.Topic)
	}
	if cfg.Actuator.MQTT.ClientID != "babycam" {
		t.Errorf("mqtt.client_id default = %q", cfg.Actuator.MQTT.ClientID)
	}
	if cfg.Sensor == nil {
		t.Fatal("sensor should not be nil")
	}
	if cfg.Sensor.WidthMm != 3.68 {
		t.Errorf("sensor.width_mm = %v, want 3.68", cfg.Sensor.WidthMm)
	}
	if cfg.EventLog.Backend != "sqlite" || cfg.EventLog.Path != "history.db" {
		t.Errorf("event_log = %+v", cfg.EventLog)
	}
	if cfg.Analysis.Model != "mistral" {
		t.Errorf("analysis.model = %q, want mistral", cfg.Analysis.Model)
	}
	if cfg.Analysis.OllamaURL != "http://localhost:11434" {
		t.Errorf("analysis.ollama_url default = %q", cfg.Analysis.OllamaURL)
	}
	if got := cfg.WindDownBuffer(); got != 15*time.Minute {
		t.Errorf("WindDownBuffer() = %v, want 15m", got)
	}
	if got := cfg.ReplayInterval(); got != time.Second/30 {
		t.Errorf("ReplayInterval() = %v, want %v", got, time.Second/30)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "defaults:\n  mock_gpio: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracker.MaxMotorStep != 100 || cfg.Tracker.DeadZone != 0.05 || cfg.Tracker.SmoothingFactor != 0.3 {
		t.Errorf("tracker defaults = %+v, want {100 0.05 0.3}", cfg.Tracker)
	}
	if cfg.Perception.Type != "udp" || cfg.Perception.UDPAddr != ":9750" {
		t.Errorf("perception defaults = %+v", cfg.Perception)
	}
	if cfg.Perception.ReadBuffer != 2048 {
		t.Errorf("read_buffer default = %d, want 2048", cfg.Perception.ReadBuffer)
	}
	if cfg.Actuator.DegreesPerUnit != 0.05 {
		t.Errorf("degrees_per_unit default = %v, want 0.05", cfg.Actuator.DegreesPerUnit)
	}
	if cfg.EventLog.Backend != "json" || cfg.EventLog.Path != "monitor_history.json" {
		t.Errorf("event_log defaults = %+v", cfg.EventLog)
	}
	if cfg.Wake.RecentCount != 2 || cfg.Wake.RecentWeight != 0.7 || cfg.Wake.HistoricWeight != 0.3 {
		t.Errorf("wake defaults = %+v", cfg.Wake)
	}
	if cfg.Defaults.MoveSpeedMs != 2 {
		t.Errorf("move_speed_ms default = %d, want 2", cfg.Defaults.MoveSpeedMs)
	}
	if got := cfg.AnalysisTimeout(); got != 300*time.Second {
		t.Errorf("AnalysisTimeout() = %v, want 5m", got)
	}
	if got := cfg.ReplayInterval(); got != 0 {
		t.Errorf("ReplayInterval() = %v, want 0", got)
	}
}

func TestLoad_SqliteDefaultPath(t *testing.T) {
	path := writeConfig(t, "event_log:\n  backend: sqlite\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EventLog.Path != "monitor_history.db" {
		t.Errorf("event_log.path = %q, want monitor_history.db", cfg.EventLog.Path)
	}
}

func TestLoad_PartialTrackerKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "tracker:\n  dead_zone: 0.1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tracker.MaxMotorStep != 100 || cfg.Tracker.SmoothingFactor != 0.3 {
		t.Errorf("tracker = %+v, want defaults with dead_zone 0.1", cfg.Tracker)
	}
	if cfg.Tracker.DeadZone != 0.1 {
		t.Errorf("dead_zone = %v, want 0.1", cfg.Tracker.DeadZone)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero_max_motor_step", "tracker:\n  max_motor_step: 0\n"},
		{"dead_zone_half", "tracker:\n  dead_zone: 0.5\n"},
		{"negative_dead_zone", "tracker:\n  dead_zone: -0.1\n"},
		{"zero_smoothing", "tracker:\n  smoothing_factor: 0\n"},
		{"smoothing_over_one", "tracker:\n  smoothing_factor: 1.5\n"},
		{"unknown_perception", "perception:\n  type: \"v4l2\"\n"},
		{"replay_without_path", "perception:\n  type: \"replay\"\n"},
		{"negative_replay_hz", "perception:\n  type: \"replay\"\n  replay_path: a.csv\n  replay_hz: -1\n"},
		{"mqtt_without_broker", "actuator:\n  mqtt:\n    enabled: true\n"},
		{"mqtt_bad_qos", "actuator:\n  mqtt:\n    enabled: true\n    broker: tcp://x:1883\n    qos: 3\n"},
		{"steppers_without_geometry", "actuator:\n  steppers: true\n"},
		{"inverted_limits", `
actuator:
  steppers: true
pan_stepper: {steps_per_rev: 200, microstepping: 16, min_position: 10, max_position: -10}
tilt_stepper: {steps_per_rev: 200, microstepping: 16}
`},
		{"sensor_without_lens", "sensor:\n  width_mm: 3.68\n  height_mm: 2.76\n"},
		{"unknown_backend", "event_log:\n  backend: \"postgres\"\n"},
		{"negative_weight", "wake:\n  recent_weight: -0.5\n"},
		{"debug_level_high", "defaults:\n  debug_level: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("empty config should load with defaults, got error: %v", err)
	}
	if cfg.Tracker.MaxMotorStep != 100 {
		t.Errorf("max_motor_step = %d, want 100", cfg.Tracker.MaxMotorStep)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
tracker:
  max_motor_step: 100
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

// ---------- ApplyEnv ----------

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("BABYCAM_ANALYSIS_OLLAMA_URL", "http://ollama:11434")
	t.Setenv("BABYCAM_ANALYSIS_MODEL", "phi3")
	t.Setenv("BABYCAM_ACTUATOR_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("BABYCAM_EVENT_LOG_PATH", "/data/history.json")
	t.Setenv("BABYCAM_DEFAULTS_DEBUG_LEVEL", "3")

	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Analysis.OllamaURL != "http://ollama:11434" {
		t.Errorf("ollama_url = %q", cfg.Analysis.OllamaURL)
	}
	if cfg.Analysis.Model != "phi3" {
		t.Errorf("model = %q", cfg.Analysis.Model)
	}
	if cfg.Actuator.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt.broker = %q", cfg.Actuator.MQTT.Broker)
	}
	if cfg.EventLog.Path != "/data/history.json" {
		t.Errorf("event_log.path = %q", cfg.EventLog.Path)
	}
	if cfg.Defaults.DebugLevel != 3 {
		t.Errorf("debug_level = %d, want 3", cfg.Defaults.DebugLevel)
	}
	// Untouched keys keep their file values.
	if cfg.Perception.UDPAddr != ":9750" {
		t.Errorf("perception.udp_addr = %q, want :9750", cfg.Perception.UDPAddr)
	}
}

func TestApplyEnv_InvalidDebugLevel(t *testing.T) {
	t.Setenv("BABYCAM_DEFAULTS_DEBUG_LEVEL", "9")
	cfg := &Config{}
	if err := ApplyEnv(cfg); err == nil {
		t.Error("expected error for debug level 9, got nil")
	}
}

// ---------- Helper methods ----------

func TestConfig_MoveSpeed(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{MoveSpeedMs: 5}}
	got := cfg.MoveSpeed()
	want := 5 * time.Millisecond
	if got != want {
		t.Errorf("MoveSpeed() = %v, want %v", got, want)
	}
}

func TestConfig_ReplayInterval(t *testing.T) {
	cases := []struct {
		hz   float64
		want time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{10, 100 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%gHz", tc.hz), func(t *testing.T) {
			cfg := &Config{Perception: PerceptionConfig{ReplayHz: tc.hz}}
			if got := cfg.ReplayInterval(); got != tc.want {
				t.Errorf("ReplayInterval() = %v, want %v", got, tc.want)
			}
		})
	}
}
