package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 64 << 10

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int `yaml:"steps_per_rev"`
	Microstepping int `yaml:"microstepping"`
	// Soft travel limits in microsteps from the power-on position. Both 0 = unlimited.
	MinPosition int `yaml:"min_position"`
	MaxPosition int `yaml:"max_position"`
}

// PerceptionConfig selects where per-frame detections come from.
type PerceptionConfig struct {
	Type       string  `yaml:"type"`        // "udp" or "replay"
	UDPAddr    string  `yaml:"udp_addr"`    // listen address for "udp"
	ReadBuffer int     `yaml:"read_buffer"` // datagram buffer size
	ReplayPath string  `yaml:"replay_path"` // detection file for "replay"
	ReplayHz   float64 `yaml:"replay_hz"`   // 0 = as fast as possible
}

// MQTTConfig configures the optional MQTT command link.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. "tcp://localhost:1883"
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// ActuatorConfig describes what consumes the motor commands.
type ActuatorConfig struct {
	Steppers       bool       `yaml:"steppers"`         // drive the pan/tilt steppers
	DegreesPerUnit float64    `yaml:"degrees_per_unit"` // head rotation per abstract command step
	UDPAddr        string     `yaml:"udp_addr"`         // optional CSV command sink
	MQTT           MQTTConfig `yaml:"mqtt"`
}

// LensConfig describes the tracking camera lens.
type LensConfig struct {
	Name          string  `yaml:"name"`
	FocalLengthMm float64 `yaml:"focal_length_mm"`
}

// SensorConfig is optional: physical sensor size in mm.
// With the lens it enables angular diagnostics.
type SensorConfig struct {
	WidthMm  float64 `yaml:"width_mm"`
	HeightMm float64 `yaml:"height_mm"`
}

// EventLogConfig selects the monitor event log backend.
type EventLogConfig struct {
	Backend string `yaml:"backend"` // "json" or "sqlite"
	Path    string `yaml:"path"`
}

// AnalysisConfig configures the LLM used to analyze the event log.
type AnalysisConfig struct {
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// WakeConfig tunes the wake-window predictor.
type WakeConfig struct {
	RecentCount     int     `yaml:"recent_count"`
	RecentWeight    float64 `yaml:"recent_weight"`
	HistoricWeight  float64 `yaml:"historic_weight"`
	WindDownMinutes int     `yaml:"wind_down_minutes"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	MoveSpeedMs int  `yaml:"move_speed_ms"` // delay between motor steps
	DebugLevel  int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Tracker     tracking.Config  `yaml:"tracker"`
	Perception  PerceptionConfig `yaml:"perception"`
	PanStepper  StepperConfig    `yaml:"pan_stepper"`
	TiltStepper StepperConfig    `yaml:"tilt_stepper"`
	Actuator    ActuatorConfig   `yaml:"actuator"`
	Lens        LensConfig       `yaml:"lens"`
	Sensor      *SensorConfig    `yaml:"sensor,omitempty"` // optional
	EventLog    EventLogConfig   `yaml:"event_log"`
	Analysis    AnalysisConfig   `yaml:"analysis"`
	Wake        WakeConfig       `yaml:"wake"`
	Defaults    DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are empty, escape through "..",
// are not .yaml files, or do not live directly in a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg := Config{Tracker: tracking.DefaultConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields and validates ranges.
func (c *Config) applyDefaults() error {
	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}

	switch c.Perception.Type {
	case "":
		c.Perception.Type = "udp"
	case "udp", "replay":
	default:
		return fmt.Errorf("perception.type must be \"udp\" or \"replay\", got %q", c.Perception.Type)
	}
	if c.Perception.Type == "udp" && c.Perception.UDPAddr == "" {
		c.Perception.UDPAddr = ":9750"
	}
	if c.Perception.Type == "replay" && c.Perception.ReplayPath == "" {
		return fmt.Errorf("perception.replay_path is required for replay")
	}
	if c.Perception.ReadBuffer <= 0 {
		c.Perception.ReadBuffer = 2048
	}
	if c.Perception.ReplayHz < 0 || math.IsNaN(c.Perception.ReplayHz) {
		return fmt.Errorf("perception.replay_hz must be >= 0, got %g", c.Perception.ReplayHz)
	}

	if c.Actuator.DegreesPerUnit <= 0 {
		c.Actuator.DegreesPerUnit = 0.05 // full command (100) = 5°
	}
	if c.Actuator.MQTT.Enabled {
		if c.Actuator.MQTT.Broker == "" {
			return fmt.Errorf("actuator.mqtt.broker is required when mqtt is enabled")
		}
		if c.Actuator.MQTT.Topic == "" {
			c.Actuator.MQTT.Topic = "babycam/motor/command"
		}
		if c.Actuator.MQTT.ClientID == "" {
			c.Actuator.MQTT.ClientID = "babycam"
		}
		if c.Actuator.MQTT.QoS > 2 {
			return fmt.Errorf("actuator.mqtt.qos must be 0, 1 or 2, got %d", c.Actuator.MQTT.QoS)
		}
	}
	if c.Actuator.Steppers {
		for name, s := range map[string]StepperConfig{"pan_stepper": c.PanStepper, "tilt_stepper": c.TiltStepper} {
			if s.StepsPerRev <= 0 || s.Microstepping <= 0 {
				return fmt.Errorf("%s.steps_per_rev and microstepping must be > 0", name)
			}
			if s.MinPosition > s.MaxPosition {
				return fmt.Errorf("%s.min_position must be <= max_position", name)
			}
		}
	}

	if c.Sensor != nil && c.Lens.FocalLengthMm <= 0 {
		return fmt.Errorf("lens.focal_length_mm must be > 0 when sensor is set")
	}

	switch c.EventLog.Backend {
	case "":
		c.EventLog.Backend = "json"
	case "json", "sqlite":
	default:
		return fmt.Errorf("event_log.backend must be \"json\" or \"sqlite\", got %q", c.EventLog.Backend)
	}
	if c.EventLog.Path == "" {
		if c.EventLog.Backend == "sqlite" {
			c.EventLog.Path = "monitor_history.db"
		} else {
			c.EventLog.Path = "monitor_history.json"
		}
	}

	if c.Analysis.OllamaURL == "" {
		c.Analysis.OllamaURL = "http://localhost:11434"
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "llama3.2"
	}
	if c.Analysis.TimeoutSec <= 0 {
		c.Analysis.TimeoutSec = 300
	}

	if c.Wake.RecentCount <= 0 {
		c.Wake.RecentCount = 2
	}
	if c.Wake.RecentWeight == 0 && c.Wake.HistoricWeight == 0 {
		c.Wake.RecentWeight = 0.7
		c.Wake.HistoricWeight = 0.3
	}
	if c.Wake.RecentWeight < 0 || c.Wake.HistoricWeight < 0 {
		return fmt.Errorf("wake weights must be >= 0")
	}
	if c.Wake.WindDownMinutes <= 0 {
		c.Wake.WindDownMinutes = 20
	}

	if c.Defaults.MoveSpeedMs <= 0 {
		c.Defaults.MoveSpeedMs = 2 // reasonable default
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// envKeys lists the settings that may be overridden from the environment,
// as BABYCAM_<SECTION>_<KEY> (e.g. BABYCAM_ANALYSIS_OLLAMA_URL).
var envKeys = []string{
	"analysis.ollama_url",
	"analysis.model",
	"actuator.mqtt.broker",
	"actuator.udp_addr",
	"perception.udp_addr",
	"event_log.path",
	"defaults.debug_level",
}

// ApplyEnv overrides cfg with BABYCAM_* environment variables.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("babycam")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if v.IsSet("analysis.ollama_url") {
		cfg.Analysis.OllamaURL = v.GetString("analysis.ollama_url")
	}
	if v.IsSet("analysis.model") {
		cfg.Analysis.Model = v.GetString("analysis.model")
	}
	if v.IsSet("actuator.mqtt.broker") {
		cfg.Actuator.MQTT.Broker = v.GetString("actuator.mqtt.broker")
	}
	if v.IsSet("actuator.udp_addr") {
		cfg.Actuator.UDPAddr = v.GetString("actuator.udp_addr")
	}
	if v.IsSet("perception.udp_addr") {
		cfg.Perception.UDPAddr = v.GetString("perception.udp_addr")
	}
	if v.IsSet("event_log.path") {
		cfg.EventLog.Path = v.GetString("event_log.path")
	}
	if v.IsSet("defaults.debug_level") {
		lvl := v.GetInt("defaults.debug_level")
		if lvl < 0 || lvl > 4 {
			return fmt.Errorf("BABYCAM_DEFAULTS_DEBUG_LEVEL must be between 0 and 4, got %d", lvl)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	return nil
}

// MoveSpeed returns the duration between two motor steps.
func (c *Config) MoveSpeed() time.Duration {
	return time.Duration(c.Defaults.MoveSpeedMs) * time.Millisecond
}

// ReplayInterval returns the delay between replayed frames (0 = no delay).
func (c *Config) ReplayInterval() time.Duration {
	if c.Perception.ReplayHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Perception.ReplayHz)
}

// WindDownBuffer returns the calm-down time before a predicted sleep.
func (c *Config) WindDownBuffer() time.Duration {
	return time.Duration(c.Wake.WindDownMinutes) * time.Minute
}

// AnalysisTimeout returns the per-request LLM timeout.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSec) * time.Second
}
