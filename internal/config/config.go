package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds the settings for the tshark capture worker.
type CaptureConfig struct {
	TsharkPath  string `yaml:"tshark_path"`
	Interface   string `yaml:"interface"`
	GracePeriod string `yaml:"grace_period"`
	ChannelSize int    `yaml:"channel_size"`
}

// WindowConfig holds the settings for the flow aggregator.
type WindowConfig struct {
	Duration      string `yaml:"duration"`
	SubWindow     string `yaml:"sub_window"`
	StatsInterval string `yaml:"stats_interval"`
}

// FusionConfig holds the settings for the threat fusion engine.
type FusionConfig struct {
	ClassifierURL       string  `yaml:"classifier_url"`
	ClassifierTimeout   string  `yaml:"classifier_timeout"`
	ReputationURL       string  `yaml:"reputation_url"`
	ReputationKey       string  `yaml:"reputation_key"`
	ReputationTimeout   string  `yaml:"reputation_timeout"`
	ReputationMaxAge    int     `yaml:"reputation_max_age_days"`
	HealthInterval      string  `yaml:"health_interval"`
	CacheTTL            string  `yaml:"cache_ttl"`
	CacheCapacity       int     `yaml:"cache_capacity"`
	MitigationThreshold float64 `yaml:"mitigation_threshold"`
	HeuristicCutoff     float64 `yaml:"heuristic_cutoff"`
}

// MitigationConfig holds the settings for the mitigation dispatcher.
type MitigationConfig struct {
	SDNBaseURL           string `yaml:"sdn_base_url"`
	SDNTimeout           string `yaml:"sdn_timeout"`
	BlockDuration        string `yaml:"block_duration"`
	JanitorInterval      string `yaml:"janitor_interval"`
	MaxHistory           int    `yaml:"max_history"`
	AllowSimulatedUnblock bool  `yaml:"allow_simulated_unblock"`
}

// NATSConfig holds the settings for the event bus bridge.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ClickHouseConfig holds the connection settings for the audit sink.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Interval string `yaml:"flush_interval"`
}

// SnapshotConfig holds the settings for the gob ledger snapshots.
type SnapshotConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RootPath string `yaml:"root_path"`
	Interval string `yaml:"interval"`
}

// SMTPConfig holds the email notifier settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds the settings for the optional alert analyzer.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AlerterConfig holds the settings for the block-event alerter.
type AlerterConfig struct {
	Enabled       bool     `yaml:"enabled"`
	CheckInterval string   `yaml:"check_interval"`
	AIAnalysis    AIConfig `yaml:"ai_analysis"`
}

// APIConfig holds the HTTP control surface settings.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Window     WindowConfig     `yaml:"window"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Mitigation MitigationConfig `yaml:"mitigation"`
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Alerter    AlerterConfig    `yaml:"alerter"`
	API        APIConfig        `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}

// Duration parses a duration field, falling back to def when the field is
// empty or invalid.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
