package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the REST API settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	APIKey  string `yaml:"api_key"` // empty disables auth
}

// BusConfig holds the event bus settings. The bus is optional: with Enabled
// false the engine runs fully in-process.
type BusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"` // run an embedded JetStream server
	Port     int    `yaml:"port"`     // embedded server port
	StoreDir string `yaml:"store_dir"`
}

// LoggingConfig holds the log settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AlertingConfig decides which assessments become alerts.
type AlertingConfig struct {
	MinBand string `yaml:"min_band"` // lowest band that raises an alert
}

// MinRiskBand parses the configured threshold band.
func (c *AlertingConfig) MinRiskBand() RiskBand {
	b, _ := ParseRiskBand(c.MinBand)
	return b
}

// SimulatorConfig drives the synthetic activity generator.
type SimulatorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Seed     int64         `yaml:"seed"` // 0 means seed from the clock
	Interval time.Duration `yaml:"interval"`
	Users    []string      `yaml:"users"`
}

// Config is the full engine configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Cases     CaseConfig      `yaml:"cases"`
	Response  ResponseConfig  `yaml:"response"`
	Webhook   string          `yaml:"webhook_url"` // empty means log-only notifications
	Simulator SimulatorConfig `yaml:"simulator"`
}

// DefaultConfig returns a config that runs standalone out of the box: API on,
// bus off, simulator on with a fixed seed.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8766",
		},
		Bus: BusConfig{
			Enabled:  false,
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			Port:     4222,
			StoreDir: "./data/jetstream",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
		Scoring:   DefaultScoringConfig(),
		Sentiment: DefaultSentimentConfig(),
		Alerting:  AlertingConfig{MinBand: "MEDIUM"},
		Cases:     DefaultCaseConfig(),
		Response:  DefaultResponseConfig(),
		Simulator: SimulatorConfig{
			Enabled:  true,
			Seed:     1,
			Interval: 2 * time.Second,
			Users:    []string{"alice", "bob", "carol", "dave", "eve"},
		},
	}
}

// LoadConfig reads a YAML config from path, layered over the defaults so a
// partial file is valid.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the config as YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate fails fast on any out-of-domain setting. The engine refuses to
// start on a bad config rather than score events with it.
func (c *Config) Validate() error {
	if c.Server.Enabled && c.Server.Addr == "" {
		return &ConfigurationError{Setting: "server.addr", Reason: "is required when the server is enabled"}
	}
	if c.Bus.Enabled && !c.Bus.Embedded && c.Bus.URL == "" {
		return &ConfigurationError{Setting: "bus.url", Reason: "is required when the bus is external"}
	}
	if c.Bus.Enabled && c.Bus.Embedded && (c.Bus.Port < 1 || c.Bus.Port > 65535) {
		return &ConfigurationError{Setting: "bus.port", Reason: "must be a valid port"}
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.Sentiment.NegationLookback < 1 {
		return &ConfigurationError{Setting: "sentiment.negation_lookback", Reason: "must be at least 1"}
	}
	if c.Sentiment.IntensifierFactor <= 0 {
		return &ConfigurationError{Setting: "sentiment.intensifier_factor", Reason: "must be positive"}
	}
	if _, ok := ParseRiskBand(c.Alerting.MinBand); !ok {
		return &ConfigurationError{Setting: "alerting.min_band", Reason: "unknown band " + c.Alerting.MinBand}
	}
	if err := c.Cases.Validate(); err != nil {
		return err
	}
	if err := c.Response.Validate(); err != nil {
		return err
	}
	if c.Simulator.Enabled {
		if c.Simulator.Interval <= 0 {
			return &ConfigurationError{Setting: "simulator.interval", Reason: "must be positive"}
		}
		if len(c.Simulator.Users) == 0 {
			return &ConfigurationError{Setting: "simulator.users", Reason: "at least one user is required"}
		}
	}
	return nil
}
