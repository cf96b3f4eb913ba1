package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListen           = ":50061"
	DefaultEndpoint         = "localhost:50061"
	DefaultRowWidth         = 6
	DefaultAttachTimeout    = 30 * time.Second
	DefaultDialTimeout      = 30 * time.Second
	DefaultInput            = "input/data_test.txt"
	DefaultOutput           = "results.txt"
	DefaultProgressInterval = time.Second
	DefaultLogLevel         = "info"
)

// Config is the top-level configuration shared by both binaries.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// LogConfig controls the slog handler installed by each binary.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level. Unknown values fall back to info;
// validate rejects them before that matters.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CoordinatorConfig holds all coordinator-side settings.
type CoordinatorConfig struct {
	// Listen is the gRPC address workers attach to (host:port).
	Listen string `yaml:"listen"`

	// Workers is the number of worker processes expected to attach.
	// The pool size is Workers+1.
	Workers int `yaml:"workers"`

	// AttachTimeout bounds how long the coordinator waits for the pool.
	AttachTimeout time.Duration `yaml:"attach_timeout"`

	// Input is the rough-marking file.
	Input string `yaml:"input"`

	// Output is the results file; it is replaced on every run.
	Output string `yaml:"output"`

	// RowWidth is the number of marks per student.
	RowWidth int `yaml:"row_width"`

	// HTTPPort serves the status API, /metrics and the progress WebSocket.
	// 0 disables the status surface.
	HTTPPort int `yaml:"http_port"`

	// ProgressInterval is how often the progress hub broadcasts.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// MetricsPath, when set, receives the run's Prometheus text exposition
	// after every run.
	MetricsPath string `yaml:"metrics_path"`
}

// WorkerConfig holds all worker-side settings.
type WorkerConfig struct {
	// CoordinatorEndpoint is the coordinator's gRPC address (host:port).
	CoordinatorEndpoint string `yaml:"coordinator_endpoint"`

	// DialTimeout bounds attaching to the coordinator, including waiting for
	// it to come up.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// RowWidth is the number of marks every assignment must carry.
	RowWidth int `yaml:"row_width"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: DefaultLogLevel},
		Coordinator: CoordinatorConfig{
			Listen:           DefaultListen,
			AttachTimeout:    DefaultAttachTimeout,
			Input:            DefaultInput,
			Output:           DefaultOutput,
			RowWidth:         DefaultRowWidth,
			ProgressInterval: DefaultProgressInterval,
		},
		Worker: WorkerConfig{
			CoordinatorEndpoint: DefaultEndpoint,
			DialTimeout:         DefaultDialTimeout,
			RowWidth:            DefaultRowWidth,
		},
	}
}

// validate checks structural constraints. A worker count below one is left
// to the coordinator, which reports it as an insufficient pool.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}

	c := cfg.Coordinator
	if c.Listen == "" {
		return fmt.Errorf("coordinator.listen is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("coordinator.workers must not be negative")
	}
	if c.AttachTimeout <= 0 {
		return fmt.Errorf("coordinator.attach_timeout must be positive")
	}
	if c.Input == "" {
		return fmt.Errorf("coordinator.input is required")
	}
	if c.Output == "" {
		return fmt.Errorf("coordinator.output is required")
	}
	if c.RowWidth <= 0 {
		return fmt.Errorf("coordinator.row_width must be positive")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("coordinator.http_port %d out of range", c.HTTPPort)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("coordinator.progress_interval must be positive")
	}

	w := cfg.Worker
	if w.CoordinatorEndpoint == "" {
		return fmt.Errorf("worker.coordinator_endpoint is required")
	}
	if w.DialTimeout <= 0 {
		return fmt.Errorf("worker.dial_timeout must be positive")
	}
	if w.RowWidth <= 0 {
		return fmt.Errorf("worker.row_width must be positive")
	}
	if w.RowWidth != c.RowWidth {
		return fmt.Errorf("worker.row_width %d differs from coordinator.row_width %d", w.RowWidth, c.RowWidth)
	}
	return nil
}
