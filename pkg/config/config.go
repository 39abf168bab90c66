/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted in storage.backend.
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config represents the FrameDB configuration
type Config struct {
	DataDir   string    `yaml:"data_dir"`
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Security  Security  `yaml:"security"`
	Logging   Logging   `yaml:"logging"`
	Scheduler Scheduler `yaml:"scheduler"`
}

// Storage selects the backend and its retry policy
type Storage struct {
	Backend string `yaml:"backend"`
	Retry   Retry  `yaml:"retry"`
}

// Retry is the backoff applied to transient storage failures
type Retry struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// Server contains the inspector listen address
type Server struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Security contains the inspector API key. An empty key disables auth.
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Scheduler holds the sizing knobs handed to job planning and execution.
type Scheduler struct {
	PUsPerNode         int `yaml:"pus_per_node"`
	WorkItemSize       int `yaml:"work_item_size"`
	TasksInQueuePerPU  int `yaml:"tasks_in_queue_per_pu"`
	LoadWorkersPerNode int `yaml:"load_workers_per_node"`
	SaveWorkersPerNode int `yaml:"save_workers_per_node"`
	NumCUDAStreams     int `yaml:"num_cuda_streams"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	policy := storage.DefaultRetryPolicy()
	return &Config{
		DataDir: "./data",
		Storage: Storage{
			Backend: BackendFile,
			Retry: Retry{
				InitialInterval: policy.InitialInterval,
				MaxInterval:     policy.MaxInterval,
				Multiplier:      policy.Multiplier,
				MaxElapsed:      policy.MaxElapsedTime,
				MaxAttempts:     policy.MaxAttempts,
			},
		},
		Server: Server{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Scheduler: Scheduler{
			PUsPerNode:         1,
			WorkItemSize:       8,
			TasksInQueuePerPU:  4,
			LoadWorkersPerNode: 2,
			SaveWorkersPerNode: 2,
			NumCUDAStreams:     32,
		},
	}
}

// Validate rejects values the rest of the system cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" && c.Storage.Backend != BackendMemory {
		return errors.New("data_dir must be set")
	}
	switch c.Storage.Backend {
	case BackendFile, BackendPebble, BackendBadger, BackendMemory:
	default:
		return errors.Newf("unknown storage backend %q", c.Storage.Backend)
	}

	r := c.Storage.Retry
	if r.InitialInterval < 0 || r.MaxInterval < 0 || r.MaxElapsed < 0 {
		return errors.New("storage.retry intervals must not be negative")
	}
	if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
		return errors.Newf("storage.retry.initial_interval %s exceeds max_interval %s", r.InitialInterval, r.MaxInterval)
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		return errors.Newf("storage.retry.multiplier %g must be at least 1", r.Multiplier)
	}
	if r.MaxAttempts < 0 {
		return errors.Newf("storage.retry.max_attempts %d must not be negative", r.MaxAttempts)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", c.Server.Port)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	s := c.Scheduler
	for name, v := range map[string]int{
		"pus_per_node":          s.PUsPerNode,
		"work_item_size":        s.WorkItemSize,
		"tasks_in_queue_per_pu": s.TasksInQueuePerPU,
		"load_workers_per_node": s.LoadWorkersPerNode,
		"save_workers_per_node": s.SaveWorkersPerNode,
		"num_cuda_streams":      s.NumCUDAStreams,
	} {
		if v < 1 {
			return errors.Newf("scheduler.%s must be positive, got %d", name, v)
		}
	}
	return nil
}

// RetryPolicy converts the retry section for the storage adapter
func (c *Config) RetryPolicy() storage.RetryPolicy {
	r := c.Storage.Retry
	return storage.RetryPolicy{
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		MaxElapsedTime:  r.MaxElapsed,
		MaxAttempts:     r.MaxAttempts,
	}
}

// OpenBackend opens the configured storage backend under DataDir
func (c *Config) OpenBackend() (storage.Backend, error) {
	switch c.Storage.Backend {
	case BackendFile:
		return storage.NewFileBackend(filepath.Join(c.DataDir, "files"))
	case BackendPebble:
		return storage.NewPebbleBackend(filepath.Join(c.DataDir, "pebble"))
	case BackendBadger:
		return storage.NewBadgerBackend(filepath.Join(c.DataDir, "badger"))
	case BackendMemory:
		return storage.NewMemBackend(), nil
	default:
		return nil, errors.Newf("unknown storage backend %q", c.Storage.Backend)
	}
}

// ParseLevel maps a logging.level value to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Newf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger described by the logging section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LoadConfig loads configuration from the specified path. Keys missing from
// the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// 0600: the file may hold the API key
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./framedb.yaml"
	}

	// ~/.config/framedb/config.yaml
	return filepath.Join(homeDir, ".config", "framedb", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
