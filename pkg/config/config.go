package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

const (
	DefaultConfigFileName = "tabula.json"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// Compression names accepted by the CSV source
const (
	CompressionAuto   = "auto"
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
)

// LogConfig controls the process logger
type LogConfig struct {
	Level string `json:"level"`
}

// StreamConfig controls the push-to-pull adapter
type StreamConfig struct {
	// HighWaterMark pauses the source once this many rows are buffered.
	// Zero disables the limit.
	HighWaterMark int `json:"high_water_mark"`
	// BatchSize is the number of rows a source delivers per OnRow call
	BatchSize int `json:"batch_size"`
}

// CSVConfig controls parsing of delimited text
type CSVConfig struct {
	Delimiter        string `json:"delimiter"`
	Comment          string `json:"comment,omitempty"`
	LazyQuotes       bool   `json:"lazy_quotes"`
	TrimLeadingSpace bool   `json:"trim_leading_space"`
	Compression      string `json:"compression"`
}

// FrameConfig controls frame construction
type FrameConfig struct {
	ConsiderAllRows bool `json:"consider_all_rows"`
}

// ServerConfig controls the gRPC row server
type ServerConfig struct {
	Address string `json:"address"`
	DataDir string `json:"data_dir"`
}

type Config struct {
	Version int `json:"version"`

	Log       LogConfig        `json:"log"`
	Stream    StreamConfig     `json:"stream"`
	CSV       CSVConfig        `json:"csv"`
	Frame     FrameConfig      `json:"frame"`
	Server    ServerConfig     `json:"server"`
	Telemetry telemetry.Config `json:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Log:     LogConfig{Level: "info"},
		Stream: StreamConfig{
			HighWaterMark: 1024,
			BatchSize:     128,
		},
		CSV: CSVConfig{
			Delimiter:   ",",
			Compression: CompressionAuto,
		},
		Server: ServerConfig{
			Address: "localhost:50061",
			DataDir: ".",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

func singleRune(s string) (rune, bool) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, true
}

// DelimiterRune returns the CSV delimiter as a rune
func (c *CSVConfig) DelimiterRune() rune {
	r, _ := singleRune(c.Delimiter)
	return r
}

// CommentRune returns the CSV comment character, or 0 when unset
func (c *CSVConfig) CommentRune() rune {
	r, _ := singleRune(c.Comment)
	return r
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Stream.HighWaterMark < 0 {
		return fmt.Errorf("%w: high water mark must not be negative", ErrInvalidConfig)
	}

	if c.Stream.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}

	delim, ok := singleRune(c.CSV.Delimiter)
	if !ok || delim == '\r' || delim == '\n' || delim == '"' {
		return fmt.Errorf("%w: invalid CSV delimiter %q", ErrInvalidConfig, c.CSV.Delimiter)
	}

	if c.CSV.Comment != "" {
		comment, ok := singleRune(c.CSV.Comment)
		if !ok || comment == delim {
			return fmt.Errorf("%w: invalid CSV comment character %q", ErrInvalidConfig, c.CSV.Comment)
		}
	}

	switch c.CSV.Compression {
	case CompressionAuto, CompressionNone, CompressionGzip, CompressionZstd, CompressionSnappy:
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, c.CSV.Compression)
	}

	if c.Server.Address == "" {
		return fmt.Errorf("%w: server address not specified", ErrInvalidConfig)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadConfig reads a JSON config file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv overrides fields from TABULA_* environment variables.
// Values that fail to parse are ignored and left for Validate to judge.
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv("TABULA_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("TABULA_STREAM_HIGH_WATER_MARK"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Stream.HighWaterMark = n
		}
	}
	if val := os.Getenv("TABULA_STREAM_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Stream.BatchSize = n
		}
	}
	if val := os.Getenv("TABULA_CSV_DELIMITER"); val != "" {
		if val == `\t` {
			val = "\t"
		}
		c.CSV.Delimiter = val
	}
	if val := os.Getenv("TABULA_CSV_COMPRESSION"); val != "" {
		c.CSV.Compression = val
	}
	if val := os.Getenv("TABULA_FRAME_CONSIDER_ALL_ROWS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Frame.ConsiderAllRows = b
		}
	}
	if val := os.Getenv("TABULA_SERVER_ADDRESS"); val != "" {
		c.Server.Address = val
	}
	if val := os.Getenv("TABULA_SERVER_DATA_DIR"); val != "" {
		c.Server.DataDir = val
	}
	c.Telemetry.LoadFromEnv()
}

// Save writes the configuration to path atomically
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
