package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KevoDB/tablestore/pkg/common/log"
	"github.com/KevoDB/tablestore/pkg/sstable"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

const CurrentConfigVersion = 1

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrConfigFormat  = errors.New("unsupported configuration format")
)

type Config struct {
	Version int `json:"version" yaml:"version"`

	// Storage
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Caches
	TableCacheEntries int   `json:"table_cache_entries" yaml:"table_cache_entries"`
	BlockCacheSize    int64 `json:"block_cache_size" yaml:"block_cache_size"` // 0 disables the block cache

	// Table building
	BlockSize       int    `json:"block_size" yaml:"block_size"`
	RestartInterval int    `json:"restart_interval" yaml:"restart_interval"`
	Compression     string `json:"compression" yaml:"compression"`
	BloomBitsPerKey int    `json:"bloom_bits_per_key" yaml:"bloom_bits_per_key"` // 0 disables filters

	// Reads
	FillCache         bool `json:"fill_cache" yaml:"fill_cache"`
	CacheDecompressed bool `json:"cache_decompressed" yaml:"cache_decompressed"`

	LogLevel  string           `json:"log_level" yaml:"log_level"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		Version: CurrentConfigVersion,
		DataDir: dataDir,

		TableCacheEntries: 990,
		BlockCacheSize:    8 * 1024 * 1024, // 8MB

		BlockSize:       block.DefaultBlockSize,
		RestartInterval: block.DefaultRestartInterval,
		Compression:     compression.Snappy.String(),
		BloomBitsPerKey: 10,

		FillCache:         true,
		CacheDecompressed: true,

		LogLevel:  "info",
		Telemetry: telemetry.DefaultConfig(),
	}
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

	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory not specified", ErrInvalidConfig)
	}

	if c.TableCacheEntries <= 0 {
		return fmt.Errorf("%w: table cache entries must be positive", ErrInvalidConfig)
	}

	if c.BlockCacheSize < 0 {
		return fmt.Errorf("%w: block cache size cannot be negative", ErrInvalidConfig)
	}

	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive", ErrInvalidConfig)
	}

	if c.RestartInterval <= 0 {
		return fmt.Errorf("%w: restart interval must be positive", ErrInvalidConfig)
	}

	if _, err := compression.ParseType(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.BloomBitsPerKey < 0 {
		return fmt.Errorf("%w: bloom bits per key cannot be negative", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadConfig reads a JSON or YAML configuration, chosen by file extension.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig("")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrConfigFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, atomically replacing any existing
// file. The format follows the file extension.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("%w: %s", ErrConfigFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
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

// FilterPolicy returns the bloom filter policy, or nil when filters are disabled
func (c *Config) FilterPolicy() sstable.FilterPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.BloomBitsPerKey <= 0 {
		return nil
	}
	return sstable.NewBloomFilterPolicy(c.BloomBitsPerKey)
}

// WriterOptions returns table builder options. codecs must supply the
// configured compression.
func (c *Config) WriterOptions(codecs *compression.Registry) (sstable.WriterOptions, error) {
	c.mu.RLock()
	typ, err := compression.ParseType(c.Compression)
	opts := sstable.DefaultWriterOptions()
	opts.BlockSize = c.BlockSize
	opts.RestartInterval = c.RestartInterval
	c.mu.RUnlock()

	if err != nil {
		return sstable.WriterOptions{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	opts.Compression = typ
	opts.Codecs = codecs
	opts.FilterPolicy = c.FilterPolicy()
	return opts, nil
}

// ReaderOptions returns table reader options using codecs and, if non-nil,
// a shared block cache.
func (c *Config) ReaderOptions(codecs *compression.Registry, blockCache *sstable.BlockCache, logger log.Logger) sstable.ReaderOptions {
	return sstable.ReaderOptions{
		Comparator:   block.Bytewise,
		Codecs:       codecs,
		FilterPolicy: c.FilterPolicy(),
		BlockCache:   blockCache,
		Logger:       logger,
	}
}

// ReadOptions returns the per-read options
func (c *Config) ReadOptions() sstable.ReadOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return sstable.ReadOptions{
		FillCache:         c.FillCache,
		CacheDecompressed: c.CacheDecompressed,
	}
}

// NewBlockCache returns a block cache sized by BlockCacheSize, or nil when
// the block cache is disabled.
func (c *Config) NewBlockCache() *sstable.BlockCache {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.BlockCacheSize == 0 {
		return nil
	}
	return sstable.NewBlockCache(c.BlockCacheSize)
}

// Logger builds a standard logger at the configured level
func (c *Config) Logger() log.Logger {
	c.mu.RLock()
	level, _ := log.ParseLevel(c.LogLevel)
	c.mu.RUnlock()

	return log.NewStandardLogger(log.WithLevel(level))
}
