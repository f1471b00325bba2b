package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultMaxShardSize is used when the config omits max_shard_size.
const DefaultMaxShardSize = "100M"

// Config is the TOML run configuration for a full prepare pass.
//
// Each split name N must have two inputs under Root: a metadata stream
// N.json and a directory N/ holding the source tar archives.
type Config struct {
	Root         string   `toml:"root"`
	Out          string   `toml:"out"`
	MaxShardSize string   `toml:"max_shard_size"`
	Splits       []string `toml:"splits"`
}

// LoadConfig reads and decodes a TOML config file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Root:         ".",
		Out:          "repo_out",
		MaxShardSize: DefaultMaxShardSize,
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ShardSize returns the configured maximum shard size in bytes.
func (c *Config) ShardSize() (int64, error) {
	size := c.MaxShardSize
	if size == "" {
		size = DefaultMaxShardSize
	}
	n, err := ParseSize(size)
	if err != nil {
		return 0, fmt.Errorf("max_shard_size: %w", err)
	}
	return n, nil
}

// SplitList pairs every configured split name with its display name, in
// config order.
func (c *Config) SplitList() []Split {
	splits := make([]Split, len(c.Splits))
	for i, name := range c.Splits {
		splits[i] = Split{Name: name, DisplayName: RenameSplit(name)}
	}
	return splits
}

// SourceJSON returns the path of a split's full metadata stream.
func (c *Config) SourceJSON(name string) string {
	return filepath.Join(c.Root, name+".json")
}

// SourceTarDir returns the directory holding a split's source archives.
func (c *Config) SourceTarDir(name string) string {
	return filepath.Join(c.Root, name)
}

// DataDir returns the output data directory.
func (c *Config) DataDir() string {
	return filepath.Join(c.Out, "data")
}

// Validate checks every split's inputs before any output is produced, so a
// run fails eagerly rather than mid-pipeline.
func (c *Config) Validate() error {
	if len(c.Splits) == 0 {
		return fmt.Errorf("config: no splits defined")
	}
	if _, err := c.ShardSize(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, name := range c.Splits {
		jsonPath := c.SourceJSON(name)
		info, err := os.Stat(jsonPath)
		if err != nil {
			return fmt.Errorf("config: split %s: %w", name, err)
		}
		if info.IsDir() {
			return fmt.Errorf("config: split %s: %s is a directory", name, jsonPath)
		}
		tarDir := c.SourceTarDir(name)
		info, err = os.Stat(tarDir)
		if err != nil {
			return fmt.Errorf("config: split %s: %w", name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config: split %s: %s is not a directory", name, tarDir)
		}
	}
	return nil
}
