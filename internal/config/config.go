package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete Pulse configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Leak    LeakConfig    `mapstructure:"leak" yaml:"leak"`
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Render  RenderConfig  `mapstructure:"render" yaml:"render"`
	LOD     LODConfig     `mapstructure:"lod" yaml:"lod"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// PoolConfig bounds the resource pools
type PoolConfig struct {
	BufferMaxSize  int `mapstructure:"buffer_max_size" yaml:"buffer_max_size"`
	ContextMaxSize int `mapstructure:"context_max_size" yaml:"context_max_size"`
}

// CacheConfig bounds the derived-computation cache
type CacheConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// LeakConfig tunes the leak registry
type LeakConfig struct {
	StalenessWindow time.Duration `mapstructure:"staleness_window" yaml:"staleness_window"`
}

// CleanupConfig tunes the cleanup coordinator
type CleanupConfig struct {
	PeriodicInterval time.Duration `mapstructure:"periodic_interval" yaml:"periodic_interval"`
}

// MonitorConfig holds monitor thresholds and cadence
type MonitorConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MinPollSpacing     time.Duration `mapstructure:"min_poll_spacing" yaml:"min_poll_spacing"`
	MemoryCeilingMB    int64         `mapstructure:"memory_ceiling_mb" yaml:"memory_ceiling_mb"`
	GrowthCeilingMBMin float64       `mapstructure:"growth_ceiling_mb_per_min" yaml:"growth_ceiling_mb_per_min"`
	LeakCountCeiling   int           `mapstructure:"leak_count_ceiling" yaml:"leak_count_ceiling"`
	FPSFloor           float64       `mapstructure:"fps_floor" yaml:"fps_floor"`
}

// RenderConfig tunes the render scheduler
type RenderConfig struct {
	TargetFPS int `mapstructure:"target_fps" yaml:"target_fps"`
}

// LODConfig lists the level-of-detail thresholds
type LODConfig struct {
	Levels []LODLevel `mapstructure:"levels" yaml:"levels"`
}

// LODLevel pairs a zoom threshold with a strategy name
type LODLevel struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	Strategy  string  `mapstructure:"strategy" yaml:"strategy"`
}

// FrameInterval converts the target frame rate to a frame interval.
func (r RenderConfig) FrameInterval() time.Duration {
	if r.TargetFPS <= 0 {
		return 16 * time.Millisecond
	}
	return time.Second / time.Duration(r.TargetFPS)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Pool: PoolConfig{
			BufferMaxSize:  32,
			ContextMaxSize: 8,
		},
		Cache: CacheConfig{Capacity: 256},
		Leak:  LeakConfig{StalenessWindow: 5 * time.Minute},
		Cleanup: CleanupConfig{
			PeriodicInterval: time.Minute,
		},
		Monitor: MonitorConfig{
			PollInterval:       5 * time.Second,
			MinPollSpacing:     time.Second,
			MemoryCeilingMB:    512,
			GrowthCeilingMBMin: 64,
			LeakCountCeiling:   100,
			FPSFloor:           30,
		},
		Render: RenderConfig{TargetFPS: 60},
		LOD: LODConfig{Levels: []LODLevel{
			{Threshold: 0.1, Strategy: "pixel"},
			{Threshold: 0.5, Strategy: "statistical"},
			{Threshold: 2.0, Strategy: "aggregated"},
			{Threshold: 10.0, Strategy: "detailed"},
		}},
	}
}

// Load reads configuration from the config file and environment. Viper
// is expected to be primed with flags and an optional explicit config
// file by the command layer; a missing config file is not an error.
func Load() (*Config, error) {
	setDefaults()

	if viper.ConfigFileUsed() == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".pulse"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("PULSE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML to path,
// creating parent directories as needed.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func setDefaults() {
	d := Default()

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("pool.buffer_max_size", d.Pool.BufferMaxSize)
	viper.SetDefault("pool.context_max_size", d.Pool.ContextMaxSize)
	viper.SetDefault("cache.capacity", d.Cache.Capacity)
	viper.SetDefault("leak.staleness_window", d.Leak.StalenessWindow)
	viper.SetDefault("cleanup.periodic_interval", d.Cleanup.PeriodicInterval)
	viper.SetDefault("monitor.poll_interval", d.Monitor.PollInterval)
	viper.SetDefault("monitor.min_poll_spacing", d.Monitor.MinPollSpacing)
	viper.SetDefault("monitor.memory_ceiling_mb", d.Monitor.MemoryCeilingMB)
	viper.SetDefault("monitor.growth_ceiling_mb_per_min", d.Monitor.GrowthCeilingMBMin)
	viper.SetDefault("monitor.leak_count_ceiling", d.Monitor.LeakCountCeiling)
	viper.SetDefault("monitor.fps_floor", d.Monitor.FPSFloor)
	viper.SetDefault("render.target_fps", d.Render.TargetFPS)
}
