// Package conf holds application configuration loading and shared config types.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AggregatorSettings bounds the in-memory state kept by the error aggregator.
type AggregatorSettings struct {
	// MaxHistoryEntries caps the global error history by count.
	MaxHistoryEntries int `mapstructure:"max_history_entries" yaml:"max_history_entries"`
	// MaxHistoryAge caps the global error history by age.
	MaxHistoryAge Duration `mapstructure:"max_history_age" yaml:"max_history_age"`
	// MaxSamplesPerPattern caps the diagnostic sample buffer kept per pattern.
	MaxSamplesPerPattern int `mapstructure:"max_samples_per_pattern" yaml:"max_samples_per_pattern"`
}

// TrendSettings tunes the trend analyzer.
type TrendSettings struct {
	// WindowSize is the width of each time bucket used for trend math.
	WindowSize Duration `mapstructure:"window_size" yaml:"window_size"`
	// SpikeThreshold is the current/baseline ratio that declares a spike.
	SpikeThreshold float64 `mapstructure:"spike_threshold" yaml:"spike_threshold"`
}

// MonitorSettings tunes the orchestrator's background sweep.
type MonitorSettings struct {
	// SweepInterval is how often the background sweep re-evaluates patterns.
	SweepInterval Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// ActiveWindow is the trailing window used to select recently active patterns.
	ActiveWindow Duration `mapstructure:"active_window" yaml:"active_window"`
}

// APISettings configures the HTTP surface.
type APISettings struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Settings is the root configuration for the service.
type Settings struct {
	LogLevel   string             `mapstructure:"log_level" yaml:"log_level"`
	Aggregator AggregatorSettings `mapstructure:"aggregator" yaml:"aggregator"`
	Trend      TrendSettings      `mapstructure:"trend" yaml:"trend"`
	Monitor    MonitorSettings    `mapstructure:"monitor" yaml:"monitor"`
	API        APISettings        `mapstructure:"api" yaml:"api"`
}

// DefaultSettings returns the built-in configuration defaults.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel: "info",
		Aggregator: AggregatorSettings{
			MaxHistoryEntries:    10000,
			MaxHistoryAge:        Duration(24 * time.Hour),
			MaxSamplesPerPattern: 10,
		},
		Trend: TrendSettings{
			WindowSize:     Duration(10 * time.Minute),
			SpikeThreshold: 5.0,
		},
		Monitor: MonitorSettings{
			SweepInterval: Duration(30 * time.Second),
			ActiveWindow:  Duration(60 * time.Minute),
		},
		API: APISettings{
			ListenAddr: ":8090",
		},
	}
}

// Validate checks the settings for values that would break the engine.
func (s *Settings) Validate() error {
	if s.Aggregator.MaxHistoryEntries <= 0 {
		return fmt.Errorf("aggregator.max_history_entries must be positive, got %d", s.Aggregator.MaxHistoryEntries)
	}
	if s.Aggregator.MaxSamplesPerPattern <= 0 {
		return fmt.Errorf("aggregator.max_samples_per_pattern must be positive, got %d", s.Aggregator.MaxSamplesPerPattern)
	}
	if s.Trend.WindowSize.Std() <= 0 {
		return fmt.Errorf("trend.window_size must be positive, got %s", s.Trend.WindowSize.Std())
	}
	if s.Trend.SpikeThreshold <= 1 {
		return fmt.Errorf("trend.spike_threshold must be greater than 1, got %g", s.Trend.SpikeThreshold)
	}
	if s.Monitor.SweepInterval.Std() <= 0 {
		return fmt.Errorf("monitor.sweep_interval must be positive, got %s", s.Monitor.SweepInterval.Std())
	}
	return nil
}

// Load reads settings from the given config file (optional) and ERRWATCH_*
// environment variables, applying defaults for anything unset.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("errwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("aggregator.max_history_entries", defaults.Aggregator.MaxHistoryEntries)
	v.SetDefault("aggregator.max_history_age", defaults.Aggregator.MaxHistoryAge.Std().String())
	v.SetDefault("aggregator.max_samples_per_pattern", defaults.Aggregator.MaxSamplesPerPattern)
	v.SetDefault("trend.window_size", defaults.Trend.WindowSize.Std().String())
	v.SetDefault("trend.spike_threshold", defaults.Trend.SpikeThreshold)
	v.SetDefault("monitor.sweep_interval", defaults.Monitor.SweepInterval.Std().String())
	v.SetDefault("monitor.active_window", defaults.Monitor.ActiveWindow.Std().String())
	v.SetDefault("api.listen_addr", defaults.API.ListenAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}
