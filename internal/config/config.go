// Package config loads the application configuration from Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds everything the speech pipeline needs to start.
type Config struct {
	Engine     string
	Voice      string
	Rate       float64
	SampleRate int

	CacheDir      string
	CacheMaxBytes int64

	Piper PiperConfig
}

// PiperConfig locates the piper installation.
type PiperConfig struct {
	Binary string
	Model  string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Engine:     "piper",
		Rate:       1.0,
		SampleRate: 22050,
		CacheDir:   defaultCacheDir(),
		Piper: PiperConfig{
			Binary: "piper",
		},
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "quill", "audio")
}

// Load reads the speech configuration from Viper, applies defaults for
// unset keys and validates the result.
func Load() (Config, error) {
	cfg := Default()

	if viper.IsSet("speech.engine") {
		cfg.Engine = viper.GetString("speech.engine")
	}
	if viper.IsSet("speech.voice") {
		cfg.Voice = viper.GetString("speech.voice")
	}
	if viper.IsSet("speech.rate") {
		cfg.Rate = viper.GetFloat64("speech.rate")
	}
	if viper.IsSet("speech.sample_rate") {
		cfg.SampleRate = viper.GetInt("speech.sample_rate")
	}
	if viper.IsSet("speech.cache_dir") {
		cfg.CacheDir = viper.GetString("speech.cache_dir")
	}
	if viper.IsSet("speech.cache_max_bytes") {
		cfg.CacheMaxBytes = viper.GetInt64("speech.cache_max_bytes")
	}
	if viper.IsSet("speech.piper.binary") {
		cfg.Piper.Binary = viper.GetString("speech.piper.binary")
	}
	if viper.IsSet("speech.piper.model") {
		cfg.Piper.Model = viper.GetString("speech.piper.model")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid speech configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run
// with.
func (c Config) Validate() error {
	switch c.Engine {
	case "piper", "mock":
	default:
		return fmt.Errorf("unknown engine %q (want piper or mock)", c.Engine)
	}
	if c.Rate < 0.25 || c.Rate > 4.0 {
		return fmt.Errorf("rate %.2f out of range [0.25, 4.0]", c.Rate)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.CacheMaxBytes < 0 {
		return fmt.Errorf("cache budget must not be negative, got %d", c.CacheMaxBytes)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache directory must not be empty")
	}
	if c.Engine == "piper" && c.Piper.Binary == "" {
		return fmt.Errorf("piper binary must not be empty")
	}
	return nil
}
