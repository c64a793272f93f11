package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Engine != "piper" {
		t.Errorf("Engine = %q, want piper", cfg.Engine)
	}
	if cfg.Rate != 1.0 {
		t.Errorf("Rate = %v, want 1.0", cfg.Rate)
	}
	if cfg.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", cfg.SampleRate)
	}
	if cfg.CacheDir == "" {
		t.Error("CacheDir is empty")
	}
	if cfg.Piper.Binary != "piper" {
		t.Errorf("Piper.Binary = %q, want piper", cfg.Piper.Binary)
	}
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("speech.engine", "mock")
	viper.Set("speech.voice", "amy")
	viper.Set("speech.rate", 1.5)
	viper.Set("speech.sample_rate", 16000)
	viper.Set("speech.cache_dir", "/tmp/speech-cache")
	viper.Set("speech.cache_max_bytes", int64(1024))
	viper.Set("speech.piper.binary", "/opt/piper/piper")
	viper.Set("speech.piper.model", "/opt/piper/en.onnx")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Engine != "mock" || cfg.Voice != "amy" || cfg.Rate != 1.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SampleRate != 16000 || cfg.CacheDir != "/tmp/speech-cache" || cfg.CacheMaxBytes != 1024 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Piper.Binary != "/opt/piper/piper" || cfg.Piper.Model != "/opt/piper/en.onnx" {
		t.Errorf("piper cfg = %+v", cfg.Piper)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Engine = "festival" },
			wantErr: "unknown engine",
		},
		{
			name:    "rate too slow",
			mutate:  func(c *Config) { c.Rate = 0.1 },
			wantErr: "out of range",
		},
		{
			name:    "rate too fast",
			mutate:  func(c *Config) { c.Rate = 5.0 },
			wantErr: "out of range",
		},
		{
			name:    "zero sample rate",
			mutate:  func(c *Config) { c.SampleRate = 0 },
			wantErr: "sample rate",
		},
		{
			name:    "negative cache budget",
			mutate:  func(c *Config) { c.CacheMaxBytes = -1 },
			wantErr: "cache budget",
		},
		{
			name:    "empty cache dir",
			mutate:  func(c *Config) { c.CacheDir = "" },
			wantErr: "cache directory",
		},
		{
			name:    "piper without binary",
			mutate:  func(c *Config) { c.Piper.Binary = "" },
			wantErr: "piper binary",
		},
		{
			name: "mock needs no binary",
			mutate: func(c *Config) {
				c.Engine = "mock"
				c.Piper.Binary = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
