// Package config handles loading and validating the tlahtolli configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration shared by the gateway daemon and the
// terminal client.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Client  ClientConfig  `mapstructure:"client"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Camera  CameraConfig  `mapstructure:"camera"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the gateway daemon's listen settings.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	HealthPort int `mapstructure:"health_port"`
}

// BackendConfig maps logical endpoints to backend base URLs.
//
// BaseURL serves every endpoint unless Routes overrides it. Routes is
// data-driven so a split backend deployment (or a new endpoint) is a
// config change, not a code change.
type BackendConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Routes  map[string]string `mapstructure:"routes"`
}

// Resolve returns the base URL that serves the given logical endpoint.
func (b BackendConfig) Resolve(endpoint string) string {
	if base, ok := b.Routes[endpoint]; ok && base != "" {
		return base
	}
	return b.BaseURL
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	// ProxyURL is the address of a running tlahtollid gateway.
	ProxyURL string `mapstructure:"proxy_url"`
}

// AudioConfig configures microphone capture and speaker playback.
type AudioConfig struct {
	CaptureCommand string `mapstructure:"capture_command"` // ffmpeg binary
	InputFormat    string `mapstructure:"input_format"`    // e.g. "pulse", "alsa"
	InputDevice    string `mapstructure:"input_device"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Channels       int    `mapstructure:"channels"`
	PlayerCommand  string `mapstructure:"player_command"` // ffplay binary
}

// CameraConfig configures single-frame capture for text extraction.
type CameraConfig struct {
	CaptureCommand string `mapstructure:"capture_command"` // ffmpeg binary
	InputFormat    string `mapstructure:"input_format"`    // e.g. "v4l2"
	Device         string `mapstructure:"device"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./tlahtolli.yaml, ./configs/tlahtolli.yaml,
// /etc/tlahtolli/tlahtolli.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("backend.base_url", "http://127.0.0.1:8080")
	v.SetDefault("backend.routes", map[string]string{})
	v.SetDefault("client.proxy_url", "http://localhost:3000")
	v.SetDefault("audio.capture_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.player_command", "ffplay")
	v.SetDefault("camera.capture_command", "ffmpeg")
	v.SetDefault("camera.input_format", "v4l2")
	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tlahtolli")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tlahtolli")
	}

	// Environment variables: TLAHTOLLI_SERVER_PORT, TLAHTOLLI_BACKEND_BASE_URL, etc.
	v.SetEnvPrefix("TLAHTOLLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional — env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
