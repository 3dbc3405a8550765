// Package config resolves the station's startup configuration from
// environment variables, with an optional station.yaml overlay for readable
// local overrides. Env vars always win on a per-field basis.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the station's full startup configuration.
type Config struct {
	Port                  string
	MusicDir              string
	StationName           string
	Bitrate               string
	SampleRate            string
	Channels              string
	MaxClients            int
	HeartbeatInterval     time.Duration
	BusyWaitCeilingMicros int

	AdminUsername      string
	AdminPassword      string
	JWTSecret          string
	TokenTTLHours      int
	MaxLoginAttempts   int
	LoginWindowSeconds int
}

// yamlOverlay mirrors the subset of Config an operator may want to set from
// a station.yaml file instead of the environment.
type yamlOverlay struct {
	Port              string `yaml:"port"`
	MusicDir          string `yaml:"musicDir"`
	StationName       string `yaml:"stationName"`
	Bitrate           string `yaml:"bitrate"`
	SampleRate        string `yaml:"sampleRate"`
	Channels          string `yaml:"channels"`
	MaxClients        int    `yaml:"maxClients"`
	AdminUsername     string `yaml:"adminUsername"`
	AdminPassword     string `yaml:"adminPassword"`
}

// Load builds a Config from defaults, then a "station.yaml" overlay if
// present in the working directory, then environment variables (which win
// over both).
func Load() *Config {
	cfg := &Config{
		Port:                  "8000",
		MusicDir:              "./music",
		StationName:           "Lofi Radio",
		Bitrate:               "128k",
		SampleRate:            "44100",
		Channels:              "2",
		MaxClients:            100,
		HeartbeatInterval:     30 * time.Second,
		BusyWaitCeilingMicros: 1000,
		AdminUsername:         "dj",
		AdminPassword:         "change-me",
		JWTSecret:             "change-me-in-production-please",
		TokenTTLHours:         24,
		MaxLoginAttempts:      5,
		LoginWindowSeconds:    900,
	}

	applyYAMLOverlay(cfg, "station.yaml")

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.MusicDir = getEnv("MUSIC_DIR", cfg.MusicDir)
	cfg.StationName = getEnv("STATION_NAME", cfg.StationName)
	cfg.Bitrate = getEnv("BITRATE", cfg.Bitrate)
	cfg.SampleRate = getEnv("SAMPLE_RATE", cfg.SampleRate)
	cfg.Channels = getEnv("CHANNELS", cfg.Channels)
	cfg.MaxClients = getEnvAsInt("MAX_CLIENTS", cfg.MaxClients)
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTLHours = getEnvAsInt("TOKEN_TTL_HOURS", cfg.TokenTTLHours)
	cfg.MaxLoginAttempts = getEnvAsInt("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts)
	cfg.LoginWindowSeconds = getEnvAsInt("LOGIN_WINDOW_SECONDS", cfg.LoginWindowSeconds)

	return cfg
}

// applyYAMLOverlay decodes path, if it exists, over cfg's defaults. A
// missing file is not an error; a malformed one is logged and ignored so a
// bad overlay can never prevent the station from starting.
func applyYAMLOverlay(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		slog.Warn("config: ignoring malformed overlay", "path", path, "error", err)
		return
	}

	if overlay.Port != "" {
		cfg.Port = overlay.Port
	}
	if overlay.MusicDir != "" {
		cfg.MusicDir = overlay.MusicDir
	}
	if overlay.StationName != "" {
		cfg.StationName = overlay.StationName
	}
	if overlay.Bitrate != "" {
		cfg.Bitrate = overlay.Bitrate
	}
	if overlay.SampleRate != "" {
		cfg.SampleRate = overlay.SampleRate
	}
	if overlay.Channels != "" {
		cfg.Channels = overlay.Channels
	}
	if overlay.MaxClients != 0 {
		cfg.MaxClients = overlay.MaxClients
	}
	if overlay.AdminUsername != "" {
		cfg.AdminUsername = overlay.AdminUsername
	}
	if overlay.AdminPassword != "" {
		cfg.AdminPassword = overlay.AdminPassword
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}
