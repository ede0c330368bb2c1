// Package config loads hub configuration from an optional YAML file and
// the environment. Environment variables win over the file, which wins
// over defaults. The environment surface uses the documented names
// (HEARTBEAT_INTERVAL_SECONDS, QUEUE_CAPACITY_PER_CONNECTION, ...).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/tracklight/tracklight/internal/server"
	"github.com/tracklight/tracklight/pkg/errors"
)

// File is the YAML configuration file schema.
type File struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	PathPrefix string `yaml:"path_prefix"`

	CORSEnabled bool     `yaml:"cors_enabled"`
	CORSOrigins []string `yaml:"cors_origins"`

	AuthEnabled bool   `yaml:"auth_enabled"`
	AuthHeader  string `yaml:"auth_header"`

	RateLimit *int `yaml:"rate_limit"`

	Hub struct {
		HeartbeatIntervalSeconds   int `yaml:"heartbeat_interval_seconds"`
		MissedBeatsThreshold       int `yaml:"missed_beats_threshold"`
		QueueCapacityPerConnection int `yaml:"queue_capacity_per_connection"`
		ReplayBufferSizePerProject int `yaml:"replay_buffer_size_per_project"`
		WriteTimeoutSeconds        int `yaml:"write_timeout_seconds"`
	} `yaml:"hub"`

	// WatchPaths enables the built-in file-change producer.
	WatchPaths []string `yaml:"watch_paths"`
}

// Load builds the server configuration. path may be empty, in which case
// only defaults and the environment apply. The returned watch paths feed
// the file-change producer.
func Load(path string) (server.Config, []string, error) {
	cfg := server.DefaultConfig()
	var watch []string

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, nil, errors.NewConfigError("file", "reading config file", err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return cfg, nil, errors.NewConfigError("file", "parsing config file", err)
		}
		applyFile(&cfg, &f)
		watch = f.WatchPaths
	}

	applyEnv(&cfg, &watch)
	return cfg, watch, nil
}

func applyFile(cfg *server.Config, f *File) {
	if f.Host != "" {
		cfg.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.PathPrefix != "" {
		cfg.PathPrefix = f.PathPrefix
	}
	cfg.CORSEnabled = cfg.CORSEnabled || f.CORSEnabled
	if len(f.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.CORSOrigins
	}
	cfg.AuthEnabled = cfg.AuthEnabled || f.AuthEnabled
	if f.AuthHeader != "" {
		cfg.AuthHeader = f.AuthHeader
	}
	if f.RateLimit != nil {
		cfg.RateLimit = *f.RateLimit
	}

	if v := f.Hub.HeartbeatIntervalSeconds; v > 0 {
		cfg.Hub.HeartbeatInterval = time.Duration(v) * time.Second
	}
	if v := f.Hub.MissedBeatsThreshold; v > 0 {
		cfg.Hub.MissedBeatsThreshold = v
	}
	if v := f.Hub.QueueCapacityPerConnection; v > 0 {
		cfg.Hub.QueueCapacity = v
	}
	if v := f.Hub.ReplayBufferSizePerProject; v > 0 {
		cfg.Hub.ReplayBufferSize = v
	}
	if v := f.Hub.WriteTimeoutSeconds; v > 0 {
		cfg.Hub.WriteTimeout = time.Duration(v) * time.Second
	}
}

// applyEnv overlays the documented environment variables through viper.
func applyEnv(cfg *server.Config, watch *[]string) {
	v := viper.New()
	v.AutomaticEnv()

	if s := v.GetString("HTTP_HOST"); s != "" {
		cfg.Host = s
	}
	if p := v.GetInt("HTTP_PORT"); p > 0 {
		cfg.Port = p
	}
	if s := v.GetString("API_KEY"); s != "" {
		cfg.APIKey = s
	}
	if v.IsSet("AUTH_ENABLED") {
		cfg.AuthEnabled = v.GetBool("AUTH_ENABLED")
	}
	if v.IsSet("RATE_LIMIT") {
		cfg.RateLimit = v.GetInt("RATE_LIMIT")
	}

	if n := v.GetInt("HEARTBEAT_INTERVAL_SECONDS"); n > 0 {
		cfg.Hub.HeartbeatInterval = time.Duration(n) * time.Second
	}
	if n := v.GetInt("MISSED_BEATS_THRESHOLD"); n > 0 {
		cfg.Hub.MissedBeatsThreshold = n
	}
	if n := v.GetInt("QUEUE_CAPACITY_PER_CONNECTION"); n > 0 {
		cfg.Hub.QueueCapacity = n
	}
	if n := v.GetInt("REPLAY_BUFFER_SIZE_PER_PROJECT"); n > 0 {
		cfg.Hub.ReplayBufferSize = n
	}
	if n := v.GetInt("WRITE_TIMEOUT_SECONDS"); n > 0 {
		cfg.Hub.WriteTimeout = time.Duration(n) * time.Second
	}

	if s := v.GetString("WATCH_PATHS"); s != "" {
		*watch = splitList(s)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
