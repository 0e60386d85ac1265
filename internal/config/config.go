// Package config parses process flags and TEEMO_-prefixed environment
// variables into the settings the orchestrator needs to start.
package config

import (
	"errors"
	"flag"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for one run of the proxy.
type Config struct {
	// RelayListen is the address the XMPP TLS relay binds to. It
	// defaults to the well-known XMPP-over-TLS port but is overridable
	// for local testing against a loopback stand-in upstream.
	RelayListen string

	// ConfigListen is the address the HTTPS config-rewriting endpoint
	// binds to. Empty means bind an ephemeral loopback port, which is
	// the default: the endpoint's address is only ever learned by the
	// launcher through the orchestrator, so a fixed port is never
	// required unless an operator asks for one.
	ConfigListen string

	// UpstreamConfigHost is the real Riot client-config host the
	// config endpoint forwards requests to.
	UpstreamConfigHost string

	// AppDataDir overrides where the CA and settings are persisted.
	// Empty means use the OS default per-user app-data directory.
	AppDataDir string

	// LogLevel is one of debug|info|warn|error.
	LogLevel string

	// StartMode is the stealth mode the orchestrator starts in.
	StartMode string
}

const (
	defaultRelayListen        = "127.0.0.1:5223"
	defaultUpstreamConfigHost = "clientconfig.rpg.riotgames.com"
	defaultLogLevel           = "info"
	defaultStartMode          = "Invisible"
	defaultYAMLFile           = "teemoproxy.yml"
)

// fileOverrides mirrors Config's operator-facing fields for the
// optional YAML override file, read before flags/env are applied.
// Every field is a pointer so an absent key leaves the env/default
// value untouched.
type fileOverrides struct {
	RelayListen        *string `yaml:"relay_listen"`
	ConfigListen       *string `yaml:"config_listen"`
	UpstreamConfigHost *string `yaml:"upstream_config_host"`
	AppDataDir         *string `yaml:"appdata_dir"`
	LogLevel           *string `yaml:"log_level"`
	StartMode          *string `yaml:"mode"`
}

// loadYAMLOverrides reads path if it exists and applies its fields
// onto cfg in place. A missing file is not an error.
func loadYAMLOverrides(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var f fileOverrides
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	applyIfSet(&cfg.RelayListen, f.RelayListen)
	applyIfSet(&cfg.ConfigListen, f.ConfigListen)
	applyIfSet(&cfg.UpstreamConfigHost, f.UpstreamConfigHost)
	applyIfSet(&cfg.AppDataDir, f.AppDataDir)
	applyIfSet(&cfg.LogLevel, f.LogLevel)
	applyIfSet(&cfg.StartMode, f.StartMode)
	return nil
}

func applyIfSet(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// ParseFlags parses args, layering an optional teemoproxy.yml override
// file, then TEEMO_-prefixed environment variables, then flags on top
// of built-in defaults, with each later layer winning.
func ParseFlags(args []string) (Config, error) {
	cfg := Config{
		RelayListen:        defaultRelayListen,
		ConfigListen:       "",
		UpstreamConfigHost: defaultUpstreamConfigHost,
		AppDataDir:         "",
		LogLevel:           defaultLogLevel,
		StartMode:          defaultStartMode,
	}

	yamlPath := envOrDefault("TEEMO_CONFIG_FILE", defaultYAMLFile)
	if err := loadYAMLOverrides(yamlPath, &cfg); err != nil {
		return cfg, err
	}

	cfg.RelayListen = envOrDefault("TEEMO_RELAY_LISTEN", cfg.RelayListen)
	cfg.ConfigListen = envOrDefault("TEEMO_CONFIG_LISTEN", cfg.ConfigListen)
	cfg.UpstreamConfigHost = envOrDefault("TEEMO_UPSTREAM_CONFIG_HOST", cfg.UpstreamConfigHost)
	cfg.AppDataDir = envOrDefault("TEEMO_APPDATA_DIR", cfg.AppDataDir)
	cfg.LogLevel = envOrDefault("TEEMO_LOG_LEVEL", cfg.LogLevel)
	cfg.StartMode = envOrDefault("TEEMO_START_MODE", cfg.StartMode)

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&cfg.RelayListen, "relay-listen", cfg.RelayListen, "XMPP TLS relay listen address")
	fs.StringVar(&cfg.ConfigListen, "config-listen", cfg.ConfigListen, "HTTPS config endpoint listen address")
	fs.StringVar(&cfg.UpstreamConfigHost, "upstream-config-host", cfg.UpstreamConfigHost, "Real Riot client-config host")
	fs.StringVar(&cfg.AppDataDir, "appdata-dir", cfg.AppDataDir, "Override app-data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.StartMode, "mode", cfg.StartMode, "Starting stealth mode: Online|Invisible")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.StartMode = strings.TrimSpace(cfg.StartMode)
	if cfg.StartMode != "Online" && cfg.StartMode != "Invisible" {
		return cfg, errors.New("mode must be Online or Invisible")
	}
	if strings.TrimSpace(cfg.RelayListen) == "" {
		return cfg, errors.New("relay listen address must not be empty")
	}
	if strings.TrimSpace(cfg.UpstreamConfigHost) == "" {
		return cfg, errors.New("upstream config host must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
