package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the duophone softphone.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	RegistrarHost string
	RegistrarPort int
	AccountUser   string
	AccountPass   string
	DisplayName   string
	LocalIP       string
	LocalSIPPort  int
	RTPPortMin    int
	RTPPortMax    int
	LogLevel      string
	LogFormat     string
}

// defaults
const (
	defaultRegistrarPort = 5060
	defaultLocalSIPPort  = 5060
	defaultRTPPortMin    = 16000
	defaultRTPPortMax    = 16100
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// envPrefix is the prefix for all duophone environment variables.
const envPrefix = "DUOPHONE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("duophone", flag.ContinueOnError)

	fs.StringVar(&cfg.RegistrarHost, "registrar-host", "", "SIP registrar hostname or IP (required)")
	fs.IntVar(&cfg.RegistrarPort, "registrar-port", defaultRegistrarPort, "SIP registrar UDP port")
	fs.StringVar(&cfg.AccountUser, "account-user", "", "SIP account username (required)")
	fs.StringVar(&cfg.AccountPass, "account-pass", "", "SIP account password (required)")
	fs.StringVar(&cfg.DisplayName, "display-name", "", "display name to use in From headers")
	fs.StringVar(&cfg.LocalIP, "local-ip", "", "local IP to advertise in SIP headers and SDP (auto-detected if empty)")
	fs.IntVar(&cfg.LocalSIPPort, "local-sip-port", defaultLocalSIPPort, "local UDP port for the SIP socket")
	fs.IntVar(&cfg.RTPPortMin, "rtp-port-min", defaultRTPPortMin, "minimum local UDP port for RTP media")
	fs.IntVar(&cfg.RTPPortMax, "rtp-port-max", defaultRTPPortMax, "maximum local UDP port for RTP media")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"registrar-host": envPrefix + "REGISTRAR_HOST",
		"registrar-port": envPrefix + "REGISTRAR_PORT",
		"account-user":   envPrefix + "ACCOUNT_USER",
		"account-pass":   envPrefix + "ACCOUNT_PASS",
		"display-name":   envPrefix + "DISPLAY_NAME",
		"local-ip":       envPrefix + "LOCAL_IP",
		"local-sip-port": envPrefix + "LOCAL_SIP_PORT",
		"rtp-port-min":   envPrefix + "RTP_PORT_MIN",
		"rtp-port-max":   envPrefix + "RTP_PORT_MAX",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "registrar-host":
			cfg.RegistrarHost = val
		case "registrar-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RegistrarPort = v
			}
		case "account-user":
			cfg.AccountUser = val
		case "account-pass":
			cfg.AccountPass = val
		case "display-name":
			cfg.DisplayName = val
		case "local-ip":
			cfg.LocalIP = val
		case "local-sip-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.LocalSIPPort = v
			}
		case "rtp-port-min":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMin = v
			}
		case "rtp-port-max":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RTPPortMax = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.RegistrarHost == "" {
		return fmt.Errorf("registrar-host is required")
	}
	if c.AccountUser == "" {
		return fmt.Errorf("account-user is required")
	}
	if c.AccountPass == "" {
		return fmt.Errorf("account-pass is required")
	}
	if c.RegistrarPort < 1 || c.RegistrarPort > 65535 {
		return fmt.Errorf("registrar-port must be between 1 and 65535, got %d", c.RegistrarPort)
	}
	if c.LocalSIPPort < 1 || c.LocalSIPPort > 65535 {
		return fmt.Errorf("local-sip-port must be between 1 and 65535, got %d", c.LocalSIPPort)
	}
	if c.RTPPortMin < 1024 || c.RTPPortMin > 65534 {
		return fmt.Errorf("rtp-port-min must be between 1024 and 65534, got %d", c.RTPPortMin)
	}
	if c.RTPPortMax < c.RTPPortMin+2 || c.RTPPortMax > 65535 {
		return fmt.Errorf("rtp-port-max must be between rtp-port-min+2 and 65535, got %d", c.RTPPortMax)
	}
	// RTP uses even ports; the odd port above is reserved for RTCP even
	// though this UA never emits it.
	if c.RTPPortMin%2 != 0 {
		return fmt.Errorf("rtp-port-min must be even, got %d", c.RTPPortMin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// RegistrarServer returns the "host:port" form used to address the
// registrar for both REGISTER and INVITE destinations.
func (c *Config) RegistrarServer() string {
	return fmt.Sprintf("%s:%d", c.RegistrarHost, c.RegistrarPort)
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
