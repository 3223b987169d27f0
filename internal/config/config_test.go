package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, env := range []string{
		"DUOPHONE_REGISTRAR_HOST", "DUOPHONE_REGISTRAR_PORT", "DUOPHONE_ACCOUNT_USER",
		"DUOPHONE_ACCOUNT_PASS", "DUOPHONE_LOG_LEVEL", "DUOPHONE_RTP_PORT_MIN",
		"DUOPHONE_RTP_PORT_MAX",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}

	os.Args = []string{"duophone", "--registrar-host", "sip.example.com", "--account-user", "alice", "--account-pass", "secret"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RegistrarPort != defaultRegistrarPort {
		t.Errorf("RegistrarPort = %d, want %d", cfg.RegistrarPort, defaultRegistrarPort)
	}
	if cfg.LocalSIPPort != defaultLocalSIPPort {
		t.Errorf("LocalSIPPort = %d, want %d", cfg.LocalSIPPort, defaultLocalSIPPort)
	}
	if cfg.RTPPortMin != defaultRTPPortMin {
		t.Errorf("RTPPortMin = %d, want %d", cfg.RTPPortMin, defaultRTPPortMin)
	}
	if cfg.RTPPortMax != defaultRTPPortMax {
		t.Errorf("RTPPortMax = %d, want %d", cfg.RTPPortMax, defaultRTPPortMax)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	os.Args = []string{"duophone"}
	t.Setenv("DUOPHONE_REGISTRAR_HOST", "sip.example.com")
	t.Setenv("DUOPHONE_ACCOUNT_USER", "alice")
	t.Setenv("DUOPHONE_ACCOUNT_PASS", "secret")
	t.Setenv("DUOPHONE_REGISTRAR_PORT", "5080")
	t.Setenv("DUOPHONE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RegistrarHost != "sip.example.com" {
		t.Errorf("RegistrarHost = %q, want sip.example.com", cfg.RegistrarHost)
	}
	if cfg.RegistrarPort != 5080 {
		t.Errorf("RegistrarPort = %d, want 5080", cfg.RegistrarPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	os.Args = []string{
		"duophone",
		"--registrar-host", "sip.example.com", "--account-user", "alice", "--account-pass", "secret",
		"--registrar-port", "5080", "--log-level", "warn",
	}
	t.Setenv("DUOPHONE_REGISTRAR_PORT", "9090")
	t.Setenv("DUOPHONE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RegistrarPort != 5080 {
		t.Errorf("RegistrarPort = %d, want 5080 (CLI should override env)", cfg.RegistrarPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateMissingRegistrarHost(t *testing.T) {
	os.Args = []string{"duophone", "--account-user", "alice", "--account-pass", "secret"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing registrar-host, got nil")
	}
}

func TestValidateInvalidPort(t *testing.T) {
	os.Args = []string{
		"duophone",
		"--registrar-host", "sip.example.com", "--account-user", "alice", "--account-pass", "secret",
		"--registrar-port", "99999",
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	os.Args = []string{
		"duophone",
		"--registrar-host", "sip.example.com", "--account-user", "alice", "--account-pass", "secret",
		"--log-level", "verbose",
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateOddRTPPortMin(t *testing.T) {
	os.Args = []string{
		"duophone",
		"--registrar-host", "sip.example.com", "--account-user", "alice", "--account-pass", "secret",
		"--rtp-port-min", "16001",
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for odd rtp-port-min, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
