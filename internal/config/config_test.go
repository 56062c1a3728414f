package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(KeySecret, "webhook-secret")
	t.Setenv(KeyBotToken, "123:ABCdef_-")
	t.Setenv(KeyAdminID, "12345")
	t.Setenv(KeyReferralLink, "https://example.com/ref/abc")
}

func TestLoadDefaultsAndRequired(t *testing.T) {
	unsetEnv(t, KeyAppEnv)
	unsetEnv(t, KeyHTTPPort)
	unsetEnv(t, KeyLogLevel)
	unsetEnv(t, KeyDataDir)
	unsetEnv(t, KeyLocalBypass)
	unsetEnv(t, KeyMinWithdrawal)

	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if cfg.AppEnv != DefaultAppEnv {
		t.Fatalf("expected app env %s, got %s", DefaultAppEnv, cfg.AppEnv)
	}

	if cfg.AdminID != 12345 {
		t.Fatalf("expected admin id to be parsed, got %d", cfg.AdminID)
	}

	if cfg.HTTPPort != DefaultHTTPPort {
		t.Fatalf("expected default http port %d, got %d", DefaultHTTPPort, cfg.HTTPPort)
	}

	if cfg.DataDir != DefaultDataDir {
		t.Fatalf("expected default data dir %s, got %s", DefaultDataDir, cfg.DataDir)
	}

	if cfg.LocalBypass {
		t.Fatalf("expected local bypass to default to false")
	}

	if cfg.MinWithdrawal != DefaultMinWithdrawal {
		t.Fatalf("expected default min withdrawal %v, got %v", DefaultMinWithdrawal, cfg.MinWithdrawal)
	}
}

func TestLoadFailsOnMissingRequired(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	unsetEnv(t, KeySecret)

	_, err := Load()
	if err == nil {
		t.Fatalf("expected missing required env to error")
	}

	if !strings.Contains(err.Error(), KeySecret) {
		t.Fatalf("expected error to mention missing %s, got %v", KeySecret, err)
	}
}

func TestLoadValidatesBotTokenFormat(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyBotToken, "not-a-token")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected invalid bot token to error")
	}

	if !strings.Contains(err.Error(), KeyBotToken) {
		t.Fatalf("expected error to mention %s, got %v", KeyBotToken, err)
	}
}

func TestLoadValidatesAdminID(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyAdminID, "abc")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for invalid %s", KeyAdminID)
	}

	if !strings.Contains(err.Error(), KeyAdminID) {
		t.Fatalf("expected error to mention %s, got %v", KeyAdminID, err)
	}
}

func TestLoadValidatesReferralLink(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyReferralLink, "ftp://example.com/ref")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected invalid referral link to error")
	}

	if !strings.Contains(err.Error(), KeyReferralLink) {
		t.Fatalf("expected error to mention %s, got %v", KeyReferralLink, err)
	}
}

func TestLoadValidatesHTTPPort(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyHTTPPort, "0")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected invalid %s to error", KeyHTTPPort)
	}
}

func TestLoadValidatesAmounts(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyMinWithdrawal, "-5")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected negative %s to error", KeyMinWithdrawal)
	}

	if !strings.Contains(err.Error(), KeyMinWithdrawal) {
		t.Fatalf("expected error to mention %s, got %v", KeyMinWithdrawal, err)
	}
}

func TestLoadParsesLocalBypass(t *testing.T) {
	unsetEnv(t, KeyAppEnv)

	setRequiredEnv(t)
	t.Setenv(KeyLocalBypass, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if !cfg.LocalBypass {
		t.Fatalf("expected local bypass to be enabled")
	}
}

func TestLoadReadsDotEnvInDevelopment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	contents := strings.Join([]string{
		KeyAppEnv + "=" + EnvDevelopment,
		KeyLogLevel + "=debug",
	}, "\n")

	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})

	unsetEnv(t, KeyAppEnv)
	unsetEnv(t, KeyLogLevel)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if cfg.AppEnv != EnvDevelopment {
		t.Fatalf("expected app env from dotenv, got %s", cfg.AppEnv)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from dotenv, got %s", cfg.LogLevel)
	}
}

func TestFormatRedactedMasksSecrets(t *testing.T) {
	cfg := Config{
		Secret:        "super-secret-value",
		BotToken:      "123:ABCdefSecret",
		AdminID:       42,
		ReferralLink:  "https://example.com/ref/abc",
		AppEnv:        EnvDevelopment,
		LogLevel:      "debug",
		HTTPPort:      9000,
		DataDir:       "data",
		SignupBonus:   5,
		ReferralBonus: 10,
		MinWithdrawal: 50,
	}

	summary := FormatRedacted(cfg)

	if strings.Contains(summary, "super-secret-value") {
		t.Fatalf("expected webhook secret to be redacted, got %s", summary)
	}

	if strings.Contains(summary, "ABCdefSecret") {
		t.Fatalf("expected bot token to be redacted, got %s", summary)
	}

	if !strings.Contains(summary, KeyBotToken+"=123:***") {
		t.Fatalf("expected bot token to keep its numeric prefix, got %s", summary)
	}

	if !strings.Contains(summary, "https://example.com/ref/abc") {
		t.Fatalf("expected referral link to remain visible, got %s", summary)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}
