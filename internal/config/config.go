// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeySecret        = "TELEGRAM_SECRET"
	KeyBotToken      = "TELEGRAM_BOT_TOKEN"
	KeyAdminID       = "ADMIN_TELEGRAM_ID"
	KeyReferralLink  = "REFERRAL_LINK"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"
	KeyDataDir       = "DATA_DIR"
	KeyLocalBypass   = "ALLOW_LOCAL_BYPASS"
	KeySignupBonus   = "SIGNUP_BONUS"
	KeyReferralBonus = "REFERRAL_BONUS"
	KeyMinWithdrawal = "MIN_WITHDRAWAL"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv        = EnvProduction
	DefaultLogLevel      = "info"
	DefaultHTTPPort      = 8080
	DefaultDataDir       = "data"
	DefaultSignupBonus   = 5.0
	DefaultReferralBonus = 10.0
	DefaultMinWithdrawal = 50.0
)

// botTokenPattern matches the token format issued by BotFather.
var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeySecret,
		Example:     "long-random-string",
		Required:    true,
		Description: "Shared secret Telegram sends in the X-Telegram-Bot-Api-Secret-Token header.",
		Notes:       "Compared in constant time; requests carrying any other value get 403.",
	},
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       "Must match ^\\d+:[A-Za-z0-9_-]+$.",
	},
	{
		Key:         KeyAdminID,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id notified of withdrawal requests; may call /stats.",
	},
	{
		Key:         KeyReferralLink,
		Example:     "https://example.com/ref/abc",
		Required:    true,
		Description: "Referral target URL handed out by /ref.",
		Notes:       "Must be an absolute http(s) URL.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port serving the webhook and health endpoints.",
	},
	{
		Key:         KeyDataDir,
		Example:     DefaultDataDir,
		Default:     DefaultDataDir,
		Description: "Directory holding users.json and transactions.json.",
	},
	{
		Key:         KeyLocalBypass,
		Example:     "false",
		Default:     "false",
		Description: "Allow loopback requests to skip the secret header check.",
		Notes:       "Security-relevant bypass; keep disabled outside local development.",
	},
	{
		Key:         KeySignupBonus,
		Example:     formatAmount(DefaultSignupBonus),
		Default:     formatAmount(DefaultSignupBonus),
		Description: "Credit granted to every new user on first contact.",
	},
	{
		Key:         KeyReferralBonus,
		Example:     formatAmount(DefaultReferralBonus),
		Default:     formatAmount(DefaultReferralBonus),
		Description: "Credit granted to both referrer and referred when a referral links.",
	},
	{
		Key:         KeyMinWithdrawal,
		Example:     formatAmount(DefaultMinWithdrawal),
		Default:     formatAmount(DefaultMinWithdrawal),
		Description: "Minimum withdrawal amount; also the default when /withdraw carries none.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	Secret        string
	BotToken      string
	AdminID       int64
	ReferralLink  string
	AppEnv        string
	LogLevel      string
	HTTPPort      int
	DataDir       string
	LocalBypass   bool
	SignupBonus   float64
	ReferralBonus float64
	MinWithdrawal float64
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		Secret:        strings.TrimSpace(os.Getenv(KeySecret)),
		BotToken:      strings.TrimSpace(os.Getenv(KeyBotToken)),
		ReferralLink:  strings.TrimSpace(os.Getenv(KeyReferralLink)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
		DataDir:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyDataDir)), DefaultDataDir),
		SignupBonus:   DefaultSignupBonus,
		ReferralBonus: DefaultReferralBonus,
		MinWithdrawal: DefaultMinWithdrawal,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.Secret == "" {
		missing = append(missing, KeySecret)
	}

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	} else if !botTokenPattern.MatchString(cfg.BotToken) {
		return Config{}, fmt.Errorf("invalid %s: must match %s", KeyBotToken, botTokenPattern)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyAdminID))
	if adminRaw == "" {
		missing = append(missing, KeyAdminID)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminID, parseErr)
		}
		cfg.AdminID = adminID
	}

	if cfg.ReferralLink == "" {
		missing = append(missing, KeyReferralLink)
	} else if err := validateReferralLink(cfg.ReferralLink); err != nil {
		return Config{}, err
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	bypassRaw := strings.TrimSpace(os.Getenv(KeyLocalBypass))
	if bypassRaw != "" {
		bypass, parseErr := strconv.ParseBool(bypassRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyLocalBypass, parseErr)
		}
		cfg.LocalBypass = bypass
	}

	amounts := []struct {
		key    string
		target *float64
	}{
		{KeySignupBonus, &cfg.SignupBonus},
		{KeyReferralBonus, &cfg.ReferralBonus},
		{KeyMinWithdrawal, &cfg.MinWithdrawal},
	}

	for _, amount := range amounts {
		raw := strings.TrimSpace(os.Getenv(amount.key))
		if raw == "" {
			continue
		}
		value, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", amount.key, parseErr)
		}
		if value <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", amount.key)
		}
		*amount.target = value
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked, for
// the --config-only startup check.
func FormatRedacted(cfg Config) string {
	lines := []string{
		KeySecret + "=" + redact(cfg.Secret),
		KeyBotToken + "=" + redactToken(cfg.BotToken),
		KeyAdminID + "=" + strconv.FormatInt(cfg.AdminID, 10),
		KeyReferralLink + "=" + cfg.ReferralLink,
		KeyAppEnv + "=" + cfg.AppEnv,
		KeyLogLevel + "=" + cfg.LogLevel,
		KeyHTTPPort + "=" + strconv.Itoa(cfg.HTTPPort),
		KeyDataDir + "=" + cfg.DataDir,
		KeyLocalBypass + "=" + strconv.FormatBool(cfg.LocalBypass),
		KeySignupBonus + "=" + formatAmount(cfg.SignupBonus),
		KeyReferralBonus + "=" + formatAmount(cfg.ReferralBonus),
		KeyMinWithdrawal + "=" + formatAmount(cfg.MinWithdrawal),
	}

	return strings.Join(lines, "\n")
}

func validateReferralLink(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyReferralLink, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must be an absolute http(s) URL", KeyReferralLink)
	}

	return nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "***"
}

func redactToken(token string) string {
	idx := strings.IndexByte(token, ':')
	if idx <= 0 {
		return redact(token)
	}
	return token[:idx] + ":***"
}
