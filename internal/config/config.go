package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the Commodus gateway.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Server     ServerConfig     `json:"server"`
	Model      ModelConfig      `json:"model"`
	Farcaster  FarcasterConfig  `json:"farcaster"`
	Pinning    PinningConfig    `json:"pinning"`
	Chain      ChainConfig      `json:"chain"`
	Tasks      TasksConfig      `json:"tasks"`
	Moderation ModerationConfig `json:"moderation"`
	Memory     MemoryConfig     `json:"memory"`
	Alerts     AlertsConfig     `json:"alerts"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel    string `json:"logLevel"`
	PersonaPath string `json:"personaPath,omitempty"` // optional YAML persona file
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PublicBaseURL is the externally reachable base URL of this service,
	// used for the self-callback that delivers background tasks.
	PublicBaseURL string `json:"publicBaseUrl"`
}

type ModelConfig struct {
	APIBase        string `json:"apiBase"`
	APIKey         string `json:"apiKey,omitempty"`
	Name           string `json:"name"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type FarcasterConfig struct {
	APIBase     string `json:"apiBase"`
	APIKey      string `json:"apiKey,omitempty"`
	SignerUUID  string `json:"signerUuid,omitempty"`
	BotUsername string `json:"botUsername"` // used to map thread turns to the assistant role
}

type PinningConfig struct {
	APIBase     string `json:"apiBase"`
	JWT         string `json:"jwt,omitempty"`
	GatewayBase string `json:"gatewayBase"` // public gateway prefix for pinned content
}

type ChainConfig struct {
	APIBase               string `json:"apiBase"`
	APIKey                string `json:"apiKey,omitempty"`
	PlatformReferrer      string `json:"platformReferrer"`
	ReceiptPollSeconds    int    `json:"receiptPollSeconds"`
	ReceiptTimeoutSeconds int    `json:"receiptTimeoutSeconds"`
}

type TasksConfig struct {
	// Secret is the shared secret the worker endpoint requires in x-api-key.
	Secret         string `json:"secret,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type ModerationConfig struct {
	// MinUserScore gates CREATE/TRADE behind a reputation score. 0 disables
	// the gate entirely.
	MinUserScore float64 `json:"minUserScore"`
}

type MemoryConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
	// RefreshThreshold is how many messages a user sends before their rolling
	// memory is re-summarized.
	RefreshThreshold int64  `json:"refreshThreshold"`
	RefreshCron      string `json:"refreshCron"` // cron spec for the stale-memory sweep
}

type AlertsConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegramToken,omitempty"`
	ChatID        int64  `json:"chatId,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.commodus).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".commodus"
	}
	return filepath.Join(home, ".commodus")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = expandPath(cfg.Memory.DBPath)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envOverrides maps well-known environment variables onto secret fields so
// credentials never need to live in the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("NEYNAR_API_KEY"); v != "" {
		cfg.Farcaster.APIKey = v
	}
	if v := os.Getenv("SIGNER_UUID"); v != "" {
		cfg.Farcaster.SignerUUID = v
	}
	if v := os.Getenv("PINATA_JWT"); v != "" {
		cfg.Pinning.JWT = v
	}
	if v := os.Getenv("TASK_SECRET"); v != "" {
		cfg.Tasks.Secret = v
	}
	if v := os.Getenv("WALLET_API_KEY"); v != "" {
		cfg.Chain.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Alerts.TelegramToken = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.PublicBaseURL == "" {
		errs = append(errs, "server.publicBaseUrl is required (task self-callback target)")
	}
	if cfg.Model.APIBase == "" {
		errs = append(errs, "model.apiBase is required")
	}
	if cfg.Model.TimeoutSeconds < 1 {
		errs = append(errs, "model.timeoutSeconds must be >= 1")
	}
	if cfg.Moderation.MinUserScore < 0 || cfg.Moderation.MinUserScore > 1 {
		errs = append(errs, "moderation.minUserScore must be between 0 and 1")
	}
	if cfg.Chain.ReceiptPollSeconds < 1 {
		errs = append(errs, "chain.receiptPollSeconds must be >= 1")
	}
	if cfg.Chain.ReceiptTimeoutSeconds < cfg.Chain.ReceiptPollSeconds {
		errs = append(errs, "chain.receiptTimeoutSeconds must be >= chain.receiptPollSeconds")
	}
	if cfg.Tasks.TimeoutSeconds < 1 {
		errs = append(errs, "tasks.timeoutSeconds must be >= 1")
	}
	if cfg.Memory.Enabled && cfg.Memory.RefreshThreshold < 1 {
		errs = append(errs, "memory.refreshThreshold must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Sanitize returns a copy of the config with secrets masked, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Model.APIKey = mask(cfg.Model.APIKey)
	out.Farcaster.APIKey = mask(cfg.Farcaster.APIKey)
	out.Farcaster.SignerUUID = mask(cfg.Farcaster.SignerUUID)
	out.Pinning.JWT = mask(cfg.Pinning.JWT)
	out.Tasks.Secret = mask(cfg.Tasks.Secret)
	out.Chain.APIKey = mask(cfg.Chain.APIKey)
	out.Alerts.TelegramToken = mask(cfg.Alerts.TelegramToken)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
