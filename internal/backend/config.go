package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	defaultBaseURL       = "http://localhost:12391"
	defaultTimeout       = 10 * time.Second
	defaultCooldown      = 30 * time.Second
	defaultHealthTimeout = 2 * time.Second
	defaultAPIKeyFile    = "apikey.txt"
	defaultListen        = ":8000"
	defaultRateQPS       = 5.0
	defaultMaxItems      = 100
	defaultNamePreview   = 1000
)

// ServerConfig holds the gateway settings.
type ServerConfig struct {
	Listen    string `toml:"listen"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NodeConfig holds upstream node settings. TOML carries durations as
// integer milliseconds; the Duration fields are derived after decoding.
type NodeConfig struct {
	BaseURL              string   `toml:"base_url"`
	TimeoutMS            int64    `toml:"timeout_ms"`
	APIKey               string   `toml:"api_key"`
	APIKeyFile           string   `toml:"api_key_file"`
	AllowPublicFallback  bool     `toml:"allow_public_fallback"`
	PublicNodes          []string `toml:"public_nodes"`
	CooldownMS           int64    `toml:"cooldown_ms"`
	HealthCheckPath      string   `toml:"health_check_path"`
	HealthCheckTimeoutMS int64    `toml:"health_check_timeout_ms"`

	Timeout            time.Duration `toml:"-"`
	Cooldown           time.Duration `toml:"-"`
	HealthCheckTimeout time.Duration `toml:"-"`
}

// ToolLimits caps how much data tools return.
type ToolLimits struct {
	MaxNames           int `toml:"max_names"`
	MaxNameDataPreview int `toml:"max_name_data_preview"`
	MaxTradeOffers     int `toml:"max_trade_offers"`
	MaxQDNResults      int `toml:"max_qdn_results"`
	MaxBlocks          int `toml:"max_blocks"`
	MaxGroups          int `toml:"max_groups"`
	MaxChatMessages    int `toml:"max_chat_messages"`
	MaxTransactions    int `toml:"max_transactions"`
}

// RuleConfig is an operator-supplied classifier rule.
type RuleConfig struct {
	Codes    []string `toml:"codes"`
	Contains []string `toml:"contains"`
	Statuses []int    `toml:"statuses"`
	Kind     string   `toml:"kind"`
	Message  string   `toml:"message"`
}

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig    `toml:"server"`
	Node       NodeConfig      `toml:"node"`
	RateLimit  RateLimitConfig `toml:"rate_limit"`
	Limits     ToolLimits      `toml:"limits"`
	ErrorRules []RuleConfig    `toml:"error_rules"`
}

// envOverrides are read from the QORTAL_* variables. Values stay
// strings so unset variables never clobber file settings and malformed
// numbers can fall back to defaults.
type envOverrides struct {
	BaseURL         string `env:"QORTAL_BASE_URL"`
	Timeout         string `env:"QORTAL_HTTP_TIMEOUT"`
	APIKey          string `env:"QORTAL_API_KEY"`
	APIKeyFile      string `env:"QORTAL_API_KEY_FILE"`
	AllowFallback   string `env:"QORTAL_ALLOW_PUBLIC_FALLBACK"`
	PublicNodes     string `env:"QORTAL_PUBLIC_NODES"`
	CooldownSeconds string `env:"QORTAL_NODE_COOLDOWN_SECONDS"`
	HealthPath      string `env:"QORTAL_HEALTH_CHECK_PATH"`
	HealthTimeout   string `env:"QORTAL_HEALTH_CHECK_TIMEOUT"`
	RateQPS         string `env:"QORTAL_RATE_LIMIT_QPS"`
	PerToolRates    string `env:"QORTAL_PER_TOOL_RATE_LIMITS"`
	LogLevel        string `env:"QORTAL_MCP_LOG_LEVEL"`
	LogFormat       string `env:"QORTAL_MCP_LOG_FORMAT"`
	Listen          string `env:"QORTAL_MCP_LISTEN"`
}

// ParseConfig reads path (a missing file means defaults), expands
// environment references, applies QORTAL_* overrides and fills defaults.
func ParseConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(b))
			if _, err := toml.Decode(expanded, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config file: %w", err)
			}
			cfg.Node.Timeout = time.Duration(cfg.Node.TimeoutMS) * time.Millisecond
			cfg.Node.Cooldown = time.Duration(cfg.Node.CooldownMS) * time.Millisecond
			cfg.Node.HealthCheckTimeout = time.Duration(cfg.Node.HealthCheckTimeoutMS) * time.Millisecond
		}
	}

	ov, err := env.ParseAs[envOverrides]()
	if err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.applyEnv(ov); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()

	if cfg.Node.APIKey == "" {
		cfg.Node.APIKey = LoadAPIKey(cfg.Node.APIKeyFile)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(ov envOverrides) error {
	if ov.BaseURL != "" {
		cfg.Node.BaseURL = ov.BaseURL
	}
	if ov.Timeout != "" {
		cfg.Node.Timeout = ParseSeconds(ov.Timeout, defaultTimeout)
	}
	if ov.APIKey != "" {
		cfg.Node.APIKey = strings.TrimSpace(ov.APIKey)
	}
	if ov.APIKeyFile != "" {
		cfg.Node.APIKeyFile = ov.APIKeyFile
	}
	if ov.AllowFallback != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(ov.AllowFallback))
		if err != nil {
			return fmt.Errorf("QORTAL_ALLOW_PUBLIC_FALLBACK: %w", err)
		}
		cfg.Node.AllowPublicFallback = v
	}
	if ov.PublicNodes != "" {
		cfg.Node.PublicNodes = ParsePublicNodes(ov.PublicNodes)
	}
	if ov.CooldownSeconds != "" {
		cfg.Node.Cooldown = ParseSeconds(ov.CooldownSeconds, defaultCooldown)
	}
	if ov.HealthPath != "" {
		cfg.Node.HealthCheckPath = ov.HealthPath
	}
	if ov.HealthTimeout != "" {
		cfg.Node.HealthCheckTimeout = ParseSeconds(ov.HealthTimeout, defaultHealthTimeout)
	}
	if ov.RateQPS != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(ov.RateQPS), 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("QORTAL_RATE_LIMIT_QPS: invalid value %q", ov.RateQPS)
		}
		cfg.RateLimit.PerSecond = v
	}
	if ov.PerToolRates != "" {
		rates, err := ParsePerToolRates(ov.PerToolRates)
		if err != nil {
			return fmt.Errorf("QORTAL_PER_TOOL_RATE_LIMITS: %w", err)
		}
		if cfg.RateLimit.PerKey == nil {
			cfg.RateLimit.PerKey = make(map[string]float64, len(rates))
		}
		for k, v := range rates {
			cfg.RateLimit.PerKey[k] = v
		}
	}
	if ov.LogLevel != "" {
		cfg.Server.LogLevel = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.Server.LogFormat = ov.LogFormat
	}
	if ov.Listen != "" {
		cfg.Server.Listen = ov.Listen
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultListen
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}

	if strings.TrimSpace(cfg.Node.BaseURL) == "" {
		cfg.Node.BaseURL = defaultBaseURL
	}
	if cfg.Node.Timeout <= 0 {
		cfg.Node.Timeout = defaultTimeout
	}
	if cfg.Node.APIKeyFile == "" {
		cfg.Node.APIKeyFile = defaultAPIKeyFile
	}
	if cfg.Node.Cooldown <= 0 {
		cfg.Node.Cooldown = defaultCooldown
	}
	if cfg.Node.HealthCheckTimeout <= 0 {
		cfg.Node.HealthCheckTimeout = defaultHealthTimeout
	}

	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = defaultRateQPS
	}

	l := &cfg.Limits
	for _, v := range []*int{&l.MaxNames, &l.MaxTradeOffers, &l.MaxQDNResults, &l.MaxBlocks, &l.MaxGroups, &l.MaxChatMessages, &l.MaxTransactions} {
		if *v <= 0 {
			*v = defaultMaxItems
		}
	}
	if l.MaxNameDataPreview <= 0 {
		l.MaxNameDataPreview = defaultNamePreview
	}
}

// ClientConfig derives the request executor settings.
func (cfg Config) ClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:             cfg.Node.BaseURL,
		Timeout:             cfg.Node.Timeout,
		APIKey:              cfg.Node.APIKey,
		AllowPublicFallback: cfg.Node.AllowPublicFallback,
		PublicNodes:         cfg.Node.PublicNodes,
		Pool: PoolConfig{
			Cooldown:           cfg.Node.Cooldown,
			HealthCheckPath:    cfg.Node.HealthCheckPath,
			HealthCheckTimeout: cfg.Node.HealthCheckTimeout,
		},
		Rules: cfg.Rules(),
	}
}

// Rules converts the configured classifier rules.
func (cfg Config) Rules() []Rule {
	out := make([]Rule, 0, len(cfg.ErrorRules))
	for _, rc := range cfg.ErrorRules {
		out = append(out, Rule{
			Codes:    rc.Codes,
			Contains: rc.Contains,
			Statuses: rc.Statuses,
			Kind:     ParseErrorKind(rc.Kind),
			Message:  rc.Message,
		})
	}
	return out
}

// LoadAPIKey reads the credential from path. A missing or blank file yields
// an empty key.
func LoadAPIKey(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// ParseSeconds parses a float number of seconds, returning def when raw is
// malformed or not positive.
func ParseSeconds(raw string, def time.Duration) time.Duration {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

// ParsePublicNodes splits a comma-separated URL list, dropping blanks.
func ParsePublicNodes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if u := strings.TrimSpace(part); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ParsePerToolRates parses "tool=qps,tool=qps".
func ParsePerToolRates(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected tool=qps, got %q", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid rate for %q", strings.TrimSpace(name))
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
