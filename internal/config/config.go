package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Log         LogConfig               `yaml:"log"`
	NATS        NATSConfig              `yaml:"nats"`
	CORS        CORSConfig              `yaml:"cors"`
	Admin       AdminConfig             `yaml:"admin"`
	Throttle    ThrottleConfig          `yaml:"throttle"`
	KYTOracle   KYTOracleConfig         `yaml:"kyt_oracle"`
	PriceOracle PriceOracleConfig       `yaml:"price_oracle"`
	GasOracle   GasOracleConfig         `yaml:"gas_oracle"`
	Quote       QuoteConfig             `yaml:"quote"`
	RateLimit   RateLimitConfig         `yaml:"rate_limit"` // default per-source admission window
	Health      HealthConfig            `yaml:"health"`
	Policy      PolicyConfig            `yaml:"policy"`
	Snapshot    SnapshotConfig          `yaml:"snapshot"`
	Sources     map[string]SourceConfig `yaml:"sources"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // gin mode: debug, release, test
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// NATSConfig event publishing configuration. Empty URL disables publishing.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"` // seconds
	SubjectPrefix string `yaml:"subject_prefix"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

// AdminConfig operator API access control
type AdminConfig struct {
	AllowedIPs     []string `yaml:"allowedIPs"` // IPs or CIDRs; empty means localhost only
	JWTSecret      string   `yaml:"jwtSecret"`
	TokenTTL       int      `yaml:"tokenTTL"`       // minutes
	StreamInterval int      `yaml:"streamInterval"` // seconds between operator stream reports

	// Interactive login; disabled unless both password and TOTP secret are set
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totpSecret"`
}

// ThrottleConfig per-client-IP throttling of the public API
type ThrottleConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// KYTOracleConfig sanctions screening service. Empty BaseURL disables screening.
type KYTOracleConfig struct {
	BaseURL  string `yaml:"base_url"`
	Timeout  int    `yaml:"timeout"`   // seconds
	CacheTTL int    `yaml:"cache_ttl"` // seconds
}

// PriceOracleConfig USD price lookups for minimum-notional checks
type PriceOracleConfig struct {
	BaseURL  string `yaml:"base_url"`
	Timeout  int    `yaml:"timeout"`   // seconds
	CacheTTL int    `yaml:"cache_ttl"` // seconds
}

// GasOracleConfig JSON-RPC endpoints used to fill gas prices missing from execution payloads
type GasOracleConfig struct {
	RPCURLs  map[string]string `yaml:"rpc_urls"`  // chain key -> RPC URL
	CacheTTL int               `yaml:"cache_ttl"` // seconds
}

// QuoteConfig orchestration settings
type QuoteConfig struct {
	SourceTimeoutMs int `yaml:"sourceTimeoutMs"` // default per-source call timeout
}

// RateLimitConfig sliding-window admission settings
type RateLimitConfig struct {
	MaxRequests   int `yaml:"maxRequests"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// Window returns the window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// HealthConfig circuit breaker thresholds
type HealthConfig struct {
	FailureThreshold     int `yaml:"failureThreshold"`
	FastFailThreshold    int `yaml:"fastFailThreshold"` // auth / throttle failures
	CooldownSeconds      int `yaml:"cooldownSeconds"`
	LatencyCeilingMs     int `yaml:"latencyCeilingMs"`
	LatencyWindow        int `yaml:"latencyWindow"`
	ProbeIntervalSeconds int `yaml:"probeIntervalSeconds"`
}

// PolicyConfig compliance filters. Nil limits are not enforced.
type PolicyConfig struct {
	AllowedChains     []string `yaml:"allowedChains"`
	AllowedTokens     []string `yaml:"allowedTokens"`
	AllowedTools      []string `yaml:"allowedTools"`
	DeniedChains      []string `yaml:"deniedChains"`
	DeniedTokens      []string `yaml:"deniedTokens"`
	DeniedTools       []string `yaml:"deniedTools"`
	MaxPriceImpactBps *int     `yaml:"maxPriceImpactBps"`
	MaxSlippageBps    *int     `yaml:"maxSlippageBps"`
	MinNotionalUSD    *float64 `yaml:"minNotionalUsd"`
	WarnCrossChain    bool     `yaml:"warnCrossChain"`
	SanctionsCheck    bool     `yaml:"sanctionsCheck"`
}

// SnapshotConfig route snapshot retention
type SnapshotConfig struct {
	TTLSeconds      int `yaml:"ttlSeconds"`
	JanitorInterval int `yaml:"janitorInterval"` // seconds
}

// SourceConfig per-source settings
type SourceConfig struct {
	Disabled   bool            `yaml:"disabled"`
	BaseURL    string          `yaml:"baseUrl"`
	APIKey     string          `yaml:"apiKey"`
	Integrator string          `yaml:"integrator"`
	TimeoutMs  int             `yaml:"timeoutMs"`
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
}

// Timeout returns the per-call timeout, falling back to def.
func (c SourceConfig) Timeout(def time.Duration) time.Duration {
	if c.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// sourceKeyEnv maps source ids to the env variables holding their credentials.
var sourceKeyEnv = map[string]string{
	"lifi":     "LIFI_API_KEY",
	"debridge": "DEBRIDGE_API_KEY",
	"zerox":    "ZEROX_API_KEY",
	"oneinch":  "ONEINCH_API_KEY",
	"skip":     "SKIP_API_KEY",
	"oneclick": "ONECLICK_JWT",
}

var AppConfig *Config

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "aggregator"
	}
	if c.Admin.TokenTTL == 0 {
		c.Admin.TokenTTL = 60
	}
	if c.Admin.StreamInterval == 0 {
		c.Admin.StreamInterval = 5
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Throttle.RequestsPerSecond == 0 {
		c.Throttle.RequestsPerSecond = 5
	}
	if c.Throttle.Burst == 0 {
		c.Throttle.Burst = 20
	}
	if c.KYTOracle.Timeout == 0 {
		c.KYTOracle.Timeout = 5
	}
	if c.KYTOracle.CacheTTL == 0 {
		c.KYTOracle.CacheTTL = 600
	}
	if c.PriceOracle.BaseURL == "" {
		c.PriceOracle.BaseURL = "https://coins.llama.fi"
	}
	if c.PriceOracle.Timeout == 0 {
		c.PriceOracle.Timeout = 5
	}
	if c.PriceOracle.CacheTTL == 0 {
		c.PriceOracle.CacheTTL = 60
	}
	if c.GasOracle.CacheTTL == 0 {
		c.GasOracle.CacheTTL = 15
	}
	if c.Quote.SourceTimeoutMs == 0 {
		c.Quote.SourceTimeoutMs = 10000
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 50
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = 5
	}
	if c.Health.FastFailThreshold == 0 {
		c.Health.FastFailThreshold = 2
	}
	if c.Health.CooldownSeconds == 0 {
		c.Health.CooldownSeconds = 60
	}
	if c.Health.LatencyCeilingMs == 0 {
		c.Health.LatencyCeilingMs = 10000
	}
	if c.Health.LatencyWindow == 0 {
		c.Health.LatencyWindow = 10
	}
	if c.Health.ProbeIntervalSeconds == 0 {
		c.Health.ProbeIntervalSeconds = 300
	}
	if c.Snapshot.TTLSeconds == 0 {
		c.Snapshot.TTLSeconds = 300
	}
	if c.Snapshot.JanitorInterval == 0 {
		c.Snapshot.JanitorInterval = 30
	}
	if c.Sources == nil {
		c.Sources = make(map[string]SourceConfig)
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.RateLimit.MaxRequests < 0 || c.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if p := c.Policy.MaxPriceImpactBps; p != nil && (*p < 0 || *p > 10000) {
		return fmt.Errorf("policy.maxPriceImpactBps must be within 0..10000, got %d", *p)
	}
	if s := c.Policy.MaxSlippageBps; s != nil && (*s < 0 || *s > 10000) {
		return fmt.Errorf("policy.maxSlippageBps must be within 0..10000, got %d", *s)
	}
	if m := c.Policy.MinNotionalUSD; m != nil && *m < 0 {
		return fmt.Errorf("policy.minNotionalUsd must not be negative")
	}
	if c.Policy.SanctionsCheck && c.KYTOracle.BaseURL == "" {
		return fmt.Errorf("policy.sanctionsCheck requires kyt_oracle.base_url")
	}
	for id, src := range c.Sources {
		if src.TimeoutMs < 0 {
			return fmt.Errorf("sources.%s.timeoutMs must not be negative", id)
		}
	}
	return nil
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load reads, overrides from env, applies defaults and validates a configuration file.
// A missing default config file is not an error; defaults and env are used instead.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Printf("✅ Loading configuration from %s", configPath)
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		log.Printf("📋 [Config] %s not found, using defaults and environment", configPath)
	}

	overrideFromEnv(&config)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if len(config.Admin.AllowedIPs) > 0 {
		log.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured", len(config.Admin.AllowedIPs))
	} else {
		log.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)")
	}
	return &config, nil
}

// overrideFromEnv applies environment variables on top of the file values
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitCSV(corsOrigins)
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
	if ips := os.Getenv("ADMIN_ALLOWED_IPS"); ips != "" {
		config.Admin.AllowedIPs = splitCSV(ips)
	}
	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		config.Admin.Username = username
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	if kytOracleURL := os.Getenv("KYT_ORACLE_BASE_URL"); kytOracleURL != "" {
		config.KYTOracle.BaseURL = kytOracleURL
	}
	if priceURL := os.Getenv("PRICE_ORACLE_BASE_URL"); priceURL != "" {
		config.PriceOracle.BaseURL = priceURL
	}

	for _, kv := range splitCSV(os.Getenv("GAS_ORACLE_RPC_URLS")) {
		chain, rpcURL, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if config.GasOracle.RPCURLs == nil {
			config.GasOracle.RPCURLs = make(map[string]string)
		}
		config.GasOracle.RPCURLs[strings.TrimSpace(chain)] = strings.TrimSpace(rpcURL)
	}

	if config.Sources == nil {
		config.Sources = make(map[string]SourceConfig)
	}
	for id, env := range sourceKeyEnv {
		if key := os.Getenv(env); key != "" {
			src := config.Sources[id]
			src.APIKey = key
			config.Sources[id] = src
		}
	}
	if disabled := os.Getenv("DISABLED_SOURCES"); disabled != "" {
		for _, id := range splitCSV(disabled) {
			id = strings.ToLower(id)
			src := config.Sources[id]
			src.Disabled = true
			config.Sources[id] = src
		}
	}
}

// Source returns the settings of one source; unknown sources get zero values.
func (c *Config) Source(id string) SourceConfig {
	return c.Sources[id]
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
