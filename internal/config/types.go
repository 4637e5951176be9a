package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every client-level option plus the bypass-token table once the
// configured sources are resolved.
type Config struct {
	Client  ClientConfig  `koanf:"client"`
	Cache   CacheConfig   `koanf:"cache"`
	Session SessionConfig `koanf:"session"`
	Store   StoreConfig   `koanf:"store"`
	Tokens  TokensConfig  `koanf:"tokens"`
	Logging LoggingConfig `koanf:"logging"`
	Debug   DebugConfig   `koanf:"debug"`

	// BypassTokens maps request signatures to pre-authorized production tokens
	// once the loader resolves the configured sources. Excluded from koanf so the
	// value only reflects runtime discovery rather than static input documents.
	BypassTokens map[string]string `koanf:"-"`
	// TokenSources records which files contributed token definitions.
	TokenSources []string `koanf:"-"`
	// SkippedTokens captures duplicate or otherwise invalid token definitions the
	// loader intentionally disabled so health checks can surface them.
	SkippedTokens []TokenSkip `koanf:"-"`
}

// ClientConfig collects the transport knobs for the request engine.
type ClientConfig struct {
	BaseURL        string `koanf:"baseURL"`
	ProductionURL  string `koanf:"productionURL"`
	PaymentURL     string `koanf:"paymentURL"`
	UploadURL      string `koanf:"uploadURL"`
	UploadKey      string `koanf:"uploadKey"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
	MaxRetries     int    `koanf:"maxRetries"`
}

// Timeout converts the configured per-request timeout into a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig selects the response cache backend and its default TTL.
type CacheConfig struct {
	Backend    string       `koanf:"backend"`
	TTLSeconds int          `koanf:"ttlSeconds"`
	Valkey     ValkeyConfig `koanf:"valkey"`
}

// TTL converts the configured cache lifetime into a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type ValkeyConfig struct {
	Address  string          `koanf:"address"`
	Username string          `koanf:"username"`
	Password string          `koanf:"password"`
	DB       int             `koanf:"db"`
	TLS      ValkeyTLSConfig `koanf:"tls"`
}

type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// SessionConfig drives periodic revalidation and the optional access gates.
type SessionConfig struct {
	RevalidateSeconds int               `koanf:"revalidateSeconds"`
	Gates             map[string]string `koanf:"gates"`
	Prompts           map[string]string `koanf:"prompts"`
}

// RevalidateInterval converts the poll interval into a duration.
func (c SessionConfig) RevalidateInterval() time.Duration {
	return time.Duration(c.RevalidateSeconds) * time.Second
}

// StoreConfig locates the durable slice storage directory.
type StoreConfig struct {
	Dir string `koanf:"dir"`
}

// TokensConfig announces how bypass-token documents are sourced.
type TokensConfig struct {
	File   string `koanf:"file"`
	Folder string `koanf:"folder"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DebugConfig instructs the operational HTTP listener about bind address and port.
type DebugConfig struct {
	Listen ListenConfig `koanf:"listen"`
}

type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// TokenSkip describes a token definition the loader intentionally ignored, for
// example a signature defined by more than one document.
type TokenSkip struct {
	Signature string   `json:"signature"`
	Reason    string   `json:"reason"`
	Sources   []string `json:"sources"`
}

// DefaultConfig returns the baseline the loader merges files and environment onto.
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			BaseURL:        "http://localhost:4000/api",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTLSeconds: 300,
		},
		Session: SessionConfig{
			RevalidateSeconds: 300,
		},
		Store: StoreConfig{
			Dir: ".openshelf",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Debug: DebugConfig{
			Listen: ListenConfig{
				Address: "127.0.0.1",
				Port:    9180,
			},
		},
	}
}

// Validate rejects configurations the runtime cannot act on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Client.BaseURL) == "" {
		return errors.New("config: client.baseURL required")
	}
	if c.Client.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: client.timeoutSeconds must be positive, got %d", c.Client.TimeoutSeconds)
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", "memory":
	case "valkey":
		if strings.TrimSpace(c.Cache.Valkey.Address) == "" {
			return errors.New("config: cache.valkey.address required for the valkey backend")
		}
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("config: cache.ttlSeconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Session.RevalidateSeconds <= 0 {
		return fmt.Errorf("config: session.revalidateSeconds must be positive, got %d", c.Session.RevalidateSeconds)
	}
	if c.Debug.Listen.Port < 0 || c.Debug.Listen.Port > 65535 {
		return fmt.Errorf("config: debug.listen.port %d out of range", c.Debug.Listen.Port)
	}
	if c.Tokens.File != "" && c.Tokens.Folder != "" {
		return errors.New("config: tokens.file and tokens.folder are mutually exclusive")
	}
	return nil
}
