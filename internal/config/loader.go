package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the client configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot, including the merged bypass-token table.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"client.baseurl":            "client.baseURL",
			"client.productionurl":      "client.productionURL",
			"client.paymenturl":         "client.paymentURL",
			"client.uploadurl":          "client.uploadURL",
			"client.uploadkey":          "client.uploadKey",
			"client.timeoutseconds":     "client.timeoutSeconds",
			"client.maxretries":         "client.maxRetries",
			"cache.ttlseconds":          "cache.ttlSeconds",
			"cache.valkey.tls.cafile":   "cache.valkey.tls.caFile",
			"session.revalidateseconds": "session.revalidateSeconds",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (CLIENT__BASE_URL -> client.baseurl).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	bundle, err := buildTokenBundle(ctx, cfg.Tokens)
	if err != nil {
		return Config{}, err
	}
	cfg.BypassTokens = bundle.Tokens
	cfg.TokenSources = bundle.Sources
	cfg.SkippedTokens = bundle.Skipped
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"client": map[string]any{
			"baseURL":        cfg.Client.BaseURL,
			"productionURL":  cfg.Client.ProductionURL,
			"paymentURL":     cfg.Client.PaymentURL,
			"uploadURL":      cfg.Client.UploadURL,
			"uploadKey":      cfg.Client.UploadKey,
			"timeoutSeconds": cfg.Client.TimeoutSeconds,
			"maxRetries":     cfg.Client.MaxRetries,
		},
		"cache": map[string]any{
			"backend":    cfg.Cache.Backend,
			"ttlSeconds": cfg.Cache.TTLSeconds,
			"valkey": map[string]any{
				"address":  cfg.Cache.Valkey.Address,
				"username": cfg.Cache.Valkey.Username,
				"password": cfg.Cache.Valkey.Password,
				"db":       cfg.Cache.Valkey.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Valkey.TLS.Enabled,
					"caFile":  cfg.Cache.Valkey.TLS.CAFile,
				},
			},
		},
		"session": map[string]any{
			"revalidateSeconds": cfg.Session.RevalidateSeconds,
			"gates":             map[string]any{},
			"prompts":           map[string]any{},
		},
		"store": map[string]any{
			"dir": cfg.Store.Dir,
		},
		"tokens": map[string]any{
			"file":   cfg.Tokens.File,
			"folder": cfg.Tokens.Folder,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"debug": map[string]any{
			"listen": map[string]any{
				"address": cfg.Debug.Listen.Address,
				"port":    cfg.Debug.Listen.Port,
			},
		},
	}
}
