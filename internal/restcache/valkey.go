package restcache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      ValkeyTLSConfig
}

type valkeyCache struct {
	client valkey.Client
	ttl    time.Duration
}

// NewValkey builds a shared response cache so multiple client processes can
// reuse each other's GET responses.
func NewValkey(cfg ValkeyConfig, ttl time.Duration) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("restcache: valkey address required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("restcache: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("restcache: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("restcache: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("restcache: valkey ping: %w", err)
	}

	return &valkeyCache{client: client, ttl: ttl}, nil
}

func (c *valkeyCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("restcache: valkey get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("restcache: valkey get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("restcache: valkey unmarshal: %w", err)
	}
	if time.Now().After(entry.ExpiresAt) {
		// The server-side TTL normally evicts first; this guards clock skew.
		_ = c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *valkeyCache) Set(ctx context.Context, key string, data json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now().UTC()
	entry := Entry{
		Data:      append(json.RawMessage(nil), data...),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("restcache: valkey marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(key).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("restcache: valkey set: %w", err)
	}
	return nil
}

func (c *valkeyCache) Invalidate(ctx context.Context, pattern string) error {
	if pattern == "" {
		if err := c.client.Do(ctx, c.client.B().Flushdb().Build()).Error(); err != nil {
			return fmt.Errorf("restcache: valkey flush: %w", err)
		}
		return nil
	}
	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("restcache: invalidate pattern: %w", err)
	}
	keys, err := c.client.Do(ctx, c.client.B().Keys().Pattern("*").Build()).AsStrSlice()
	if err != nil {
		return fmt.Errorf("restcache: valkey keys: %w", err)
	}
	for _, key := range keys {
		if !matcher.MatchString(key) {
			continue
		}
		if err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error(); err != nil {
			return fmt.Errorf("restcache: valkey del: %w", err)
		}
	}
	return nil
}

func (c *valkeyCache) Size(ctx context.Context) (int64, error) {
	size, err := c.client.Do(ctx, c.client.B().Dbsize().Build()).ToInt64()
	if err != nil {
		return 0, fmt.Errorf("restcache: valkey dbsize: %w", err)
	}
	return size, nil
}

func (c *valkeyCache) Close(context.Context) error {
	c.client.Close()
	return nil
}
