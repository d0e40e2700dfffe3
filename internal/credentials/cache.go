// Package credentials provides a process-scoped cache for the AI service
// API key.
//
// A Cache is built once at cold start and shared by pointer with every
// component that talks to the AI service. The first Get fetches from the
// backing Source; concurrent first callers share that single fetch. A
// successful value is kept for the life of the process. Failures are not
// cached, so the next Get retries.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// KeyField is the JSON field holding the API key inside a stored secret.
const KeyField = "api_key"

// Source fetches the raw secret value. Implementations return an error
// wrapping catalog.ErrSecretNotFound when the store holds no value.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Fetch(ctx context.Context) (string, error) { return f(ctx) }

// Static is a Source that always returns the same value. Used when the key
// is supplied directly through the environment.
type Static string

func (s Static) Fetch(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", fmt.Errorf("static credential: %w", catalog.ErrSecretNotFound)
	}
	return string(s), nil
}

// Cache lazily resolves and memoises the API key.
type Cache struct {
	src   Source
	group singleflight.Group

	mu  sync.RWMutex
	key string
}

// NewCache returns a Cache backed by src. Nothing is fetched until Get.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Get returns the cached API key, fetching it on first use.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	v, err, shared := c.group.Do("key", func() (any, error) {
		c.mu.RLock()
		cached := c.key
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		raw, err := c.src.Fetch(ctx)
		if err != nil {
			return "", err
		}
		k, err := ExtractKey(raw)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.key = k
		c.mu.Unlock()
		log.Debug().Msg("AI service credential loaded")
		return k, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug().Msg("Shared in-flight credential fetch")
	}
	return v.(string), nil
}

// ExtractKey pulls the API key out of a raw secret value. A JSON object must
// carry a non-empty "api_key" field; any other non-empty value is taken as
// the key itself.
func ExtractKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty secret value: %w", catalog.ErrSecretNotFound)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret is not valid JSON: %w", catalog.ErrCredentialMissing)
	}
	key, _ := fields[KeyField].(string)
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("secret has no %q field: %w", KeyField, catalog.ErrCredentialMissing)
	}
	return key, nil
}
