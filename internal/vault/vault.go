// internal/vault/vault.go
//
// Vault client wrapper for sqlscope.
//
// Context
// -------
//   - Resolves `vault:<mount>/<path>#<key>` references found in
//     settings.yaml credentials.  The config loader calls Lookup once per
//     load, so a Manager.Reload picks up rotated secrets.
//   - Adds background token renewal and a small per-key TTL cache so a
//     burst of reloads does not hammer the Vault server.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, boot.Vault.CacheTTL, log)      // during boot.
//  2. loader := config.NewLoader(config.WithSecrets(cli))
//
// Environment expectations: VAULT_ADDR and VAULT_TOKEN (or ~/.vault-token).
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// kvReader is the slice of the Vault API we need.  Tests replace it.
type kvReader interface {
	Get(ctx context.Context, mount, path string) (map[string]any, error)
}

type apiKV struct{ api *vault.Client }

func (a apiKV) Get(ctx context.Context, mount, path string) (map[string]any, error) {
	sec, err := a.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sec.Data, nil
}

// Client is safe for concurrent use.  Create once at startup.
type Client struct {
	kv  kvReader
	ttl time.Duration
	log *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]cached // path#key → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the standard environment and starts a
// token-renewal loop bound to ctx.  ttl <= 0 disables caching.
func New(ctx context.Context, ttl time.Duration, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.S()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	c := newClient(apiKV{api: api}, ttl, log)
	go renewLoop(ctx, api, log)
	return c, nil
}

func newClient(kv kvReader, ttl time.Duration, log *zap.SugaredLogger) *Client {
	return &Client{kv: kv, ttl: ttl, log: log, cache: make(map[string]cached)}
}

// Lookup resolves "<mount>/<path>#<key>".  It satisfies config.SecretSource.
func (c *Client) Lookup(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", fmt.Errorf("vault reference %q: want <mount>/<path>#<key>", ref)
	}
	return c.GetKV(ctx, path, key)
}

// GetKV fetches one key from a KV-v2 secret, serving from cache within ttl.
func (c *Client) GetKV(ctx context.Context, secretPath, key string) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if c.ttl > 0 {
		c.mu.RLock()
		cv, ok := c.cache[canonical]
		c.mu.RUnlock()
		if ok && time.Now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	data, err := c.kv.Get(ctx, mount, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s is not a string", canonical)
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(c.ttl)}
		c.mu.Unlock()
	}
	c.log.Debugw("vault secret resolved", "path", secretPath, "key", key)
	return sval, nil
}

/*──────────────────────── background token renewal ─────────────────────────*/

func renewLoop(ctx context.Context, api *vault.Client, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sec, err := api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			log.Warnw("vault token renew-self failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			log.Infow("vault token is not renewable, sleeping")
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
		if err != nil {
			log.Warnw("vault lifetime watcher init failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		go watcher.Start()
		watch(ctx, watcher, log)
		watcher.Stop()
		backoff(ctx, 15*time.Second)
	}
}

// watch blocks until ctx ends or the watcher gives up.
func watch(ctx context.Context, w *vault.LifetimeWatcher, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				log.Warnw("vault token renewal stopped", "err", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
