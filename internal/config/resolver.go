// internal/config/resolver.go
//
// Indirection resolver for string settings.
//
// Context
// -------
// Two forms of indirection are recognised, and only in fields that the
// loader marks as resolvable (credentials, CA path, DSN, and server):
//
//   - `${NAME}` – the whole value, wrapped exactly once, names an
//     environment variable.  Unset variables resolve to "" unless the
//     resolver runs in strict mode.
//   - `vault:<mount>/<path>#<key>` – a KV-v2 secret fetched through a
//     SecretSource.  Lookup failures are always errors.
//
// Resolution runs once per load.  The resolved plain value is what lands in
// Settings, and nothing re-scans it afterwards.  Every field resolved from
// Vault is reported back by key, so a write-back can restore the reference
// instead of the secret.

package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const vaultPrefix = "vault:"

// SecretSource resolves a `vault:` reference (without the prefix) to a
// plain value.  internal/vault.Client satisfies it.
type SecretSource interface {
	Lookup(ctx context.Context, ref string) (string, error)
}

// LookupFunc mirrors os.LookupEnv.  Tests swap it for a map.
type LookupFunc func(name string) (string, bool)

type resolver struct {
	lookup  LookupFunc
	secrets SecretSource
	strict  bool
	timeout time.Duration
}

// envName reports the variable name when v is exactly `${NAME}`.
func envName(v string) (string, bool) {
	if len(v) < 3 || !strings.HasPrefix(v, "${") || !strings.HasSuffix(v, "}") {
		return "", false
	}
	return v[2 : len(v)-1], true
}

// references maps a dotted key ("sqlserver.password") to the `vault:`
// reference it was read from.
type references map[string]string

// isSecretRef reports whether v is resolved through the SecretSource.
func (r resolver) isSecretRef(v string) bool {
	return r.secrets != nil && strings.HasPrefix(v, vaultPrefix)
}

func (r resolver) resolve(v string) (string, error) {
	if name, ok := envName(v); ok {
		val, set := r.lookup(name)
		if !set && r.strict {
			return "", fmt.Errorf("%w: environment variable %q is not set", ErrUnresolvedReference, name)
		}
		return val, nil
	}

	if r.isSecretRef(v) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		val, err := r.secrets.Lookup(ctx, strings.TrimPrefix(v, vaultPrefix))
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", v, err)
		}
		return val, nil
	}

	return v, nil
}

// apply resolves every resolvable field of s in place and returns the
// Vault references it replaced.  Index patterns, numbers, flags, and URLs
// are never touched.
func (r resolver) apply(s *Settings) (references, error) {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"elastic.username", &s.Search.Username},
		{"elastic.password", &s.Search.Password},
		{"elastic.ca_cert", &s.Search.CACert},
		{"sqlserver.dsn", &s.Database.DSN},
		{"sqlserver.server", &s.Database.Server},
		{"sqlserver.username", &s.Database.Username},
		{"sqlserver.password", &s.Database.Password},
	}
	refs := references{}
	for _, f := range fields {
		raw := *f.ptr
		val, err := r.resolve(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if r.isSecretRef(raw) {
			refs[f.name] = raw
		}
		*f.ptr = val
	}
	return refs, nil
}
