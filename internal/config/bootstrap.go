// internal/config/bootstrap.go
//
// Process-level settings.
//
/*
Context
--------
Bootstrap settings decide how the process runs (listen address, log sink,
strict env mode, Vault).  They are not part of the persisted settings
document and cannot be changed through PUT /config.  `LoadBootstrap()`
builds them from two layers (highest precedence last):

  1. Optional `.env` in the working directory.
  2. Environment variables prefixed `SQLSCOPE_`, where `__` maps to "."
     (e.g., `SQLSCOPE_HTTP__LISTEN_ADDR → http.listen_addr`).

Durations accept Go syntax ("15s", "2m").
*/
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every bootstrap variable.
const EnvPrefix = "SQLSCOPE_"

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gt=0"`
}

// Log selects the log sink.  An empty Dir logs to the console only.
type Log struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// Vault enables `vault:` references.  The client itself reads VAULT_ADDR
// and VAULT_TOKEN.
type Vault struct {
	Enabled  bool          `koanf:"enabled"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`
	Timeout  time.Duration `koanf:"timeout"   validate:"gt=0"`
}

// Bootstrap is the process configuration.
type Bootstrap struct {
	HTTP      HTTP   `koanf:"http"`
	Log       Log    `koanf:"log"`
	Vault     Vault  `koanf:"vault"`
	StrictEnv bool   `koanf:"strict_env"`
	File      string `koanf:"file"` // settings path; APP_CONFIG_FILE still wins when empty
}

// DefaultBootstrap returns the built-in process defaults.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		HTTP: HTTP{
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second, // assistant calls may take up to 60 s
			IdleTimeout:  60 * time.Second,
		},
		Log:   Log{Dir: "logs", Level: "info"},
		Vault: Vault{CacheTTL: 5 * time.Minute, Timeout: 10 * time.Second},
	}
}

// LoadBootstrap reads .env and SQLSCOPE_* variables over DefaultBootstrap.
func LoadBootstrap() (Bootstrap, error) {
	// .env (optional, no error if missing)
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("bootstrap env overlay failed", "err", err)
		return Bootstrap{}, err
	}

	b := DefaultBootstrap()
	if err := k.Unmarshal("", &b); err != nil {
		zap.S().Errorw("bootstrap unmarshal failed", "err", err)
		return Bootstrap{}, err
	}
	if err := validateStruct(&b); err != nil {
		zap.S().Errorw("bootstrap validation failed", "err", err)
		return Bootstrap{}, err
	}
	return b, nil
}

// envKey maps SQLSCOPE_HTTP__LISTEN_ADDR → http.listen_addr.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
}
