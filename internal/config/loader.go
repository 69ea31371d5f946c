// internal/config/loader.go
//
// Settings loader.
//
/*
Context
--------
`Loader.Load()` builds one total `Settings` value from a YAML document:

  1. Start from `Defaults()`.
  2. Read the document through Koanf (`file.Provider` or
     `rawbytes.Provider`) with the configured parser.  Missing sections
     stay empty; unknown keys are ignored.
  3. Unmarshal over the defaults, so absent keys keep their default.
  4. Resolve `${NAME}` and `vault:` references in resolvable fields.
  5. Validate with go-playground/validator.

The result is never partially populated.  Every failure is returned as a
*config.Error so callers can tell parse, validation, and codec problems
apart.

Path discovery
--------------
`ResolvePath()` honours, in order: an explicit path, `APP_CONFIG_FILE`, a
`config/settings.yaml` found by climbing the working directory, and finally
`./config/settings.yaml`.  Climbing lets `go run ./cmd/sqlscope` work from
any sub-directory.

Instrumentation
---------------
  • DEBUG span  – document read.
  • ERROR spans – read, unmarshal, resolve, and validation failures.
  • Logs use the global sugared logger (`zap.S()`), so early boot issues
    surface before the file logger is installed.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	// EnvConfigFile overrides the default settings path.
	EnvConfigFile = "APP_CONFIG_FILE"

	defaultRelPath       = "config/settings.yaml"
	defaultSecretTimeout = 10 * time.Second
)

/*──────────────────────────── path discovery ───────────────────────────────*/

// ResolvePath picks the settings file: explicit > APP_CONFIG_FILE > the first
// ancestor of the working directory holding config/settings.yaml > cwd.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		candidate := filepath.Join(dir, defaultRelPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}
	return filepath.Join(wd, defaultRelPath)
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Loader turns a settings document into Settings.  The zero value is not
// usable; call NewLoader.
type Loader struct {
	// Parser reads and writes the document.  A nil Parser makes every
	// operation fail with KindSource (load) or KindPersistence (write).
	Parser koanf.Parser

	// Secrets resolves `vault:` references.  Nil leaves them literal.
	Secrets SecretSource

	// Strict turns unset ${NAME} references into errors.
	Strict bool

	// SecretTimeout bounds each SecretSource lookup.
	SecretTimeout time.Duration

	// Lookup reads environment variables.  Defaults to os.LookupEnv.
	Lookup LookupFunc
}

// LoaderOption tweaks a Loader built by NewLoader.
type LoaderOption func(*Loader)

// WithSecrets wires a SecretSource for `vault:` references.
func WithSecrets(s SecretSource) LoaderOption { return func(l *Loader) { l.Secrets = s } }

// WithStrict enables strict environment resolution.
func WithStrict(strict bool) LoaderOption { return func(l *Loader) { l.Strict = strict } }

// WithLookup replaces the environment lookup.
func WithLookup(fn LookupFunc) LoaderOption { return func(l *Loader) { l.Lookup = fn } }

// NewLoader returns a YAML Loader with non-strict env resolution.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		Parser:        yaml.Parser(),
		SecretTimeout: defaultSecretTimeout,
		Lookup:        os.LookupEnv,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load reads path and returns a fully-populated Settings.
func (l *Loader) Load(path string) (Settings, error) {
	s, _, err := l.load(path)
	return s, err
}

// LoadBytes parses an in-memory document.  Manager.Update uses it to vet a
// merged document before anything touches disk.
func (l *Loader) LoadBytes(data []byte) (Settings, error) {
	s, _, err := l.parse(data)
	return s, err
}

// load is Load plus the Vault references that were resolved.
func (l *Loader) load(path string) (Settings, references, error) {
	const op = "config load"
	if l.Parser == nil {
		return Settings{}, nil, newError(KindSource, op, path, ErrSource)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), l.Parser); err != nil {
		zap.S().Errorw("config read failed", "file", path, "err", err)
		return Settings{}, nil, newError(KindParse, op, path, err)
	}
	zap.S().Debugw("config document read", "file", path)

	return l.build(k, op, path)
}

func (l *Loader) parse(data []byte) (Settings, references, error) {
	const op = "config parse"
	if l.Parser == nil {
		return Settings{}, nil, newError(KindSource, op, "", ErrSource)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), l.Parser); err != nil {
		return Settings{}, nil, newError(KindParse, op, "", err)
	}
	return l.build(k, op, "")
}

func (l *Loader) build(k *koanf.Koanf, op, path string) (Settings, references, error) {
	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "file", path, "err", err)
		return Settings{}, nil, newError(KindParse, op, path, err)
	}

	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	timeout := l.SecretTimeout
	if timeout <= 0 {
		timeout = defaultSecretTimeout
	}
	r := resolver{lookup: lookup, secrets: l.Secrets, strict: l.Strict, timeout: timeout}
	refs, err := r.apply(&cfg)
	if err != nil {
		zap.S().Errorw("config resolve failed", "file", path, "err", err)
		return Settings{}, nil, newError(KindParse, op, path, err)
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "file", path, "err", err)
		return Settings{}, nil, newError(KindValidation, op, path, err)
	}
	return cfg, refs, nil
}
