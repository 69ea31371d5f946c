// internal/config/patch.go
//
// Typed partial updates.
//
// Context
// -------
// PUT /config sends any subset of sections and fields.  Each field is a
// Field[T] with three states:
//
//   - absent  – zero value; the current value is kept,
//   - null    – the key is removed so the loader's default applies again,
//   - set     – the key takes the new value.
//
// A null section removes the whole section.  Apply writes the changes into
// a koanf tree built from PersistForm, which Manager.Update then marshals.

package config

import (
	"encoding/json"
	"fmt"

	koanf "github.com/knadh/koanf/v2"
)

/*──────────────────────────── Field[T] ─────────────────────────────────────*/

// Field is an optional patch value that tells "absent" and "null" apart.
type Field[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Value returns a Field that overwrites with v.
func Value[T any](v T) Field[T] { return Field[T]{Value: v, Set: true} }

// Remove returns a Field that deletes the key.
func Remove[T any]() Field[T] { return Field[T]{Null: true} }

// Present reports whether the patch mentions this field at all.
func (f Field[T]) Present() bool { return f.Set || f.Null }

// UnmarshalJSON is only called when the key exists, which is what makes
// "absent" the zero value.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = Field[T]{Null: true}
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Field[T]{Value: v, Set: true}
	return nil
}

/*──────────────────────────── patch types ──────────────────────────────────*/

// SearchPatch lists the patchable search fields.
type SearchPatch struct {
	URL                  Field[string] `json:"url"`
	MetricsIndex         Field[string] `json:"metrics_index"`
	LogsIndex            Field[string] `json:"logs_index"`
	Username             Field[string] `json:"username"`
	Password             Field[string] `json:"password"`
	CACert               Field[string] `json:"ca_cert"`
	Insecure             Field[bool]   `json:"insecure"`
	RequestTimeout       Field[int]    `json:"request_timeout"`
	CompatibilityVersion Field[int]    `json:"compatibility_version"`
}

// AssistantPatch lists the patchable assistant fields.
type AssistantPatch struct {
	Host        Field[string]  `json:"host"`
	Model       Field[string]  `json:"model"`
	Temperature Field[float64] `json:"temperature"`
	MaxTokens   Field[int]     `json:"max_tokens"`
}

// DatabasePatch lists the patchable database fields.
type DatabasePatch struct {
	DSN                    Field[string] `json:"dsn"`
	Server                 Field[string] `json:"server"`
	Username               Field[string] `json:"username"`
	Password               Field[string] `json:"password"`
	Database               Field[string] `json:"database"`
	Encrypt                Field[bool]   `json:"encrypt"`
	TrustServerCertificate Field[bool]   `json:"trust_server_certificate"`
}

// Patch is a partial settings document.
type Patch struct {
	Search    Field[SearchPatch]    `json:"elastic"`
	Assistant Field[AssistantPatch] `json:"ollama"`
	Database  Field[DatabasePatch]  `json:"sqlserver"`
}

type change struct {
	key    string
	value  any
	remove bool
}

func fieldChange[T any](key string, f Field[T]) (change, bool) {
	switch {
	case f.Null:
		return change{key: key, remove: true}, true
	case f.Set:
		return change{key: key, value: f.Value}, true
	}
	return change{}, false
}

func collect(pairs ...func() (change, bool)) []change {
	var out []change
	for _, p := range pairs {
		if c, ok := p(); ok {
			out = append(out, c)
		}
	}
	return out
}

func (p SearchPatch) changes() []change {
	return collect(
		func() (change, bool) { return fieldChange("url", p.URL) },
		func() (change, bool) { return fieldChange("metrics_index", p.MetricsIndex) },
		func() (change, bool) { return fieldChange("logs_index", p.LogsIndex) },
		func() (change, bool) { return fieldChange("username", p.Username) },
		func() (change, bool) { return fieldChange("password", p.Password) },
		func() (change, bool) { return fieldChange("ca_cert", p.CACert) },
		func() (change, bool) { return fieldChange("insecure", p.Insecure) },
		func() (change, bool) { return fieldChange("request_timeout", p.RequestTimeout) },
		func() (change, bool) { return fieldChange("compatibility_version", p.CompatibilityVersion) },
	)
}

func (p AssistantPatch) changes() []change {
	return collect(
		func() (change, bool) { return fieldChange("host", p.Host) },
		func() (change, bool) { return fieldChange("model", p.Model) },
		func() (change, bool) { return fieldChange("temperature", p.Temperature) },
		func() (change, bool) { return fieldChange("max_tokens", p.MaxTokens) },
	)
}

func (p DatabasePatch) changes() []change {
	return collect(
		func() (change, bool) { return fieldChange("dsn", p.DSN) },
		func() (change, bool) { return fieldChange("server", p.Server) },
		func() (change, bool) { return fieldChange("username", p.Username) },
		func() (change, bool) { return fieldChange("password", p.Password) },
		func() (change, bool) { return fieldChange("database", p.Database) },
		func() (change, bool) { return fieldChange("encrypt", p.Encrypt) },
		func() (change, bool) { return fieldChange("trust_server_certificate", p.TrustServerCertificate) },
	)
}

/*──────────────────────────── merge ────────────────────────────────────────*/

// Apply deep-merges p onto k, section by section and field by field.
func (p Patch) Apply(k *koanf.Koanf) error {
	if err := applySection(k, sectionSearch, p.Search, SearchPatch.changes); err != nil {
		return err
	}
	if err := applySection(k, sectionAssistant, p.Assistant, AssistantPatch.changes); err != nil {
		return err
	}
	return applySection(k, sectionDatabase, p.Database, DatabasePatch.changes)
}

func applySection[T any](k *koanf.Koanf, section string, f Field[T], changes func(T) []change) error {
	if f.Null {
		k.Delete(section)
		return nil
	}
	if !f.Set {
		return nil
	}
	for _, c := range changes(f.Value) {
		path := section + "." + c.key
		if c.remove {
			k.Delete(path)
			continue
		}
		if err := k.Set(path, c.value); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

/*──────────────────────────── decoding ─────────────────────────────────────*/

var sectionAliases = map[string]string{
	"elastic":   sectionSearch,
	"ollama":    sectionAssistant,
	"sqlserver": sectionDatabase,
	"sqlServer": sectionDatabase,
}

var fieldAliases = map[string]string{
	"metricsIndex":           "metrics_index",
	"logsIndex":              "logs_index",
	"caCert":                 "ca_cert",
	"requestTimeout":         "request_timeout",
	"compatibilityVersion":   "compatibility_version",
	"maxTokens":              "max_tokens",
	"trustServerCertificate": "trust_server_certificate",
}

// ParsePatch decodes a JSON update document.  External camelCase aliases
// and internal snake_case names are both accepted; unknown keys are
// dropped.
func ParsePatch(data []byte) (Patch, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Patch{}, fmt.Errorf("decode patch: %w", err)
	}

	norm := make(map[string]json.RawMessage, len(top))
	for name, raw := range top {
		section, ok := sectionAliases[name]
		if !ok {
			continue
		}
		if string(raw) == "null" {
			norm[section] = raw
			continue
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Patch{}, fmt.Errorf("decode patch section %s: %w", name, err)
		}
		renamed := make(map[string]json.RawMessage, len(fields))
		for key, val := range fields {
			if internal, ok := fieldAliases[key]; ok {
				key = internal
			}
			renamed[key] = val
		}
		b, err := json.Marshal(renamed)
		if err != nil {
			return Patch{}, err
		}
		norm[section] = b
	}

	b, err := json.Marshal(norm)
	if err != nil {
		return Patch{}, err
	}
	var p Patch
	if err := json.Unmarshal(b, &p); err != nil {
		return Patch{}, fmt.Errorf("decode patch: %w", err)
	}
	return p, nil
}
