// internal/config/serializer.go
//
// Two views of one Settings value.
//
// Context
// -------
//   - PersistForm is written back to settings.yaml.  It uses the loader's key
//     spelling, keeps secrets, and omits absent optional strings, so
//     LoadBytes(marshal(PersistForm(s))) == s.  Manager.Update puts `vault:`
//     references back over the secrets they resolved to.
//   - ExternalForm is what GET /config returns.  Keys are camelCase aliases,
//     the database section is `sqlServer`, and no section carries a
//     password.  Absent optionals render as null.
//
// Aliases are defined only here; the loader and the persist form never see
// them.

package config

//
// Persist form
//

// PersistForm returns the full document for s, secrets included.
func PersistForm(s Settings) map[string]any {
	search := map[string]any{
		"url":                   s.Search.URL,
		"metrics_index":         s.Search.MetricsIndex,
		"logs_index":            s.Search.LogsIndex,
		"insecure":              s.Search.Insecure,
		"request_timeout":       s.Search.RequestTimeout,
		"compatibility_version": s.Search.CompatibilityVersion,
	}
	putOptional(search, "username", s.Search.Username)
	putOptional(search, "password", s.Search.Password)
	putOptional(search, "ca_cert", s.Search.CACert)

	assistant := map[string]any{
		"host":        s.Assistant.Host,
		"model":       s.Assistant.Model,
		"temperature": s.Assistant.Temperature,
		"max_tokens":  s.Assistant.MaxTokens,
	}

	database := map[string]any{
		"database":                 s.Database.Database,
		"encrypt":                  s.Database.Encrypt,
		"trust_server_certificate": s.Database.TrustServerCertificate,
	}
	putOptional(database, "dsn", s.Database.DSN)
	putOptional(database, "server", s.Database.Server)
	putOptional(database, "username", s.Database.Username)
	putOptional(database, "password", s.Database.Password)

	return map[string]any{
		sectionSearch:    search,
		sectionAssistant: assistant,
		sectionDatabase:  database,
	}
}

func putOptional(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

//
// External form
//

// External is the redacted, alias-renamed view served to API consumers.
type External struct {
	Search    ExternalSearch    `json:"elastic"`
	Assistant ExternalAssistant `json:"ollama"`
	Database  ExternalDatabase  `json:"sqlServer"`
}

// ExternalSearch mirrors SearchSettings without Password.
type ExternalSearch struct {
	URL                  string  `json:"url"`
	MetricsIndex         string  `json:"metricsIndex"`
	LogsIndex            string  `json:"logsIndex"`
	Username             *string `json:"username"`
	CACert               *string `json:"caCert"`
	Insecure             bool    `json:"insecure"`
	RequestTimeout       int     `json:"requestTimeout"`
	CompatibilityVersion int     `json:"compatibilityVersion"`
}

// ExternalAssistant mirrors AssistantSettings.
type ExternalAssistant struct {
	Host        string  `json:"host"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// ExternalDatabase mirrors DatabaseSettings without Password.
type ExternalDatabase struct {
	DSN                    *string `json:"dsn"`
	Server                 *string `json:"server"`
	Username               *string `json:"username"`
	Database               string  `json:"database"`
	Encrypt                bool    `json:"encrypt"`
	TrustServerCertificate bool    `json:"trustServerCertificate"`
}

// ExternalForm returns the redacted view of s.
func ExternalForm(s Settings) External {
	return External{
		Search: ExternalSearch{
			URL:                  s.Search.URL,
			MetricsIndex:         s.Search.MetricsIndex,
			LogsIndex:            s.Search.LogsIndex,
			Username:             optional(s.Search.Username),
			CACert:               optional(s.Search.CACert),
			Insecure:             s.Search.Insecure,
			RequestTimeout:       s.Search.RequestTimeout,
			CompatibilityVersion: s.Search.CompatibilityVersion,
		},
		Assistant: ExternalAssistant{
			Host:        s.Assistant.Host,
			Model:       s.Assistant.Model,
			Temperature: s.Assistant.Temperature,
			MaxTokens:   s.Assistant.MaxTokens,
		},
		Database: ExternalDatabase{
			DSN:                    optional(s.Database.DSN),
			Server:                 optional(s.Database.Server),
			Username:               optional(s.Database.Username),
			Database:               s.Database.Database,
			Encrypt:                s.Database.Encrypt,
			TrustServerCertificate: s.Database.TrustServerCertificate,
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
