// internal/config/model.go
//
// Typed configuration model for sqlscope.
//
// Context
// -------
// These structs define the shape of the settings tree that
// `internal/config/loader.go` builds from `config/settings.yaml`.  There are
// three sections, each optional in the source document:
//
//   - `elastic`   – search backend that stores metrics and logs,
//   - `ollama`    – local language-model service used for summaries,
//   - `sqlserver` – live database whose DMVs we query on demand.
//
// A value of the form `${NAME}` in a resolvable field is looked up in the
// process environment at load time.  A value of the form
// `vault:<mount>/<path>#<key>` is resolved through the configured
// SecretSource.  The model itself only ever stores plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`; the loader unmarshals with the koanf tag.
//   - Optional strings use "" for absent.  Serializers omit them.
//   - Defaults() is the only source of default values, so defaults never
//     depend on a previously loaded document.
//   - Oxford commas, two spaces after periods.  No em-dash.

package config

//
// Section names (persisted spelling)
//

const (
	sectionSearch    = "elastic"
	sectionAssistant = "ollama"
	sectionDatabase  = "sqlserver"
)

//
// Search backend section
//

// SearchSettings holds connection details for the Elasticsearch cluster that
// stores collector output.
type SearchSettings struct {
	URL          string `koanf:"url"           validate:"required,url"`
	MetricsIndex string `koanf:"metrics_index" validate:"required"`
	LogsIndex    string `koanf:"logs_index"    validate:"required"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	CACert       string `koanf:"ca_cert"`
	Insecure     bool   `koanf:"insecure"`

	// RequestTimeout is expressed in whole seconds.
	RequestTimeout int `koanf:"request_timeout" validate:"gte=1"`

	// CompatibilityVersion selects the versioned media type sent to the
	// cluster.  Zero omits the compatibility headers entirely.
	CompatibilityVersion int `koanf:"compatibility_version" validate:"gte=0"`
}

//
// Assistant section
//

// AssistantSettings configures the Ollama generate endpoint.
type AssistantSettings struct {
	Host        string  `koanf:"host"        validate:"required,url"`
	Model       string  `koanf:"model"       validate:"required"`
	Temperature float64 `koanf:"temperature" validate:"gte=0"`
	MaxTokens   int     `koanf:"max_tokens"  validate:"gte=1"`
}

//
// Database section
//

// DatabaseSettings describes how to reach SQL Server.  DSN and Server are
// both optional here; the connection factory rejects a section that has
// neither, at the point of use.
type DatabaseSettings struct {
	DSN                    string `koanf:"dsn"`
	Server                 string `koanf:"server"`
	Username               string `koanf:"username"`
	Password               string `koanf:"password"`
	Database               string `koanf:"database" validate:"required"`
	Encrypt                bool   `koanf:"encrypt"`
	TrustServerCertificate bool   `koanf:"trust_server_certificate"`
}

//
// Root aggregate
//

// Settings is the immutable aggregate returned by the Loader and held by the
// Manager.  It contains only value fields, so a plain copy is a deep copy.
type Settings struct {
	Search    SearchSettings    `koanf:"elastic"`
	Assistant AssistantSettings `koanf:"ollama"`
	Database  DatabaseSettings  `koanf:"sqlserver"`
}

// Defaults returns a fully-populated Settings with every documented default.
func Defaults() Settings {
	return Settings{
		Search: SearchSettings{
			URL:                  "http://localhost:9200",
			MetricsIndex:         "mssql-metrics-*",
			LogsIndex:            "mssql-logs-*",
			RequestTimeout:       60,
			CompatibilityVersion: 8,
		},
		Assistant: AssistantSettings{
			Host:        "http://localhost:11434",
			Model:       "llama3",
			Temperature: 0.1,
			MaxTokens:   512,
		},
		Database: DatabaseSettings{
			Database: "master",
			Encrypt:  true,
		},
	}
}
