package config

import (
	"testing"

	koanf "github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePatch_AbsentNullAndSet(t *testing.T) {
	p, err := ParsePatch([]byte(`{
		"elastic": {"url": "http://x:9200", "username": null},
		"sqlServer": {"trustServerCertificate": true}
	}`))
	require.NoError(t, err)

	require.True(t, p.Search.Set)
	assert.Equal(t, Value("http://x:9200"), p.Search.Value.URL)
	assert.True(t, p.Search.Value.Username.Null)
	assert.False(t, p.Search.Value.Password.Present())

	assert.False(t, p.Assistant.Present())

	require.True(t, p.Database.Set)
	assert.Equal(t, Value(true), p.Database.Value.TrustServerCertificate)
}

func TestParsePatch_AcceptsBothSpellings(t *testing.T) {
	p, err := ParsePatch([]byte(`{
		"elastic": {"requestTimeout": 120, "metrics_index": "m-*", "caCert": "/ca.pem"},
		"ollama": {"maxTokens": 64},
		"sqlserver": {"trust_server_certificate": false},
		"unknown": {"x": 1}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Value(120), p.Search.Value.RequestTimeout)
	assert.Equal(t, Value("m-*"), p.Search.Value.MetricsIndex)
	assert.Equal(t, Value("/ca.pem"), p.Search.Value.CACert)
	assert.Equal(t, Value(64), p.Assistant.Value.MaxTokens)
	assert.Equal(t, Value(false), p.Database.Value.TrustServerCertificate)
}

func TestParsePatch_NullSection(t *testing.T) {
	p, err := ParsePatch([]byte(`{"ollama": null}`))
	require.NoError(t, err)
	assert.True(t, p.Assistant.Null)
}

func TestParsePatch_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{`,
		"section type":  `{"elastic": 3}`,
		"field type":    `{"elastic": {"request_timeout": "soon"}}`,
		"top-level arr": `[1, 2]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePatch([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestPatchApply(t *testing.T) {
	s := fullSettings()
	k := koanf.New(".")
	for section, fields := range PersistForm(s) {
		require.NoError(t, k.Set(section, fields))
	}

	p := Patch{
		Search: Value(SearchPatch{
			URL:      Value("http://x:9200"),
			Password: Remove[string](),
		}),
		Assistant: Remove[AssistantPatch](),
	}
	require.NoError(t, p.Apply(k))

	assert.Equal(t, "http://x:9200", k.String("elastic.url"))
	assert.False(t, k.Exists("elastic.password"))
	assert.Equal(t, "elastic", k.String("elastic.username"))
	assert.False(t, k.Exists("ollama"))
	assert.Equal(t, "hunter2", k.String("sqlserver.password"))
}
