package config

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `
elastic:
  url: http://localhost:9200
  metrics_index: metric-*
  logs_index: log-*
ollama:
  host: http://ollama
  model: llama3
sqlserver:
  server: sql1
  encrypt: true
`

func newTestManager(t *testing.T, body string) *Manager {
	t.Helper()
	m, err := NewManager(writeSettings(t, body), nil)
	require.NoError(t, err)
	return m
}

func TestManager_Update(t *testing.T) {
	m := newTestManager(t, minimalDoc)
	before := m.Get()

	updated, err := m.Update(Patch{
		Search: Value(SearchPatch{
			URL:            Value("http://elastic:9200"),
			RequestTimeout: Value(120),
		}),
		Database: Value(DatabasePatch{Encrypt: Value(false)}),
	})
	require.NoError(t, err)

	assert.Equal(t, "http://elastic:9200", updated.Search.URL)
	assert.Equal(t, 120, updated.Search.RequestTimeout)
	assert.False(t, updated.Database.Encrypt)
	assert.Equal(t, 8, updated.Search.CompatibilityVersion)

	// Everything the patch did not mention is unchanged.
	want := before
	want.Search.URL = "http://elastic:9200"
	want.Search.RequestTimeout = 120
	want.Database.Encrypt = false
	assert.Equal(t, want, updated)
	assert.Equal(t, updated, m.Get())

	reloaded, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)

	fromDisk, err := NewLoader().Load(m.Path())
	require.NoError(t, err)
	assert.Equal(t, updated, fromDisk)
}

func TestManager_UpdateNullRestoresDefault(t *testing.T) {
	m := newTestManager(t, minimalDoc)

	s, err := m.Update(Patch{
		Search:    Value(SearchPatch{MetricsIndex: Remove[string]()}),
		Assistant: Remove[AssistantPatch](),
	})
	require.NoError(t, err)
	assert.Equal(t, "mssql-metrics-*", s.Search.MetricsIndex)
	assert.Equal(t, "log-*", s.Search.LogsIndex)
	assert.Equal(t, Defaults().Assistant, s.Assistant)
}

func TestManager_UpdatePersistsTokensAndResolvesThem(t *testing.T) {
	t.Setenv("SQLSCOPE_TEST_DB_PASS", "from-env")
	m := newTestManager(t, minimalDoc)

	s, err := m.Update(Patch{Database: Value(DatabasePatch{Password: Value("${SQLSCOPE_TEST_DB_PASS}")})})
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.Database.Password)

	raw, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "${SQLSCOPE_TEST_DB_PASS}")
}

func TestManager_UpdateKeepsOtherProcessWrites(t *testing.T) {
	path := writeSettings(t, minimalDoc)
	serve, err := NewManager(path, nil)
	require.NoError(t, err)
	cli, err := NewManager(path, nil)
	require.NoError(t, err)

	_, err = cli.Update(Patch{Assistant: Value(AssistantPatch{Model: Value("mistral")})})
	require.NoError(t, err)
	assert.Equal(t, "llama3", serve.Get().Assistant.Model, "serve has not re-read yet")

	s, err := serve.Update(Patch{Search: Value(SearchPatch{RequestTimeout: Value(120)})})
	require.NoError(t, err)
	assert.Equal(t, "mistral", s.Assistant.Model)
	assert.Equal(t, 120, s.Search.RequestTimeout)
	assert.Equal(t, s, serve.Get())

	fromDisk, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral", fromDisk.Assistant.Model)
	assert.Equal(t, 120, fromDisk.Search.RequestTimeout)
}

func TestManager_UpdateKeepsVaultReferences(t *testing.T) {
	secrets := fakeSecrets{"secret/sql#pw": "s3cr3t", "secret/es#pw": "es-s3cr3t"}
	path := writeSettings(t, minimalDoc+`  password: "vault:secret/sql#pw"
`)
	loader := NewLoader(WithSecrets(secrets))
	m, err := NewManager(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", m.Get().Database.Password)

	s, err := m.Update(Patch{Assistant: Value(AssistantPatch{Model: Value("phi3")})})
	require.NoError(t, err)
	assert.Equal(t, "phi3", s.Assistant.Model)
	assert.Equal(t, "s3cr3t", s.Database.Password)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "vault:secret/sql#pw")
	assert.NotContains(t, string(raw), "s3cr3t")

	// A patch that names the field replaces the reference.
	s, err = m.Update(Patch{Database: Value(DatabasePatch{Password: Value("vault:secret/es#pw")})})
	require.NoError(t, err)
	assert.Equal(t, "es-s3cr3t", s.Database.Password)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "vault:secret/es#pw")
	assert.NotContains(t, string(raw), "vault:secret/sql#pw")

	s, err = m.Update(Patch{Database: Value(DatabasePatch{Password: Remove[string]()})})
	require.NoError(t, err)
	assert.Empty(t, s.Database.Password)
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "vault:")
}

func TestManager_UpdateWithoutWriter(t *testing.T) {
	path := writeSettings(t, minimalDoc)
	loader := NewLoader()
	m, err := NewManager(path, loader)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	loader.Parser = nil
	_, err = m.Update(Patch{Search: Value(SearchPatch{URL: Value("http://example")})})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	assert.Equal(t, KindPersistence, KindOf(err))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "no partial write")
	assert.Equal(t, "http://localhost:9200", m.Get().Search.URL)
}

func TestManager_InvalidUpdateNeverReachesDisk(t *testing.T) {
	m := newTestManager(t, minimalDoc)
	before, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	snapshot := m.Get()

	_, err = m.Update(Patch{Search: Value(SearchPatch{RequestTimeout: Value(0)})})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	after, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, snapshot, m.Get())
}

func TestManager_ReloadFailureKeepsSnapshot(t *testing.T) {
	m := newTestManager(t, minimalDoc)
	snapshot := m.Get()

	require.NoError(t, os.WriteFile(m.Path(), []byte("elastic: [broken\n"), 0o644))
	_, err := m.Reload()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, snapshot, m.Get())

	require.NoError(t, os.WriteFile(m.Path(), []byte("ollama:\n  model: phi3\n"), 0o644))
	s, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "phi3", s.Assistant.Model)
	assert.Equal(t, "phi3", m.Get().Assistant.Model)
}

func TestNewManager_FailsOnBadSource(t *testing.T) {
	_, err := NewManager(writeSettings(t, "- not a map\n"), nil)
	assert.ErrorIs(t, err, ErrParse)
}

func TestManager_ConcurrentGetNeverTorn(t *testing.T) {
	m := newTestManager(t, minimalDoc)

	// Two states whose URL and timeout always travel together.
	states := []Patch{
		{Search: Value(SearchPatch{URL: Value("http://a:9200"), RequestTimeout: Value(11)})},
		{Search: Value(SearchPatch{URL: Value("http://b:9200"), RequestTimeout: Value(22)})},
	}
	valid := map[string]int{
		"http://localhost:9200": 60,
		"http://a:9200":         11,
		"http://b:9200":         22,
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := m.Get()
				if want, ok := valid[s.Search.URL]; !ok || want != s.Search.RequestTimeout {
					t.Errorf("torn snapshot: url=%s timeout=%d", s.Search.URL, s.Search.RequestTimeout)
					return
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for i := 0; i < 2; i++ {
		writers.Add(1)
		go func(p Patch) {
			defer writers.Done()
			for j := 0; j < 10; j++ {
				_, err := m.Update(p)
				assert.NoError(t, err)
			}
		}(states[i])
	}
	writers.Wait()
	close(done)
	readers.Wait()

	final := m.Get()
	fromDisk, err := NewLoader().Load(m.Path())
	require.NoError(t, err)
	assert.Equal(t, final, fromDisk)
}

func TestManager_ConcurrentReload(t *testing.T) {
	m := newTestManager(t, minimalDoc)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Reload()
			assert.NoError(t, err)
			assert.Equal(t, "sql1", s.Database.Server)
		}()
	}
	wg.Wait()
}
