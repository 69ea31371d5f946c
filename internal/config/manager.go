// internal/config/manager.go
//
// Process-wide owner of the live Settings snapshot.
//
/*
Context
--------
One Manager is built by the serve command and injected into the API.  It owns
the source path and the current snapshot, which lives in an
`atomic.Pointer` so `Get()` never waits on disk I/O.

Update sequence (all under `mu`; steps 1-6 also hold the cross-process
file lock through filelock.LockAndWrite):

  1. Load the file as it is now, so changes another process wrote since
     our last read are kept.  The snapshot follows it when it moved.
  2. PersistForm(base) → koanf tree, with every field that was read from
     a `vault:` reference put back as that reference.
  3. Patch.Apply: Set for values, Delete for nulls.
  4. Marshal with the loader's parser.  No parser → KindPersistence, and
     nothing is written.
  5. LoadBytes on the merged document, so an invalid update never lands
     on disk.
  6. Write through filelock (temp file + rename).
  7. Load from the freshly written file and swap the pointer.

After a successful update the snapshot always matches what Load would
return for the file on disk.

Reload is all-or-nothing: on failure the previous snapshot stays current.
Concurrent Reload calls collapse into one disk read via singleflight.

Notes
-----
  • There is no watcher and no timer; reload is caller-driven only.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/sqlscope/internal/filelock"
	"github.com/yanizio/sqlscope/internal/metrics"
)

const settingsPerm os.FileMode = 0o600

// Manager is safe for concurrent use.  Zero value is invalid.
type Manager struct {
	path   string
	loader *Loader
	log    *zap.SugaredLogger

	mu      sync.Mutex // serializes Reload and Update
	current atomic.Pointer[Settings]
	sfg     singleflight.Group
}

// ManagerOption tweaks a Manager built by NewManager.
type ManagerOption func(*Manager)

// WithLogger replaces the global sugared logger.
func WithLogger(l *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager resolves path (see ResolvePath), performs the initial load,
// and returns a ready Manager.  A nil loader means NewLoader().
func NewManager(path string, loader *Loader, opts ...ManagerOption) (*Manager, error) {
	if loader == nil {
		loader = NewLoader()
	}
	m := &Manager{
		path:   ResolvePath(path),
		loader: loader,
		log:    zap.S(),
	}
	for _, o := range opts {
		o(m)
	}

	s, err := m.loader.Load(m.path)
	metrics.ConfigOpsTotal.WithLabelValues("load", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	m.swap(s)
	m.log.Infow("config loaded",
		"file", m.path,
		"elastic_url", s.Search.URL,
		"ollama_host", s.Assistant.Host,
		"sqlserver_target", databaseTarget(s.Database),
	)
	return m, nil
}

// Path returns the settings file this Manager reads and writes.
func (m *Manager) Path() string { return m.path }

// Get returns a copy of the current snapshot.
func (m *Manager) Get() Settings { return *m.current.Load() }

// Reload re-reads the settings file and swaps the snapshot.
func (m *Manager) Reload() (Settings, error) {
	v, err, shared := m.sfg.Do("reload", func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		s, err := m.loader.Load(m.path)
		metrics.ConfigOpsTotal.WithLabelValues("reload", metrics.Result(err)).Inc()
		if err != nil {
			m.log.Errorw("config reload failed, keeping previous snapshot", "file", m.path, "err", err)
			return nil, err
		}
		m.swap(s)
		m.log.Infow("config reloaded", "file", m.path)
		return s, nil
	})
	if err != nil {
		return Settings{}, err
	}
	if shared {
		m.log.Debugw("config reload shared with concurrent caller", "file", m.path)
	}
	return v.(Settings), nil
}

// Update merges p onto the current settings, persists the result, reloads
// it, and returns the new snapshot.
func (m *Manager) Update(p Patch) (Settings, error) {
	const op = "config update"

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.update(op, p)
	metrics.ConfigOpsTotal.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		m.log.Errorw("config update failed", "file", m.path, "kind", KindOf(err).String(), "err", err)
		return Settings{}, err
	}
	m.log.Infow("config updated", "file", m.path)
	return s, nil
}

func (m *Manager) update(op string, p Patch) (Settings, error) {
	if m.loader.Parser == nil {
		return Settings{}, newError(KindPersistence, op, m.path, ErrPersistenceUnavailable)
	}

	err := filelock.LockAndWrite(m.path, settingsPerm, func() ([]byte, error) {
		return m.merge(op, p)
	})
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return Settings{}, err
		}
		return Settings{}, newError(KindPersistence, op, m.path, err)
	}

	s, err := m.loader.Load(m.path)
	if err != nil {
		return Settings{}, err
	}
	m.swap(s)
	return s, nil
}

// merge returns the document to write for p.  It runs under the file lock.
func (m *Manager) merge(op string, p Patch) ([]byte, error) {
	base, refs, err := m.loader.load(m.path)
	if err != nil {
		return nil, err
	}
	if base != m.Get() {
		m.log.Infow("config changed on disk since last read", "file", m.path)
		m.swap(base)
	}

	k := koanf.New(".")
	for section, fields := range PersistForm(base) {
		if err := k.Set(section, fields); err != nil {
			return nil, newError(KindPersistence, op, m.path, err)
		}
	}
	for key, ref := range refs {
		if err := k.Set(key, ref); err != nil {
			return nil, newError(KindPersistence, op, m.path, err)
		}
	}
	if err := p.Apply(k); err != nil {
		return nil, newError(KindPersistence, op, m.path, err)
	}

	data, err := k.Marshal(m.loader.Parser)
	if err != nil {
		return nil, newError(KindPersistence, op, m.path, err)
	}

	// Vet the merged document before it reaches disk.
	if _, err := m.loader.LoadBytes(data); err != nil {
		return nil, err
	}
	m.log.Debugw("config merged", "file", m.path, "bytes", len(data))
	return data, nil
}

func (m *Manager) swap(s Settings) {
	m.current.Store(&s)
	metrics.ConfigLastSuccess.Set(float64(time.Now().Unix()))
}

// databaseTarget describes the database target for logs without leaking
// credentials.
func databaseTarget(d DatabaseSettings) string {
	switch {
	case d.DSN != "":
		return "dsn"
	case d.Server != "":
		return d.Server
	}
	return "unset"
}
