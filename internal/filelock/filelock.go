// Package filelock guards the settings file against concurrent writers in
// other processes and replaces it atomically.
//
// Two sqlscope processes (say, `sqlscope serve` and `sqlscope config set`)
// may update the same settings.yaml.  The in-process mutex in
// config.Manager does not cover that, so writers take an flock on
// `<path>.lock` and re-read the file while holding it.  The file itself is
// always replaced by rename, which means readers see either the old
// document or the new one, never a torn write.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lock is an exclusive advisory lock on `<target>.lock`.
type lock struct {
	flock *flock.Flock
	path  string
}

func lockFor(target string) *lock {
	path := target + ".lock"
	return &lock{flock: flock.New(path), path: path}
}

// acquire blocks until the lock is held.  The parent directory is created
// when missing so a first-time write can take the lock.
func (l *lock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir for %s: %w", l.path, err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", l.path, err)
	}
	return nil
}

func (l *lock) release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock on %s: %w", l.path, err)
	}
	return nil
}

// atomicWrite writes data to path through a temp file in the same directory
// followed by rename.  Parent directories are created as needed.  On any
// failure the previous file, if any, is left untouched.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Removed on every early return; a no-op once renamed.
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}

// LockAndWrite takes the lock for path, calls build, writes its result
// atomically, and releases the lock.  build runs under the lock, so a
// read-modify-write inside it cannot interleave with another writer.  An
// error from build is returned unwrapped and nothing is written.
func LockAndWrite(path string, perm os.FileMode, build func() ([]byte, error)) error {
	l := lockFor(path)
	if err := l.acquire(); err != nil {
		return err
	}
	defer l.release()

	data, err := build()
	if err != nil {
		return err
	}
	return atomicWrite(path, data, perm)
}
