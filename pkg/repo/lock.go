package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockRetryDelay = 5 * time.Millisecond
	lockWaitLimit  = 2 * time.Second

	repoLockFile = "repo.lock"
)

// acquireLock creates lockPath exclusively, retrying until lockWaitLimit
// elapses while another holder owns it.
func acquireLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(lockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(lockRetryDelay)
			continue
		}
		return nil, err
	}
}

// replaceFileLocked rewrites path through path+".lock": content is computed
// while the lock is held, written to the lock file, synced, and renamed over
// path. If content returns an error nothing is changed.
func replaceFileLocked(path string, content func() ([]byte, error)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	lockPath := path + ".lock"
	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	data, err := content()
	if err != nil {
		return err
	}
	if _, err := lockFile.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	err = lockFile.Close()
	lockFile = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(lockPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	cleanupLock = false
	return nil
}

// lock takes the repository-wide lock that serializes commit, checkout and
// add. The returned function releases it.
func (r *Repo) lock() (func(), error) {
	lockPath := filepath.Join(r.GitDir, repoLockFile)
	f, err := acquireLock(lockPath)
	if err != nil {
		return nil, fmt.Errorf("repository lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { _ = os.Remove(lockPath) }, nil
}
