package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/object"
)

var ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
var ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// Init creates a new repository at path. It creates the .mygit/ directory
// structure: HEAD, config.toml, objects/, refs/heads/ and logs/. Returns
// ErrRepositoryExists if a .mygit/ directory already exists.
func Init(path string) (*Repo, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	gitDir := filepath.Join(path, MetaDir)

	if _, err := os.Stat(gitDir); err == nil {
		return nil, fmt.Errorf("init: %w at %s", ErrRepositoryExists, gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	cfg := DefaultConfig()
	if err := writeConfig(filepath.Join(gitDir, configFile), cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	headPath := filepath.Join(gitDir, "HEAD")
	head := "ref: refs/heads/" + cfg.Core.Branch + "\n"
	if err := os.WriteFile(headPath, []byte(head), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	log.WithFields(logrus.Fields{"dir": gitDir}).Debug("initialized repository")
	return newRepo(path, gitDir, cfg)
}

// Open searches upward from path for a .mygit/ directory and opens the
// repository. Returns ErrNotARepository if none is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gitDir := filepath.Join(cur, MetaDir)
		info, err := os.Stat(gitDir)
		if err == nil && info.IsDir() {
			cfg, err := readConfig(filepath.Join(gitDir, configFile))
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return newRepo(cur, gitDir, cfg)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: %w", ErrNotARepository)
		}
		cur = parent
	}
}

// StateAt reports the lifecycle state of the repository rooted at path,
// without searching parent directories.
func StateAt(path string) (State, error) {
	info, err := os.Stat(filepath.Join(path, MetaDir))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return StateUninitialized, nil
	}
	if err != nil {
		return StateUninitialized, err
	}
	r, err := Open(path)
	if err != nil {
		return StateUninitialized, err
	}
	return r.State()
}

func newRepo(root, gitDir string, cfg *Config) (*Repo, error) {
	store, err := object.NewStoreLevel(gitDir, cfg.Core.Compression)
	if err != nil {
		return nil, err
	}
	return &Repo{
		RootDir: root,
		GitDir:  gitDir,
		Store:   store,
		Config:  cfg,
		now:     time.Now,
	}, nil
}

// Head reads .mygit/HEAD. If the content starts with "ref: ", it returns the
// ref path (e.g., "refs/heads/master"). Otherwise it returns the raw content
// as a detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimSpace(string(data))

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// HeadCommit resolves HEAD to a commit hash. It returns an empty hash and
// no error when HEAD names a branch that has never been committed to.
func (r *Repo) HeadCommit() (object.Hash, error) {
	h, err := r.ResolveRef("HEAD")
	if errors.Is(err, ErrRefNotFound) {
		return "", nil
	}
	return h, err
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. If name is "HEAD", read HEAD. If HEAD is symbolic, resolve the target ref.
//  2. If name starts with "refs/", read .mygit/<name>.
//  3. Otherwise, try "refs/heads/<name>".
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		h, err := object.ParseHash(head)
		if err != nil {
			return "", fmt.Errorf("resolve HEAD: %w", err)
		}
		return h, nil
	}

	var refPath string
	if strings.HasPrefix(name, "refs/") {
		refPath = filepath.Join(r.GitDir, filepath.FromSlash(name))
	} else {
		refPath = filepath.Join(r.GitDir, "refs", "heads", name)
	}

	h, err := readRefHash(refPath)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	if h == "" {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
	}
	if _, err := object.ParseHash(string(h)); err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return h, nil
}

// UpdateRefCAS writes a hash to the named ref file under .mygit/ using
// lockfile + rename atomic semantics, creating parent directories as
// needed. If expectedOld is provided, the update only succeeds when the
// current ref hash matches it; pass "" to require that the ref not exist.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, reason ReflogReason, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}

	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))
	var oldHash object.Hash
	err := replaceFileLocked(refPath, func() ([]byte, error) {
		var err error
		oldHash, err = readRefHash(refPath)
		if err != nil {
			return nil, fmt.Errorf("read old hash: %w", err)
		}
		if len(expectedOld) == 1 && oldHash != expectedOld[0] {
			return nil, fmt.Errorf("%w (expected %s, found %s)", ErrRefCASMismatch, expectedOld[0], oldHash)
		}
		return []byte(string(h) + "\n"), nil
	})
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}

	log.WithFields(logrus.Fields{"ref": name, "old": oldHash, "new": h}).Debug("updated ref")

	if err := r.appendReflog(name, oldHash, h, reason); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}
	return nil
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
