package repo

import (
	"errors"
	"time"

	"github.com/odvcencio/mygit/pkg/object"
)

// MetaDir is the name of the repository metadata directory at the root of
// the working tree.
const MetaDir = ".mygit"

var (
	ErrRepositoryExists = errors.New("repository already exists")
	ErrNotARepository   = errors.New("not a mygit repository (or any parent up to /)")
	ErrFileNotFound     = errors.New("file not found")
	ErrNoCommits        = errors.New("no commits yet")
	ErrRefNotFound      = errors.New("ref not found")
	ErrDirtyWorkTree    = errors.New("working tree has uncommitted changes")
)

// State is the repository-level lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateEmpty
	StateHasHistory
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHasHistory:
		return "has-history"
	}
	return "uninitialized"
}

// Repo represents an opened repository.
//
// A Repo serializes its own mutating operations through a lock file in the
// metadata directory, so separate processes may share a working tree.
type Repo struct {
	RootDir string        // working directory root
	GitDir  string        // .mygit/ directory
	Store   *object.Store // content-addressed object store
	Config  *Config

	now func() time.Time
}

// State reports whether the repository has any commits yet.
func (r *Repo) State() (State, error) {
	h, err := r.HeadCommit()
	if err != nil {
		return StateUninitialized, err
	}
	if h == "" {
		return StateEmpty, nil
	}
	return StateHasHistory, nil
}
