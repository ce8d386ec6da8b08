package repo

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/object"
)

// DefaultCommitMessage is used when Commit is given an empty message.
const DefaultCommitMessage = "Default commit message"

// ErrStop ends CommitIter.ForEach early without reporting an error.
var ErrStop = errors.New("stop iteration")

// Commit records the working tree as a new commit with the configured
// identity. See CommitAs.
func (r *Repo) Commit(message string) (object.Hash, error) {
	who, err := r.Config.Identity()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return r.CommitAs(message, who)
}

// CommitAs records the working tree as a new commit authored and committed
// by who.
//
//  1. Snapshot the working tree root
//  2. Resolve HEAD to get the parent commit hash (if any)
//  3. Create CommitObj with tree hash, parent, identity, timestamp, message
//  4. Write commit to store
//  5. Advance the slot HEAD points at (branch ref, or HEAD when detached)
func (r *Repo) CommitAs(message string, who object.Signature) (object.Hash, error) {
	if err := who.Validate(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	unlock, err := r.lock()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	defer unlock()

	if message == "" {
		message = DefaultCommitMessage
	}

	// 1. Snapshot the working tree.
	treeHash, err := r.WriteTree()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// 2. Resolve HEAD; an unborn branch has no parent.
	parentHash, err := r.HeadCommit()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// 3. Create CommitObj.
	now := r.now().Unix()
	commitObj := &object.CommitObj{
		TreeHash:      treeHash,
		Parent:        parentHash,
		Author:        who,
		AuthorTime:    now,
		Committer:     who,
		CommitterTime: now,
		Timestamp:     now,
		Message:       message,
	}

	// 4. Write commit to store.
	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	// 5. Update the current slot.
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}
	reason := ReflogReason{Action: ReflogCommit, Detail: firstLine(message)}
	if parentHash == "" {
		reason.Action = ReflogCommitInitial
	}

	slot := "HEAD"
	if strings.HasPrefix(head, "refs/") {
		slot = head
	}
	var expected []object.Hash
	if parentHash != "" {
		expected = append(expected, parentHash)
	}
	if err := r.UpdateRefCAS(slot, commitHash, reason, expected...); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	log.WithFields(logrus.Fields{
		"commit": commitHash,
		"tree":   treeHash,
		"parent": parentHash,
	}).Debug("created commit")
	return commitHash, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// LogEntry is one commit visited by a CommitIter.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// CommitIter walks a commit chain from its tip towards the root commit,
// loading each commit only when asked. It cannot be rewound.
type CommitIter struct {
	store *object.Store
	next  object.Hash
	err   error
}

// Log returns an iterator over the history reachable from HEAD, newest
// first. It fails with ErrNoCommits when the current branch is unborn.
func (r *Repo) Log() (*CommitIter, error) {
	head, err := r.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	if head == "" {
		return nil, fmt.Errorf("log: %w", ErrNoCommits)
	}
	return r.LogFrom(head), nil
}

// LogFrom returns an iterator over the chain ending at start.
func (r *Repo) LogFrom(start object.Hash) *CommitIter {
	return &CommitIter{store: r.Store, next: start}
}

// Next loads and returns the next commit. It returns io.EOF once the root
// commit has been returned, and keeps returning the first error it hit.
func (it *CommitIter) Next() (LogEntry, error) {
	if it.err != nil {
		return LogEntry{}, it.err
	}
	if it.next == "" {
		it.err = io.EOF
		return LogEntry{}, io.EOF
	}

	h := it.next
	c, err := it.store.ReadCommit(h)
	if err != nil {
		it.err = fmt.Errorf("log: %w", err)
		return LogEntry{}, it.err
	}
	it.next = c.Parent
	return LogEntry{Hash: h, Commit: c}, nil
}

// ForEach calls fn for every remaining commit. Returning ErrStop from fn
// ends the walk with a nil error.
func (it *CommitIter) ForEach(fn func(LogEntry) error) error {
	for {
		entry, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}
