package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/odvcencio/mygit/pkg/object"
)

// ErrCorruptReflog is returned when a reflog line cannot be parsed.
var ErrCorruptReflog = errors.New("corrupt reflog")

// nullHash stands in for "no commit" on the old or new side of a reflog line.
var nullHash = strings.Repeat("0", object.HashSize)

// ReflogAction names the operation that moved a ref.
type ReflogAction string

const (
	ReflogCommitInitial ReflogAction = "commit (initial)"
	ReflogCommit        ReflogAction = "commit"
	ReflogCheckout      ReflogAction = "checkout"
	ReflogUpdate        ReflogAction = "update"
)

// ReflogReason is the action plus a free-form single-line detail, stored as
// "action: detail".
type ReflogReason struct {
	Action ReflogAction
	Detail string
}

func (rr ReflogReason) String() string {
	if rr.Detail == "" {
		return string(rr.Action)
	}
	return string(rr.Action) + ": " + rr.Detail
}

func parseReflogReason(s string) ReflogReason {
	action, detail, _ := strings.Cut(s, ": ")
	return ReflogReason{Action: ReflogAction(action), Detail: detail}
}

// ReflogEntry is one recorded movement of a ref. OldHash is empty for the
// entry that created the ref.
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Timestamp int64
	Reason    ReflogReason
}

func (r *Repo) reflogPath(ref string) string {
	return filepath.Join(r.GitDir, "logs", filepath.FromSlash(ref))
}

// appendReflog records a movement of ref. The detail is flattened to one
// line so every record stays a single line of the log.
func (r *Repo) appendReflog(ref string, oldHash, newHash object.Hash, reason ReflogReason) error {
	if reason.Action == "" {
		reason.Action = ReflogUpdate
	}
	reason.Detail = strings.Join(strings.Fields(reason.Detail), " ")

	path := r.reflogPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reflog: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog: open: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %d %s\n", orNullHash(oldHash), orNullHash(newHash), r.now().Unix(), reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog: write: %w", err)
	}
	return nil
}

func orNullHash(h object.Hash) string {
	if h == "" {
		return nullHash
	}
	return string(h)
}

// ReadReflog returns the movements of ref, newest first, at most limit of
// them when limit is positive. An empty ref or "HEAD" means the slot HEAD
// currently points at; a bare name means the branch of that name. A ref
// that has never moved has an empty reflog. A line that does not parse
// fails the whole read with ErrCorruptReflog.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	refName, err := r.reflogRefName(ref)
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	data, err := os.ReadFile(r.reflogPath(refName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	var entries []ReflogEntry
	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		e, err := parseReflogLine(line)
		if err != nil {
			return nil, fmt.Errorf("read reflog: %w: %s line %d: %w", ErrCorruptReflog, refName, i+1, err)
		}
		e.Ref = refName
		entries = append(entries, e)
	}

	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, error) {
	fields := strings.SplitN(line, " ", 4)
	if len(fields) < 3 {
		return ReflogEntry{}, fmt.Errorf("want at least 3 fields, got %d", len(fields))
	}
	oldHash, err := parseReflogHash(fields[0])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("old hash: %w", err)
	}
	newHash, err := parseReflogHash(fields[1])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("new hash: %w", err)
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("timestamp: %w", err)
	}
	e := ReflogEntry{OldHash: oldHash, NewHash: newHash, Timestamp: ts}
	if len(fields) == 4 {
		e.Reason = parseReflogReason(fields[3])
	}
	return e, nil
}

func parseReflogHash(s string) (object.Hash, error) {
	if s == nullHash {
		return "", nil
	}
	return object.ParseHash(s)
}

func (r *Repo) reflogRefName(ref string) (string, error) {
	switch {
	case ref == "" || ref == "HEAD":
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return head, nil
		}
		return "HEAD", nil
	case strings.HasPrefix(ref, "refs/"):
		return ref, nil
	default:
		if err := object.ValidateEntryName(ref); err != nil {
			return "", fmt.Errorf("branch %q: %w", ref, err)
		}
		return "refs/heads/" + ref, nil
	}
}
