package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// ValidateEntryName rejects names that cannot round-trip through the tree
// format or that would escape the directory they are restored into.
func ValidateEntryName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid entry name %q", name)
	case strings.ContainsAny(name, "/\x00\n"):
		return fmt.Errorf("invalid entry name %q", name)
	}
	return nil
}

// MarshalTree serializes a TreeObj. Entries are sorted by Name for
// deterministic output. Each entry is one line:
//
//	mode name hash
//
// where mode is 100644 for files and 40000 for directories. Names may
// contain spaces; the mode is always the first field and the hash the last.
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for i, e := range sorted {
		if err := ValidateEntryName(e.Name); err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		if e.Mode != TreeModeFile && e.Mode != TreeModeDir {
			return nil, fmt.Errorf("marshal tree: entry %q: unknown mode %q", e.Name, e.Mode)
		}
		if _, err := ParseHash(string(e.Hash)); err != nil {
			return nil, fmt.Errorf("marshal tree: entry %q: %w", e.Name, err)
		}
		fmt.Fprintf(&buf, "%s %s %s\n", e.Mode, e.Name, e.Hash)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a TreeObj from its serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return tr, nil
	}
	seen := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		mode, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed tree entry %q", ErrCorruptObject, line)
		}
		sp := strings.LastIndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: malformed tree entry %q", ErrCorruptObject, line)
		}
		name, hash := rest[:sp], rest[sp+1:]
		if mode != TreeModeFile && mode != TreeModeDir {
			return nil, fmt.Errorf("%w: unknown tree mode %q", ErrCorruptObject, mode)
		}
		if err := ValidateEntryName(name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptObject, err)
		}
		h, err := ParseHash(hash)
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry %q: %v", ErrCorruptObject, name, err)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tree entry %q", ErrCorruptObject, name)
		}
		seen[name] = struct{}{}
		tr.Entries = append(tr.Entries, TreeEntry{Mode: mode, Name: name, Hash: h})
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (root commits have none)
//	author Name <email> T
//	committer Name <email> T
//	timestamp T
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	if c.Parent != "" {
		fmt.Fprintf(&buf, "parent %s\n", c.Parent)
	}
	fmt.Fprintf(&buf, "author %s %d\n", c.Author, c.AuthorTime)
	fmt.Fprintf(&buf, "committer %s %d\n", c.Committer, c.CommitterTime)
	fmt.Fprintf(&buf, "timestamp %d\n", c.Timestamp)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: commit missing header/message separator", ErrCorruptObject)
	}
	header := string(data[:idx])
	c := &CommitObj{Message: string(data[idx+2:])}

	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed commit header line %q", ErrCorruptObject, line)
		}
		switch key {
		case "tree":
			h, err := ParseHash(val)
			if err != nil {
				return nil, fmt.Errorf("%w: commit tree: %v", ErrCorruptObject, err)
			}
			c.TreeHash = h
		case "parent":
			if c.Parent != "" {
				return nil, fmt.Errorf("%w: commit has more than one parent", ErrCorruptObject)
			}
			h, err := ParseHash(val)
			if err != nil {
				return nil, fmt.Errorf("%w: commit parent: %v", ErrCorruptObject, err)
			}
			c.Parent = h
		case "author":
			sig, ts, err := parseSignatureLine(val)
			if err != nil {
				return nil, fmt.Errorf("%w: commit author: %v", ErrCorruptObject, err)
			}
			c.Author, c.AuthorTime = sig, ts
		case "committer":
			sig, ts, err := parseSignatureLine(val)
			if err != nil {
				return nil, fmt.Errorf("%w: commit committer: %v", ErrCorruptObject, err)
			}
			c.Committer, c.CommitterTime = sig, ts
		case "timestamp":
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad commit timestamp %q", ErrCorruptObject, val)
			}
			c.Timestamp = ts
		default:
			return nil, fmt.Errorf("%w: unknown commit header key %q", ErrCorruptObject, key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("%w: commit has no tree", ErrCorruptObject)
	}
	return c, nil
}

// ParseSignature parses and validates "Name <email>".
func ParseSignature(s string) (Signature, error) {
	open := strings.LastIndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return Signature{}, fmt.Errorf("malformed identity %q, want \"Name <email>\"", s)
	}
	sig := Signature{
		Name:  strings.TrimSpace(s[:open]),
		Email: s[open+1 : len(s)-1],
	}
	if err := sig.Validate(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// parseSignatureLine parses "Name <email> epoch".
func parseSignatureLine(val string) (Signature, int64, error) {
	sp := strings.LastIndexByte(val, ' ')
	if sp < 0 {
		return Signature{}, 0, fmt.Errorf("missing time in %q", val)
	}
	ts, err := strconv.ParseInt(val[sp+1:], 10, 64)
	if err != nil {
		return Signature{}, 0, fmt.Errorf("bad time in %q", val)
	}
	sig, err := ParseSignature(val[:sp])
	if err != nil {
		return Signature{}, 0, err
	}
	return sig, ts, nil
}
