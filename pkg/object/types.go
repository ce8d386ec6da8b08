package object

import (
	"fmt"
	"strings"
)

// Hash is a 40-character lowercase hex-encoded SHA-1 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

// Valid reports whether t is one of the known object kinds.
func (t ObjectType) Valid() bool {
	switch t {
	case TypeBlob, TypeTree, TypeCommit:
		return true
	}
	return false
}

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir  = "40000"
	TreeModeFile = "100644"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Mode string // TreeModeFile or TreeModeDir
	Name string
	Hash Hash // blob hash for files, subtree hash for directories
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// Type returns the kind of object the entry points at.
func (e TreeEntry) Type() ObjectType {
	if e.IsDir() {
		return TypeTree
	}
	return TypeBlob
}

// TreeObj holds a list of tree entries, serialized sorted by Name.
type TreeObj struct {
	Entries []TreeEntry
}

// Signature identifies the person behind an author or committer line.
type Signature struct {
	Name  string
	Email string
}

// Validate rejects identities that would not survive a commit round trip:
// angle brackets or line breaks anywhere, or whitespace inside the email.
func (s Signature) Validate() error {
	if strings.ContainsAny(s.Name, "<>\r\n") || s.Name != strings.TrimSpace(s.Name) {
		return fmt.Errorf("%w: name %q", ErrBadSignature, s.Name)
	}
	if strings.ContainsAny(s.Email, "<>\r\n\t ") {
		return fmt.Errorf("%w: email %q", ErrBadSignature, s.Email)
	}
	return nil
}

// String renders the signature as "Name <email>".
func (s Signature) String() string {
	return s.Name + " <" + s.Email + ">"
}

// CommitObj represents a commit pointing to a tree with metadata. History is
// a single chain, so a commit has at most one parent.
type CommitObj struct {
	TreeHash      Hash
	Parent        Hash // empty for the root commit
	Author        Signature
	AuthorTime    int64
	Committer     Signature
	CommitterTime int64
	Timestamp     int64
	Message       string
}

// IsRoot reports whether the commit starts the chain.
func (c *CommitObj) IsRoot() bool {
	return c.Parent == ""
}
