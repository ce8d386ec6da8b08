package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
)

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
//
// Every file holds the zlib-compressed form of "type len\0content".
type Store struct {
	root  string
	level int
}

// NewStore creates a Store rooted at the given directory, compressing with
// zlib's default level. The objects/ subdirectory is created lazily on
// first write.
func NewStore(root string) *Store {
	return &Store{root: root, level: zlib.DefaultCompression}
}

// NewStoreLevel is like NewStore with an explicit zlib compression level.
func NewStoreLevel(root string, level int) (*Store, error) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		return nil, fmt.Errorf("object store: invalid compression level %d", level)
	}
	return &Store{root: root, level: level}, nil
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if _, err := ParseHash(string(h)); err != nil {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. Writes are atomic:
// compressed data is written to a temp file and then renamed into place.
// An object that already exists is never rewritten.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, s.level)
	if err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if _, err := zw.Write(envelope(objType, len(data))); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	log.WithFields(logrus.Fields{
		"hash": h,
		"type": objType,
		"size": len(data),
	}).Debug("stored object")
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if _, err := ParseHash(string(h)); err != nil {
		return "", nil, fmt.Errorf("object read: %w", err)
	}

	f, err := os.Open(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrObjectNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %v", h, ErrCorruptObject, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %v", h, ErrCorruptObject, err)
	}

	objType, content, err := parseEnvelope(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	if got := HashObject(objType, content); got != h {
		return "", nil, fmt.Errorf("object read %s: %w: content hashes to %s", h, ErrCorruptObject, got)
	}
	return objType, content, nil
}

// parseEnvelope splits decompressed bytes into "type len\0" and content.
func parseEnvelope(raw []byte) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("%w: invalid format (no NUL)", ErrCorruptObject)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	kind, size, ok := strings.Cut(header, " ")
	if !ok {
		return "", nil, fmt.Errorf("%w: invalid header %q", ErrCorruptObject, header)
	}
	objType := ObjectType(kind)
	if !objType.Valid() {
		return "", nil, fmt.Errorf("%w: unknown type %q", ErrCorruptObject, kind)
	}
	length, err := strconv.Atoi(size)
	if err != nil || length < 0 {
		return "", nil, fmt.Errorf("%w: invalid length %q", ErrCorruptObject, size)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("%w: length mismatch (header=%d, actual=%d)", ErrCorruptObject, length, len(content))
	}
	return objType, content, nil
}

// readTyped reads h and checks that it has the wanted type.
func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, &TypeMismatchError{Hash: h, Got: objType, Want: want}
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, b.Data)
}

// ReadBlob reads a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return &Blob{Data: data}, nil
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	tr, err := UnmarshalTree(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return tr, nil
}

// WriteCommit serializes and stores a CommitObj. Author and committer must
// pass Signature.Validate so the stored commit can be parsed back.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	if err := c.Author.Validate(); err != nil {
		return "", fmt.Errorf("commit author: %w", err)
	}
	if err := c.Committer.Validate(); err != nil {
		return "", fmt.Errorf("commit committer: %w", err)
	}
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return c, nil
}
