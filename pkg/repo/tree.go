package repo

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/object"
)

// objectWriter is the part of the object store a snapshot needs.
type objectWriter interface {
	Write(objType object.ObjectType, data []byte) (object.Hash, error)
}

// hashOnly computes object hashes without storing anything.
type hashOnly struct{}

func (hashOnly) Write(objType object.ObjectType, data []byte) (object.Hash, error) {
	return object.HashObject(objType, data), nil
}

// TreeFileEntry represents a single file in a flattened tree.
type TreeFileEntry struct {
	Path     string // slash-separated, relative to the tree root
	BlobHash object.Hash
}

// Snapshot stores the directory at dir as a tree object and returns its
// hash. Regular files become blobs and subdirectories become subtrees; the
// repository's metadata directory is never included. Entries are sorted by
// name, so an unchanged directory always yields the same hash.
func (r *Repo) Snapshot(dir string) (object.Hash, error) {
	return r.snapshot(r.Store, dir)
}

// WriteTree snapshots the working tree root.
func (r *Repo) WriteTree() (object.Hash, error) {
	return r.Snapshot(r.RootDir)
}

// workTreeHash returns the hash WriteTree would produce, without writing.
func (r *Repo) workTreeHash() (object.Hash, error) {
	return r.snapshot(hashOnly{}, r.RootDir)
}

type pendingDir struct {
	path    string
	entries []os.DirEntry
}

// snapshot walks dir with an explicit stack. Directories are discovered in
// pre-order and hashed in reverse, so every subtree hash is known before
// its parent is serialized.
func (r *Repo) snapshot(w objectWriter, dir string) (object.Hash, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("snapshot: abs path: %w", err)
	}

	var order []pendingDir
	stack := []string{root}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(p)
		if err != nil {
			return "", fmt.Errorf("snapshot: %w", err)
		}
		kept := entries[:0]
		for _, e := range entries {
			full := filepath.Join(p, e.Name())
			if full == r.GitDir {
				continue
			}
			if e.IsDir() {
				stack = append(stack, full)
			}
			kept = append(kept, e)
		}
		order = append(order, pendingDir{path: p, entries: kept})
	}

	subtrees := make(map[string]object.Hash, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		d := order[i]
		tr := &object.TreeObj{Entries: make([]object.TreeEntry, 0, len(d.entries))}
		for _, e := range d.entries {
			full := filepath.Join(d.path, e.Name())
			switch {
			case e.IsDir():
				tr.Entries = append(tr.Entries, object.TreeEntry{
					Mode: object.TreeModeDir,
					Name: e.Name(),
					Hash: subtrees[full],
				})
			case e.Type().IsRegular():
				data, err := os.ReadFile(full)
				if err != nil {
					return "", fmt.Errorf("snapshot: %w", err)
				}
				h, err := w.Write(object.TypeBlob, data)
				if err != nil {
					return "", fmt.Errorf("snapshot %s: %w", full, err)
				}
				tr.Entries = append(tr.Entries, object.TreeEntry{
					Mode: object.TreeModeFile,
					Name: e.Name(),
					Hash: h,
				})
			default:
				log.WithFields(logrus.Fields{"path": full, "mode": e.Type().String()}).Debug("snapshot: skipping non-regular file")
			}
		}

		data, err := object.MarshalTree(tr)
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", d.path, err)
		}
		h, err := w.Write(object.TypeTree, data)
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", d.path, err)
		}
		subtrees[d.path] = h
		log.WithFields(logrus.Fields{"dir": d.path, "tree": h, "entries": len(tr.Entries)}).Debug("snapshot directory")
	}
	return subtrees[root], nil
}

// DecodeTree loads a tree object and returns its entries in stored
// (name-sorted) order. It fails with object.ErrNotATree if h is not a tree.
func (r *Repo) DecodeTree(h object.Hash) ([]object.TreeEntry, error) {
	tr, err := r.Store.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return tr.Entries, nil
}

// FlattenTree walks a tree object, returning all file entries with their
// full slash-separated paths, sorted by path.
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	type pendingTree struct {
		hash   object.Hash
		prefix string
	}

	var result []TreeFileEntry
	stack := []pendingTree{{hash: h}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := r.DecodeTree(cur.hash)
		if err != nil {
			return nil, fmt.Errorf("flatten tree: %w", err)
		}
		for _, entry := range entries {
			fullPath := path.Join(cur.prefix, entry.Name)
			if entry.IsDir() {
				stack = append(stack, pendingTree{hash: entry.Hash, prefix: fullPath})
				continue
			}
			result = append(result, TreeFileEntry{Path: fullPath, BlobHash: entry.Hash})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result, nil
}
