package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/mygit/pkg/object"
)

// IndexEntry records the staged state of a single file.
type IndexEntry struct {
	BlobHash object.Hash `json:"blob_hash"`
	ModTime  int64       `json:"mod_time"`
	Size     int64       `json:"size"`
}

// Index maps slash-separated repository paths to their staged blobs. It is
// informational only: commits always snapshot the working tree.
type Index struct {
	Entries map[string]*IndexEntry `json:"entries"`
}

// indexPath returns the filesystem path to the staging index file.
func (r *Repo) indexPath() string {
	return filepath.Join(r.GitDir, "index")
}

// ReadIndex loads the staging index from .mygit/index. If the file does not
// exist, an empty Index is returned (no error).
func (r *Repo) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{Entries: make(map[string]*IndexEntry)}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("read index: unmarshal: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*IndexEntry)
	}
	return &idx, nil
}

// WriteIndex atomically writes the staging index to .mygit/index.
func (r *Repo) WriteIndex(idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("write index: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.GitDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write index: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: close: %w", err)
	}

	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write index: rename: %w", err)
	}
	return nil
}

// Add stages the given paths. Each path is resolved relative to the current
// directory; a directory stages every regular file beneath it. Each file is
// written as a blob and recorded in the index, which is flushed once at the
// end. A missing path fails with ErrFileNotFound before anything is staged.
func (r *Repo) Add(paths []string) error {
	unlock, err := r.lock()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	defer unlock()

	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	var files []string
	for _, p := range paths {
		found, err := r.collectFiles(p)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		files = append(files, found...)
	}

	for _, absPath := range files {
		relPath, err := r.repoRelPath(absPath)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("add: read %q: %w", relPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("add: write blob %q: %w", relPath, err)
		}
		idx.Entries[relPath] = &IndexEntry{
			BlobHash: blobHash,
			ModTime:  info.ModTime().Unix(),
			Size:     info.Size(),
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// collectFiles expands p into absolute paths of regular files inside the
// working tree, skipping the metadata directory.
func (r *Repo) collectFiles(p string) ([]string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
		}
		return nil, err
	}
	if _, err := r.repoRelPath(abs); err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}

	var files []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() && path == r.GitDir {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// repoRelPath converts an absolute path into a slash-separated path relative
// to the repository root. Paths outside the root and paths inside the
// metadata directory are rejected.
func (r *Repo) repoRelPath(abs string) (string, error) {
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return "", fmt.Errorf("cannot make %q relative to %q: %w", abs, r.RootDir, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is outside repository %s", abs, r.RootDir)
	}
	if rel == MetaDir || strings.HasPrefix(rel, MetaDir+"/") {
		return "", fmt.Errorf("path %q is inside %s", abs, MetaDir)
	}
	return rel, nil
}

// resetIndex replaces the index with the files just restored by checkout.
func (r *Repo) resetIndex(files []TreeFileEntry) error {
	idx := &Index{Entries: make(map[string]*IndexEntry, len(files))}
	for _, f := range files {
		info, err := os.Stat(filepath.Join(r.RootDir, filepath.FromSlash(f.Path)))
		if err != nil {
			// Skipped files (the running executable) are not staged.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("reset index: stat %q: %w", f.Path, err)
		}
		idx.Entries[f.Path] = &IndexEntry{
			BlobHash: f.BlobHash,
			ModTime:  info.ModTime().Unix(),
			Size:     info.Size(),
		}
	}
	return r.WriteIndex(idx)
}
