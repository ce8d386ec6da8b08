package repo

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/object"
)

// CheckoutOptions controls the safety checks of Checkout.
type CheckoutOptions struct {
	// Force replaces the working tree even if it differs from HEAD.
	Force bool
}

// CheckoutPlan describes what a checkout would do to the working tree.
type CheckoutPlan struct {
	Commit   object.Hash
	TreeHash object.Hash
	Branch   string   // set when the target named a branch
	Remove   []string // entries deleted first, slash-separated
	Write    []string // files restored from the commit, slash-separated
	Dirty    bool     // working tree differs from HEAD's tree
}

// PlanCheckout resolves target and reports what Checkout would remove and
// write, without touching the working tree.
func (r *Repo) PlanCheckout(target string) (*CheckoutPlan, error) {
	plan, _, err := r.planCheckout(target)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return plan, nil
}

// Checkout replaces the working tree with the snapshot of target, which is a
// commit hash or the name of an existing branch.
//
// Algorithm:
//  1. Resolve target and read its commit (must be a commit object).
//  2. Refuse if the working tree differs from HEAD, unless opts.Force.
//  3. Remove every top-level entry except .mygit and the running executable.
//     Directories on the path to a nested executable are emptied instead.
//  4. Restore the commit's tree into the root.
//  5. Point HEAD at the commit (detached) or the branch.
//  6. Rewrite the staging index to match the restored files.
//
// Nothing is rolled back if restoration fails part-way; the working tree is
// then left partially restored.
func (r *Repo) Checkout(target string, opts CheckoutOptions) error {
	unlock, err := r.lock()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	defer unlock()

	// 1-2. Resolve and check.
	plan, files, err := r.planCheckout(target)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if plan.Dirty && !opts.Force {
		return fmt.Errorf("checkout: %w (commit them or use --force)", ErrDirtyWorkTree)
	}
	oldHead, err := r.HeadCommit()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	// 3. Wipe.
	for _, name := range plan.Remove {
		log.WithFields(logrus.Fields{"path": name}).Debug("checkout: removing")
		if err := os.RemoveAll(filepath.Join(r.RootDir, filepath.FromSlash(name))); err != nil {
			return fmt.Errorf("checkout: remove %q: %w", name, err)
		}
	}

	// 4. Restore.
	if err := r.restoreTree(plan.TreeHash, r.RootDir, runningExecutable()); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	// 5. Update HEAD.
	headContent := string(plan.Commit) + "\n"
	moving := string(plan.Commit)
	if plan.Branch != "" {
		headContent = "ref: refs/heads/" + plan.Branch + "\n"
		moving = plan.Branch
	}
	headPath := filepath.Join(r.GitDir, "HEAD")
	if err := replaceFileLocked(headPath, func() ([]byte, error) { return []byte(headContent), nil }); err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}
	if err := r.appendReflog("HEAD", oldHead, plan.Commit, ReflogReason{Action: ReflogCheckout, Detail: "moving to " + moving}); err != nil {
		return &RefUpdateReflogError{Ref: "HEAD", OldHash: oldHead, NewHash: plan.Commit, Err: err}
	}

	// 6. Reset staging.
	if err := r.resetIndex(files); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	return nil
}

// planCheckout resolves target and computes the plan plus the flattened
// file list of the target tree.
func (r *Repo) planCheckout(target string) (*CheckoutPlan, []TreeFileEntry, error) {
	commitHash, branch, err := r.resolveCheckoutTarget(target)
	if err != nil {
		return nil, nil, err
	}
	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return nil, nil, fmt.Errorf("read commit %s: %w", commitHash, err)
	}
	if err := r.checkRootEntries(commit.TreeHash); err != nil {
		return nil, nil, err
	}
	files, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, nil, err
	}

	plan := &CheckoutPlan{
		Commit:   commitHash,
		TreeHash: commit.TreeHash,
		Branch:   branch,
	}
	for _, f := range files {
		plan.Write = append(plan.Write, f.Path)
	}

	plan.Remove, err = r.removableEntries(runningExecutable())
	if err != nil {
		return nil, nil, err
	}
	plan.Dirty, err = r.isDirty(len(plan.Remove) > 0)
	if err != nil {
		return nil, nil, err
	}
	return plan, files, nil
}

// resolveCheckoutTarget prefers an existing branch name over a raw hash.
func (r *Repo) resolveCheckoutTarget(target string) (object.Hash, string, error) {
	if object.ValidateEntryName(target) == nil {
		if h, err := r.ResolveRef("refs/heads/" + target); err == nil {
			return h, target, nil
		}
	}
	h, err := object.ParseHash(target)
	if err != nil {
		return "", "", fmt.Errorf("resolve %q: %w", target, err)
	}
	return h, "", nil
}

// isDirty reports whether the working tree differs from HEAD's tree. With
// no commits yet, any entry in the working tree counts as a change.
func (r *Repo) isDirty(hasEntries bool) (bool, error) {
	head, err := r.HeadCommit()
	if err != nil {
		return false, err
	}
	if head == "" {
		return hasEntries, nil
	}
	commit, err := r.Store.ReadCommit(head)
	if err != nil {
		return false, fmt.Errorf("read HEAD commit: %w", err)
	}
	current, err := r.workTreeHash()
	if err != nil {
		return false, err
	}
	return current != commit.TreeHash, nil
}

// checkRootEntries rejects a root tree that would write into the metadata
// directory.
func (r *Repo) checkRootEntries(h object.Hash) error {
	entries, err := r.DecodeTree(h)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == MetaDir {
			return fmt.Errorf("%w: tree %s has a root entry named %s", object.ErrCorruptObject, h, MetaDir)
		}
	}
	return nil
}

// removableEntries lists the slash-separated paths a checkout deletes: every
// top-level entry except the metadata directory and the running executable.
// Directories that lead down to a nested executable are descended into and
// only their other children are listed.
func (r *Repo) removableEntries(exe string) ([]string, error) {
	chain := r.executableChain(exe)

	var names []string
	stack := []string{""}
	for len(stack) > 0 {
		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("list working tree: %w", err)
		}
		for _, e := range entries {
			child := path.Join(rel, e.Name())
			switch {
			case rel == "" && e.Name() == MetaDir:
			case isExecutable(filepath.Join(r.RootDir, filepath.FromSlash(child)), exe):
			case chain[child] && e.IsDir():
				stack = append(stack, child)
			default:
				names = append(names, child)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// executableChain returns the directories, relative to the root, that
// contain exe. It is empty when exe is outside the working tree or sits
// directly in the root.
func (r *Repo) executableChain(exe string) map[string]bool {
	if exe == "" {
		return nil
	}
	root := r.RootDir
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(root, exe)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil
	}
	chain := make(map[string]bool)
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		chain[dir] = true
	}
	return chain
}

// restoreTree writes the tree h into dir using an explicit work stack.
func (r *Repo) restoreTree(h object.Hash, dir, exe string) error {
	type pendingTree struct {
		hash object.Hash
		dir  string
	}

	stack := []pendingTree{{hash: h, dir: dir}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := r.DecodeTree(cur.hash)
		if err != nil {
			return fmt.Errorf("restore %s: %w", cur.dir, err)
		}
		for _, entry := range entries {
			if cur.dir == dir && entry.Name == MetaDir {
				return fmt.Errorf("restore: %w: tree %s has a root entry named %s", object.ErrCorruptObject, cur.hash, MetaDir)
			}
			full := filepath.Join(cur.dir, entry.Name)
			if entry.IsDir() {
				if err := os.MkdirAll(full, 0o755); err != nil {
					return fmt.Errorf("restore: mkdir %q: %w", full, err)
				}
				stack = append(stack, pendingTree{hash: entry.Hash, dir: full})
				continue
			}
			if isExecutable(full, exe) {
				log.WithFields(logrus.Fields{"path": full}).Warn("checkout: leaving running executable in place")
				continue
			}
			blob, err := r.Store.ReadBlob(entry.Hash)
			if err != nil {
				return fmt.Errorf("restore %q: %w", full, err)
			}
			if err := os.WriteFile(full, blob.Data, 0o644); err != nil {
				return fmt.Errorf("restore: write %q: %w", full, err)
			}
		}
	}
	return nil
}

// runningExecutable is replaced in tests.
var runningExecutable = protectedExecutable

// protectedExecutable returns the resolved path of the running binary, or ""
// if it cannot be determined.
func protectedExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe
}

func isExecutable(p, exe string) bool {
	if exe == "" {
		return false
	}
	if p == exe {
		return true
	}
	resolved, err := filepath.EvalSymlinks(p)
	return err == nil && resolved == exe
}
