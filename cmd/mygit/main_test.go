package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/mygit/pkg/log"
	"github.com/odvcencio/mygit/pkg/object"
	"github.com/odvcencio/mygit/pkg/repo"
)

// runMygit executes the root command with args inside dir and returns its
// stdout and error.
func runMygit(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	defer func() {
		if err := os.Chdir(prevWD); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	}()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err = cmd.Execute()
	return stdout.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runMygit(t, dir, args...)
	if err != nil {
		t.Fatalf("mygit %s: %v\noutput:\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func initRepoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustRun(t, dir, "init")
	return dir
}

func writeRepoFile(t *testing.T, root, relPath, content string) {
	t.Helper()

	absPath := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): %v", relPath, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): %v", relPath, err)
	}
}

func nonEmptyLines(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestInitCmd_Twice(t *testing.T) {
	dir := t.TempDir()

	out := mustRun(t, dir, "init")
	if !strings.HasPrefix(out, "initialized empty mygit repository in ") {
		t.Errorf("init output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, repo.MetaDir, "HEAD")); err != nil {
		t.Fatalf("HEAD missing after init: %v", err)
	}

	_, err := runMygit(t, dir, "init")
	if !errors.Is(err, repo.ErrRepositoryExists) {
		t.Fatalf("second init: err = %v, want ErrRepositoryExists", err)
	}
}

func TestInitCmd_CreatesTargetDirectory(t *testing.T) {
	parent := t.TempDir()
	mustRun(t, parent, "init", "nested/project")
	if _, err := os.Stat(filepath.Join(parent, "nested", "project", repo.MetaDir)); err != nil {
		t.Fatalf("metadata dir missing: %v", err)
	}
}

func TestHashObjectAndCatFile(t *testing.T) {
	dir := initRepoDir(t)
	writeRepoFile(t, dir, "hello.txt", "hello\n")
	const want = "ce013625030ba8dba906f756967f9e9ca394464a"

	if got := strings.TrimSpace(mustRun(t, dir, "hash-object", "hello.txt")); got != want {
		t.Fatalf("hash-object = %q, want %q", got, want)
	}
	if _, err := runMygit(t, dir, "cat-file", "-p", want); !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("cat-file before -w: err = %v, want ErrObjectNotFound", err)
	}

	if got := strings.TrimSpace(mustRun(t, dir, "hash-object", "-w", "hello.txt")); got != want {
		t.Fatalf("hash-object -w = %q, want %q", got, want)
	}

	tests := []struct {
		flag string
		want string
	}{
		{"-p", "hello\n"},
		{"-t", "blob\n"},
		{"-s", "6\n"},
	}
	for _, tc := range tests {
		if got := mustRun(t, dir, "cat-file", tc.flag, want); got != tc.want {
			t.Errorf("cat-file %s = %q, want %q", tc.flag, got, tc.want)
		}
	}
}

func TestHashObjectCmd_MissingFile(t *testing.T) {
	dir := initRepoDir(t)
	if _, err := runMygit(t, dir, "hash-object", "-w", "absent.txt"); !errors.Is(err, repo.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestCatFileCmd_InvalidFlags(t *testing.T) {
	dir := initRepoDir(t)
	digest := strings.Repeat("a", object.HashSize)

	for name, args := range map[string][]string{
		"none":     {"cat-file", digest},
		"two":      {"cat-file", "-p", "-t", digest},
		"unknown":  {"cat-file", "-x", digest},
		"longform": {"cat-file", "--bogus", digest},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := runMygit(t, dir, args...); !errors.Is(err, ErrInvalidFlag) {
				t.Fatalf("err = %v, want ErrInvalidFlag", err)
			}
		})
	}
}

func TestCatFileCmd_InvalidDigest(t *testing.T) {
	dir := initRepoDir(t)
	if _, err := runMygit(t, dir, "cat-file", "-t", "not-a-digest"); !errors.Is(err, object.ErrInvalidHash) {
		t.Fatalf("err = %v, want ErrInvalidHash", err)
	}
}

func TestWriteTreeAndLsTree(t *testing.T) {
	dir := initRepoDir(t)
	writeRepoFile(t, dir, "a.txt", "a\n")
	writeRepoFile(t, dir, "sub/b.txt", "b\n")

	root := strings.TrimSpace(mustRun(t, dir, "write-tree"))
	lines := nonEmptyLines(mustRun(t, dir, "ls-tree", root))
	if len(lines) != 2 {
		t.Fatalf("ls-tree lines = %q, want 2", lines)
	}

	blobA := object.HashObject(object.TypeBlob, []byte("a\n"))
	if want := "100644 blob " + string(blobA) + "\ta.txt"; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if !strings.HasPrefix(lines[1], "040000 tree ") || !strings.HasSuffix(lines[1], "\tsub") {
		t.Errorf("line 1 = %q, want 040000 tree ...\\tsub", lines[1])
	}

	if got := mustRun(t, dir, "ls-tree", "--name-only", root); got != "a.txt\nsub\n" {
		t.Errorf("ls-tree --name-only = %q", got)
	}

	blobHash := string(blobA)
	if _, err := runMygit(t, dir, "ls-tree", blobHash); !errors.Is(err, object.ErrNotATree) {
		t.Errorf("ls-tree(blob): err = %v, want ErrNotATree", err)
	}
}

func TestCommitAndLogCmd(t *testing.T) {
	dir := initRepoDir(t)

	if out := mustRun(t, dir, "log"); strings.TrimSpace(out) != "no commits yet" {
		t.Errorf("log on empty repo = %q", out)
	}

	writeRepoFile(t, dir, "f.txt", "one")
	out := mustRun(t, dir, "commit", "-m", "first")
	if !strings.HasPrefix(out, "[master ") || !strings.HasSuffix(out, "] first\n") {
		t.Errorf("commit output = %q", out)
	}
	writeRepoFile(t, dir, "f.txt", "two")
	mustRun(t, dir, "commit", "-m", "second", "--author", "Ada Lovelace <ada@example.com>")

	lines := nonEmptyLines(mustRun(t, dir, "log", "--oneline"))
	if len(lines) != 2 {
		t.Fatalf("log --oneline = %q, want 2 lines", lines)
	}
	if !strings.Contains(lines[0], "(HEAD -> master) second") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], " first") || strings.Contains(lines[1], "HEAD") {
		t.Errorf("second line = %q", lines[1])
	}

	full := mustRun(t, dir, "log", "--limit", "1")
	if !strings.Contains(full, "Author: Ada Lovelace <ada@example.com>") || strings.Contains(full, "first") {
		t.Errorf("log --limit 1 = %q", full)
	}
}

func TestCommitCmd_DefaultMessageAndBadAuthor(t *testing.T) {
	dir := initRepoDir(t)

	out := mustRun(t, dir, "commit")
	if !strings.HasSuffix(out, "] "+repo.DefaultCommitMessage+"\n") {
		t.Errorf("commit output = %q", out)
	}
	if _, err := runMygit(t, dir, "commit", "--author", "nobody"); !errors.Is(err, ErrInvalidFlag) {
		t.Errorf("bad --author: err = %v, want ErrInvalidFlag", err)
	}
}

func TestCommitCmd_RejectsLineBreakInIdentity(t *testing.T) {
	dir := initRepoDir(t)
	writeRepoFile(t, dir, "f.txt", "one")
	mustRun(t, dir, "commit", "-m", "first")

	_, err := runMygit(t, dir, "commit", "-m", "forged", "--author", "Eve\nparent x <eve@example.com>")
	if !errors.Is(err, ErrInvalidFlag) || !errors.Is(err, object.ErrBadSignature) {
		t.Errorf("--author with newline: err = %v, want ErrInvalidFlag and ErrBadSignature", err)
	}

	t.Setenv("MYGIT_AUTHOR_NAME", "Eve\nparent x")
	if _, err := runMygit(t, dir, "commit", "-m", "forged"); !errors.Is(err, object.ErrBadSignature) {
		t.Errorf("MYGIT_AUTHOR_NAME with newline: err = %v, want ErrBadSignature", err)
	}

	t.Setenv("MYGIT_AUTHOR_NAME", "")
	lines := nonEmptyLines(mustRun(t, dir, "log", "--oneline"))
	if len(lines) != 1 || !strings.HasSuffix(lines[0], " first") {
		t.Errorf("log after rejected commits = %q", lines)
	}
}

func TestLogCmd_MultiLineMessage(t *testing.T) {
	dir := initRepoDir(t)
	writeRepoFile(t, dir, "f.txt", "one")
	mustRun(t, dir, "commit", "-m", "subject\n\nbody line one\nbody line two")

	out := mustRun(t, dir, "log")
	for _, want := range []string{"    subject\n", "    \n", "    body line one\n", "    body line two\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	dateLine := regexp.MustCompile(`(?m)^Date:   \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [+-]\d{4}$`)
	if !dateLine.MatchString(out) {
		t.Errorf("log output has no dated line with zone offset:\n%s", out)
	}

	lines := nonEmptyLines(mustRun(t, dir, "log", "--oneline"))
	if len(lines) != 1 || !strings.HasSuffix(lines[0], " subject") {
		t.Errorf("log --oneline = %q, want the subject only", lines)
	}
}

func TestVerboseDoesNotLeakBetweenRuns(t *testing.T) {
	dir := initRepoDir(t)
	t.Cleanup(func() { log.Log.SetLevel(logrus.WarnLevel) })

	mustRun(t, dir, "-v", "version")
	if got := log.Log.GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("level after -v = %v, want debug", got)
	}
	mustRun(t, dir, "version")
	if got := log.Log.GetLevel(); got != logrus.WarnLevel {
		t.Errorf("level after plain run = %v, want warn", got)
	}
	mustRun(t, dir, "-v", "log")
	mustRun(t, dir, "log")
	if got := log.Log.GetLevel(); got == logrus.DebugLevel {
		t.Errorf("level after plain log = %v, want the configured level", got)
	}
}

func TestCheckoutCmd(t *testing.T) {
	dir := initRepoDir(t)
	writeRepoFile(t, dir, "a.txt", "A\n")
	mustRun(t, dir, "commit", "-m", "A")
	lines := nonEmptyLines(mustRun(t, dir, "log", "--oneline"))
	short := strings.Fields(lines[0])[0]

	r, err := repo.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hashA, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if hashA.Short() != short {
		t.Fatalf("log short hash %q does not match HEAD %s", short, hashA)
	}

	writeRepoFile(t, dir, "a.txt", "B\n")
	writeRepoFile(t, dir, "b.txt", "B\n")
	mustRun(t, dir, "commit", "-m", "B")

	plan := mustRun(t, dir, "checkout", "--dry-run", string(hashA))
	if !strings.Contains(plan, "remove b.txt") || !strings.Contains(plan, "write  a.txt") {
		t.Errorf("dry-run output = %q", plan)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err != nil {
		t.Fatalf("dry-run touched the working tree: %v", err)
	}

	out := mustRun(t, dir, "checkout", string(hashA))
	if want := "HEAD is now at " + hashA.Short() + " (detached)\n"; out != want {
		t.Errorf("checkout output = %q, want %q", out, want)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(data) != "A\n" {
		t.Errorf("a.txt = %q (%v), want A", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); !os.IsNotExist(err) {
		t.Errorf("b.txt should be gone, stat err = %v", err)
	}

	writeRepoFile(t, dir, "a.txt", "dirty\n")
	if _, err := runMygit(t, dir, "checkout", "master"); !errors.Is(err, repo.ErrDirtyWorkTree) {
		t.Fatalf("checkout dirty: err = %v, want ErrDirtyWorkTree", err)
	}
	if out := mustRun(t, dir, "checkout", "--force", "master"); out != "switched to branch 'master'\n" {
		t.Errorf("checkout master = %q", out)
	}

	reflog := nonEmptyLines(mustRun(t, dir, "reflog", "HEAD", "--limit", "1"))
	if len(reflog) != 1 || !strings.Contains(reflog[0], "commit: B") {
		t.Errorf("reflog = %q", reflog)
	}
}

func TestVersionCmd(t *testing.T) {
	if out := mustRun(t, t.TempDir(), "version"); out != "mygit "+version+"\n" {
		t.Errorf("version = %q", out)
	}
}

func TestPadMode(t *testing.T) {
	tests := map[string]string{
		object.TreeModeDir:  "040000",
		object.TreeModeFile: "100644",
	}
	for in, want := range tests {
		if got := padMode(in); got != want {
			t.Errorf("padMode(%q) = %q, want %q", in, got, want)
		}
	}
}
