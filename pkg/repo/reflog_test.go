package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/mygit/pkg/object"
)

func updateReason(detail string) ReflogReason {
	return ReflogReason{Action: ReflogUpdate, Detail: detail}
}

func TestUpdateRef_WritesReflog(t *testing.T) {
	r := newTestRepo(t)

	h1 := object.Hash(strings.Repeat("a", object.HashSize))
	h2 := object.Hash(strings.Repeat("b", object.HashSize))

	if err := r.UpdateRefCAS("refs/heads/master", h1, updateReason("one")); err != nil {
		t.Fatalf("UpdateRefCAS(h1): %v", err)
	}
	if err := r.UpdateRefCAS("refs/heads/master", h2, updateReason("two")); err != nil {
		t.Fatalf("UpdateRefCAS(h2): %v", err)
	}

	entries, err := r.ReadReflog("master", 10)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 reflog entries, got %d", len(entries))
	}
	if entries[0].NewHash != h2 || entries[0].OldHash != h1 || entries[0].Reason != updateReason("two") {
		t.Fatalf("latest reflog entry = %+v", entries[0])
	}
	if entries[1].NewHash != h1 || entries[1].OldHash != "" {
		t.Fatalf("previous reflog entry = %+v, want empty OldHash", entries[1])
	}

	data, err := os.ReadFile(filepath.Join(r.GitDir, "logs", "refs", "heads", "master"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	first, _, _ := strings.Cut(string(data), "\n")
	if want := nullHash + " " + string(h1) + " 1700000000 update: one"; first != want {
		t.Errorf("first line = %q, want %q", first, want)
	}
}

func TestReflog_CommitAndCheckoutReasons(t *testing.T) {
	r := newTestRepo(t)
	a, _ := commitTwoStates(t, r)

	branch, err := r.ReadReflog("master", 0)
	if err != nil {
		t.Fatalf("ReadReflog(master): %v", err)
	}
	want := []ReflogReason{
		{Action: ReflogCommit, Detail: "state B"},
		{Action: ReflogCommitInitial, Detail: "state A"},
	}
	if len(branch) != len(want) {
		t.Fatalf("master reflog = %+v", branch)
	}
	for i := range want {
		if branch[i].Reason != want[i] {
			t.Errorf("master[%d].Reason = %+v, want %+v", i, branch[i].Reason, want[i])
		}
	}

	if err := r.Checkout(string(a), CheckoutOptions{}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	head, err := r.ReadReflog("HEAD", 1)
	if err != nil {
		t.Fatalf("ReadReflog(HEAD): %v", err)
	}
	if len(head) != 1 || head[0].Reason.Action != ReflogCheckout || head[0].Reason.String() != "checkout: moving to "+string(a) {
		t.Errorf("HEAD reflog = %+v", head)
	}
}

func TestReflog_MultiLineDetailStaysOneLine(t *testing.T) {
	r := newTestRepo(t)
	h := object.Hash(strings.Repeat("c", object.HashSize))
	if err := r.UpdateRefCAS("refs/heads/master", h, updateReason("subject\n\nbody line")); err != nil {
		t.Fatalf("UpdateRefCAS: %v", err)
	}
	entries, err := r.ReadReflog("master", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason.Detail != "subject body line" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestReadReflog_CorruptLine(t *testing.T) {
	tests := map[string]string{
		"too few fields": "abc\n",
		"bad old hash":   "xyz " + strings.Repeat("a", object.HashSize) + " 1 update\n",
		"bad new hash":   nullHash + " short 1 update\n",
		"bad timestamp":  nullHash + " " + strings.Repeat("a", object.HashSize) + " soon update\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			r := newTestRepo(t)
			good := nullHash + " " + strings.Repeat("b", object.HashSize) + " 1 update: ok\n"
			writeFile(t, filepath.Join(r.GitDir, "logs", "refs", "heads", "master"), good+content)

			_, err := r.ReadReflog("master", 0)
			if !errors.Is(err, ErrCorruptReflog) {
				t.Fatalf("ReadReflog: err = %v, want ErrCorruptReflog", err)
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error %q should name line 2", err)
			}
		})
	}
}

func TestReadReflog_NeverMoved(t *testing.T) {
	r := newTestRepo(t)
	entries, err := r.ReadReflog("master", 0)
	if err != nil || len(entries) != 0 {
		t.Fatalf("ReadReflog = (%v, %v), want empty", entries, err)
	}
	if _, err := r.ReadReflog("..", 0); err == nil {
		t.Error("ReadReflog(..) should fail")
	}
}

func TestReadReflog_RespectsLimit(t *testing.T) {
	r := newTestRepo(t)

	for i := 0; i < 5; i++ {
		h := object.Hash(fmt.Sprintf("%040x", i+1))
		if err := r.UpdateRefCAS("refs/heads/master", h, updateReason("")); err != nil {
			t.Fatalf("UpdateRefCAS(%d): %v", i, err)
		}
	}

	entries, err := r.ReadReflog("", 2)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].NewHash != object.Hash(fmt.Sprintf("%040x", 5)) {
		t.Fatalf("newest entry = %+v", entries[0])
	}
}

func TestUpdateRefCAS_Mismatch(t *testing.T) {
	r := newTestRepo(t)
	h1 := object.Hash(strings.Repeat("1", object.HashSize))
	h2 := object.Hash(strings.Repeat("2", object.HashSize))
	stale := object.Hash(strings.Repeat("3", object.HashSize))

	if err := r.UpdateRefCAS("refs/heads/master", h1, updateReason("init")); err != nil {
		t.Fatalf("UpdateRefCAS: %v", err)
	}
	err := r.UpdateRefCAS("refs/heads/master", h2, updateReason(""), stale)
	if !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("UpdateRefCAS(stale): err = %v, want ErrRefCASMismatch", err)
	}

	got, err := r.ResolveRef("master")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != h1 {
		t.Fatalf("ref = %s after failed CAS, want %s", got, h1)
	}
	assertNoFile(t, filepath.Join(r.GitDir, "refs", "heads", "master.lock"))
}

func TestUpdateRef_LockContention(t *testing.T) {
	r := newTestRepo(t)
	lockPath := filepath.Join(r.GitDir, "refs", "heads", "master.lock")
	f, err := acquireLock(lockPath)
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	f.Close()

	err = r.UpdateRefCAS("refs/heads/master", object.Hash(strings.Repeat("a", object.HashSize)), updateReason(""))
	if err == nil || !strings.Contains(err.Error(), "timeout waiting for lock") {
		t.Fatalf("UpdateRefCAS with held lock: err = %v, want lock timeout", err)
	}
}
