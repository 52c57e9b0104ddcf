package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewThenSaveThenLoadRoundTrips(t *testing.T) {
	base := t.TempDir()

	ctx, err := New(base, "s1")
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(ctx.Dir, "..", "..", "f.txt")
	ctx.Txn.Start("edit f", "test")
	ctx.Txn.Backup(target, "")
	if err := os.WriteFile(target, []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Txn.Commit(map[string]string{target: "hello\n"}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.SaveJournal(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(base, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Txn.UndoStack()) != 1 {
		t.Fatalf("undo stack length = %d, want 1", len(reloaded.Txn.UndoStack()))
	}
	if diff := cmp.Diff(ctx.Txn.Stats(), reloaded.Txn.Stats()); diff != "" {
		t.Fatalf("reloaded stats diverged from the stats before save (-before +after):\n%s", diff)
	}
}

func TestLoadOfNeverCreatedSessionReturnsFreshContext(t *testing.T) {
	base := t.TempDir()
	ctx, err := Load(base, "new-session")
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.Txn.UndoStack()) != 0 {
		t.Fatal("expected an empty undo stack for a brand new session")
	}
}

func TestResetClearsStateAndRotatesSecret(t *testing.T) {
	base := t.TempDir()
	ctx, err := New(base, "s1")
	if err != nil {
		t.Fatal(err)
	}
	ctx.Access.RegisterRead("/some/path")
	oldLAT := ctx.LAT

	if err := ctx.Reset(); err != nil {
		t.Fatal(err)
	}
	if ctx.Access.HasBeenRead("/some/path") {
		t.Fatal("expected read records cleared after reset")
	}
	if ctx.LAT == oldLAT {
		t.Fatal("expected a fresh LAT issuer after reset")
	}
}
