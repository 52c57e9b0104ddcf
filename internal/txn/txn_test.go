package txn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/snapshot"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	sessionDir := filepath.Join(root, ".nts", "sessions", "s1")
	store := snapshot.New(sessionDir)
	return NewManager("s1", store, lineage.New(), extchange.New()), root
}

func TestCommitThenUndoRestoresContent(t *testing.T) {
	m, root := newTestManager(t)
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("v1\n"), 0644)

	m.Start("edit f.txt", "change v1 to v2")
	if err := m.Backup(target, "v1\n"); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(target, []byte("v2\n"), 0644)
	if _, err := m.Commit(map[string]string{target: "v2\n"}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Undo(); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "v1\n" {
		t.Fatalf("after undo content = %q, want v1", got)
	}

	if _, err := m.Redo(); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(target)
	if string(got) != "v2\n" {
		t.Fatalf("after redo content = %q, want v2", got)
	}
}

func TestNestedTransactionOnlyOutermostCommits(t *testing.T) {
	m, _ := newTestManager(t)
	m.Start("outer", "")
	m.Start("inner", "")
	if m.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", m.Depth())
	}
	if entry, _ := m.Commit(nil); entry != nil {
		t.Fatal("inner commit should not finalize the scope")
	}
	if m.Depth() != 1 {
		t.Fatalf("depth after inner commit = %d, want 1", m.Depth())
	}
	entry, err := m.Commit(nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("outer commit should finalize the scope")
	}
	if m.Depth() != 0 {
		t.Fatalf("depth after outer commit = %d, want 0", m.Depth())
	}
}

func TestRollbackDiscardsRegardlessOfDepth(t *testing.T) {
	m, root := newTestManager(t)
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("orig\n"), 0644)

	m.Start("outer", "")
	m.Backup(target, "orig\n")
	os.WriteFile(target, []byte("changed\n"), 0644)
	m.Start("inner", "")

	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if m.Depth() != 0 {
		t.Fatalf("depth after rollback = %d, want 0", m.Depth())
	}
	got, _ := os.ReadFile(target)
	if string(got) != "orig\n" {
		t.Fatalf("content after rollback = %q, want orig", got)
	}
}

func TestCheckpointAndRollbackToCheckpoint(t *testing.T) {
	m, root := newTestManager(t)
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("v0\n"), 0644)

	m.Start("t1", "")
	m.Backup(target, "v0\n")
	os.WriteFile(target, []byte("v1\n"), 0644)
	m.Commit(map[string]string{target: "v1\n"})

	m.CreateCheckpoint("cp1")

	m.Start("t2", "")
	m.Backup(target, "v1\n")
	os.WriteFile(target, []byte("v2\n"), 0644)
	m.Commit(map[string]string{target: "v2\n"})

	if _, err := m.RollbackToCheckpoint("cp1"); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "v1\n" {
		t.Fatalf("content after rollback to checkpoint = %q, want v1", got)
	}
}

func TestUndoResolvesMovedFile(t *testing.T) {
	m, root := newTestManager(t)
	original := filepath.Join(root, "a.txt")
	moved := filepath.Join(root, "b.txt")
	os.WriteFile(original, []byte("hello\n"), 0644)

	m.Start("edit a.txt", "")
	m.Backup(original, "hello\n")
	os.WriteFile(original, []byte("world\n"), 0644)
	m.Commit(map[string]string{original: "world\n"})

	os.Rename(original, moved)
	m.lineage.RecordMove(original, moved)

	result, err := m.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusResolvedMove {
		t.Fatalf("status = %v, want RESOLVED_MOVE", result.Status)
	}
	got, _ := os.ReadFile(moved)
	if string(got) != "hello\n" {
		t.Fatalf("content at moved path = %q, want hello", got)
	}
}

func TestHistoryEvictionDeletesOldestSnapshot(t *testing.T) {
	m, root := newTestManager(t)
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("v0\n"), 0644)

	var firstSnapshotID string
	for i := 0; i < MaxHistory+1; i++ {
		m.Start("edit", "")
		m.Backup(target, "whatever")
		os.WriteFile(target, []byte("v\n"), 0644)
		m.Commit(map[string]string{target: "v\n"})
		if i == 0 {
			firstSnapshotID = m.UndoStack()[0].Snapshots[target]
		}
	}

	if len(m.UndoStack()) != MaxHistory {
		t.Fatalf("undo stack length = %d, want %d", len(m.UndoStack()), MaxHistory)
	}
	if _, err := os.Stat(filepath.Join(m.snapshots.Dir(), firstSnapshotID+".bak")); !os.IsNotExist(err) {
		t.Fatal("oldest snapshot should have been deleted on eviction")
	}
}
