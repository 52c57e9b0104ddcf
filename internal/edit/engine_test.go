package edit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/access"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lat"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/snapshot"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/txn"
)

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	sessionDir := filepath.Join(root, ".nts", "sessions", "s1")
	secret, err := lat.NewSecret()
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(
		access.New(),
		lat.NewIssuer("s1", secret),
		extchange.New(),
		lineage.New(),
		txn.NewManager("s1", snapshot.New(sessionDir), lineage.New(), extchange.New()),
	)
}

func TestEngineApplyRejectsUnreadFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\n"), 0644)

	e := newTestEngine(t, root)
	e.Txn.Start("edit", "")

	_, err := e.Apply(target, Request{Hunks: []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}}})
	if err_, ok := asNtsErr(err); !ok || err_.Kind != "NotRead" {
		t.Fatalf("err = %v, want NotRead", err)
	}
}

func TestEngineApplyChecksumBypassThenWrites(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\n"), 0644)
	crc := fsio.CRC32C([]byte("a\nb\n"))

	e := newTestEngine(t, root)
	e.Txn.Start("edit", "")

	result, err := e.Apply(target, Request{
		Hunks:               []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		ExpectedChecksum:    crc,
		HasExpectedChecksum: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.NewContent != "x\nb\n" {
		t.Fatalf("content = %q, want x\\nb\\n", result.NewContent)
	}
	if result.NewLAT == "" {
		t.Fatal("expected a fresh LAT to be issued")
	}

	got, _ := os.ReadFile(target)
	if string(got) != "x\nb\n" {
		t.Fatalf("file on disk = %q, want x\\nb\\n", got)
	}
	if !e.Access.HasBeenRead(target) {
		t.Fatal("file should be marked read-accessed after a successful edit")
	}
}

func TestEngineApplyWrongChecksumIsOptimisticLockFailure(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\n"), 0644)

	e := newTestEngine(t, root)
	e.Txn.Start("edit", "")

	_, err := e.Apply(target, Request{
		Hunks:               []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		ExpectedChecksum:    0xDEADBEEF,
		HasExpectedChecksum: true,
	})
	if e, ok := asNtsErr(err); !ok || e.Kind != "OptimisticLockFailure" {
		t.Fatalf("err = %v, want OptimisticLockFailure", err)
	}
}

func TestEngineApplyAlreadyReadDoesNotNeedChecksum(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\n"), 0644)

	e := newTestEngine(t, root)
	e.Txn.Start("edit", "")
	e.Access.RegisterRead(target)

	_, err := e.Apply(target, Request{Hunks: []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestEngineApplyWithValidAccessTokenWrites(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\nc\n"), 0644)

	e := newTestEngine(t, root)
	token, err := e.LAT.Issue(target, 1, 3, fsio.CRC32C([]byte("a\nb\nc\n")), 3, false)
	if err != nil {
		t.Fatal(err)
	}

	e.Txn.Start("edit", "")
	result, err := e.Apply(target, Request{
		Hunks:       []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		AccessToken: token,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.NewContent != "x\nb\nc\n" {
		t.Fatalf("content = %q, want x\\nb\\nc\\n", result.NewContent)
	}
	if !e.Access.HasBeenRead(target) {
		t.Fatal("a successful token-gated edit should register the read")
	}
}

func TestEngineApplyWithStaleAccessTokenIsOptimisticLockFailure(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\nc\n"), 0644)

	e := newTestEngine(t, root)
	token, err := e.LAT.Issue(target, 1, 3, fsio.CRC32C([]byte("a\nb\nc\n")), 3, false)
	if err != nil {
		t.Fatal(err)
	}

	// an external writer changes the file out from under the token.
	os.WriteFile(target, []byte("a\nB\nc\n"), 0644)

	e.Txn.Start("edit", "")
	_, err = e.Apply(target, Request{
		Hunks:       []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		AccessToken: token,
	})
	if nerr, ok := asNtsErr(err); !ok || nerr.Kind != "OptimisticLockFailure" {
		t.Fatalf("err = %v, want OptimisticLockFailure", err)
	}
}

func TestEngineApplyWithAccessTokenForDifferentSessionIsOptimisticLockFailure(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\nc\n"), 0644)

	e := newTestEngine(t, root)
	other := lat.NewIssuer("other-session", mustSecret(t))
	token, err := other.Issue(target, 1, 3, fsio.CRC32C([]byte("a\nb\nc\n")), 3, false)
	if err != nil {
		t.Fatal(err)
	}

	e.Txn.Start("edit", "")
	_, err = e.Apply(target, Request{
		Hunks:       []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		AccessToken: token,
	})
	if nerr, ok := asNtsErr(err); !ok || nerr.Kind != "OptimisticLockFailure" {
		t.Fatalf("err = %v, want OptimisticLockFailure", err)
	}
}

func TestEngineApplyExternalDriftIsRecordedEvenWhenTheEditFails(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "f.txt")
	os.WriteFile(target, []byte("a\nb\nc\n"), 0644)

	e := newTestEngine(t, root)
	token, err := e.LAT.Issue(target, 1, 3, fsio.CRC32C([]byte("a\nb\nc\n")), 3, false)
	if err != nil {
		t.Fatal(err)
	}
	// establish the baseline the way a read would have.
	e.Ext.Update(target, "a\nb\nc\n", fsio.EncodingUTF8)

	os.WriteFile(target, []byte("a\nB\nc\n"), 0644)

	e.Txn.Start("edit", "")
	_, err = e.Apply(target, Request{
		Hunks:       []Hunk{{Operation: OpReplace, StartLine: 1, EndLine: 1, Content: "x"}},
		AccessToken: token,
	})
	if _, ok := asNtsErr(err); !ok {
		t.Fatalf("expected the edit to fail on the stale token, got %v", err)
	}
	e.Txn.Rollback()

	if len(e.Txn.UndoStack()) != 1 {
		t.Fatalf("undo stack length = %d, want 1 ExternalChange entry", len(e.Txn.UndoStack()))
	}
	if e.Txn.UndoStack()[0].Type != journal.EntryExternalChange {
		t.Fatalf("undo entry type = %q, want %q", e.Txn.UndoStack()[0].Type, journal.EntryExternalChange)
	}
}

func mustSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := lat.NewSecret()
	if err != nil {
		t.Fatal(err)
	}
	return secret
}
