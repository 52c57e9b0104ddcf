package gitcollab

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("a.txt"); err != nil {
		t.Fatal(err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@t", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestCheckpointThenRestore(t *testing.T) {
	root := initRepo(t)
	c := New(root)

	if _, err := c.Checkpoint("s1", "before-change"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	repo, _ := git.PlainOpen(root)
	wt, _ := repo.Worktree()
	wt.Add("a.txt")
	wt.Commit("second", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@t", When: time.Now()},
	})

	if err := c.Restore("s1", "before-change"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1\n" {
		t.Fatalf("content after restore = %q, want v1", got)
	}
}

func TestRestoreUnknownCheckpointFails(t *testing.T) {
	root := initRepo(t)
	c := New(root)
	if err := c.Restore("s1", "nope"); err == nil {
		t.Fatal("expected an error for an unknown checkpoint")
	}
}

func TestCommitSession(t *testing.T) {
	root := initRepo(t)
	c := New(root)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	hash, err := c.CommitSession("session commit", []string{"a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if hash == "" {
		t.Fatal("expected a non-empty commit hash")
	}
}
