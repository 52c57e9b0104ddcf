// Package gitcollab backs nts_session's git_checkpoint/git_restore
// actions and nts_git_commit_session. It is explicitly a collaborator,
// not a core component: it never touches the Transaction Manager's
// undo/redo stacks, and the Smart Undo Engine's STUCK/PARTIAL outcomes
// merely suggest this as a fallback rather than invoking it directly.
// Uses go-git as a pure-Go library rather than shelling out to a git
// binary, grounded on the go-git example programs' use of
// PlainOpen/Worktree/Storer.SetReference.
package gitcollab

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// Collaborator wraps one project's git repository.
type Collaborator struct {
	repoRoot string
}

func New(repoRoot string) *Collaborator {
	return &Collaborator{repoRoot: repoRoot}
}

func (c *Collaborator) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(c.repoRoot)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindIOFailure, err, "opening git repository at %s", c.repoRoot)
	}
	return repo, nil
}

func checkpointRef(sessionID, name string) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("refs/nts/checkpoints/%s/%s", sessionID, name))
}

// Checkpoint records the repository's current HEAD under a session-
// and name-scoped ref, so Restore can later reset the worktree back to
// this point without touching the Transaction Manager's own stacks.
func (c *Collaborator) Checkpoint(sessionID, name string) (string, error) {
	repo, err := c.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindIOFailure, err, "resolving HEAD in %s", c.repoRoot)
	}
	ref := plumbing.NewHashReference(checkpointRef(sessionID, name), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return "", ntserr.Wrap(ntserr.KindIOFailure, err, "writing checkpoint ref %s", ref.Name())
	}
	return head.Hash().String(), nil
}

// Restore force-checks-out the worktree to a previously recorded
// checkpoint, discarding any uncommitted changes.
func (c *Collaborator) Restore(sessionID, name string) error {
	repo, err := c.open()
	if err != nil {
		return err
	}
	refName := checkpointRef(sessionID, name)
	ref, err := repo.Reference(refName, true)
	if err != nil {
		return ntserr.Wrap(ntserr.KindIOFailure, err, "no git checkpoint named %q for this session", name)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ntserr.Wrap(ntserr.KindIOFailure, err, "opening worktree in %s", c.repoRoot)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: ref.Hash(), Force: true}); err != nil {
		return ntserr.Wrap(ntserr.KindIOFailure, err, "restoring git checkpoint %q", name)
	}
	return nil
}

// CommitSession stages paths and creates a commit on the repository's
// current branch, backing nts_git_commit_session.
func (c *Collaborator) CommitSession(message string, relPaths []string) (string, error) {
	repo, err := c.open()
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindIOFailure, err, "opening worktree in %s", c.repoRoot)
	}
	for _, p := range relPaths {
		if _, err := wt.Add(p); err != nil {
			return "", ntserr.Wrap(ntserr.KindIOFailure, err, "staging %s", p)
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "ntsfs",
			Email: "ntsfs@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindIOFailure, err, "committing session changes")
	}
	return hash.String(), nil
}
