// Package fileops implements the whole-file operations (spec §4.K):
// create, delete, move/rename, and project-wide search/replace. Every
// operation opens its own transaction scope through the shared
// txn.Manager so a failure partway through rolls back cleanly.
// Grounded on plandex-cli's FileTransaction.CreateFile/DeleteFile/
// RenameFile (app/shared/file_transaction.go), generalized from a
// plan-apply's fixed operation list into standalone, independently
// transactional calls.
package fileops

import (
	"os"
	"path/filepath"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/access"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lat"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/txn"
)

// Service wires the Sandbox and the per-session trackers needed to
// carry out a whole-file operation under transactional control.
type Service struct {
	Sandbox *sandbox.Sandbox
	Access  *access.Tracker
	LAT     *lat.Issuer
	Ext     *extchange.Tracker
	Lineage *lineage.Tracker
	Txn     *txn.Manager
}

func New(sb *sandbox.Sandbox, a *access.Tracker, l *lat.Issuer, e *extchange.Tracker, lin *lineage.Tracker, t *txn.Manager) *Service {
	return &Service{Sandbox: sb, Access: a, LAT: l, Ext: e, Lineage: lin, Txn: t}
}

// recordDriftIfAny consults the External-Change Tracker before a write
// to path; if the on-disk content has drifted from the session's last
// authoritative baseline, it appends an ExternalChange pseudo-entry
// preserving the pre-drift content and rebases the tracker onto the
// new content, so the session continues with an up-to-date baseline
// instead of silently overwriting someone else's edit (spec §4.E).
func recordDriftIfAny(ext *extchange.Tracker, tx *txn.Manager, path, current string, enc fsio.Encoding) error {
	if !ext.Drifted(path, current) {
		return nil
	}
	baseline, baseCRC, ok := ext.Baseline(path)
	if !ok {
		return nil
	}
	if err := tx.RecordExternalChange(path, baseline, baseCRC, fsio.CRC32C([]byte(current))); err != nil {
		return err
	}
	ext.Update(path, current, enc)
	return nil
}

// CreateResult is returned by Create.
type CreateResult struct {
	Path string
	LAT  string
}

// Create writes content to path. An existing file at path requires a
// prior read record, same as an edit would (spec §4.K create).
func (s *Service) Create(userPath, content string, allowProtected bool) (*CreateResult, error) {
	path, err := s.Sandbox.Sanitize(userPath, allowProtected)
	if err != nil {
		return nil, err
	}

	var before string
	if info, statErr := os.Stat(path); statErr == nil {
		if info.IsDir() {
			return nil, ntserr.New(ntserr.KindIOFailure, "cannot create: %q is a directory", userPath)
		}
		if !s.Access.HasBeenRead(path) {
			return nil, ntserr.NotRead(path)
		}
		var enc fsio.Encoding
		before, enc, err = fsio.ReadText(path)
		if err != nil {
			return nil, err
		}
		if err := recordDriftIfAny(s.Ext, s.Txn, path, before, enc); err != nil {
			return nil, err
		}
	}

	s.Txn.Start("create "+userPath, "")
	if err := s.Txn.Backup(path, before); err != nil {
		s.Txn.Rollback()
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.Txn.Rollback()
		return nil, ntserr.IOFailure(path, err)
	}
	if err := fsio.SafeWrite(path, []byte(content), 0o644); err != nil {
		s.Txn.Rollback()
		return nil, err
	}

	s.Lineage.RegisterFile(path, []byte(content))
	enc := fsio.DetectEncoding([]byte(content))
	s.Ext.Update(path, content, enc)

	if _, err := s.Txn.Commit(map[string]string{path: content}); err != nil {
		return nil, err
	}

	lineCount := fsio.LineCount(content)
	token, err := s.LAT.Issue(path, 1, lineCount, fsio.CRC32C([]byte(content)), lineCount, true)
	if err != nil {
		return nil, err
	}
	s.Access.RegisterRead(path)

	return &CreateResult{Path: path, LAT: token}, nil
}

// Delete removes path, or recursively removes a directory's contents
// when recursive is true, individually backing up every removed file
// inside the same transaction scope so rollback restores all of them.
func (s *Service) Delete(userPath string, recursive, allowProtected bool) error {
	path, err := s.Sandbox.Sanitize(userPath, allowProtected)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return ntserr.IOFailure(path, err)
	}

	s.Txn.Start("delete "+userPath, "")

	var files []string
	if info.IsDir() {
		if !recursive {
			s.Txn.Rollback()
			return ntserr.New(ntserr.KindIOFailure, "%q is a directory; pass recursive=true to delete it", userPath)
		}
		err = filepath.Walk(path, func(p string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !fi.IsDir() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			s.Txn.Rollback()
			return ntserr.IOFailure(path, err)
		}
	} else {
		files = []string{path}
	}

	for _, f := range files {
		content, _, err := fsio.ReadText(f)
		if err != nil {
			s.Txn.Rollback()
			return err
		}
		if err := s.Txn.Backup(f, content); err != nil {
			s.Txn.Rollback()
			return err
		}
	}

	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		s.Txn.Rollback()
		return ntserr.IOFailure(path, err)
	}

	for _, f := range files {
		s.Access.Forget(f)
		s.Ext.Forget(f)
	}

	_, err = s.Txn.Commit(nil)
	return err
}
