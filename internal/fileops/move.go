package fileops

import (
	"os"
	"path/filepath"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// MoveResult is returned by Move.
type MoveResult struct {
	Path string
	LAT  string
}

// Move relocates srcPath to dstPath (rename is the same operation
// under a different name in the spec). dstPath must not already
// exist. The destination is backed up as a null snapshot before the
// rename so a rollback deletes it rather than leaving a half-applied
// move (spec §4.K move/rename).
func (s *Service) Move(userSrc, userDst string, allowProtected bool) (*MoveResult, error) {
	src, err := s.Sandbox.Sanitize(userSrc, allowProtected)
	if err != nil {
		return nil, err
	}
	dst, err := s.Sandbox.Sanitize(userDst, allowProtected)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dst); err == nil {
		return nil, ntserr.New(ntserr.KindIOFailure, "move target %q already exists", userDst)
	}
	srcContent, _, err := fsio.ReadText(src)
	if err != nil {
		return nil, err
	}

	s.Txn.Start("move "+userSrc+" -> "+userDst, "")
	if err := s.Txn.Backup(src, srcContent); err != nil {
		s.Txn.Rollback()
		return nil, err
	}
	if err := s.Txn.Backup(dst, ""); err != nil {
		s.Txn.Rollback()
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		s.Txn.Rollback()
		return nil, ntserr.IOFailure(dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		s.Txn.Rollback()
		return nil, ntserr.IOFailure(src, err)
	}

	s.Access.MoveRecord(src, dst)
	s.Ext.Move(src, dst)
	s.Lineage.RecordMove(src, dst)

	if _, err := s.Txn.Commit(map[string]string{dst: srcContent}); err != nil {
		return nil, err
	}

	lineCount := fsio.LineCount(srcContent)
	token, err := s.LAT.Issue(dst, 1, lineCount, fsio.CRC32C([]byte(srcContent)), lineCount, false)
	if err != nil {
		return nil, err
	}
	return &MoveResult{Path: dst, LAT: token}, nil
}

// Rename is an alias for Move, named separately because the router
// exposes it as a distinct tool (spec §4.K).
func (s *Service) Rename(userSrc, userDst string, allowProtected bool) (*MoveResult, error) {
	return s.Move(userSrc, userDst, allowProtected)
}
