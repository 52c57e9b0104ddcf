package fileops

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
)

// ReplaceMatch is one file's match count from the scan phase.
type ReplaceMatch struct {
	Path        string
	MatchCount int
}

// ReplaceResult is returned by ReplaceProject.
type ReplaceResult struct {
	FilesChanged int
	TotalMatches int
	Diffs        map[string]string // path -> unified-style patch text, only populated for dryRun
	LATs         map[string]string // path -> fresh LAT, empty for dryRun
}

// ScanProject walks the project root applying pattern (a regular
// expression) to every non-binary, non-protected, size-limited file
// and returns the per-file match count, skipping the usual excluded
// directories (spec §4.K "scan phase").
func (s *Service) ScanProject(pattern string) ([]ReplaceMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ntserr.New(ntserr.KindIOFailure, "invalid search pattern %q: %v", pattern, err)
	}

	var matches []ReplaceMatch
	root := s.Sandbox.ProjectRoot()
	err = filepath.Walk(root, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			if sandbox.ShouldSkipDir(fi.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Sandbox.IsProtected(p) {
			return nil
		}
		if s.Sandbox.CheckFileSize(p) != nil {
			return nil
		}
		if binary, err := fsio.IsBinary(p); err != nil || binary {
			return nil
		}
		content, _, err := fsio.ReadText(p)
		if err != nil {
			return nil
		}
		n := len(re.FindAllStringIndex(content, -1))
		if n > 0 {
			matches = append(matches, ReplaceMatch{Path: p, MatchCount: n})
		}
		return nil
	})
	if err != nil {
		return nil, ntserr.IOFailure(root, err)
	}
	return matches, nil
}

// ReplaceProject applies pattern -> replacement across every file
// ScanProject would report a match for. dryRun computes the patch text
// for each affected file without writing anything; a real run always
// creates a checkpoint immediately before mutating (spec §4.K).
func (s *Service) ReplaceProject(pattern, replacement string, dryRun bool) (*ReplaceResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ntserr.New(ntserr.KindIOFailure, "invalid search pattern %q: %v", pattern, err)
	}
	matches, err := s.ScanProject(pattern)
	if err != nil {
		return nil, err
	}

	result := &ReplaceResult{}
	if dryRun {
		result.Diffs = make(map[string]string, len(matches))
		dmp := diffmatchpatch.New()
		for _, m := range matches {
			before, _, err := fsio.ReadText(m.Path)
			if err != nil {
				return nil, err
			}
			after := re.ReplaceAllString(before, replacement)
			patches := dmp.PatchMake(before, after)
			result.Diffs[m.Path] = dmp.PatchToText(patches)
			result.TotalMatches += m.MatchCount
		}
		result.FilesChanged = len(matches)
		return result, nil
	}

	s.Txn.Start("project-wide replace", pattern+" -> "+replacement)
	s.Txn.CreateCheckpoint("before-replace-" + pattern)

	result.LATs = make(map[string]string, len(matches))
	after := make(map[string]string, len(matches))
	for _, m := range matches {
		before, enc, err := fsio.ReadText(m.Path)
		if err != nil {
			s.Txn.Rollback()
			return nil, err
		}
		newContent := re.ReplaceAllString(before, replacement)
		if newContent == before {
			continue
		}
		if err := recordDriftIfAny(s.Ext, s.Txn, m.Path, before, enc); err != nil {
			s.Txn.Rollback()
			return nil, err
		}
		if err := s.Txn.Backup(m.Path, before); err != nil {
			s.Txn.Rollback()
			return nil, err
		}
		if err := fsio.SafeWrite(m.Path, []byte(newContent), 0o644); err != nil {
			s.Txn.Rollback()
			return nil, err
		}
		s.Ext.Update(m.Path, newContent, enc)
		s.Lineage.UpdateCRC(m.Path, []byte(newContent))
		after[m.Path] = newContent
		result.TotalMatches += m.MatchCount
	}

	if _, err := s.Txn.Commit(after); err != nil {
		return nil, err
	}

	for path, content := range after {
		lineCount := fsio.LineCount(content)
		token, err := s.LAT.Issue(path, 1, lineCount, fsio.CRC32C([]byte(content)), lineCount, false)
		if err != nil {
			return nil, err
		}
		s.Access.RegisterRead(path)
		result.LATs[path] = token
		result.FilesChanged++
	}
	return result, nil
}
