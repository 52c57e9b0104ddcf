// Package dirlist implements the read-only directory/file-discovery
// tool surface (nts_list_directory, nts_find_file, nts_file_info,
// nts_project_structure, nts_search_files) on top of the Path Sandbox,
// reusing its binary/size/protected checks the same way project-wide
// replace's scan phase does.
package dirlist

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
)

// Service answers read-only queries about the sandboxed project tree.
type Service struct {
	Sandbox *sandbox.Sandbox
}

func New(sb *sandbox.Sandbox) *Service {
	return &Service{Sandbox: sb}
}

// Entry is one child of a listed directory.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// List returns the immediate children of userPath, sorted
// directories-first then lexically.
func (s *Service) List(userPath string) ([]Entry, error) {
	dir, err := s.Sandbox.Sanitize(userPath, true)
	if err != nil {
		return nil, err
	}
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, ntserr.IOFailure(dir, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		info, err := fi.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: fi.Name(), IsDir: fi.IsDir(), Size: info.Size()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Info is stat-like metadata about a single file.
type Info struct {
	Path      string
	Size      int64
	IsDir     bool
	ModTime   int64
	LineCount int // 0 for directories or binary files
}

// Stat returns Info for userPath.
func (s *Service) Stat(userPath string) (*Info, error) {
	path, err := s.Sandbox.Sanitize(userPath, true)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, ntserr.IOFailure(path, err)
	}
	info := &Info{Path: path, Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime().Unix()}
	if !fi.IsDir() {
		if binary, _ := fsio.IsBinary(path); !binary {
			if content, _, err := fsio.ReadText(path); err == nil {
				info.LineCount = fsio.LineCount(content)
			}
		}
	}
	return info, nil
}

// Find returns every path under the project root whose basename
// matches the glob pattern (e.g. "*.go"), skipping the usual excluded
// directories.
func (s *Service) Find(pattern string) ([]string, error) {
	var matches []string
	root := s.Sandbox.ProjectRoot()
	err := filepath.Walk(root, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			if sandbox.ShouldSkipDir(fi.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ok, err := filepath.Match(pattern, fi.Name())
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, p)
		}
		return nil
	})
	if err != nil {
		return nil, ntserr.IOFailure(root, err)
	}
	return matches, nil
}

// SearchMatch is one hit from Search.
type SearchMatch struct {
	Path string
	Line int
	Text string
}

// Search content-greps every non-binary, non-protected, size-limited
// file under the project root for pattern (a regular expression).
func (s *Service) Search(pattern string) ([]SearchMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ntserr.New(ntserr.KindIOFailure, "invalid search pattern %q: %v", pattern, err)
	}

	var hits []SearchMatch
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
		if s.Sandbox.IsProtected(p) || s.Sandbox.CheckFileSize(p) != nil {
			return nil
		}
		if binary, err := fsio.IsBinary(p); err != nil || binary {
			return nil
		}
		content, _, err := fsio.ReadText(p)
		if err != nil {
			return nil
		}
		for i, line := range fsio.SplitLinesKeepEnds(content) {
			if re.MatchString(line) {
				hits = append(hits, SearchMatch{Path: p, Line: i + 1, Text: strings.TrimRight(line, "\r\n")})
			}
		}
		return nil
	})
	if err != nil {
		return nil, ntserr.IOFailure(root, err)
	}
	return hits, nil
}

// Tree renders a depth-limited ASCII project tree rooted at the
// project root, skipping the usual excluded directories.
func (s *Service) Tree(maxDepth int) (string, error) {
	var b strings.Builder
	root := s.Sandbox.ProjectRoot()
	b.WriteString(filepath.Base(root) + "/\n")
	if err := s.writeTree(&b, root, "", 1, maxDepth); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Service) writeTree(b *strings.Builder, dir, prefix string, depth, maxDepth int) error {
	if maxDepth > 0 && depth > maxDepth {
		return nil
	}
	infos, err := os.ReadDir(dir)
	if err != nil {
		return ntserr.IOFailure(dir, err)
	}

	visible := infos[:0]
	for _, fi := range infos {
		if fi.IsDir() && sandbox.ShouldSkipDir(fi.Name()) {
			continue
		}
		visible = append(visible, fi)
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return visible[i].Name() < visible[j].Name()
	})

	for i, fi := range visible {
		last := i == len(visible)-1
		branch, nextPrefix := "├── ", prefix+"│   "
		if last {
			branch, nextPrefix = "└── ", prefix+"    "
		}
		name := fi.Name()
		if fi.IsDir() {
			name += "/"
		}
		b.WriteString(prefix + branch + name + "\n")
		if fi.IsDir() {
			if err := s.writeTree(b, filepath.Join(dir, fi.Name()), nextPrefix, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
