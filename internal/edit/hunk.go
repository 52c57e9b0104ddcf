// Package edit implements the line-oriented Edit Engine (spec §4.J):
// typed hunks addressed by anchor-relative line numbers and applied in
// descending order, plus a fuzzy old_text/new_text fallback. Grounded
// on plandex-cli's patch application (app/shared/patch_apply.go and
// cli/lib/apply.go), which already walks a hunk list against a target
// file's lines and validates context before splicing - generalized
// here from unified-diff hunks to the spec's typed-operation hunks.
package edit

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// Op identifies a hunk's operation kind.
type Op string

const (
	OpReplace      Op = "replace"
	OpInsertBefore Op = "insert_before"
	OpInsertAfter  Op = "insert_after"
	OpDelete       Op = "delete"
)

// Hunk is one typed edit operation against a file's current lines.
// StartLine/EndLine are 1-based and, when ContextStartPattern is set,
// interpreted relative to the anchor line it resolves to rather than
// absolutely from the top of the file.
type Hunk struct {
	Operation            Op
	StartLine            int
	EndLine              int // 0 means "not supplied"; defaulted per Operation
	Content              string
	ExpectedContent      string
	HasExpectedContent   bool
	ContextStartPattern  string
}

// resolved is a Hunk after anchor resolution and op-specific bounds
// adjustment, expressed as a plain [start,end] 1-based inclusive
// splice range against the file's current line count.
type resolved struct {
	hunk             Hunk
	effStart         int
	effEnd           int // effEnd == effStart-1 denotes an empty (pure-insert) range
	indentReferenceLine int // 1-based line whose leading whitespace is copied onto Content; 0 == no indent
}

// ApplyHunks resolves every hunk's anchor and bounds against the
// original text, sorts them into descending start-line order, and
// splices them one at a time so that an earlier (lower-numbered)
// hunk's line numbers are never invalidated by a later one's edit
// (spec §4.J "tie-break ordering"). infinityRange bypasses the bounds
// check entirely, for files created within the current transaction.
func ApplyHunks(path, original string, hunks []Hunk, infinityRange bool) (string, error) {
	lines, trailingNewline := linesOf(original)
	lineCount := len(lines)

	resolvedHunks := make([]resolved, 0, len(hunks))
	for _, h := range hunks {
		r, err := resolveHunk(path, lines, lineCount, h, infinityRange)
		if err != nil {
			return "", err
		}
		if h.HasExpectedContent {
			actual := sliceText(lines, r.effStart, r.effEnd)
			if stripCR(actual) != stripCR(h.ExpectedContent) {
				return "", ntserr.ContentMismatch(path, h.StartLine, h.EndLine, h.ExpectedContent, actual)
			}
		}
		resolvedHunks = append(resolvedHunks, r)
	}

	sort.SliceStable(resolvedHunks, func(i, j int) bool {
		return resolvedHunks[i].effStart > resolvedHunks[j].effStart
	})

	for _, r := range resolvedHunks {
		content := r.hunk.Content
		if r.hunk.Operation == OpDelete {
			content = ""
		}
		if r.indentReferenceLine > 0 && r.indentReferenceLine <= len(lines) {
			content = applyIndent(content, leadingWhitespace(lines[r.indentReferenceLine-1]))
		}
		lines = splice(lines, r.effStart, r.effEnd, content)
	}

	return joinLines(lines, trailingNewline), nil
}

func resolveHunk(path string, originalLines []string, lineCount int, h Hunk, infinityRange bool) (resolved, error) {
	anchor := 0
	if h.ContextStartPattern != "" {
		a, err := resolveAnchor(originalLines, h.ContextStartPattern)
		if err != nil {
			return resolved{}, err
		}
		anchor = a
	}

	start := anchor + h.StartLine
	end := h.EndLine
	if end != 0 {
		end = anchor + end
	}

	var r resolved
	switch h.Operation {
	case OpInsertBefore:
		r = resolved{hunk: h, effStart: start, effEnd: start - 1, indentReferenceLine: start}
	case OpInsertAfter:
		r = resolved{hunk: h, effStart: start + 1, effEnd: start, indentReferenceLine: start}
	case OpReplace, OpDelete:
		if end == 0 {
			end = start
		}
		ref := start - 1
		r = resolved{hunk: h, effStart: start, effEnd: end, indentReferenceLine: ref}
	default:
		return resolved{}, ntserr.New(ntserr.KindAddressingError, "unknown hunk operation %q", h.Operation)
	}

	if !infinityRange {
		if r.effStart < 1 || r.effStart > lineCount+1 {
			return resolved{}, ntserr.AddressingError(path, r.effStart, r.effEnd, lineCount)
		}
		if r.effEnd < r.effStart-1 || r.effEnd > lineCount {
			return resolved{}, ntserr.AddressingError(path, r.effStart, r.effEnd, lineCount)
		}
	}
	return r, nil
}

func resolveAnchor(lines []string, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, ntserr.New(ntserr.KindAddressingError, "invalid context_start_pattern %q: %v", pattern, err)
	}
	for i, l := range lines {
		if re.MatchString(stripCR(l)) {
			return i, nil
		}
	}
	return 0, ntserr.New(ntserr.KindAddressingError, "context_start_pattern %q matched no line", pattern)
}

// linesOf splits text on "\n" into lines with the "\n" removed (a
// CRLF line keeps its trailing "\r"; nothing is normalized), and reports whether
// the original text ended with a trailing newline so output can
// reproduce that convention.
func linesOf(text string) (lines []string, trailingNewline bool) {
	if text == "" {
		return nil, false
	}
	parts := strings.Split(text, "\n")
	if parts[len(parts)-1] == "" {
		return parts[:len(parts)-1], true
	}
	return parts, false
}

func joinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return out
}

// sliceText returns the bare text of 1-based inclusive range
// [start,end] against lines, or "" for an empty range.
func sliceText(lines []string, start, end int) string {
	if end < start {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func splice(lines []string, start, end int, content string) []string {
	var contentLines []string
	if content != "" {
		contentLines = strings.Split(content, "\n")
	}
	out := make([]string, 0, len(lines)-(end-start+1)+len(contentLines))
	out = append(out, lines[:start-1]...)
	out = append(out, contentLines...)
	out = append(out, lines[end:]...)
	return out
}

func leadingWhitespace(line string) string {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}

func applyIndent(content, indent string) string {
	if indent == "" || content == "" {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return strings.Join(lines, "\n")
}

func stripCR(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}
