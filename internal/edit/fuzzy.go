package edit

import (
	"regexp"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// FuzzyReplace applies the old_text/new_text request shape (spec
// §4.J): old_text must match exactly once, falling back through
// newline normalization and then whitespace-flexed matching. A stage
// that finds more than one match fails immediately as AmbiguousMatch
// rather than trying a fuzzier stage, since fuzzier matching can only
// ever find more candidates, never fewer.
func FuzzyReplace(path, original, oldText, newText string) (string, error) {
	if count := strings.Count(original, oldText); count > 0 {
		if count > 1 {
			return "", ntserr.AmbiguousMatch(path, count)
		}
		return strings.Replace(original, oldText, newText, 1), nil
	}

	normOriginal := normalizeNewlines(original)
	normOld := normalizeNewlines(oldText)
	normNew := normalizeNewlines(newText)
	if count := strings.Count(normOriginal, normOld); count > 0 {
		if count > 1 {
			return "", ntserr.AmbiguousMatch(path, count)
		}
		return strings.Replace(normOriginal, normOld, normNew, 1), nil
	}

	re, err := whitespaceFlexPattern(normOld)
	if err != nil {
		return "", ntserr.New(ntserr.KindContentMismatch, "old_text could not be compiled for fuzzy matching: %v", err)
	}
	matches := re.FindAllStringIndex(normOriginal, -1)
	switch len(matches) {
	case 0:
		return "", ntserr.ContentMismatch(path, 0, 0, oldText, "")
	case 1:
		loc := matches[0]
		return normOriginal[:loc[0]] + normNew + normOriginal[loc[1]:], nil
	default:
		return "", ntserr.AmbiguousMatch(path, len(matches))
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// whitespaceFlexPattern turns oldText into a regex that matches the
// same text with any run of whitespace treated as interchangeable with
// any other run of whitespace, the "whitespace-flexed" last-resort
// match (spec §4.J).
func whitespaceFlexPattern(oldText string) (*regexp.Regexp, error) {
	chunks := whitespaceRun.Split(oldText, -1)
	for i, c := range chunks {
		chunks[i] = regexp.QuoteMeta(c)
	}
	pattern := strings.Join(chunks, `\s+`)
	return regexp.Compile(pattern)
}
