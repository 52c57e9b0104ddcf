package edit

import (
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/access"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lat"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/txn"
)

// Request is one edit call against a single file: either an operation
// list (Hunks) or a fuzzy old_text/new_text replacement, never both.
type Request struct {
	Hunks []Hunk

	OldText string
	NewText string

	// AccessToken is the Line Access Token the caller received from
	// the read (or prior write) that is supposed to authorize this
	// edit (spec §1, §4.D). When present it is the sole precondition
	// gate; ExpectedChecksum is only consulted when AccessToken is
	// empty.
	AccessToken string

	ExpectedChecksum    uint32
	HasExpectedChecksum bool

	// InfinityRange marks a file created within the current
	// transaction: Hunks bypass their bounds check (spec §4.J).
	InfinityRange bool
}

// Result is what a successful edit produced, ready for the Router to
// fold into a tool response.
type Result struct {
	NewContent string
	NewLAT     string
	CRC        uint32
	LineCount  int
}

// Engine wires the trackers an edit call must read and update: the
// read-lock (access), the optimistic-lock issuer (lat), the drift
// baseline (extchange), the move/rename history (lineage), and the
// enclosing transaction (txn), so a single Apply call satisfies every
// invariant in spec §4.J's "Post-write" paragraph.
type Engine struct {
	Access  *access.Tracker
	LAT     *lat.Issuer
	Ext     *extchange.Tracker
	Lineage *lineage.Tracker
	Txn     *txn.Manager
}

func NewEngine(a *access.Tracker, l *lat.Issuer, e *extchange.Tracker, lin *lineage.Tracker, t *txn.Manager) *Engine {
	return &Engine{Access: a, LAT: l, Ext: e, Lineage: lin, Txn: t}
}

// Apply reads path, enforces the read-before-write precondition
// (waivable by a matching expected_checksum), transforms the content
// per req, writes the result atomically, and performs every post-
// write bookkeeping step the spec requires. The caller is expected to
// have already sandbox-checked path and opened a transaction scope.
func (e *Engine) Apply(path string, req Request) (*Result, error) {
	current, enc, err := fsio.ReadText(path)
	if err != nil {
		return nil, err
	}
	currentCRC := fsio.CRC32C([]byte(current))
	lines := fsio.SplitLinesKeepEnds(current)

	if e.Ext.Drifted(path, current) {
		if baseline, baseCRC, ok := e.Ext.Baseline(path); ok {
			if err := e.Txn.RecordExternalChange(path, baseline, baseCRC, currentCRC); err != nil {
				return nil, err
			}
		}
		e.Ext.Update(path, current, enc)
	}

	switch {
	case req.AccessToken != "":
		result, claims := e.LAT.Validate(req.AccessToken, len(lines), func(start, end int) (uint32, error) {
			return fsio.CRCRange(lines, start, end), nil
		})
		switch result {
		case lat.ResultOk:
			e.Access.RegisterRead(path)
		case lat.ResultOutOfBounds:
			start, end := 0, 0
			if claims != nil {
				start, end = claims.StartLine, claims.EndLine
			}
			return nil, ntserr.AddressingError(path, start, end, len(lines))
		default: // Stale, Malformed, WrongSession: the proof-of-read doesn't hold up.
			expected := currentCRC
			if claims != nil {
				expected = claims.CRC
			}
			return nil, ntserr.OptimisticLockFailure(path, expected, currentCRC)
		}
	case !e.Access.HasBeenRead(path):
		switch {
		case req.HasExpectedChecksum && req.ExpectedChecksum == currentCRC:
			e.Access.RegisterRead(path)
		case req.HasExpectedChecksum:
			return nil, ntserr.OptimisticLockFailure(path, req.ExpectedChecksum, currentCRC)
		default:
			return nil, ntserr.NotRead(path)
		}
	}

	var newContent string
	if len(req.Hunks) > 0 {
		newContent, err = ApplyHunks(path, current, req.Hunks, req.InfinityRange)
	} else {
		newContent, err = FuzzyReplace(path, current, req.OldText, req.NewText)
	}
	if err != nil {
		return nil, err
	}

	if err := e.Txn.Backup(path, current); err != nil {
		return nil, err
	}
	if err := fsio.SafeWrite(path, []byte(newContent), 0o644); err != nil {
		return nil, err
	}

	newCRC := fsio.CRC32C([]byte(newContent))
	newLineCount := fsio.LineCount(newContent)

	e.Ext.Update(path, newContent, enc)
	e.Lineage.UpdateCRC(path, []byte(newContent))
	e.Access.RegisterRead(path)

	token, err := e.LAT.Issue(path, 1, newLineCount, newCRC, newLineCount, false)
	if err != nil {
		return nil, err
	}

	return &Result{
		NewContent: newContent,
		NewLAT:     token,
		CRC:        newCRC,
		LineCount:  newLineCount,
	}, nil
}
