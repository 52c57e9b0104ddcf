// Smart Undo Engine (spec §4.I): restoring a transaction's snapshots
// is "smart" in that a path may have moved since the transaction
// touched it (resolved via the lineage tracker rather than failing
// outright), and a partial failure on one file does not abort the
// others. Grounded on plandex-cli's RecoverTransaction /
// rollbackOperation pair (app/shared/file_transaction.go), generalized
// from "replay a WAL after a crash" into "undo/redo an arbitrary
// journal entry, possibly against a file that has since relocated."
package txn

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// UndoStatus classifies the outcome of one Undo or Redo call.
type UndoStatus string

const (
	StatusSuccess      UndoStatus = "SUCCESS"
	StatusResolvedMove UndoStatus = "RESOLVED_MOVE" // every file restored, at least one via lineage resolution
	StatusPartial      UndoStatus = "PARTIAL"        // some files restored, some failed
	StatusFailed       UndoStatus = "FAILED"         // no file could be restored; entry marked STUCK
)

// Result reports what Undo/Redo actually did, for the HUD and the
// router's tool response.
type Result struct {
	Status UndoStatus
	Entry  journal.Entry
	Paths  []string
	Notes  []string
}

// Undo pops the most recent undoable entry (skipping past pure
// Checkpoint markers, which carry no file state to restore) and
// applies its inverse. When no file could be restored (FAILED), the
// entry is marked STUCK and left on top of the undo stack rather than
// discarded, so a StuckTransaction error surfaces on every subsequent
// undo attempt until the caller falls back to the git checkpoint
// collaborator. A PARTIAL result is not marked STUCK: it counts as an
// undo, the restored files' inverse goes onto the redo stack, and the
// files that failed are reported only in Notes.
func (m *Manager) Undo() (*Result, error) {
	entry, ok := m.popPastCheckpoints(&m.undo)
	if !ok {
		return nil, ntserr.New(ntserr.KindIOFailure, "nothing to undo")
	}

	var result *Result
	switch entry.Type {
	case journal.EntryTransaction:
		result = m.smartUndoTransaction(entry, false)
	case journal.EntryExternalChange:
		result = m.undoExternalChange(entry, false)
	default:
		return nil, ntserr.New(ntserr.KindIOFailure, "unexpected entry type %q on undo stack", entry.Type)
	}

	if result.Status == StatusFailed {
		entry.Status = journal.StatusStuck
		m.undo = append(m.undo, entry)
		return result, ntserr.StuckTransaction(fmt.Sprintf("undo of %q could not restore any file", entry.Description))
	}

	m.stats.TotalUndos++
	m.redo = append(m.redo, *inverse(result))
	return result, nil
}

// Redo mirrors Undo against the redo stack, pushing its own inverse
// back onto the undo stack on success.
func (m *Manager) Redo() (*Result, error) {
	entry, ok := m.popPastCheckpoints(&m.redo)
	if !ok {
		return nil, ntserr.New(ntserr.KindIOFailure, "nothing to redo")
	}

	var result *Result
	switch entry.Type {
	case journal.EntryTransaction:
		result = m.smartUndoTransaction(entry, true)
	case journal.EntryExternalChange:
		result = m.undoExternalChange(entry, true)
	default:
		return nil, ntserr.New(ntserr.KindIOFailure, "unexpected entry type %q on redo stack", entry.Type)
	}

	if result.Status == StatusFailed {
		entry.Status = journal.StatusStuck
		m.redo = append(m.redo, entry)
		return result, ntserr.StuckTransaction(fmt.Sprintf("redo of %q could not restore any file", entry.Description))
	}

	m.pushUndo(*inverse(result))
	return result, nil
}

func (m *Manager) popPastCheckpoints(stack *[]journal.Entry) (journal.Entry, bool) {
	for {
		s := *stack
		if len(s) == 0 {
			return journal.Entry{}, false
		}
		top := s[len(s)-1]
		*stack = s[:len(s)-1]
		if top.Type != journal.EntryCheckpoint {
			return top, true
		}
	}
}

// smartUndoTransaction restores every snapshot in entry, re-targeting
// a path through the lineage tracker if it has since moved, and
// tolerating individual file failures instead of aborting the whole
// entry.
func (m *Manager) smartUndoTransaction(entry journal.Entry, forward bool) *Result {
	result := &Result{Entry: entry}
	inverseSnapshots := make(map[string]string, len(entry.Snapshots))

	paths := make([]string, 0, len(entry.Snapshots))
	for p := range entry.Snapshots {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	failures := 0
	resolvedMoves := 0

	for _, origPath := range paths {
		id := entry.Snapshots[origPath]
		actualPath := origPath

		if cur, ok := m.lineage.CurrentPath(origPath); ok {
			if cur != origPath {
				actualPath = cur
				resolvedMoves++
				result.Notes = append(result.Notes, fmt.Sprintf("%s resolved via lineage to %s", origPath, actualPath))
			}
		} else if id != "" {
			// No lineage record at all for this path (spec §4.I step 4):
			// fall back to locating the snapshot's content elsewhere by
			// its hash before giving up on the original path.
			if content, err := m.snapshots.Read(id); err == nil {
				if candidates := m.lineage.FindByContentHash(lineage.HashContent(content)); len(candidates) == 1 {
					actualPath = candidates[0]
					resolvedMoves++
					result.Notes = append(result.Notes, fmt.Sprintf("%s located via content hash at %s", origPath, actualPath))
				}
			}
		}

		redoID, err := m.snapshots.Backup(actualPath)
		if err != nil {
			failures++
			result.Notes = append(result.Notes, fmt.Sprintf("could not capture redo state for %s: %v", actualPath, err))
			continue
		}
		if err := m.snapshots.Restore(id, actualPath); err != nil {
			failures++
			result.Notes = append(result.Notes, fmt.Sprintf("restore failed for %s: %v", actualPath, err))
			continue
		}

		if id == "" {
			noteIfParentNowEmpty(actualPath, result)
		}

		inverseSnapshots[actualPath] = redoID
		result.Paths = append(result.Paths, actualPath)
		m.ext.Invalidate(actualPath)
	}

	entry.Snapshots = inverseSnapshots
	result.Entry = entry

	switch {
	case failures == 0 && resolvedMoves == 0:
		result.Status = StatusSuccess
	case failures == 0 && resolvedMoves > 0:
		result.Status = StatusResolvedMove
	case failures > 0 && failures < len(paths):
		result.Status = StatusPartial
	default:
		result.Status = StatusFailed
	}
	_ = forward // symmetry with undoExternalChange's signature; direction doesn't change restore logic here
	return result
}

// noteIfParentNowEmpty flags (without deleting) a parent directory
// left empty by restoring a null snapshot, so the caller can surface
// it rather than silently leaving an orphaned empty directory behind -
// the Smart Undo Engine never prunes directories itself, since a
// directory created by an earlier, still-undone transaction may not
// be this entry's to remove.
func noteIfParentNowEmpty(path string, result *Result) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		result.Notes = append(result.Notes, fmt.Sprintf("parent directory %s is now empty", dir))
	}
}

// undoExternalChange restores the content that was authoritative
// before an out-of-band edit, capturing the current (post-drift, or
// already-undone) bytes first so Redo can reapply them.
func (m *Manager) undoExternalChange(entry journal.Entry, forward bool) *Result {
	result := &Result{Entry: entry}

	redoID, err := m.snapshots.Backup(entry.Path)
	if err != nil {
		result.Status = StatusFailed
		result.Notes = append(result.Notes, fmt.Sprintf("could not capture redo state for %s: %v", entry.Path, err))
		return result
	}
	if err := m.snapshots.Restore(entry.PreviousSnapshotID, entry.Path); err != nil {
		result.Status = StatusFailed
		result.Notes = append(result.Notes, fmt.Sprintf("restore failed for %s: %v", entry.Path, err))
		return result
	}

	m.ext.Invalidate(entry.Path)
	result.Paths = []string{entry.Path}
	result.Status = StatusSuccess
	result.Entry = journal.Entry{
		Type:               journal.EntryExternalChange,
		Timestamp:          time.Now(),
		Status:             journal.StatusCommitted,
		Path:               entry.Path,
		PreviousSnapshotID: redoID,
		PreviousCRC:        entry.CurrentCRC,
		CurrentCRC:         entry.PreviousCRC,
	}
	_ = forward
	return result
}

// inverse turns a successful undo/redo Result's (already re-targeted)
// entry into the journal.Entry pushed onto the opposite stack.
func inverse(r *Result) *journal.Entry {
	e := r.Entry
	e.Timestamp = time.Now()
	e.Status = journal.StatusCommitted
	return &e
}
