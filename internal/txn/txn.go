// Package txn implements the Transaction Manager (spec §4.H): nested
// transaction scopes collapsing to a single commit/rollback unit, a
// bounded undo/redo history, checkpoints, and external-change
// recording. Grounded on plandex-cli's FileTransaction
// (app/shared/file_transaction.go) - the same Begin/snapshot/WAL/
// Commit/Rollback/CreateCheckpoint/RollbackToCheckpoint vocabulary,
// adapted from a single-level plan-apply transaction into a
// depth-counted nested one with separate undo and redo stacks.
package txn

import (
	"sort"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/snapshot"
)

// MaxHistory is the bound on the undo stack; the oldest entry is
// evicted (and its snapshots deleted) once exceeded (spec §4.H).
const MaxHistory = 50

// scope is the single real transaction in flight. Nested
// start_transaction calls only increment depth; there is never more
// than one scope per session, matching the spec's "single outermost
// scope owns commit/rollback."
//
// Depth is a plain int rather than anything goroutine-local. Manager
// takes no lock, and no caller holds a per-session lock around it;
// mutating calls reach it one at a time only because the stdio server
// handles one request at a time (the debug HTTP handler reads its
// stacks and stats from another goroutine, also without a lock).
type scope struct {
	description string
	instruction string
	startedAt   time.Time
	order       []string          // first-touch order, for deterministic diff stats
	before      map[string]string // path -> content at first touch, for diff stats
	snapshots   map[string]string // path -> snapshot id (""  == null snapshot)
}

// Manager owns one session's transaction state: the active scope (if
// any), its nesting depth, and the bounded undo/redo history.
type Manager struct {
	sessionID string
	snapshots *snapshot.Store
	lineage   *lineage.Tracker
	ext       *extchange.Tracker

	depth   int
	current *scope

	undo []journal.Entry
	redo []journal.Entry

	stats journal.Stats
}

func NewManager(sessionID string, snapshots *snapshot.Store, lin *lineage.Tracker, ext *extchange.Tracker) *Manager {
	return &Manager{
		sessionID: sessionID,
		snapshots: snapshots,
		lineage:   lin,
		ext:       ext,
	}
}

// Depth returns the current nesting depth (0 == no open transaction).
func (m *Manager) Depth() int { return m.depth }

// Stats returns a copy of the session's edit/undo counters.
func (m *Manager) Stats() journal.Stats { return m.stats }

// Start opens (or nests into) a transaction scope. Only the outermost
// call's description/instruction are kept, matching "the first
// description wins" behavior a nested-transaction caller expects.
func (m *Manager) Start(description, instruction string) {
	if m.depth == 0 {
		m.current = &scope{
			description: description,
			instruction: instruction,
			startedAt:   time.Now(),
			before:      make(map[string]string),
			snapshots:   make(map[string]string),
		}
	}
	m.depth++
}

// Backup lazily snapshots path's pre-mutation bytes into the current
// scope the first time the scope touches that path. beforeContent is
// the content as read immediately before this call, used only to
// compute the transaction's diff stats at commit time; pass "" if the
// path did not exist.
func (m *Manager) Backup(path, beforeContent string) error {
	if m.current == nil {
		return ntserr.New(ntserr.KindIOFailure, "backup called with no open transaction")
	}
	if _, already := m.current.snapshots[path]; already {
		return nil
	}
	id, err := m.snapshots.Backup(path)
	if err != nil {
		return err
	}
	m.current.snapshots[path] = id
	m.current.before[path] = beforeContent
	m.current.order = append(m.current.order, path)
	return nil
}

// Commit decrements the nesting depth; only the outermost Commit
// finalizes the scope into a journal.Entry on the undo stack, clears
// the redo stack, and evicts history beyond MaxHistory.
func (m *Manager) Commit(afterContent map[string]string) (*journal.Entry, error) {
	if m.depth == 0 {
		return nil, ntserr.New(ntserr.KindIOFailure, "commit called with no open transaction")
	}
	m.depth--
	if m.depth > 0 {
		return nil, nil
	}

	sc := m.current
	m.current = nil

	entry := journal.Entry{
		Type:        journal.EntryTransaction,
		Timestamp:   time.Now(),
		Status:      journal.StatusCommitted,
		Description: sc.description,
		Instruction: sc.instruction,
		Snapshots:   sc.snapshots,
		DiffStats:   diffStatsFor(sc, afterContent),
	}

	m.pushUndo(entry)
	m.redo = nil
	m.stats.TotalEdits++
	m.stats.EditsSinceLastVerify++
	return &entry, nil
}

// Rollback restores every file touched by the current scope from its
// backup (or deletes it, for a null snapshot), discards the scope
// regardless of nesting depth, and resets depth to 0: an inner
// rollback invalidates the whole enclosing transaction, since there is
// only ever one real scope to roll back.
func (m *Manager) Rollback() error {
	if m.current == nil {
		return ntserr.New(ntserr.KindIOFailure, "rollback called with no open transaction")
	}
	sc := m.current
	m.current = nil
	m.depth = 0

	var firstErr error
	for _, path := range sc.order {
		id := sc.snapshots[path]
		if err := m.snapshots.Restore(id, path); err != nil && firstErr == nil {
			firstErr = err
		}
		m.snapshots.Delete(id)
	}
	return firstErr
}

// CreateCheckpoint appends a named marker onto the undo stack,
// interleaved with transaction and external-change entries in
// chronological order, so RollbackToCheckpoint can locate it.
func (m *Manager) CreateCheckpoint(name string) {
	m.pushUndo(journal.Entry{
		Type:      journal.EntryCheckpoint,
		Timestamp: time.Now(),
		Name:      name,
	})
}

// RecordExternalChange appends a pseudo-transaction preserving the
// content that was authoritative before an out-of-band edit was
// detected, so it can still be undone like any other change (spec
// §4.E/§4.H).
func (m *Manager) RecordExternalChange(path, previousContent string, prevCRC, curCRC uint32) error {
	id, err := m.snapshots.BackupContent([]byte(previousContent))
	if err != nil {
		return err
	}
	m.pushUndo(journal.Entry{
		Type:               journal.EntryExternalChange,
		Timestamp:          time.Now(),
		Status:             journal.StatusCommitted,
		Path:               path,
		PreviousSnapshotID: id,
		PreviousCRC:        prevCRC,
		CurrentCRC:         curCRC,
	})
	return nil
}

func (m *Manager) pushUndo(e journal.Entry) {
	m.undo = append(m.undo, e)
	if len(m.undo) > MaxHistory {
		evicted := m.undo[0]
		m.undo = m.undo[1:]
		m.deleteEntrySnapshots(evicted)
	}
}

func (m *Manager) deleteEntrySnapshots(e journal.Entry) {
	switch e.Type {
	case journal.EntryTransaction:
		for _, id := range e.Snapshots {
			m.snapshots.Delete(id)
		}
	case journal.EntryExternalChange:
		m.snapshots.Delete(e.PreviousSnapshotID)
	}
}

// UndoStack and RedoStack expose read-only views for the HUD and
// journal persistence.
func (m *Manager) UndoStack() []journal.Entry { return append([]journal.Entry(nil), m.undo...) }
func (m *Manager) RedoStack() []journal.Entry { return append([]journal.Entry(nil), m.redo...) }

// Restore rehydrates the manager's stacks and counters from a loaded
// journal document (spec §4.M Session Context load()).
func (m *Manager) Restore(undo, redo []journal.Entry, stats journal.Stats) {
	m.undo = undo
	m.redo = redo
	m.stats = stats
}

func diffStatsFor(sc *scope, after map[string]string) []journal.DiffStats {
	stats := make([]journal.DiffStats, 0, len(sc.order))
	for _, path := range sc.order {
		before := sc.before[path]
		afterContent := after[path]
		added, deleted := lineDiffCounts(before, afterContent)
		stats = append(stats, journal.DiffStats{
			Path:          path,
			AddedLines:    added,
			DeletedLines:  deleted,
			AffectedNames: extractAffectedNames(before, afterContent),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })
	return stats
}

// lineDiffCounts counts added/deleted lines between two whole-file
// contents using go-diff's line-mode diff (it converts lines to
// pseudo-characters internally, which keeps large files cheap to
// diff), mirroring how other example repos in the corpus compute
// patch line stats instead of hand-rolling an LCS.
func lineDiffCounts(before, after string) (added, deleted int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			deleted += n
		}
	}
	return added, deleted
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	if s[len(s)-1] != '\n' {
		n++
	}
	return n
}
