package txn

import (
	"fmt"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// RollbackToCheckpoint repeatedly undoes entries until the named
// checkpoint marker itself is popped (spec §4.H). An entry whose undo
// restores no file (FAILED) is marked STUCK, halts the unwind, and the
// results gathered so far are returned alongside a StuckTransaction
// error; a PARTIAL entry does not halt the unwind.
func (m *Manager) RollbackToCheckpoint(name string) ([]*Result, error) {
	found := false
	for _, e := range m.undo {
		if e.Type == journal.EntryCheckpoint && e.Name == name {
			found = true
			break
		}
	}
	if !found {
		return nil, ntserr.New(ntserr.KindIOFailure, "checkpoint %q not found", name)
	}

	var results []*Result
	for {
		if len(m.undo) == 0 {
			return results, ntserr.New(ntserr.KindIOFailure, "checkpoint %q not found while unwinding", name)
		}
		top := m.undo[len(m.undo)-1]
		m.undo = m.undo[:len(m.undo)-1]

		if top.Type == journal.EntryCheckpoint {
			if top.Name == name {
				return results, nil
			}
			continue
		}

		var result *Result
		switch top.Type {
		case journal.EntryTransaction:
			result = m.smartUndoTransaction(top, false)
		case journal.EntryExternalChange:
			result = m.undoExternalChange(top, false)
		}
		results = append(results, result)

		if result.Status == StatusFailed {
			top.Status = journal.StatusStuck
			m.undo = append(m.undo, top)
			return results, ntserr.StuckTransaction(fmt.Sprintf("rollback to checkpoint %q stopped: could not undo %q", name, top.Description))
		}

		m.stats.TotalUndos++
		m.redo = append(m.redo, *inverse(result))
	}
}
