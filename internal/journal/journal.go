// Package journal defines the durable, versioned record of a
// session's transaction history (spec §3 Transaction entry, §4.H
// journal persistence, §6 persisted layout, §9 "polymorphism over
// transaction entries -> tagged variants"). Both v2 and v1 keep the
// undo/redo stacks at the top level; a v2 document differs from v1 only
// by its "version" field, and v1 remains readable for backward
// compatibility.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
)

const CurrentVersion = 2

// EntryType is the tag of the Transaction|ExternalChange|Checkpoint
// closed sum (spec §9).
type EntryType string

const (
	EntryTransaction    EntryType = "transaction"
	EntryExternalChange EntryType = "external_change"
	EntryCheckpoint     EntryType = "checkpoint"
)

// Status is the per-entry state machine: COMMITTED -> STUCK, terminal
// (spec §4.H).
type Status string

const (
	StatusCommitted Status = "COMMITTED"
	StatusStuck     Status = "STUCK"
)

// DiffStats summarizes one file's change within a Transaction entry.
type DiffStats struct {
	Path          string   `json:"path"`
	AddedLines    int      `json:"addedLines"`
	DeletedLines  int      `json:"deletedLines"`
	AffectedNames []string `json:"affectedNames,omitempty"`
}

// Entry is the tagged union persisted in the undo/redo stacks. Only
// the fields relevant to Type are populated; pattern-match on Type
// when consuming.
type Entry struct {
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status,omitempty"`

	// Transaction fields.
	Description string            `json:"description,omitempty"`
	Instruction string            `json:"instruction,omitempty"`
	Snapshots   map[string]string `json:"snapshots,omitempty"` // absolute path -> snapshot id (stored as <id>.bak; "" for null)
	DiffStats   []DiffStats       `json:"diffStats,omitempty"`

	// ExternalChange fields.
	Path               string `json:"path,omitempty"`
	PreviousSnapshotID string `json:"previousSnapshotId,omitempty"`
	PreviousCRC        uint32 `json:"previousCrc,omitempty"`
	CurrentCRC         uint32 `json:"currentCrc,omitempty"`

	// Checkpoint fields.
	Name string `json:"name,omitempty"`
}

// Stats mirrors the session counters in spec §3.
type Stats struct {
	TotalEdits          int `json:"totalEdits"`
	TotalUndos          int `json:"totalUndos"`
	EditsSinceLastVerify int `json:"editsSinceLastVerify"`
}

// Document is the full persisted journal for one session.
type Document struct {
	Version     int                          `json:"version"`
	SessionID   string                       `json:"sessionId"`
	Stats       Stats                        `json:"stats"`
	UndoStack   []Entry                      `json:"undoStack"`
	RedoStack   []Entry                      `json:"redoStack"`
	Lineage     []lineage.Node               `json:"lineage,omitempty"`
	ExtChanges  map[string]extchange.State   `json:"externalChangeSnapshots,omitempty"`
	ActiveTodo  string                       `json:"activeTodoMarker,omitempty"`
}

// v1Document is the legacy flat-stack shape, kept readable for
// compatibility (spec §6: "v1 (top-level stacks) remains readable").
type v1Document struct {
	SessionID  string                     `json:"sessionId"`
	Stats      Stats                      `json:"stats"`
	UndoStack  []Entry                    `json:"undoStack"`
	RedoStack  []Entry                    `json:"redoStack"`
	Lineage    []lineage.Node             `json:"lineage,omitempty"`
	ExtChanges map[string]extchange.State `json:"externalChangeSnapshots,omitempty"`
	ActiveTodo string                     `json:"activeTodoMarker,omitempty"`
}

func Path(sessionDir string) string {
	return filepath.Join(sessionDir, "journal.json")
}

// Save persists doc to <sessionDir>/journal.json via a sibling temp
// file and atomic rename, so a crash mid-save never corrupts the
// previous journal. Journal persistence is best-effort: callers log
// failures but never fail the in-memory operation over them (spec
// §4.H invariant).
func Save(sessionDir string, doc *Document) error {
	doc.Version = CurrentVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling journal: %w", err)
	}

	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	path := Path(sessionDir)
	tmp, err := os.CreateTemp(sessionDir, ".journal-*")
	if err != nil {
		return fmt.Errorf("creating temp journal: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp journal: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp journal: %w", err)
	}
	return nil
}

// Load reads a session's journal, upgrading a v1 (flat) document to
// the v2 shape transparently. A missing file returns a fresh empty
// Document, not an error (a session with no history yet).
func Load(sessionDir string) (*Document, error) {
	path := Path(sessionDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{Version: CurrentVersion}, nil
		}
		return nil, fmt.Errorf("reading journal %s: %w", path, err)
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing journal %s: %w", path, err)
	}

	if probe.Version >= 2 {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing v2 journal %s: %w", path, err)
		}
		return &doc, nil
	}

	var v1 v1Document
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil, fmt.Errorf("parsing v1 journal %s: %w", path, err)
	}
	return &Document{
		Version:    CurrentVersion,
		SessionID:  v1.SessionID,
		Stats:      v1.Stats,
		UndoStack:  v1.UndoStack,
		RedoStack:  v1.RedoStack,
		Lineage:    v1.Lineage,
		ExtChanges: v1.ExtChanges,
		ActiveTodo: v1.ActiveTodo,
	}, nil
}

// PruneMissingSnapshots drops stack entries whose required snapshot
// files no longer exist on disk, per spec §4.M Session Context load()
// ("dropping entries whose required snapshot files no longer exist").
// exists is injected so callers can check against the session's
// actual snapshot directory without this package importing it.
func PruneMissingSnapshots(entries []Entry, exists func(snapshotID string) bool) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Type == EntryTransaction {
			ok := true
			for _, id := range e.Snapshots {
				if id == "" {
					continue
				}
				if !exists(id) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		if e.Type == EntryExternalChange && e.PreviousSnapshotID != "" && !exists(e.PreviousSnapshotID) {
			continue
		}
		out = append(out, e)
	}
	return out
}
