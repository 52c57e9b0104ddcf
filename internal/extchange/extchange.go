// Package extchange implements the per-session map of "authoritative
// expected state" per path (spec §4.E). Drift is defined as the
// on-disk hash differing from the recorded snapshot hash; the tracker
// does not consult the transaction state, so callers decide when to
// check for it.
package extchange

import (
	"sync"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
)

// State is the authoritative expected state for one path.
type State struct {
	ContentHash string        `json:"contentHash"`
	Content     string        `json:"content"`
	CRC         uint32        `json:"crc"`
	LineCount   int           `json:"lineCount"`
	Encoding    fsio.Encoding `json:"encoding"`
	ByteSize    int64         `json:"byteSize"`
}

// Tracker maps path -> its last-known authoritative State.
type Tracker struct {
	mu    sync.Mutex
	byPath map[string]State
}

func New() *Tracker {
	return &Tracker{byPath: make(map[string]State)}
}

// Update records the authoritative state for path, called whenever a
// read issues a LAT or a write completes.
func (t *Tracker) Update(path, content string, enc fsio.Encoding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPath[path] = State{
		ContentHash: lineage.HashContent([]byte(content)),
		Content:     content,
		CRC:         fsio.CRC32C([]byte(content)),
		LineCount:   fsio.LineCount(content),
		Encoding:    enc,
		ByteSize:    int64(len(content)),
	}
}

// Get returns the tracked state for path, if any.
func (t *Tracker) Get(path string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byPath[path]
	return s, ok
}

// Invalidate removes path's tracked state, used after a successful
// undo/redo so the next read doesn't falsely look like drift against
// a baseline that the undo/redo itself just changed (spec §4.H
// invariant).
func (t *Tracker) Invalidate(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPath, path)
}

// Drifted reports whether currentContent's hash differs from the
// tracked baseline for path. Returns false if path has no tracked
// baseline (nothing to compare against yet).
func (t *Tracker) Drifted(path, currentContent string) bool {
	t.mu.Lock()
	s, ok := t.byPath[path]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return lineage.HashContent([]byte(currentContent)) != s.ContentHash
}

// Baseline returns the last authoritative content and CRC recorded
// for path, for a caller that has just detected drift and needs the
// pre-change state to hand to Txn.RecordExternalChange.
func (t *Tracker) Baseline(path string) (content string, crc uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byPath[path]
	if !ok {
		return "", 0, false
	}
	return s.Content, s.CRC, true
}

// Move migrates a tracked baseline from one path to another.
func (t *Tracker) Move(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byPath[from]; ok {
		delete(t.byPath, from)
		t.byPath[to] = s
	}
}

// Forget removes a path's tracked baseline entirely (e.g. on delete).
func (t *Tracker) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPath, path)
}

// Snapshot/Restore support journal persistence.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.byPath))
	for k, v := range t.byPath {
		out[k] = v
	}
	return out
}

func (t *Tracker) Restore(m map[string]State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m == nil {
		m = map[string]State{}
	}
	t.byPath = m
}
