// Package session implements the Session Context (spec §4.M): a
// per-session holder for every tracker, lazily created, persisted to
// its journal on every mutation, and explicitly resettable.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/access"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/extchange"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/journal"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lat"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/lineage"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/snapshot"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/txn"
)

// DefaultID is the session id used by current_or_default() callers
// that never named a session explicitly.
const DefaultID = "default"

const secretFileName = "lat-secret"

// Context bundles one session's trackers and the transaction manager
// that ties them together. Every exported field is the tracker a
// Router operation needs; Context itself owns none of the filesystem
// logic.
type Context struct {
	ID  string
	Dir string

	Access    *access.Tracker
	LAT       *lat.Issuer
	Ext       *extchange.Tracker
	Lineage   *lineage.Tracker
	Snapshots *snapshot.Store
	Txn       *txn.Manager

	ActiveTodoMarker string
}

// New creates a fresh session under baseDir/<id>, generating a new LAT
// signing secret.
func New(baseDir, id string) (*Context, error) {
	dir := filepath.Join(baseDir, id)
	secret, err := lat.NewSecret()
	if err != nil {
		return nil, err
	}
	if err := persistSecret(dir, secret); err != nil {
		return nil, err
	}

	ext := extchange.New()
	lin := lineage.New()
	snaps := snapshot.New(dir)
	return &Context{
		ID:        id,
		Dir:       dir,
		Access:    access.New(),
		LAT:       lat.NewIssuer(id, secret),
		Ext:       ext,
		Lineage:   lin,
		Snapshots: snaps,
		Txn:       txn.NewManager(id, snaps, lin, ext),
	}, nil
}

// Load rehydrates a session from its persisted secret and journal,
// dropping any undo/redo entries whose backing snapshot files no
// longer exist (spec §4.M load()).
func Load(baseDir, id string) (*Context, error) {
	dir := filepath.Join(baseDir, id)
	secret, err := loadSecret(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return New(baseDir, id)
		}
		return nil, err
	}

	doc, err := journal.Load(dir)
	if err != nil {
		return nil, err
	}

	ext := extchange.New()
	ext.Restore(doc.ExtChanges)
	lin := lineage.New()
	lin.Restore(doc.Lineage)
	snaps := snapshot.New(dir)

	exists := func(snapshotID string) bool {
		_, err := os.Stat(filepath.Join(snaps.Dir(), snapshotID+".bak"))
		return err == nil
	}
	undo := journal.PruneMissingSnapshots(doc.UndoStack, exists)
	redo := journal.PruneMissingSnapshots(doc.RedoStack, exists)

	mgr := txn.NewManager(id, snaps, lin, ext)
	mgr.Restore(undo, redo, doc.Stats)

	acc := access.New()

	return &Context{
		ID:               id,
		Dir:              dir,
		Access:           acc,
		LAT:              lat.NewIssuer(id, secret),
		Ext:              ext,
		Lineage:          lin,
		Snapshots:        snaps,
		Txn:              mgr,
		ActiveTodoMarker: doc.ActiveTodo,
	}, nil
}

// SaveJournal serializes the session's full persisted state to
// <dir>/journal.json. Best-effort per spec §4.H: callers log a
// failure here rather than failing the in-memory operation that
// triggered it.
func (c *Context) SaveJournal() error {
	doc := &journal.Document{
		SessionID:  c.ID,
		Stats:      c.Txn.Stats(),
		UndoStack:  c.Txn.UndoStack(),
		RedoStack:  c.Txn.RedoStack(),
		Lineage:    c.Lineage.Snapshot(),
		ExtChanges: c.Ext.Snapshot(),
		ActiveTodo: c.ActiveTodoMarker,
	}
	return journal.Save(c.Dir, doc)
}

// Reset discards all in-memory tracker state and the persisted
// journal, as if the session had never run.
func (c *Context) Reset() error {
	c.Access.Reset()
	c.Ext.Restore(nil)
	c.Lineage.Restore(nil)
	if err := os.RemoveAll(c.Dir); err != nil {
		return ntserr.IOFailure(c.Dir, err)
	}
	secret, err := lat.NewSecret()
	if err != nil {
		return err
	}
	if err := persistSecret(c.Dir, secret); err != nil {
		return err
	}
	c.LAT = lat.NewIssuer(c.ID, secret)
	c.Snapshots = snapshot.New(c.Dir)
	c.Txn = txn.NewManager(c.ID, c.Snapshots, c.Lineage, c.Ext)
	c.ActiveTodoMarker = ""
	return nil
}

func persistSecret(dir string, secret []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ntserr.IOFailure(dir, err)
	}
	path := filepath.Join(dir, secretFileName)
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return ntserr.IOFailure(path, err)
	}
	return nil
}

// Registry holds every session live in this process, keyed by id,
// lazily creating or loading a Context on first access (spec §4.M
// "created lazily"). current()/current_or_default() from the spec are
// expressed as Get (explicit id; loads the session from disk, or
// creates it when none exists) and CurrentOrDefault (the Router's
// entrypoint, which substitutes DefaultID for an empty id).
type Registry struct {
	mu      sync.Mutex
	baseDir string
	byID    map[string]*Context
}

func NewRegistry(projectRoot string) *Registry {
	return &Registry{
		baseDir: filepath.Join(projectRoot, ".nts", "sessions"),
		byID:    make(map[string]*Context),
	}
}

// Get returns an already-live session, loading it from disk on first
// reference in this process.
func (r *Registry) Get(id string) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.byID[id]; ok {
		return ctx, nil
	}
	ctx, err := Load(r.baseDir, id)
	if err != nil {
		return nil, err
	}
	r.byID[id] = ctx
	return ctx, nil
}

// CurrentOrDefault returns the named session, or DefaultID if id is
// empty.
func (r *Registry) CurrentOrDefault(id string) (*Context, error) {
	if id == "" {
		id = DefaultID
	}
	return r.Get(id)
}

// Reset discards a session's in-memory and on-disk state and drops it
// from the registry so the next Get reloads (creates) it fresh.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	ctx, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		var err error
		ctx, err = Load(r.baseDir, id)
		if err != nil {
			return err
		}
	}
	if err := ctx.Reset(); err != nil {
		return err
	}
	r.mu.Lock()
	r.byID[id] = ctx
	r.mu.Unlock()
	return nil
}

func loadSecret(dir string) ([]byte, error) {
	path := filepath.Join(dir, secretFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != lat.SecretSize {
		return nil, fmt.Errorf("secret file %s has unexpected length %d", path, len(data))
	}
	return data, nil
}
