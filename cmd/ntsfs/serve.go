package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/config"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/gitcollab"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntslog"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/router"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/session"
)

// wireRequest is the transport envelope (spec §6 Transport): each
// line on stdin is one request.
type wireRequest struct {
	Method    string                 `json:"method"`
	Params    map[string]interface{} `json:"params"`
	SessionID string                 `json:"sessionId,omitempty"`
}

func serve(root, debugAddr string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ntslog.Init(filepath.Join(absRoot, ".nts"))
	log.Printf("ntsfs starting, root=%s", absRoot)

	sb, err := sandbox.New(absRoot, cfg.ProtectedPaths, cfg.MaxReadableFileBytes)
	if err != nil {
		return fmt.Errorf("resolving sandbox root: %w", err)
	}

	sessions := session.NewRegistry(absRoot)

	var git *gitcollab.Collaborator
	if info, statErr := os.Stat(filepath.Join(absRoot, ".git")); statErr == nil && info.IsDir() {
		git = gitcollab.New(absRoot)
	}

	rt, err := router.New(sb, sessions, git)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	if debugAddr != "" {
		go serveDebug(debugAddr, sessions)
	}

	return runStdioLoop(rt)
}

func runStdioLoop(rt *router.Router) error {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}

		var req wireRequest
		resp := func() router.Response {
			if err := json.Unmarshal(line, &req); err != nil {
				return router.Response{IsError: true, Content: []router.ContentBlock{
					{Type: "text", Text: fmt.Sprintf("malformed request: %v", err)},
				}}
			}
			return rt.Dispatch(router.Request{SessionID: req.SessionID, Method: req.Method, Params: req.Params})
		}()

		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf("failed to marshal response: %v", err)
			continue
		}
		out.Write(data)
		out.WriteByte('\n')
		out.Flush()
	}
	return in.Err()
}

// serveDebug exposes a side-channel health/inspection HTTP surface,
// independent of the primary stdio transport.
func serveDebug(addr string, sessions *session.Registry) {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/debug/sessions/{sid}", func(w http.ResponseWriter, req *http.Request) {
		sid := mux.Vars(req)["sid"]
		ctx, err := sessions.Get(sid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, "session %s: edits=%d undo=%d unlocked=%d\n",
			ctx.ID, ctx.Txn.Stats().TotalEdits, len(ctx.Txn.UndoStack()), ctx.Access.UnlockedCount())
	})
	log.Printf("debug surface listening on %s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Printf("debug surface stopped: %v", err)
	}
}
