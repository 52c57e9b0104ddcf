// Package router implements the Router (spec §4.N): given
// (tool_name, params), it looks up the operation, validates the input
// against a per-tool JSON schema, invokes it, and wraps the response
// with a HUD header line. Errors become an isError:true content block
// with a one-line user-facing message rather than a transport-level
// failure (spec §7 propagation policy), the same convention the batch
// orchestrator recognizes to short-circuit a running batch.
package router

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/batch"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/dirlist"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/edit"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fileops"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/gitcollab"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/hud"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/session"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/todo"
)

// Tool names, the external contract (spec §6).
const (
	ToolFileRead         = "nts_file_read"
	ToolFileManage       = "nts_file_manage"
	ToolListDirectory    = "nts_list_directory"
	ToolFindFile         = "nts_find_file"
	ToolFileInfo         = "nts_file_info"
	ToolEditFile         = "nts_edit_file"
	ToolProjectReplace   = "nts_project_replace"
	ToolBatchTools       = "nts_batch_tools"
	ToolSession          = "nts_session"
	ToolTodoCreate       = "nts_todo_create"
	ToolTodoUpdate       = "nts_todo_update"
	ToolGitCommitSession = "nts_git_commit_session"
	ToolProjectStructure = "nts_project_structure"
	ToolSearchFiles      = "nts_search_files"
)

// Request is one inbound call, decoded from the transport's
// {"method": ..., "params": ...} envelope (spec §6 Transport).
type Request struct {
	SessionID string
	Method    string
	Params    map[string]interface{}
}

// ContentBlock is one unit of response content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the transport-level reply (spec §6).
type Response struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Router dispatches tool calls against the sandboxed project and its
// live sessions.
type Router struct {
	Sandbox  *sandbox.Sandbox
	Sessions *session.Registry
	Git      *gitcollab.Collaborator // nil if the project root is not a git repository

	schemas map[string]*gojsonschema.Schema
}

func New(sb *sandbox.Sandbox, sessions *session.Registry, git *gitcollab.Collaborator) (*Router, error) {
	r := &Router{Sandbox: sb, Sessions: sessions, Git: git, schemas: make(map[string]*gojsonschema.Schema)}
	for tool, raw := range toolSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", tool, err)
		}
		r.schemas[tool] = schema
	}
	return r, nil
}

// opResult is the shape every handler produces; the Dispatch wraps it
// with the HUD header, and the batch orchestrator's Dispatch closure
// consumes it directly as a batch.Output.
type opResult struct {
	Text   string
	Path   string
	Tokens []string
}

// Dispatch validates req against its tool's schema, invokes the
// operation, and returns a fully formed Response including the HUD
// header line.
func (r *Router) Dispatch(req Request) Response {
	ctx, err := r.Sessions.CurrentOrDefault(req.SessionID)
	if err != nil {
		return errorResponse(err)
	}

	if err := r.validate(req.Method, req.Params); err != nil {
		return errorResponse(err)
	}

	result, err := r.invoke(ctx, req.Method, req.Params)
	if err != nil {
		return errorResponse(err)
	}

	if saveErr := ctx.SaveJournal(); saveErr != nil {
		// Best-effort per spec §4.H: the in-memory operation already
		// succeeded, so it is reported, not failed, over a journal
		// write that didn't land.
		result.Text += fmt.Sprintf("\n(warning: failed to persist journal: %v)", saveErr)
	}

	line := r.hudLine(ctx)
	return Response{Content: []ContentBlock{{Type: "text", Text: line + "\n" + result.Text}}}
}

func (r *Router) hudLine(ctx *session.Context) string {
	var active *todo.List
	if ctx.ActiveTodoMarker != "" {
		if list, err := todo.Load(ctx.ActiveTodoMarker); err == nil {
			active = list
		}
	}
	return hud.Format(hud.Input{
		SessionID:      ctx.ID,
		ActiveTodo:     active,
		EditsInSession: ctx.Txn.Stats().TotalEdits,
		UnlockedFiles:  ctx.Access.UnlockedCount(),
	})
}

func errorResponse(err error) Response {
	msg := err.Error()
	if e, ok := ntserr.As(err); ok {
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return Response{IsError: true, Content: []ContentBlock{{Type: "text", Text: msg}}}
}

func (r *Router) validate(method string, params map[string]interface{}) error {
	schema, ok := r.schemas[method]
	if !ok {
		return ntserr.New(ntserr.KindIOFailure, "unknown tool %q", method)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return ntserr.Wrap(ntserr.KindIOFailure, err, "validating params for %s", method)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return ntserr.New(ntserr.KindIOFailure, "invalid params for %s: %s", method, strings.Join(msgs, "; "))
	}
	return nil
}

func (r *Router) invoke(ctx *session.Context, method string, params map[string]interface{}) (*opResult, error) {
	switch method {
	case ToolFileRead:
		return r.fileRead(ctx, params)
	case ToolFileManage:
		return r.fileManage(ctx, params)
	case ToolListDirectory:
		return r.listDirectory(ctx, params)
	case ToolFindFile:
		return r.findFile(ctx, params)
	case ToolFileInfo:
		return r.fileInfo(ctx, params)
	case ToolEditFile:
		return r.editFile(ctx, params)
	case ToolProjectReplace:
		return r.projectReplace(ctx, params)
	case ToolBatchTools:
		return r.batchTools(ctx, params)
	case ToolSession:
		return r.session(ctx, params)
	case ToolTodoCreate:
		return r.todoCreate(ctx, params)
	case ToolTodoUpdate:
		return r.todoUpdate(ctx, params)
	case ToolGitCommitSession:
		return r.gitCommitSession(ctx, params)
	case ToolProjectStructure:
		return r.projectStructure(ctx, params)
	case ToolSearchFiles:
		return r.searchFiles(ctx, params)
	default:
		return nil, ntserr.New(ntserr.KindIOFailure, "unknown tool %q", method)
	}
}

func (r *Router) fileopsService(ctx *session.Context) *fileops.Service {
	return fileops.New(r.Sandbox, ctx.Access, ctx.LAT, ctx.Ext, ctx.Lineage, ctx.Txn)
}

func (r *Router) editEngine(ctx *session.Context) *edit.Engine {
	return edit.NewEngine(ctx.Access, ctx.LAT, ctx.Ext, ctx.Lineage, ctx.Txn)
}

func (r *Router) dirlistService() *dirlist.Service {
	return dirlist.New(r.Sandbox)
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]interface{}, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func uint32Param(params map[string]interface{}, key string) (uint32, bool) {
	switch v := params[key].(type) {
	case float64:
		return uint32(v), true
	case int:
		return uint32(v), true
	default:
		return 0, false
	}
}
