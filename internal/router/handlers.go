package router

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/batch"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/edit"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/fsio"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/session"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/todo"
)

func (r *Router) fileRead(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	userPath := stringParam(params, "path")
	path, err := r.Sandbox.Sanitize(userPath, boolParam(params, "allowProtected"))
	if err != nil {
		return nil, err
	}
	if err := r.Sandbox.CheckFileSize(path); err != nil {
		return nil, err
	}

	content, enc, err := fsio.ReadText(path)
	if err != nil {
		return nil, err
	}
	lines := fsio.SplitLinesKeepEnds(content)

	start := intParam(params, "startLine")
	if start == 0 {
		start = 1
	}
	end := intParam(params, "endLine")
	if end == 0 {
		end = len(lines)
	}
	if start < 1 || start > len(lines)+1 || end < start-1 || end > len(lines) {
		return nil, ntserr.AddressingError(path, start, end, len(lines))
	}

	selected := strings.Join(lines[start-1:end], "")
	token, err := ctx.LAT.Issue(path, start, end, fsio.CRCRange(lines, start, end), len(lines), false)
	if err != nil {
		return nil, err
	}

	ctx.Access.RegisterRead(path)
	ctx.Ext.Update(path, content, enc)

	return &opResult{Text: fmt.Sprintf("%s\nLAT: %s", selected, token), Path: path, Tokens: []string{token}}, nil
}

func (r *Router) fileManage(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	svc := r.fileopsService(ctx)
	action := stringParam(params, "action")
	userPath := stringParam(params, "path")
	allowProtected := boolParam(params, "allowProtected")

	switch action {
	case "create":
		res, err := svc.Create(userPath, stringParam(params, "content"), allowProtected)
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("created %s", res.Path), Path: res.Path, Tokens: []string{res.LAT}}, nil

	case "delete":
		if err := svc.Delete(userPath, boolParam(params, "recursive"), allowProtected); err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("deleted %s", userPath)}, nil

	case "rename":
		dest := filepath.Join(filepath.Dir(userPath), stringParam(params, "newName"))
		res, err := svc.Rename(userPath, dest, allowProtected)
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("renamed to %s", res.Path), Path: res.Path, Tokens: []string{res.LAT}}, nil

	case "move":
		res, err := svc.Move(userPath, stringParam(params, "destination"), allowProtected)
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("moved to %s", res.Path), Path: res.Path, Tokens: []string{res.LAT}}, nil

	default:
		return nil, ntserr.New(ntserr.KindIOFailure, "unknown file_manage action %q", action)
	}
}

func (r *Router) listDirectory(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	userPath := stringParam(params, "path")
	if userPath == "" {
		userPath = "."
	}
	entries, err := r.dirlistService().List(userPath)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, e := range entries {
		suffix := ""
		if e.IsDir {
			suffix = "/"
		}
		fmt.Fprintf(&b, "%s%s\n", e.Name, suffix)
	}
	return &opResult{Text: b.String()}, nil
}

func (r *Router) findFile(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	matches, err := r.dirlistService().Find(stringParam(params, "pattern"))
	if err != nil {
		return nil, err
	}
	return &opResult{Text: strings.Join(matches, "\n")}, nil
}

func (r *Router) fileInfo(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	info, err := r.dirlistService().Stat(stringParam(params, "path"))
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("path=%s size=%d isDir=%t lineCount=%d", info.Path, info.Size, info.IsDir, info.LineCount)
	return &opResult{Text: text, Path: info.Path}, nil
}

func (r *Router) editFile(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	userPath := stringParam(params, "path")
	path, err := r.Sandbox.Sanitize(userPath, boolParam(params, "allowProtected"))
	if err != nil {
		return nil, err
	}

	req := edit.Request{
		OldText:       stringParam(params, "oldText"),
		NewText:       stringParam(params, "newText"),
		AccessToken:   stringParam(params, "accessToken"),
		InfinityRange: boolParam(params, "infinityRange"),
	}
	if crc, ok := uint32Param(params, "expectedChecksum"); ok {
		req.ExpectedChecksum = crc
		req.HasExpectedChecksum = true
	}
	if rawHunks, ok := params["hunks"].([]interface{}); ok {
		for _, rh := range rawHunks {
			hm, ok := rh.(map[string]interface{})
			if !ok {
				continue
			}
			h := edit.Hunk{
				Operation:           edit.Op(stringParam(hm, "operation")),
				StartLine:           intParam(hm, "startLine"),
				EndLine:             intParam(hm, "endLine"),
				Content:             stringParam(hm, "content"),
				ContextStartPattern: stringParam(hm, "contextStartPattern"),
			}
			if ec, ok := hm["expectedContent"].(string); ok {
				h.ExpectedContent = ec
				h.HasExpectedContent = true
			}
			req.Hunks = append(req.Hunks, h)
		}
	}

	engine := r.editEngine(ctx)
	ctx.Txn.Start("edit "+userPath, "")
	result, err := engine.Apply(path, req)
	if err != nil {
		ctx.Txn.Rollback()
		return nil, err
	}
	if _, err := ctx.Txn.Commit(map[string]string{path: result.NewContent}); err != nil {
		return nil, err
	}

	return &opResult{Text: fmt.Sprintf("edited %s (%d lines)\nLAT: %s", path, result.LineCount, result.NewLAT),
		Path: path, Tokens: []string{result.NewLAT}}, nil
}

func (r *Router) projectReplace(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	svc := r.fileopsService(ctx)
	result, err := svc.ReplaceProject(stringParam(params, "pattern"), stringParam(params, "replacement"), boolParam(params, "dryRun"))
	if err != nil {
		return nil, err
	}
	if result.Diffs != nil {
		var b strings.Builder
		for path, diff := range result.Diffs {
			fmt.Fprintf(&b, "--- %s\n%s\n", path, diff)
		}
		return &opResult{Text: b.String()}, nil
	}
	var tokens []string
	for _, tok := range result.LATs {
		tokens = append(tokens, tok)
	}
	return &opResult{Text: fmt.Sprintf("replaced in %d files, %d matches", result.FilesChanged, result.TotalMatches), Tokens: tokens}, nil
}

func (r *Router) batchTools(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	instruction := stringParam(params, "instruction")
	rawSteps, _ := params["steps"].([]interface{})

	steps := make([]batch.Step, 0, len(rawSteps))
	for _, rs := range rawSteps {
		sm, ok := rs.(map[string]interface{})
		if !ok {
			continue
		}
		stepParams, _ := sm["params"].(map[string]interface{})
		steps = append(steps, batch.Step{
			ID:     stringParam(sm, "id"),
			Tool:   stringParam(sm, "tool"),
			Params: stepParams,
		})
	}

	orch := batch.New(ctx.Txn)
	outputs, err := orch.Run(instruction, steps, func(tool string, p map[string]interface{}) (batch.Output, error) {
		if err := r.validate(tool, p); err != nil {
			if e, ok := ntserr.As(err); ok {
				return batch.Output{IsError: true, Text: e.Msg}, nil
			}
			return batch.Output{}, err
		}
		res, err := r.invoke(ctx, tool, p)
		if err != nil {
			if e, ok := ntserr.As(err); ok {
				return batch.Output{IsError: true, Text: e.Msg}, nil
			}
			return batch.Output{}, err
		}
		return batch.Output{Text: res.Text, Path: res.Path, Tokens: res.Tokens}, nil
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for i, o := range outputs {
		fmt.Fprintf(&b, "step %d: %s\n", i+1, o.Text)
	}
	return &opResult{Text: b.String()}, nil
}

func (r *Router) session(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	action := stringParam(params, "action")
	name := stringParam(params, "name")

	switch action {
	case "checkpoint":
		ctx.Txn.CreateCheckpoint(name)
		return &opResult{Text: fmt.Sprintf("checkpoint %q created", name)}, nil

	case "rollback":
		results, err := ctx.Txn.RollbackToCheckpoint(name)
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("rolled back to %q (%d entries undone)", name, len(results))}, nil

	case "undo":
		result, err := ctx.Txn.Undo()
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("undo: %s (%s)", result.Status, strings.Join(result.Paths, ", "))}, nil

	case "redo":
		result, err := ctx.Txn.Redo()
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("redo: %s (%s)", result.Status, strings.Join(result.Paths, ", "))}, nil

	case "journal":
		var b strings.Builder
		for _, e := range ctx.Txn.UndoStack() {
			fmt.Fprintf(&b, "%s %s %s %s\n", e.Timestamp.Format("2006-01-02T15:04:05"), e.Type, e.Status, e.Description)
		}
		return &opResult{Text: b.String()}, nil

	case "git_checkpoint":
		if r.Git == nil {
			return nil, ntserr.New(ntserr.KindIOFailure, "project root is not a git repository")
		}
		hash, err := r.Git.Checkpoint(ctx.ID, name)
		if err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("git checkpoint %q at %s", name, hash)}, nil

	case "git_restore":
		if r.Git == nil {
			return nil, ntserr.New(ntserr.KindIOFailure, "project root is not a git repository")
		}
		if err := r.Git.Restore(ctx.ID, name); err != nil {
			return nil, err
		}
		return &opResult{Text: fmt.Sprintf("restored git checkpoint %q", name)}, nil

	default:
		return nil, ntserr.New(ntserr.KindIOFailure, "unknown session action %q", action)
	}
}

func (r *Router) todoCreate(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	title := stringParam(params, "title")
	var tasks []string
	if raw, ok := params["tasks"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tasks = append(tasks, s)
			}
		}
	}
	list, err := todo.Create(r.Sandbox.ProjectRoot(), title, tasks)
	if err != nil {
		return nil, err
	}
	ctx.ActiveTodoMarker = list.Path
	return &opResult{Text: fmt.Sprintf("created todo %s with %d tasks", list.Path, len(list.Tasks))}, nil
}

func (r *Router) todoUpdate(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	if ctx.ActiveTodoMarker == "" {
		return nil, ntserr.New(ntserr.KindIOFailure, "no active todo list for this session")
	}
	_, err := todo.Update(ctx.ActiveTodoMarker, intParam(params, "taskNumber"), boolParam(params, "done"))
	if err != nil {
		return nil, err
	}
	return &opResult{Text: "todo updated"}, nil
}

func (r *Router) gitCommitSession(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	if r.Git == nil {
		return nil, ntserr.New(ntserr.KindIOFailure, "project root is not a git repository")
	}
	var paths []string
	if raw, ok := params["paths"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
	}
	hash, err := r.Git.CommitSession(stringParam(params, "message"), paths)
	if err != nil {
		return nil, err
	}
	return &opResult{Text: fmt.Sprintf("committed %s", hash)}, nil
}

func (r *Router) projectStructure(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	depth := intParam(params, "maxDepth")
	tree, err := r.dirlistService().Tree(depth)
	if err != nil {
		return nil, err
	}
	return &opResult{Text: tree}, nil
}

func (r *Router) searchFiles(ctx *session.Context, params map[string]interface{}) (*opResult, error) {
	hits, err := r.dirlistService().Search(stringParam(params, "pattern"))
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s:%d: %s\n", h.Path, h.Line, h.Text)
	}
	return &opResult{Text: b.String()}, nil
}
