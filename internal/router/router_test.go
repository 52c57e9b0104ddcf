package router

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/sandbox"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/session"
)

func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	root := t.TempDir()
	sb, err := sandbox.New(root, nil, 10*1024*1024)
	if err != nil {
		t.Fatal(err)
	}
	sessions := session.NewRegistry(root)
	rt, err := New(sb, sessions, nil)
	if err != nil {
		t.Fatal(err)
	}
	return rt, root
}

func TestCreateThenReadThenEditRoundTrip(t *testing.T) {
	rt, _ := newTestRouter(t)

	createResp := rt.Dispatch(Request{Method: ToolFileManage, Params: map[string]interface{}{
		"action": "create", "path": "f.txt", "content": "a\nb\n",
	}})
	if createResp.IsError {
		t.Fatalf("create failed: %+v", createResp)
	}
	if !strings.Contains(createResp.Content[0].Text, "[HUD sid:") {
		t.Fatalf("expected a HUD header, got %q", createResp.Content[0].Text)
	}

	readResp := rt.Dispatch(Request{Method: ToolFileRead, Params: map[string]interface{}{"path": "f.txt"}})
	if readResp.IsError {
		t.Fatalf("read failed: %+v", readResp)
	}
	if !strings.Contains(readResp.Content[0].Text, "a\nb\n") {
		t.Fatalf("read content = %q", readResp.Content[0].Text)
	}

	editResp := rt.Dispatch(Request{Method: ToolEditFile, Params: map[string]interface{}{
		"path": "f.txt",
		"hunks": []interface{}{
			map[string]interface{}{"operation": "replace", "startLine": float64(1), "endLine": float64(1), "content": "x"},
		},
	}})
	if editResp.IsError {
		t.Fatalf("edit failed: %+v", editResp)
	}
}

func TestEditFileWithAccessTokenSucceedsThenReusedTokenIsStale(t *testing.T) {
	rt, root := newTestRouter(t)

	createResp := rt.Dispatch(Request{Method: ToolFileManage, Params: map[string]interface{}{
		"action": "create", "path": "f.txt", "content": "a\nb\nc\n",
	}})
	if createResp.IsError {
		t.Fatalf("create failed: %+v", createResp)
	}

	readResp := rt.Dispatch(Request{Method: ToolFileRead, Params: map[string]interface{}{"path": "f.txt"}})
	if readResp.IsError {
		t.Fatalf("read failed: %+v", readResp)
	}
	token := lastLAT(t, readResp.Content[0].Text)

	editResp := rt.Dispatch(Request{Method: ToolEditFile, Params: map[string]interface{}{
		"path":        "f.txt",
		"accessToken": token,
		"hunks": []interface{}{
			map[string]interface{}{"operation": "replace", "startLine": float64(1), "endLine": float64(1), "content": "x"},
		},
	}})
	if editResp.IsError {
		t.Fatalf("token-gated edit failed: %+v", editResp)
	}

	// an external writer changes the file out from under a second read's token.
	readResp2 := rt.Dispatch(Request{Method: ToolFileRead, Params: map[string]interface{}{"path": "f.txt"}})
	if readResp2.IsError {
		t.Fatalf("second read failed: %+v", readResp2)
	}
	staleToken := lastLAT(t, readResp2.Content[0].Text)
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("x\nB\nc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	staleEditResp := rt.Dispatch(Request{Method: ToolEditFile, Params: map[string]interface{}{
		"path":        "f.txt",
		"accessToken": staleToken,
		"hunks": []interface{}{
			map[string]interface{}{"operation": "replace", "startLine": 2, "endLine": 2, "content": "y"},
		},
	}})
	if !staleEditResp.IsError {
		t.Fatal("expected a stale LAT to fail the edit with OptimisticLockFailure")
	}
	if !strings.Contains(staleEditResp.Content[0].Text, "OptimisticLockFailure") {
		t.Fatalf("expected OptimisticLockFailure, got %q", staleEditResp.Content[0].Text)
	}
}

func lastLAT(t *testing.T, text string) string {
	t.Helper()
	const marker = "LAT: "
	idx := strings.LastIndex(text, marker)
	if idx < 0 {
		t.Fatalf("no LAT found in %q", text)
	}
	return strings.TrimSpace(text[idx+len(marker):])
}

func TestInvalidParamsIsErrorResponse(t *testing.T) {
	rt, _ := newTestRouter(t)
	resp := rt.Dispatch(Request{Method: ToolFileRead, Params: map[string]interface{}{}})
	if !resp.IsError {
		t.Fatal("expected an error response for missing required path")
	}
}

func TestUnknownToolIsErrorResponse(t *testing.T) {
	rt, _ := newTestRouter(t)
	resp := rt.Dispatch(Request{Method: "nts_does_not_exist", Params: map[string]interface{}{}})
	if !resp.IsError {
		t.Fatal("expected an error response for an unknown tool")
	}
}

func TestBatchToolsRollsBackOnFailingStep(t *testing.T) {
	rt, root := newTestRouter(t)

	resp := rt.Dispatch(Request{Method: ToolBatchTools, Params: map[string]interface{}{
		"instruction": "create then fail",
		"steps": []interface{}{
			map[string]interface{}{"id": "cre", "tool": ToolFileManage, "params": map[string]interface{}{
				"action": "create", "path": "batch.txt", "content": "hi\n",
			}},
			map[string]interface{}{"tool": ToolFileRead, "params": map[string]interface{}{
				"path": "does-not-exist.txt",
			}},
		},
	}})
	if !resp.IsError {
		t.Fatalf("expected batch to fail, got %+v", resp)
	}
	if _, err := os.Stat(filepath.Join(root, "batch.txt")); !os.IsNotExist(err) {
		t.Fatal("expected the whole batch to roll back, leaving no trace of batch.txt")
	}
}

func TestTodoCreateSurfacesInHUD(t *testing.T) {
	rt, _ := newTestRouter(t)

	createResp := rt.Dispatch(Request{Method: ToolTodoCreate, Params: map[string]interface{}{
		"title": "Ship it",
		"tasks": []interface{}{"write code", "write tests"},
	}})
	if createResp.IsError {
		t.Fatalf("todo create failed: %+v", createResp)
	}

	readResp := rt.Dispatch(Request{Method: ToolProjectStructure, Params: map[string]interface{}{}})
	if readResp.IsError {
		t.Fatalf("project structure failed: %+v", readResp)
	}
	if !strings.Contains(readResp.Content[0].Text, "Plan: Ship it") {
		t.Fatalf("expected HUD to show active plan, got %q", readResp.Content[0].Text)
	}
}
