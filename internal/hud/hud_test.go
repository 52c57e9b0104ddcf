package hud

import (
	"strings"
	"testing"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/todo"
)

func TestFormatWithNoActivePlan(t *testing.T) {
	line := Format(Input{SessionID: "abcdef1234567890", EditsInSession: 3, UnlockedFiles: 2})
	if !strings.HasPrefix(line, "[HUD sid:abcdef12] Plan: (none)") {
		t.Fatalf("line = %q", line)
	}
	if !strings.HasSuffix(line, "| Session: 3 edits | Unlocked: 2 files") {
		t.Fatalf("line = %q", line)
	}
}

func TestFormatWithActivePlan(t *testing.T) {
	root := t.TempDir()
	list, err := todo.Create(root, "Ship X", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	list, err = todo.Update(list.Path, 1, true)
	if err != nil {
		t.Fatal(err)
	}

	line := Format(Input{SessionID: "s1", ActiveTodo: list, EditsInSession: 5, UnlockedFiles: 1})
	want := "[HUD sid:s1] Plan: Ship X [✓1 ○1] → #2: b | Session: 5 edits | Unlocked: 1 files"
	if line != want {
		t.Fatalf("line = %q, want %q", line, want)
	}
}
