// Package hud renders the one-line status header the Router attaches
// to every response (spec §6 HUD format):
//
//	[HUD sid:<8-char-id>] Plan: <title> [✓<done> ○<pending>] → #<n>: <next-task> | Session: <edits> edits | Unlocked: <n> files
package hud

import (
	"fmt"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/todo"
)

// Input is everything Format needs to produce one HUD line.
type Input struct {
	SessionID    string
	ActiveTodo   *todo.List // nil if no plan is active
	EditsInSession int
	UnlockedFiles  int
}

// Format renders the HUD line. A nil ActiveTodo renders "Plan: (none)"
// in place of the title/progress/next-task segment, since a session
// need not have created a todo list yet.
func Format(in Input) string {
	sid := in.SessionID
	if len(sid) > 8 {
		sid = sid[:8]
	}

	plan := "Plan: (none)"
	if in.ActiveTodo != nil {
		done, pending, nextNum, nextText := in.ActiveTodo.Progress()
		if nextText == "" {
			plan = fmt.Sprintf("Plan: %s [✓%d ○%d]", in.ActiveTodo.Title, done, pending)
		} else {
			plan = fmt.Sprintf("Plan: %s [✓%d ○%d] → #%d: %s", in.ActiveTodo.Title, done, pending, nextNum, nextText)
		}
	}

	return fmt.Sprintf("[HUD sid:%s] %s | Session: %d edits | Unlocked: %d files",
		sid, plan, in.EditsInSession, in.UnlockedFiles)
}
