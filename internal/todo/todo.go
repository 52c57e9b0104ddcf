// Package todo implements nts_todo_create and nts_todo_update: the
// session's plan file, persisted as markdown under
// <project_root>/.nts/todos/TODO_<yyyymmdd_hhmmss>.md (spec §6
// persisted layout), with checkboxes updated in place. The HUD reads
// a List's Progress to render the "Plan: ..." segment (spec §6 HUD
// format).
package todo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
)

// Task is one checkbox line.
type Task struct {
	Number int
	Text   string
	Done   bool
}

// List is a parsed TODO markdown file.
type List struct {
	Path  string
	Title string
	Tasks []Task
}

var taskLine = regexp.MustCompile(`^- \[( |x)\] (\d+)\. (.*)$`)

// Create writes a new TODO file under projectRoot/.nts/todos, numbering
// tasks 1..n in the order given.
func Create(projectRoot, title string, tasks []string) (*List, error) {
	dir := filepath.Join(projectRoot, ".nts", "todos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ntserr.IOFailure(dir, err)
	}
	name := fmt.Sprintf("TODO_%s.md", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	list := &List{Path: path, Title: title}
	for i, text := range tasks {
		list.Tasks = append(list.Tasks, Task{Number: i + 1, Text: text})
	}
	if err := write(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Update flips the Done state of task number taskNum and rewrites the
// file in place.
func Update(path string, taskNum int, done bool) (*List, error) {
	list, err := Load(path)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range list.Tasks {
		if list.Tasks[i].Number == taskNum {
			list.Tasks[i].Done = done
			found = true
			break
		}
	}
	if !found {
		return nil, ntserr.New(ntserr.KindIOFailure, "todo file %s has no task #%d", path, taskNum)
	}
	if err := write(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Load parses an existing TODO file.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ntserr.IOFailure(path, err)
	}
	defer f.Close()

	list := &List{Path: path}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "# ") {
			list.Title = strings.TrimPrefix(line, "# ")
			continue
		}
		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		list.Tasks = append(list.Tasks, Task{Number: n, Text: m[3], Done: m[1] == "x"})
	}
	if err := scanner.Err(); err != nil {
		return nil, ntserr.IOFailure(path, err)
	}
	return list, nil
}

func write(list *List) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", list.Title)
	for _, task := range list.Tasks {
		mark := " "
		if task.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %d. %s\n", mark, task.Number, task.Text)
	}
	if err := os.WriteFile(list.Path, []byte(b.String()), 0o644); err != nil {
		return ntserr.IOFailure(list.Path, err)
	}
	return nil
}

// Progress summarizes the list for the HUD's
// "Plan: <title> [✓<done> ○<pending>] → #<n>: <next-task>" segment.
// nextNum/nextText are zero/empty when every task is done.
func (l *List) Progress() (done, pending int, nextNum int, nextText string) {
	for _, task := range l.Tasks {
		if task.Done {
			done++
			continue
		}
		pending++
		if nextText == "" {
			nextNum = task.Number
			nextText = task.Text
		}
	}
	return
}
