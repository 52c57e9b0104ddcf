// Package batch implements the Batch Orchestrator (spec §4.L): a
// client-supplied ordered list of tool calls run inside one enclosing
// transaction scope, with each step's params able to reference an
// earlier step's result via {{ref.prop}} interpolation. Grounded on
// plandex-cli's ApplyAll/ApplyNext pair (app/shared/file_transaction.go),
// generalized from "apply a fixed list of file operations" to
// "dispatch an arbitrary named tool per step, rolling back the whole
// batch on any failure."
package batch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/ntserr"
	"github.com/Nefrols/NTS-MCP-FS-sub002/internal/txn"
)

// Step is one entry in a batch request.
type Step struct {
	ID     string
	Tool   string
	Params map[string]interface{}
}

// Output is what a dispatched step produced, in the shape the
// interpolator needs to resolve a later step's {{ref.prop}} reference.
type Output struct {
	IsError bool
	Text    string   // concatenated text of all response content blocks
	Path    string   // the path the step operated on, if any
	Tokens  []string // every LAT token found in Text
}

// Dispatch invokes one named tool with already-interpolated params and
// returns its Output; supplied by the Router so this package stays
// independent of the tool registry.
type Dispatch func(tool string, params map[string]interface{}) (Output, error)

// Orchestrator runs batches against one session's transaction scope.
type Orchestrator struct {
	Txn *txn.Manager
}

func New(t *txn.Manager) *Orchestrator {
	return &Orchestrator{Txn: t}
}

// Run interpolates and dispatches each step in order inside a single
// transaction scope named by instruction. Any step failure rolls back
// the entire scope; only a full run commits (spec §4.L).
func (o *Orchestrator) Run(instruction string, steps []Step, dispatch Dispatch) ([]Output, error) {
	o.Txn.Start(instruction, "")

	outputs := make([]Output, 0, len(steps))
	byID := make(map[string]Output, len(steps))

	for i, step := range steps {
		params, err := interpolateValue(step.Params, outputs, byID)
		if err != nil {
			o.Txn.Rollback()
			return nil, err
		}
		paramsMap, _ := params.(map[string]interface{})

		out, err := dispatch(step.Tool, paramsMap)
		if err != nil {
			o.Txn.Rollback()
			return nil, err
		}
		if out.IsError {
			o.Txn.Rollback()
			return nil, ntserr.New(ntserr.KindIOFailure, "batch step %d (%s) failed: %s", i+1, step.Tool, out.Text)
		}

		outputs = append(outputs, out)
		if step.ID != "" {
			byID[step.ID] = out
		}
	}

	if _, err := o.Txn.Commit(nil); err != nil {
		return nil, err
	}
	return outputs, nil
}

var refPattern = regexp.MustCompile(`\{\{(\w+)\.(\w+)\}\}`)

// interpolateValue walks a JSON-tree-shaped value, substituting every
// {{ref.prop}} occurrence found in string leaves.
func interpolateValue(v interface{}, outputs []Output, byID map[string]Output) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, outputs, byID)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			resolved, err := interpolateValue(child, outputs, byID)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			resolved, err := interpolateValue(child, outputs, byID)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func interpolateString(s string, outputs []Output, byID map[string]Output) (string, error) {
	var firstErr error
	result := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		groups := refPattern.FindStringSubmatch(match)
		ref, prop := groups[1], groups[2]

		out, ok := resolveRef(ref, outputs, byID)
		if !ok {
			firstErr = ntserr.New(ntserr.KindIOFailure, "batch interpolation references unknown step or id %q", ref)
			return match
		}

		switch prop {
		case "token":
			if len(out.Tokens) == 0 {
				return ""
			}
			return out.Tokens[0]
		case "tokens":
			return strings.Join(out.Tokens, ",")
		case "text":
			return out.Text
		case "path":
			return out.Path
		default:
			firstErr = ntserr.New(ntserr.KindIOFailure, "batch interpolation references unknown property %q", prop)
			return match
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

func resolveRef(ref string, outputs []Output, byID map[string]Output) (Output, bool) {
	if strings.HasPrefix(ref, "step") {
		n, err := strconv.Atoi(strings.TrimPrefix(ref, "step"))
		if err == nil && n >= 1 && n <= len(outputs) {
			return outputs[n-1], true
		}
	}
	if out, ok := byID[ref]; ok {
		return out, true
	}
	return Output{}, false
}

// ExtractTokens pulls every LAT token out of a response text blob,
// used by callers building an Output from a dispatched tool's raw
// content blocks.
func ExtractTokens(text string) []string {
	matches := latTokenPattern.FindAllString(text, -1)
	return matches
}

var latTokenPattern = regexp.MustCompile(`LAT:[A-Za-z0-9_-]+:[A-Za-z0-9_-]+`)
