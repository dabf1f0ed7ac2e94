package tools

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"refactchat/internal/models"

	"github.com/openai/openai-go/v3"
)

// FilterForMode keeps the tools a mode may call: none for quick, read-only
// tools for explore and everything for agent. The agentic flag is a client
// hint and is cleared on the returned copies.
func FilterForMode(all []models.ToolCommand, mode models.ToolUse) []models.ToolCommand {
	if mode == models.ToolUseQuick {
		return nil
	}

	out := make([]models.ToolCommand, 0, len(all))
	for _, t := range all {
		if mode == models.ToolUseExplore && t.Function.Agentic {
			continue
		}
		t.Function.Agentic = false
		out = append(out, t)
	}
	return out
}

// Definitions converts LSP tool descriptors to request parameters.
func Definitions(cmds []models.ToolCommand) []openai.ChatCompletionToolUnionParam {
	if len(cmds) == 0 {
		return nil
	}
	defs := make([]openai.ChatCompletionToolUnionParam, 0, len(cmds))
	for _, c := range cmds {
		fn := openai.FunctionDefinitionParam{
			Name: c.Function.Name,
		}
		if c.Function.Description != "" {
			fn.Description = openai.String(c.Function.Description)
		}
		if c.Function.Parameters != nil {
			fn.Parameters = openai.FunctionParameters(c.Function.Parameters)
		}
		defs = append(defs, openai.ChatCompletionFunctionTool(fn))
	}
	return defs
}

// Actions pairs each tool call in messages with its result.
func Actions(messages []models.ChatMessage) []models.ToolAction {
	results := make(map[string]string)
	for _, m := range messages {
		if m.IsTool() {
			results[m.ToolCallID] = m.Content
		}
	}

	var actions []models.ToolAction
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			result, done := results[tc.ID]
			summary := GenerateToolSummary(tc.Function.Name, tc.Function.Arguments, result)
			if !done {
				summary += " …"
			}
			actions = append(actions, models.ToolAction{Name: tc.Function.Name, Summary: summary})
		}
	}
	return actions
}

// GenerateToolSummary renders one line describing a tool call for the UI.
func GenerateToolSummary(name string, argsJSON string, result string) string {
	var args map[string]interface{}
	_ = json.Unmarshal([]byte(argsJSON), &args)
	str := func(key string) string {
		s, _ := args[key].(string)
		return s
	}

	switch name {
	case "cat":
		paths := strings.Split(str("paths"), ",")
		for i, p := range paths {
			paths[i] = filepath.Base(strings.TrimSpace(p))
		}
		return fmt.Sprintf("CAT %s", strings.Join(paths, ", "))
	case "tree":
		path := str("path")
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("TREE %s (%d entries)", path, countLines(result))
	case "search", "search_semantic":
		return fmt.Sprintf("SEARCH \"%s\"", truncate(str("query"), 40))
	case "search_pattern", "regex_search":
		return fmt.Sprintf("GREP \"%s\" (%d matches)", truncate(str("pattern"), 40), countLines(result))
	case "definition":
		return fmt.Sprintf("DEFINITION %s", str("symbol"))
	case "references":
		return fmt.Sprintf("REFERENCES %s (%d found)", str("symbol"), countLines(result))
	case "locate":
		return "LOCATE files for the task"
	case "patch", "update_textdoc", "create_textdoc", "replace_textdoc":
		path := str("path")
		if path == "" {
			path = str("paths")
		}
		if strings.Contains(strings.ToLower(result), "error") {
			return fmt.Sprintf("PATCH %s (failed)", filepath.Base(path))
		}
		return fmt.Sprintf("PATCH %s", filepath.Base(path))
	case "shell":
		return fmt.Sprintf("SHELL %s", truncate(str("command"), 30))
	case "web":
		return fmt.Sprintf("WEB %s", str("url"))
	case "knowledge":
		return fmt.Sprintf("KNOWLEDGE %s", truncate(str("search_key"), 40))
	default:
		return fmt.Sprintf("%s called", strings.ToUpper(name))
	}
}

func countLines(s string) int {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
