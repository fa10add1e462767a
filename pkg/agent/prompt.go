package agent

import (
	"fmt"
	"strings"

	"github.com/minhyannv/function-call-go/pkg/tools"
)

// BuildSystemPrompt constructs the system prompt, listing the declared tools.
func BuildSystemPrompt(decls []tools.Declaration) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Call a tool when it can answer part of the question, then answer in plain language.")
	sb.WriteString("\nIf a tool result reports ok=false, fix the arguments and try again or explain what went wrong.")

	if md := ToPromptMarkdown(decls); md != "" {
		sb.WriteString("\n\n")
		sb.WriteString(md)
	}
	return strings.TrimSpace(sb.String())
}

// ToPromptMarkdown renders a markdown listing of available tools.
func ToPromptMarkdown(decls []tools.Declaration) string {
	if len(decls) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Tools available\n")
	for _, decl := range decls {
		desc := sanitizeMarkdown(decl.Description)
		if desc == "" {
			desc = "No description provided."
		}
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", sanitizeMarkdown(decl.Name), desc))
	}
	return strings.TrimSpace(sb.String())
}

// sanitizeMarkdown keeps markdown fields single-line and trimmed.
func sanitizeMarkdown(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.TrimSpace(value)
}
