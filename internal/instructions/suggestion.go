package instructions

import "strings"

// SuggestionSystemPrompt instructs the cheap suggestion model to produce a
// single short follow-up prompt, or nothing at all.
const SuggestionSystemPrompt = `You suggest the user's next prompt in a coding session.

Given the last exchange, respond with ONE short follow-up prompt the user is
likely to want next (under 12 words, imperative, no quotes, no numbering).
If nothing useful comes to mind, respond with the single word: none`

// suggestionModelByProvider maps a provider to its cheap/fast model used
// for post-turn suggestions.
var suggestionModelByProvider = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-haiku-4-5",
}

// SuggestionModelForProvider returns the cheap model and provider to use
// for suggestion generation. Unknown providers fall back to OpenAI.
func SuggestionModelForProvider(provider string) (model, resolvedProvider string) {
	if m, ok := suggestionModelByProvider[provider]; ok {
		return m, provider
	}
	return suggestionModelByProvider["openai"], "openai"
}

// BuildSuggestionInput renders the last exchange into the user content for
// the suggestion call.
func BuildSuggestionInput(userMessage, assistantMessage string, toolSummaries []string) string {
	var b strings.Builder
	if userMessage != "" {
		b.WriteString("User asked:\n")
		b.WriteString(userMessage)
		b.WriteString("\n\n")
	}
	if assistantMessage != "" {
		b.WriteString("Assistant replied:\n")
		b.WriteString(assistantMessage)
		b.WriteString("\n\n")
	}
	if len(toolSummaries) > 0 {
		b.WriteString("Tools used: ")
		b.WriteString(strings.Join(toolSummaries, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseSuggestionResponse normalizes the model's reply into a single
// suggestion line, or empty when the model declined.
func ParseSuggestionResponse(response string) string {
	line := strings.TrimSpace(response)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.Trim(line, `"'`)
	if line == "" || strings.EqualFold(line, "none") {
		return ""
	}
	return line
}

// FormatToolSummary renders a compact "name (ok)"/"name (failed)" marker
// for the suggestion context.
func FormatToolSummary(name string, success bool) string {
	if name == "" {
		name = "tool"
	}
	if success {
		return name + " (ok)"
	}
	return name + " (failed)"
}
