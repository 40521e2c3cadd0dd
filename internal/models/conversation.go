// Package models contains shared types for the turnengine project.
package models

// ConversationItemType represents the type of a conversation item
type ConversationItemType string

const (
	ItemTypeUserMessage       ConversationItemType = "user_message"
	ItemTypeAssistantMessage  ConversationItemType = "assistant_message"
	ItemTypeToolCall          ConversationItemType = "tool_call"
	ItemTypeToolResult        ConversationItemType = "tool_result"
	ItemTypeFunctionCall       ConversationItemType = "function_call"
	ItemTypeFunctionCallOutput ConversationItemType = "function_call_output"
	ItemTypeTurnStarted        ConversationItemType = "turn_started"
	ItemTypeTurnComplete       ConversationItemType = "turn_complete"
	ItemTypeModelSwitch        ConversationItemType = "model_switch"

	// ItemTypeInputImage is a user-side image attachment (view_image):
	// ImageURL holds a data: URL the provider converts into an image
	// content block.
	ItemTypeInputImage ConversationItemType = "input_image"
)

// FunctionCallOutputPayload holds the result of a dispatched function call.
// Kept distinct from the flat ToolOutput/ToolError strings so a tool can
// report partial content alongside a success/failure verdict.
type FunctionCallOutputPayload struct {
	Content string `json:"content"`
	Success *bool  `json:"success,omitempty"`
}

// ConversationItem represents a single item in the conversation history.
//
// Not every field applies to every Type; see the Item* constructors in
// history for the canonical shape of each kind.
type ConversationItem struct {
	Type    ConversationItemType `json:"type"`
	Content string               `json:"content,omitempty"`

	// Seq is the item's position in history, assigned by the history store
	// on append. Clients use it as the cursor for incremental fetches.
	Seq int `json:"seq,omitempty"`

	// TurnID ties an item back to the turn that produced it, used for
	// DropLastNUserTurns/DropOldestUserTurns bucketing.
	TurnID string `json:"turn_id,omitempty"`

	// Function call fields (ItemTypeFunctionCall)
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded argument object

	// Function call result fields (ItemTypeFunctionCallOutput)
	Output *FunctionCallOutputPayload `json:"output,omitempty"`

	// Image attachment field (ItemTypeInputImage): a data: URL.
	ImageURL string `json:"image_url,omitempty"`

	// Legacy aggregate tool-call representation, still used by a handful
	// of call sites that batch multiple calls onto one assistant item.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool results
	ToolOutput string     `json:"tool_output,omitempty"`  // For tool results
	ToolError  string     `json:"tool_error,omitempty"`   // For tool errors
}

// ToolCall represents a request to call a tool
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FinishReason indicates why the LLM stopped generating
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"           // Natural completion
	FinishReasonToolCalls     FinishReason = "tool_calls"     // LLM wants to call tools
	FinishReasonLength        FinishReason = "length"         // Hit token limit
	FinishReasonContentFilter FinishReason = "content_filter" // Content filtered
)

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	CachedTokens        int `json:"cached_tokens,omitempty"`         // Tokens served from provider cache
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"` // Tokens written to provider cache
}
