// Package chat holds the provider-agnostic conversation model shared by the
// request builder, response interpreter, dispatcher and driver.
package chat

import (
	"encoding/json"
	"fmt"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a model-requested invocation of a registered tool.
// Arguments is the raw, untrusted payload exactly as the provider sent it.
type ToolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// ToolResult answers one ToolCall. CallID must equal the originating ToolCall.ID.
type ToolResult struct {
	CallID  string          `json:"call_id" yaml:"call_id"`
	Name    string          `json:"name" yaml:"name"`
	Payload json.RawMessage `json:"payload" yaml:"-"`
	IsError bool            `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// Message is one entry of a Conversation.
type Message struct {
	Role       Role       `json:"role" yaml:"role"`
	Content    string     `json:"content,omitempty" yaml:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant message, optionally carrying tool calls.
func Assistant(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage turns a result into the tool message sent back to the model.
func ToolMessage(result ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    string(result.Payload),
		ToolCallID: result.CallID,
		Name:       result.Name,
	}
}

// HasToolCalls reports whether an assistant message requests tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

func (m Message) validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrProtocolViolation, m.Role)
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return fmt.Errorf("%w: %s message cannot carry tool calls", ErrProtocolViolation, m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("%w: tool message without tool_call_id", ErrProtocolViolation)
	}
	seen := make(map[string]struct{}, len(m.ToolCalls))
	for _, call := range m.ToolCalls {
		if call.ID == "" {
			return fmt.Errorf("%w: tool call %q has empty id", ErrProtocolViolation, call.Name)
		}
		if _, dup := seen[call.ID]; dup {
			return fmt.Errorf("%w: duplicate tool call id %q", ErrProtocolViolation, call.ID)
		}
		seen[call.ID] = struct{}{}
	}
	return nil
}
