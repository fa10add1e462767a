package chat

import (
	"fmt"

	"github.com/google/uuid"
)

// Conversation is an append-only message log. A tool round is appended as
// one assistant message with tool calls followed by exactly one result per
// call; nothing else may be interleaved.
type Conversation struct {
	ID       string
	messages []Message
	// pending holds the ids of the last assistant turn's calls that have no
	// result yet.
	pending map[string]string
}

// NewConversation starts an empty conversation with a fresh id.
func NewConversation(initial ...Message) (*Conversation, error) {
	return Restore(uuid.NewString(), initial)
}

// Restore rebuilds a conversation from a previously captured message log,
// re-checking every pairing rule on the way.
func Restore(id string, messages []Message) (*Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	c := &Conversation{ID: id}
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		if msg.Role != RoleTool {
			if err := c.Append(msg); err != nil {
				return nil, fmt.Errorf("restore message %d: %w", i, err)
			}
			continue
		}
		var results []ToolResult
		for ; i < len(messages) && messages[i].Role == RoleTool; i++ {
			results = append(results, ToolResult{
				CallID:  messages[i].ToolCallID,
				Name:    messages[i].Name,
				Payload: []byte(messages[i].Content),
			})
		}
		i--
		if err := c.AppendToolResults(results); err != nil {
			return nil, fmt.Errorf("restore message %d: %w", i, err)
		}
	}
	return c, nil
}

// Append adds a system, user or assistant message. Tool messages must go
// through AppendToolResults.
func (c *Conversation) Append(msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.Role == RoleTool {
		return fmt.Errorf("%w: tool messages must be appended as results", ErrProtocolViolation)
	}
	if len(c.pending) > 0 {
		return fmt.Errorf("%w: %d tool call(s) still awaiting results", ErrProtocolViolation, len(c.pending))
	}
	msg = msg.clone()
	c.messages = append(c.messages, msg)
	if msg.HasToolCalls() {
		c.pending = make(map[string]string, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			c.pending[call.ID] = call.Name
		}
	}
	return nil
}

// AppendToolResults answers the tool calls of the immediately preceding
// assistant message. Every call must be answered exactly once; unknown or
// duplicate ids are rejected and nothing is appended.
func (c *Conversation) AppendToolResults(results []ToolResult) error {
	if len(c.pending) == 0 {
		return fmt.Errorf("%w: no assistant tool calls awaiting results", ErrProtocolViolation)
	}
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := c.pending[r.CallID]; !ok {
			return fmt.Errorf("%w: result for unknown tool call id %q", ErrProtocolViolation, r.CallID)
		}
		if _, dup := seen[r.CallID]; dup {
			return fmt.Errorf("%w: duplicate result for tool call id %q", ErrProtocolViolation, r.CallID)
		}
		seen[r.CallID] = struct{}{}
	}
	if len(seen) != len(c.pending) {
		return fmt.Errorf("%w: %d of %d tool call(s) answered", ErrProtocolViolation, len(seen), len(c.pending))
	}
	for _, r := range results {
		if r.Name == "" {
			r.Name = c.pending[r.CallID]
		}
		c.messages = append(c.messages, ToolMessage(r))
	}
	c.pending = nil
	return nil
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}

// AwaitingResults reports whether the last assistant turn still needs tool results.
func (c *Conversation) AwaitingResults() bool {
	return len(c.pending) > 0
}

// Truncate keeps the first n messages, rebuilding the pending set from the
// new tail. The session uses it to roll back a failed run.
func (c *Conversation) Truncate(n int) {
	if n < 0 || n >= len(c.messages) {
		return
	}
	c.messages = c.messages[:n]
	c.pending = nil
	if last, ok := c.Last(); ok && last.HasToolCalls() {
		c.pending = make(map[string]string, len(last.ToolCalls))
		for _, call := range last.ToolCalls {
			c.pending[call.ID] = call.Name
		}
	}
}
