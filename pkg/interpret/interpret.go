// Package interpret reads a chat completion and tells a final answer apart
// from a request to call tools.
package interpret

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/openai/openai-go"
)

// ErrMalformedResponse is returned when the completion does not have the
// expected shape. The turn can be retried by querying the model again.
var ErrMalformedResponse = errors.New("malformed response")

// Reply is either a FinalAnswer or a ToolCalls.
type Reply interface {
	// Assistant is the message to append to the conversation.
	Assistant() chat.Message
	reply()
}

// FinalAnswer is a reply without tool calls.
type FinalAnswer struct {
	Message      chat.Message
	Text         string
	FinishReason string
}

// ToolCalls is a reply requesting one or more tool invocations, in the
// order the provider listed them.
type ToolCalls struct {
	Message      chat.Message
	Calls        []chat.ToolCall
	FinishReason string
}

func (r FinalAnswer) Assistant() chat.Message { return r.Message }
func (r ToolCalls) Assistant() chat.Message   { return r.Message }

func (FinalAnswer) reply() {}
func (ToolCalls) reply()   {}

// InterpretJSON decodes a raw provider response and interprets it.
func InterpretJSON(raw []byte) (Reply, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return Interpret(&completion)
}

// Interpret extracts the first choice's message.
func Interpret(completion *openai.ChatCompletion) (Reply, error) {
	if completion == nil {
		return nil, fmt.Errorf("%w: nil completion", ErrMalformedResponse)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion choices", ErrMalformedResponse)
	}
	choice := completion.Choices[0]
	msg := choice.Message
	switch role := string(msg.Role); role {
	case "":
		return nil, fmt.Errorf("%w: choice has no message", ErrMalformedResponse)
	case string(chat.RoleAssistant):
	default:
		return nil, fmt.Errorf("%w: unexpected message role %q", ErrMalformedResponse, role)
	}

	if len(msg.ToolCalls) == 0 {
		return FinalAnswer{
			Message:      chat.Assistant(msg.Content),
			Text:         msg.Content,
			FinishReason: choice.FinishReason,
		}, nil
	}

	calls := make([]chat.ToolCall, 0, len(msg.ToolCalls))
	seen := make(map[string]struct{}, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		if tc.Type != "" && string(tc.Type) != "function" {
			return nil, fmt.Errorf("%w: tool call %d has unsupported type %q", ErrMalformedResponse, i, tc.Type)
		}
		if tc.ID == "" {
			return nil, fmt.Errorf("%w: tool call %d has no id", ErrMalformedResponse, i)
		}
		if tc.Function.Name == "" {
			return nil, fmt.Errorf("%w: tool call %s has no function name", ErrMalformedResponse, tc.ID)
		}
		if _, dup := seen[tc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tool call id %s", ErrMalformedResponse, tc.ID)
		}
		seen[tc.ID] = struct{}{}
		calls = append(calls, chat.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return ToolCalls{
		Message:      chat.Assistant(msg.Content, calls...),
		Calls:        calls,
		FinishReason: choice.FinishReason,
	}, nil
}
