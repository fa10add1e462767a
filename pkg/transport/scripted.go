package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/openai/openai-go"
)

// ErrScriptExhausted is returned by Scripted once every step was consumed.
var ErrScriptExhausted = errors.New("scripted transport has no more replies")

// Step is one scripted exchange: a completion or an error.
type Step struct {
	Completion *openai.ChatCompletion
	Err        error
}

// Scripted replays a fixed sequence of replies and records every request.
// It is used for offline runs and tests.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []openai.ChatCompletionNewParams
	// Repeat keeps returning the last step instead of ErrScriptExhausted.
	Repeat bool
}

// NewScripted builds a scripted transport.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Send returns the next step.
func (s *Scripted) Send(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.requests)
	s.requests = append(s.requests, params)
	if idx >= len(s.steps) {
		if !s.Repeat || len(s.steps) == 0 {
			return nil, &Error{Err: ErrScriptExhausted}
		}
		idx = len(s.steps) - 1
	}
	step := s.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Completion, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []openai.ChatCompletionNewParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openai.ChatCompletionNewParams(nil), s.requests...)
}

// Answer scripts a final assistant answer.
func Answer(text string) Step {
	return completionStep(map[string]any{"role": "assistant", "content": text}, "stop")
}

// CallTools scripts an assistant message requesting calls.
func CallTools(calls ...chat.ToolCall) Step {
	wire := make([]map[string]any, len(calls))
	for i, c := range calls {
		wire[i] = map[string]any{
			"id":   c.ID,
			"type": "function",
			"function": map[string]any{
				"name":      c.Name,
				"arguments": c.Arguments,
			},
		}
	}
	return completionStep(map[string]any{"role": "assistant", "content": nil, "tool_calls": wire}, "tool_calls")
}

// Fail scripts a transport error.
func Fail(err error) Step {
	return Step{Err: err}
}

func completionStep(message map[string]any, finish string) Step {
	raw, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-scripted",
		"object":  "chat.completion",
		"created": 0,
		"model":   "scripted",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": finish,
			"message":       message,
		}},
	})
	if err != nil {
		return Step{Err: fmt.Errorf("script completion: %w", err)}
	}
	var completion openai.ChatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return Step{Err: fmt.Errorf("script completion: %w", err)}
	}
	return Step{Completion: &completion}
}
