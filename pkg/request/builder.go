// Package request turns a conversation snapshot and tool declarations into
// an OpenAI chat completion request.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/openai/openai-go"
)

// ErrInvalidConfiguration is a caller error detected before any network I/O.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Limits bounds a request. Zero fields are unlimited; MaxTokens of zero
// leaves max_tokens unset.
type Limits struct {
	MaxTokens       int64
	MaxPromptTokens int
	MaxMessageBytes int
	MaxMessages     int
}

// Builder assembles chat completion requests.
type Builder struct {
	Limits Limits
}

// Build produces the wire request for one round.
func (b Builder) Build(messages []chat.Message, model string, decls []tools.Declaration, choice ToolChoice) (openai.ChatCompletionNewParams, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("%w: model is empty", ErrInvalidConfiguration)
	}
	if err := b.checkLimits(messages); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	wireMessages, err := ToParams(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: wireMessages,
	}
	if b.Limits.MaxTokens > 0 {
		params.MaxTokens = openai.Int(b.Limits.MaxTokens)
	}

	if len(decls) == 0 {
		if _, forced := choice.Forced(); forced {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("%w: tool choice %q but no tools declared", ErrInvalidConfiguration, choice)
		}
		return params, nil
	}

	seen := make(map[string]struct{}, len(decls))
	params.Tools = make([]openai.ChatCompletionToolParam, 0, len(decls))
	for _, decl := range decls {
		if _, dup := seen[decl.Name]; dup {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("%w: tool %q declared twice", ErrInvalidConfiguration, decl.Name)
		}
		seen[decl.Name] = struct{}{}
		param, err := ToolParam(decl)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = append(params.Tools, param)
	}

	switch name, forced := choice.Forced(); {
	case forced:
		if _, ok := seen[name]; !ok {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("%w: forced tool %q is not declared", ErrInvalidConfiguration, name)
		}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: name},
			},
		}
	case choice.IsNone():
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choiceNone)}
	default:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choiceAuto)}
	}
	return params, nil
}

// Encode serializes a request exactly as it goes on the wire.
func Encode(params openai.ChatCompletionNewParams) ([]byte, error) {
	return json.Marshal(params)
}

func (b Builder) checkLimits(messages []chat.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: conversation is empty", ErrInvalidConfiguration)
	}
	if b.Limits.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens %d is negative", ErrInvalidConfiguration, b.Limits.MaxTokens)
	}
	if b.Limits.MaxMessages > 0 && len(messages) > b.Limits.MaxMessages {
		return fmt.Errorf("%w: %d messages exceeds limit %d", ErrInvalidConfiguration, len(messages), b.Limits.MaxMessages)
	}
	total := 0
	for i, m := range messages {
		size := messageBytes(m)
		if b.Limits.MaxMessageBytes > 0 && size > b.Limits.MaxMessageBytes {
			return fmt.Errorf("%w: message %d is %d bytes, limit %d", ErrInvalidConfiguration, i, size, b.Limits.MaxMessageBytes)
		}
		total += size
	}
	if b.Limits.MaxPromptTokens > 0 {
		if est := EstimateTokens(total); est > b.Limits.MaxPromptTokens {
			return fmt.Errorf("%w: prompt is ~%d tokens, limit %d", ErrInvalidConfiguration, est, b.Limits.MaxPromptTokens)
		}
	}
	return nil
}

// EstimateTokens approximates the token count of n bytes of English text.
func EstimateTokens(n int) int {
	return (n + 3) / 4
}

func messageBytes(m chat.Message) int {
	size := len(m.Content)
	for _, call := range m.ToolCalls {
		size += len(call.Name) + len(call.Arguments)
	}
	return size
}
