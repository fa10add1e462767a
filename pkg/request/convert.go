package request

import (
	"encoding/json"
	"fmt"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/openai/openai-go"
)

// ToParams converts the conversation into OpenAI message params. Tool call
// ids are copied verbatim.
func ToParams(messages []chat.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case chat.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, assistantParam(m))
		case chat.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("%w: invalid message role at index %d: %q", ErrInvalidConfiguration, i, m.Role)
		}
	}
	return out, nil
}

func assistantParam(m chat.Message) openai.ChatCompletionMessageParamUnion {
	asst := openai.ChatCompletionAssistantMessageParam{}
	if m.Content != "" || len(m.ToolCalls) == 0 {
		asst.Content.OfString = openai.String(m.Content)
	}
	for _, call := range m.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

// ToolParam converts a declaration into the OpenAI function tool shape.
func ToolParam(decl tools.Declaration) (openai.ChatCompletionToolParam, error) {
	params := openai.FunctionParameters{
		"type":       "object",
		"properties": map[string]any{},
	}
	if decl.Parameters != nil {
		raw, err := json.Marshal(decl.Parameters)
		if err != nil {
			return openai.ChatCompletionToolParam{}, fmt.Errorf("%w: tool %q schema: %v", ErrInvalidConfiguration, decl.Name, err)
		}
		params = openai.FunctionParameters{}
		if err := json.Unmarshal(raw, &params); err != nil {
			return openai.ChatCompletionToolParam{}, fmt.Errorf("%w: tool %q schema: %v", ErrInvalidConfiguration, decl.Name, err)
		}
	}
	fn := openai.FunctionDefinitionParam{
		Name:       decl.Name,
		Parameters: params,
	}
	if decl.Description != "" {
		fn.Description = openai.String(decl.Description)
	}
	return openai.ChatCompletionToolParam{Function: fn}, nil
}
