package request

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireRequest struct {
	Model      string            `json:"model"`
	MaxTokens  int64             `json:"max_tokens"`
	ToolChoice json.RawMessage   `json:"tool_choice"`
	Messages   []json.RawMessage `json:"messages"`
	Tools      []struct {
		Type     string `json:"type"`
		Function struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func encode(t *testing.T, params openai.ChatCompletionNewParams) wireRequest {
	t.Helper()
	raw, err := Encode(params)
	require.NoError(t, err)
	var req wireRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	return req
}

func userOnly() []chat.Message {
	return []chat.Message{chat.User("What's the weather like in Boston?")}
}

func TestBuildIncludesEveryToolOnce(t *testing.T) {
	decls := []tools.Declaration{tools.WeatherDeclaration()}
	for i := 0; i < 4; i++ {
		decls = append(decls, tools.Declaration{Name: fmt.Sprintf("tool_%d", i), Description: "d"})
	}

	params, err := Builder{Limits: Limits{MaxTokens: 512}}.Build(userOnly(), "gpt-4o-mini", decls, Auto())
	require.NoError(t, err)

	req := encode(t, params)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.EqualValues(t, 512, req.MaxTokens)
	assert.JSONEq(t, `"auto"`, string(req.ToolChoice))
	require.Len(t, req.Tools, len(decls))

	counts := map[string]int{}
	for _, tool := range req.Tools {
		counts[tool.Function.Name]++
	}
	for _, decl := range decls {
		assert.Equal(t, 1, counts[decl.Name], decl.Name)
	}

	weather := req.Tools[0].Function
	assert.Equal(t, "get_current_weather", weather.Name)
	assert.Equal(t, "object", weather.Parameters["type"])
	assert.Equal(t, []any{"location"}, weather.Parameters["required"])
}

func TestBuildRejectsDuplicateDeclarations(t *testing.T) {
	decls := []tools.Declaration{{Name: "a"}, {Name: "a"}}
	_, err := Builder{}.Build(userOnly(), "m", decls, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestBuildToolChoicePolicies(t *testing.T) {
	decls := []tools.Declaration{tools.WeatherDeclaration()}

	params, err := Builder{}.Build(userOnly(), "m", decls, None())
	require.NoError(t, err)
	assert.JSONEq(t, `"none"`, string(encode(t, params).ToolChoice))

	params, err = Builder{}.Build(userOnly(), "m", decls, Force(tools.WeatherToolName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"get_current_weather"}}`, string(encode(t, params).ToolChoice))

	_, err = Builder{}.Build(userOnly(), "m", decls, Force("get_stock_price"))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{}.Build(userOnly(), "m", nil, Force(tools.WeatherToolName))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestBuildWithoutToolsOmitsToolFields(t *testing.T) {
	params, err := Builder{}.Build(userOnly(), "m", nil, Auto())
	require.NoError(t, err)
	req := encode(t, params)
	assert.Empty(t, req.Tools)
	assert.Empty(t, req.ToolChoice)
	assert.Zero(t, req.MaxTokens)
}

func TestBuildChecksLimitsBeforeTransport(t *testing.T) {
	long := []chat.Message{chat.User("0123456789")}

	_, err := Builder{Limits: Limits{MaxMessageBytes: 5}}.Build(long, "m", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{Limits: Limits{MaxPromptTokens: 2}}.Build(long, "m", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{Limits: Limits{MaxMessages: 1}}.Build(append(long, chat.User("x")), "m", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{Limits: Limits{MaxTokens: -1}}.Build(long, "m", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{}.Build(nil, "m", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Builder{}.Build(long, " ", nil, Auto())
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestToolCallIDsRoundTripVerbatim(t *testing.T) {
	const id = "call_Ab9+/=éé x"
	conv, err := chat.NewConversation(chat.User("weather?"))
	require.NoError(t, err)
	require.NoError(t, conv.Append(chat.Assistant("", chat.ToolCall{ID: id, Name: "get_current_weather", Arguments: `{"location":"Boston, MA"}`})))
	require.NoError(t, conv.AppendToolResults([]chat.ToolResult{{CallID: id, Payload: json.RawMessage(`{"temperature":"72"}`)}}))

	params, err := Builder{}.Build(conv.Messages(), "m", []tools.Declaration{tools.WeatherDeclaration()}, Auto())
	require.NoError(t, err)
	req := encode(t, params)
	require.Len(t, req.Messages, 3)

	var assistant struct {
		Role      string `json:"role"`
		ToolCalls []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	}
	require.NoError(t, json.Unmarshal(req.Messages[1], &assistant))
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, id, assistant.ToolCalls[0].ID)
	assert.Equal(t, "function", assistant.ToolCalls[0].Type)
	assert.Equal(t, `{"location":"Boston, MA"}`, assistant.ToolCalls[0].Function.Arguments)

	var tool struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	}
	require.NoError(t, json.Unmarshal(req.Messages[2], &tool))
	assert.Equal(t, "tool", tool.Role)
	assert.Equal(t, id, tool.ToolCallID)
	assert.Equal(t, `{"temperature":"72"}`, tool.Content)
}

func TestParseToolChoice(t *testing.T) {
	assert.True(t, ParseToolChoice("").IsAuto())
	assert.True(t, ParseToolChoice("AUTO").IsAuto())
	assert.True(t, ParseToolChoice("none").IsNone())
	name, ok := ParseToolChoice(" get_current_weather ").Forced()
	assert.True(t, ok)
	assert.Equal(t, "get_current_weather", name)
	assert.Equal(t, "get_current_weather", Force(name).String())
	assert.Equal(t, "auto", ToolChoice{}.String())
}
