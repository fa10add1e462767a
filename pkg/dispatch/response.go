package dispatch

import (
	"encoding/json"
	"unicode/utf8"
)

// Kind classifies a soft failure reported back to the model.
type Kind string

const (
	KindOK              Kind = ""
	KindUnknownTool     Kind = "unknown_tool"
	KindArgumentParse   Kind = "argument_parse_error"
	KindArgumentInvalid Kind = "argument_validation_error"
	KindHandler         Kind = "handler_error"
	KindHandlerPanic    Kind = "handler_panic"
	KindCancelled       Kind = "cancelled"
)

// toolResponse is the wrapper sent back to the model after tool execution.
type toolResponse struct {
	OK        bool   `json:"ok"`
	Tool      string `json:"tool,omitempty"`
	Data      any    `json:"data,omitempty"`
	Err       string `json:"error,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// marshalToolResponse encodes a tool response as JSON, truncating it to fit
// limit when limit is positive.
func marshalToolResponse(tool string, data any, kind Kind, err error, limit int) (json.RawMessage, error) {
	resp := toolResponse{
		OK:   err == nil,
		Tool: tool,
		Data: data,
		Kind: kind,
	}
	if err != nil {
		resp.Err = err.Error()
	}
	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return nil, marshalErr
	}
	if limit <= 0 || len(payload) <= limit {
		return payload, nil
	}
	return truncateResponse(resp, limit), nil
}

// truncateResponse shrinks the error text, or the encoded data for a
// successful call, until the whole envelope fits in limit. ok, tool and kind
// are kept. If the envelope alone exceeds limit the content is emptied.
func truncateResponse(resp toolResponse, limit int) json.RawMessage {
	content := resp.Err
	if resp.OK {
		raw, _ := json.Marshal(resp.Data)
		content = string(raw)
	}
	resp.Truncated = true

	n := len(content)
	for {
		prefix := runePrefix(content, n)
		if resp.OK {
			resp.Data = prefix
		} else {
			resp.Err = prefix
		}
		out, _ := json.Marshal(resp)
		if len(out) <= limit || n == 0 {
			return out
		}
		n = max(len(prefix)-(len(out)-limit), 0)
	}
}

// runePrefix returns at most n bytes of s without splitting a rune.
func runePrefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
