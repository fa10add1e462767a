package main

import (
	"fmt"
	"io"
	"os"

	"github.com/minhyannv/function-call-go/pkg/agent"
	"github.com/minhyannv/function-call-go/pkg/chat"
	"gopkg.in/yaml.v3"
)

// transcript is the YAML export of one run.
type transcript struct {
	ConversationID string         `yaml:"conversation_id"`
	RunID          string         `yaml:"run_id,omitempty"`
	Model          string         `yaml:"model"`
	Question       string         `yaml:"question"`
	State          string         `yaml:"state"`
	Rounds         int            `yaml:"rounds"`
	ToolRounds     int            `yaml:"tool_rounds"`
	Error          string         `yaml:"error,omitempty"`
	Messages       []chat.Message `yaml:"messages"`
}

// newTranscript records a run. A failed run has already been rolled back out
// of conv, so its question is appended to the exported messages.
func newTranscript(model, question string, conv *chat.Conversation, res agent.Result, runErr error) transcript {
	t := transcript{
		RunID:      res.RunID,
		Model:      model,
		Question:   question,
		State:      string(res.State),
		Rounds:     res.Rounds,
		ToolRounds: res.ToolRounds,
	}
	if conv != nil {
		t.ConversationID = conv.ID
		t.Messages = conv.Messages()
	}
	if runErr != nil {
		t.Error = runErr.Error()
		if last := len(t.Messages) - 1; last < 0 || t.Messages[last].Role != chat.RoleUser || t.Messages[last].Content != question {
			t.Messages = append(t.Messages, chat.User(question))
		}
	}
	return t
}

func encodeTranscript(w io.Writer, t transcript) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return enc.Close()
}

func writeTranscript(path string, t transcript) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	if err := encodeTranscript(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
