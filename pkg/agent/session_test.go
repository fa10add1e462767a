package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/transport"
)

func TestSessionAskKeepsHistory(t *testing.T) {
	tr := transport.NewScripted(
		transport.CallTools(weatherCall("call_1", `{"location":"Boston, MA"}`)),
		transport.Answer("72 and sunny."),
		transport.Answer("You are welcome."),
	)
	session, err := NewSession(newDriver(t, newTestRegistry(t), tr), "")
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if !containsAll(session.SystemPrompt, []string{"get_current_weather"}) {
		t.Fatalf("default system prompt does not list tools: %q", session.SystemPrompt)
	}

	res, err := session.Ask(context.Background(), "Weather in Boston?")
	if err != nil {
		t.Fatalf("first Ask error: %v", err)
	}
	if res.Answer != "72 and sunny." {
		t.Fatalf("unexpected answer %q", res.Answer)
	}
	if _, err := session.Ask(context.Background(), "thanks"); err != nil {
		t.Fatalf("second Ask error: %v", err)
	}

	msgs := session.Conversation().Messages()
	// system, user, assistant(call), tool, assistant, user, assistant
	if len(msgs) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleSystem {
		t.Fatalf("expected system message first, got %s", msgs[0].Role)
	}
}

func TestSessionAskRollsBackOnError(t *testing.T) {
	tr := transport.NewScripted(
		transport.Fail(errors.New("boom")),
		transport.Answer("recovered"),
	)
	session, err := NewSession(newDriver(t, newTestRegistry(t), tr), "be brief")
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}

	if _, err := session.Ask(context.Background(), "first"); err == nil {
		t.Fatalf("expected error from failing transport")
	}
	if got := session.Conversation().Len(); got != 1 {
		t.Fatalf("expected history rolled back to the system prompt, got %d messages", got)
	}

	res, err := session.Ask(context.Background(), "second")
	if err != nil {
		t.Fatalf("Ask after rollback error: %v", err)
	}
	if res.Answer != "recovered" {
		t.Fatalf("unexpected answer %q", res.Answer)
	}
}

func TestSessionRejectsEmptyInput(t *testing.T) {
	session, err := NewSession(newDriver(t, newTestRegistry(t), transport.NewScripted()), "sys")
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if _, err := session.Ask(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestSessionResetKeepsSystemPrompt(t *testing.T) {
	tr := transport.NewScripted(transport.Answer("hi"))
	session, err := NewSession(newDriver(t, newTestRegistry(t), tr), "sys")
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if _, err := session.Ask(context.Background(), "hello"); err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	before := session.Conversation().ID

	if err := session.Reset(); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	conv := session.Conversation()
	if conv.Len() != 1 {
		t.Fatalf("expected only the system prompt after reset, got %d", conv.Len())
	}
	if conv.ID == before {
		t.Fatalf("expected a new conversation id after reset")
	}
}

func TestResumeSessionContinuesStoredConversation(t *testing.T) {
	stored, err := chat.Restore("conv-1", []chat.Message{
		chat.System("stored prompt"),
		chat.User("hello"),
		chat.Assistant("hi there"),
	})
	if err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	tr := transport.NewScripted(transport.Answer("still here"))
	session, err := ResumeSession(newDriver(t, newTestRegistry(t), tr), stored)
	if err != nil {
		t.Fatalf("ResumeSession error: %v", err)
	}
	if session.SystemPrompt != "stored prompt" {
		t.Fatalf("unexpected system prompt %q", session.SystemPrompt)
	}
	if _, err := session.Ask(context.Background(), "are you there?"); err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if got := session.Conversation().Len(); got != 5 {
		t.Fatalf("expected 5 messages, got %d", got)
	}
	if session.Conversation().ID != "conv-1" {
		t.Fatalf("conversation id changed")
	}
}
