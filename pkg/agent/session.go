package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/minhyannv/function-call-go/pkg/chat"
)

// Session keeps conversation history across user turns. A failed turn is
// rolled back so history only holds completed exchanges.
type Session struct {
	driver       *Driver
	SystemPrompt string

	mu   sync.Mutex
	conv *chat.Conversation
}

// NewSession starts a session whose history begins with systemPrompt. An
// empty prompt is built from the driver's tool declarations.
func NewSession(driver *Driver, systemPrompt string) (*Session, error) {
	if driver == nil {
		return nil, errors.New("driver is required")
	}
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		systemPrompt = BuildSystemPrompt(driver.Registry().Declarations())
	}
	s := &Session{driver: driver, SystemPrompt: systemPrompt}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// ResumeSession continues a previously stored conversation.
func ResumeSession(driver *Driver, conv *chat.Conversation) (*Session, error) {
	if driver == nil {
		return nil, errors.New("driver is required")
	}
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	s := &Session{driver: driver, conv: conv}
	if msgs := conv.Messages(); len(msgs) > 0 && msgs[0].Role == chat.RoleSystem {
		s.SystemPrompt = msgs[0].Content
	}
	return s, nil
}

// Ask appends userInput and runs the driver until a final answer.
func (s *Session) Ask(ctx context.Context, userInput string) (Result, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return Result{}, errors.New("user input is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previousLen := s.conv.Len()
	if err := s.conv.Append(chat.User(userInput)); err != nil {
		return Result{}, err
	}
	res, err := s.driver.Run(ctx, s.conv)
	if err != nil {
		s.conv.Truncate(previousLen)
		return res, err
	}
	return res, nil
}

// Reset clears conversation history and keeps only the system prompt. The
// conversation gets a new id.
func (s *Session) Reset() error {
	var initial []chat.Message
	if s.SystemPrompt != "" {
		initial = append(initial, chat.System(s.SystemPrompt))
	}
	conv, err := chat.NewConversation(initial...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()
	return nil
}

// Driver returns the driver running this session's turns.
func (s *Session) Driver() *Driver { return s.driver }

// Conversation returns the live conversation.
func (s *Session) Conversation() *chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}
