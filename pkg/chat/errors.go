package chat

import "errors"

// ErrProtocolViolation is returned when a message would break the
// assistant tool-call / tool-result pairing of a conversation.
var ErrProtocolViolation = errors.New("protocol violation")
