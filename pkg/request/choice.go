package request

import "strings"

const (
	choiceAuto  = "auto"
	choiceNone  = "none"
	choiceForce = "force"
)

// ToolChoice controls whether and which tools the model may call.
// The zero value is Auto.
type ToolChoice struct {
	mode string
	name string
}

// Auto lets the model decide.
func Auto() ToolChoice { return ToolChoice{mode: choiceAuto} }

// None disables tool calls for the request.
func None() ToolChoice { return ToolChoice{mode: choiceNone} }

// Force requires the model to call the named tool.
func Force(name string) ToolChoice { return ToolChoice{mode: choiceForce, name: strings.TrimSpace(name)} }

// ParseToolChoice reads "auto", "none" or a tool name.
func ParseToolChoice(s string) ToolChoice {
	switch v := strings.TrimSpace(s); strings.ToLower(v) {
	case "", choiceAuto:
		return Auto()
	case choiceNone:
		return None()
	default:
		return Force(v)
	}
}

// IsAuto reports whether the model decides.
func (c ToolChoice) IsAuto() bool { return c.mode == "" || c.mode == choiceAuto }

// IsNone reports whether tool calls are disabled.
func (c ToolChoice) IsNone() bool { return c.mode == choiceNone }

// Forced returns the forced tool name, if any.
func (c ToolChoice) Forced() (string, bool) {
	if c.mode != choiceForce {
		return "", false
	}
	return c.name, true
}

func (c ToolChoice) String() string {
	if name, ok := c.Forced(); ok {
		return name
	}
	if c.IsNone() {
		return choiceNone
	}
	return choiceAuto
}
