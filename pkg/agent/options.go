package agent

import (
	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/dispatch"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/metrics"
	"github.com/minhyannv/function-call-go/pkg/request"
)

// AgentOption configures optional runtime dependencies for Driver.
type AgentOption func(*driverDeps)

type driverDeps struct {
	logger      loggerpkg.Logger
	verbose     bool
	maxRounds   int
	choice      request.ToolChoice
	limits      request.Limits
	concurrency int
	dispatcher  *dispatch.Dispatcher
	metrics     *metrics.Metrics
	hooks       Hooks
}

// Hooks observe a run from the goroutine executing it. All fields are optional.
type Hooks struct {
	// OnTransition fires on every state change.
	OnTransition func(runID string, from, to State, round int)
	// OnRound fires before each model request.
	OnRound func(runID string, round int)
	// OnToolResult fires once per tool result appended to the conversation.
	OnToolResult func(runID string, result chat.ToolResult)
	// OnFinish fires once per run with its terminal result.
	OnFinish func(runID string, res Result, err error)
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger, verbose bool) AgentOption {
	return func(d *driverDeps) {
		d.logger = l
		d.verbose = verbose
	}
}

// WithMaxRounds caps how many tool rounds one run may dispatch.
func WithMaxRounds(n int) AgentOption {
	return func(d *driverDeps) { d.maxRounds = n }
}

// WithToolChoice sets the tool choice policy. A forced tool applies to the
// first round of a run only; later rounds use auto.
func WithToolChoice(c request.ToolChoice) AgentOption {
	return func(d *driverDeps) { d.choice = c }
}

// WithLimits sets request limits checked before every send.
func WithLimits(l request.Limits) AgentOption {
	return func(d *driverDeps) { d.limits = l }
}

// WithConcurrency bounds parallel tool executions within a round.
func WithConcurrency(n int) AgentOption {
	return func(d *driverDeps) { d.concurrency = n }
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(disp *dispatch.Dispatcher) AgentOption {
	return func(d *driverDeps) { d.dispatcher = disp }
}

// WithMetrics records rounds, runs and tool calls.
func WithMetrics(m *metrics.Metrics) AgentOption {
	return func(d *driverDeps) { d.metrics = m }
}

// WithHooks installs run observers.
func WithHooks(h Hooks) AgentOption {
	return func(d *driverDeps) { d.hooks = h }
}
