// Package agent drives a conversation through model rounds and tool
// dispatch until the model produces a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/dispatch"
	"github.com/minhyannv/function-call-go/pkg/interpret"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/metrics"
	"github.com/minhyannv/function-call-go/pkg/request"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/minhyannv/function-call-go/pkg/transport"
	"github.com/openai/openai-go"
)

// DefaultMaxRounds caps tool rounds per run when none is configured.
const DefaultMaxRounds = 8

// ErrToolLoopLimitExceeded is returned when the model keeps requesting tools
// after MaxRounds dispatches.
var ErrToolLoopLimitExceeded = errors.New("tool loop limit exceeded")

// State is a driver state.
type State string

const (
	StateAwaitingModel State = "awaiting_model"
	StateInterpreting  State = "interpreting"
	StateDispatching   State = "dispatching"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// RunError is returned for every failed run. State is where the run was
// when it failed and Round the model round in progress.
type RunError struct {
	State     State
	Round     int
	Retryable bool
	Cause     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed in %s (round %d): %v", e.State, e.Round, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Result is the outcome of a run.
type Result struct {
	RunID        string
	State        State
	Answer       string
	Message      chat.Message
	FinishReason string
	// Rounds counts model requests sent.
	Rounds int
	// ToolRounds counts completed dispatch phases.
	ToolRounds   int
	Conversation *chat.Conversation
}

// Driver runs the model/tool cycle over a conversation. A Driver is safe
// for concurrent use by runs over different conversations.
type Driver struct {
	registry   *tools.Registry
	transport  transport.Transport
	dispatcher *dispatch.Dispatcher
	builder    request.Builder
	model      string

	maxRounds int
	choice    request.ToolChoice
	hooks     Hooks
	metrics   *metrics.Metrics
	logger    loggerpkg.Logger
	verbose   bool
}

// New builds a driver. Configuration errors wrap request.ErrInvalidConfiguration.
func New(registry *tools.Registry, tr transport.Transport, model string, opts ...AgentOption) (*Driver, error) {
	deps := driverDeps{
		logger:    loggerpkg.NopLogger{},
		maxRounds: DefaultMaxRounds,
		choice:    request.Auto(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.logger == nil {
		deps.logger = loggerpkg.NopLogger{}
	}

	if registry == nil {
		return nil, fmt.Errorf("%w: tool registry is not set", request.ErrInvalidConfiguration)
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is not set", request.ErrInvalidConfiguration)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is not set", request.ErrInvalidConfiguration)
	}
	if deps.maxRounds < 1 {
		return nil, fmt.Errorf("%w: max rounds must be at least 1, got %d", request.ErrInvalidConfiguration, deps.maxRounds)
	}
	if name, ok := deps.choice.Forced(); ok {
		if _, err := registry.Lookup(name); err != nil {
			return nil, fmt.Errorf("%w: forced tool %q is not registered", request.ErrInvalidConfiguration, name)
		}
	}

	disp := deps.dispatcher
	if disp == nil {
		disp = dispatch.New(registry,
			dispatch.WithConcurrency(deps.concurrency),
			dispatch.WithLogger(deps.logger, deps.verbose),
			dispatch.WithObserver(deps.metrics.ObserveToolCall),
		)
	}

	loggerpkg.Debug(deps.verbose, deps.logger, "driver init", map[string]any{
		"model":       model,
		"max_rounds":  deps.maxRounds,
		"tool_choice": deps.choice.String(),
		"tools":       registry.Names(),
	})

	return &Driver{
		registry:   registry,
		transport:  tr,
		dispatcher: disp,
		builder:    request.Builder{Limits: deps.limits},
		model:      model,
		maxRounds:  deps.maxRounds,
		choice:     deps.choice,
		hooks:      deps.hooks,
		metrics:    deps.metrics,
		logger:     deps.logger,
		verbose:    deps.verbose,
	}, nil
}

// Model returns the configured model name.
func (d *Driver) Model() string { return d.model }

// Registry returns the tool registry the driver dispatches against.
func (d *Driver) Registry() *tools.Registry { return d.registry }

// run is the state of a single Run call.
type run struct {
	id         string
	conv       *chat.Conversation
	state      State
	round      int
	dispatched int
	completion *openai.ChatCompletion
	reply      interpret.Reply
}

// Run advances conv until the model answers without tool calls (Done) or an
// error stops it (Failed). Every appended message is visible in conv; if a
// dispatch phase fails the unanswered assistant turn is removed again so
// conv stays resumable.
func (d *Driver) Run(ctx context.Context, conv *chat.Conversation) (Result, error) {
	r := &run{id: uuid.NewString(), conv: conv, state: StateAwaitingModel}
	if conv == nil {
		return d.fail(r, fmt.Errorf("%w: conversation is nil", request.ErrInvalidConfiguration), false)
	}
	if conv.AwaitingResults() {
		return d.fail(r, fmt.Errorf("%w: conversation has unanswered tool calls", chat.ErrProtocolViolation), false)
	}
	loggerpkg.Debug(d.verbose, d.logger, "run start", map[string]any{
		"run_id":          r.id,
		"conversation_id": conv.ID,
		"messages":        conv.Len(),
	})

	for {
		var err error
		switch r.state {
		case StateAwaitingModel:
			err = d.awaitModel(ctx, r)
		case StateInterpreting:
			err = d.interpretReply(r)
		case StateDispatching:
			err = d.dispatchCalls(ctx, r)
		case StateDone:
			return d.done(r)
		default:
			err = fmt.Errorf("unexpected state %q", r.state)
		}
		if err != nil {
			return d.fail(r, err, retryable(err))
		}
	}
}

func (d *Driver) awaitModel(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.round++
	if d.hooks.OnRound != nil {
		d.hooks.OnRound(r.id, r.round)
	}
	d.metrics.ObserveRound()

	choice := d.choice
	if _, forced := choice.Forced(); forced && r.round > 1 {
		choice = request.Auto()
	}
	params, err := d.builder.Build(r.conv.Messages(), d.model, d.registry.Declarations(), choice)
	if err != nil {
		return err
	}
	loggerpkg.Debug(d.verbose, d.logger, "sending request", map[string]any{
		"run_id":   r.id,
		"round":    r.round,
		"messages": len(params.Messages),
		"tools":    len(params.Tools),
	})

	completion, err := d.transport.Send(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return transport.Classify(ctx, err)
	}
	r.completion = completion
	d.transition(r, StateInterpreting)
	return nil
}

func (d *Driver) interpretReply(r *run) error {
	reply, err := interpret.Interpret(r.completion)
	r.completion = nil
	if err != nil {
		return err
	}
	r.reply = reply
	switch reply := reply.(type) {
	case interpret.FinalAnswer:
		if err := r.conv.Append(reply.Message); err != nil {
			return err
		}
		d.transition(r, StateDone)
	case interpret.ToolCalls:
		if r.dispatched >= d.maxRounds {
			return fmt.Errorf("%w: model requested %d more tool call(s) after %d round(s)",
				ErrToolLoopLimitExceeded, len(reply.Calls), r.dispatched)
		}
		if err := r.conv.Append(reply.Message); err != nil {
			return err
		}
		loggerpkg.Debug(d.verbose, d.logger, "assistant requested tools", map[string]any{
			"run_id": r.id,
			"round":  r.round,
			"calls":  callNames(reply.Calls),
		})
		d.transition(r, StateDispatching)
	default:
		return fmt.Errorf("%w: unsupported reply %T", interpret.ErrMalformedResponse, r.reply)
	}
	return nil
}

func (d *Driver) dispatchCalls(ctx context.Context, r *run) error {
	calls := r.reply.(interpret.ToolCalls).Calls
	rollback := func() { r.conv.Truncate(r.conv.Len() - 1) }

	if err := ctx.Err(); err != nil {
		rollback()
		return err
	}
	results, err := d.dispatcher.Dispatch(ctx, calls)
	if err != nil {
		rollback()
		return err
	}
	if err := r.conv.AppendToolResults(results); err != nil {
		rollback()
		return err
	}
	r.dispatched++
	if d.hooks.OnToolResult != nil {
		for _, res := range results {
			d.hooks.OnToolResult(r.id, res)
		}
	}
	d.transition(r, StateAwaitingModel)
	return nil
}

func (d *Driver) transition(r *run, to State) {
	from := r.state
	r.state = to
	if d.hooks.OnTransition != nil {
		d.hooks.OnTransition(r.id, from, to, r.round)
	}
}

func (d *Driver) done(r *run) (Result, error) {
	res := Result{
		RunID:        r.id,
		State:        StateDone,
		Rounds:       r.round,
		ToolRounds:   r.dispatched,
		Conversation: r.conv,
	}
	if answer, ok := r.reply.(interpret.FinalAnswer); ok {
		res.Answer = answer.Text
		res.Message = answer.Message
		res.FinishReason = answer.FinishReason
	}
	loggerpkg.Debug(d.verbose, d.logger, "run done", map[string]any{
		"run_id":      r.id,
		"rounds":      r.round,
		"tool_rounds": r.dispatched,
	})
	d.metrics.ObserveRun(string(StateDone))
	if d.hooks.OnFinish != nil {
		d.hooks.OnFinish(r.id, res, nil)
	}
	return res, nil
}

func (d *Driver) fail(r *run, cause error, retryable bool) (Result, error) {
	runErr := &RunError{State: r.state, Round: r.round, Retryable: retryable, Cause: cause}
	d.transition(r, StateFailed)
	res := Result{
		RunID:        r.id,
		State:        StateFailed,
		Rounds:       r.round,
		ToolRounds:   r.dispatched,
		Conversation: r.conv,
	}
	loggerpkg.Warn(d.logger, "run failed", map[string]any{
		"run_id":    r.id,
		"state":     string(runErr.State),
		"round":     r.round,
		"retryable": retryable,
		"error":     cause.Error(),
	})
	d.metrics.ObserveRun(string(StateFailed))
	if d.hooks.OnFinish != nil {
		d.hooks.OnFinish(r.id, res, runErr)
	}
	return res, runErr
}

// retryable reports whether sending the same conversation again may succeed.
func retryable(err error) bool {
	var te *transport.Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return errors.Is(err, interpret.ErrMalformedResponse)
}

func callNames(calls []chat.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
