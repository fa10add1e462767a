// Package dispatch executes model-requested tool calls against a registry.
//
// Malformed arguments, unknown tools and handler failures do not abort the
// turn: each becomes an error payload the model sees on its next round.
// Only handler errors marked with tools.Fatal stop dispatch.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minhyannv/function-call-go/pkg/chat"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel handler executions per turn.
const DefaultConcurrency = 4

// DefaultMaxResultBytes caps the encoded size of a single tool payload sent
// to the model, envelope included.
const DefaultMaxResultBytes = 30000

// FatalError aborts a dispatch phase. Err is the handler's cause.
type FatalError struct {
	CallID string
	Tool   string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed fatally: %v", e.Tool, e.CallID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Event describes one finished tool call.
type Event struct {
	CallID   string
	Tool     string
	Kind     Kind
	Duration time.Duration
	Err      error
}

// Dispatcher runs tool calls against a registry.
type Dispatcher struct {
	registry       *tools.Registry
	concurrency    int
	maxResultBytes int
	observe        func(Event)
	logger         loggerpkg.Logger
	verbose        bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency bounds how many handlers run at once. Values below 1
// fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

// WithMaxResultBytes caps payload size; zero disables truncation.
func WithMaxResultBytes(n int) Option {
	return func(d *Dispatcher) { d.maxResultBytes = n }
}

// WithObserver is called once per finished call, from the executing goroutine.
func WithObserver(fn func(Event)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// WithLogger injects a logger.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
		d.verbose = verbose
	}
}

// New builds a dispatcher over registry.
func New(registry *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		concurrency:    DefaultConcurrency,
		maxResultBytes: DefaultMaxResultBytes,
		logger:         loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.concurrency < 1 {
		d.concurrency = DefaultConcurrency
	}
	return d
}

// Dispatch executes calls and returns one result per call, index-matched to
// the input. It returns only after every started handler has returned.
// The error is a *FatalError or the context's error.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []chat.ToolCall) ([]chat.ToolResult, error) {
	results := make([]chat.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, call := range calls {
		g.Go(func() error {
			res, err := d.dispatchOne(gctx, call)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call chat.ToolCall) (chat.ToolResult, error) {
	start := time.Now()
	data, kind, err := d.execute(ctx, call)

	var fatal *FatalError
	if errors.As(err, &fatal) {
		d.finish(call, kind, start, err)
		loggerpkg.Error(d.logger, "tool call failed fatally", map[string]any{
			"tool":    call.Name,
			"call_id": call.ID,
			"error":   err.Error(),
		})
		return chat.ToolResult{}, err
	}

	payload, marshalErr := marshalToolResponse(call.Name, data, kind, err, d.maxResultBytes)
	if marshalErr != nil {
		kind, err = KindHandler, fmt.Errorf("result is not JSON-serializable: %w", marshalErr)
		payload, _ = marshalToolResponse(call.Name, nil, kind, err, d.maxResultBytes)
	}
	d.finish(call, kind, start, err)

	return chat.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Payload: payload,
		IsError: err != nil,
	}, nil
}

// execute returns the handler data, or a soft failure kind with its error,
// or a *FatalError.
func (d *Dispatcher) execute(ctx context.Context, call chat.ToolCall) (any, Kind, error) {
	if err := ctx.Err(); err != nil {
		return nil, KindCancelled, fmt.Errorf("not executed: %w", err)
	}

	tool, err := d.registry.Lookup(call.Name)
	if err != nil {
		return nil, KindUnknownTool, err
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		loggerpkg.Debug(d.verbose, d.logger, "tool arguments rejected", map[string]any{
			"tool":      call.Name,
			"call_id":   call.ID,
			"arguments": call.Arguments,
			"error":     err.Error(),
		})
		return nil, KindArgumentParse, err
	}
	if err := tool.Validate(args); err != nil {
		return nil, KindArgumentInvalid, fmt.Errorf("arguments do not match schema: %w", err)
	}

	loggerpkg.Debug(d.verbose, d.logger, "executing tool", map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
	})
	data, err := invoke(ctx, tool.Handler, args)
	if err != nil {
		var panicErr *panicError
		switch {
		case errors.As(err, &panicErr):
			return nil, KindHandlerPanic, err
		case tools.IsFatal(err):
			return nil, KindHandler, &FatalError{CallID: call.ID, Tool: call.Name, Err: err}
		default:
			return nil, KindHandler, err
		}
	}
	return data, KindOK, nil
}

func (d *Dispatcher) finish(call chat.ToolCall, kind Kind, start time.Time, err error) {
	if d.observe == nil {
		return
	}
	d.observe(Event{
		CallID:   call.ID,
		Tool:     call.Name,
		Kind:     kind,
		Duration: time.Since(start),
		Err:      err,
	})
}

// parseArguments accepts a JSON object; empty input means no arguments.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a valid JSON object: %w", err)
	}
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("handler panicked: %v", e.value) }

func invoke(ctx context.Context, h tools.Handler, args map[string]any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, &panicError{value: r}
		}
	}()
	return h(ctx, args)
}
