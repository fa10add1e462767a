package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toolResponseTest is a minimal response shape for assertions.
type toolResponseTest struct {
	OK        bool            `json:"ok"`
	Tool      string          `json:"tool"`
	Data      json.RawMessage `json:"data"`
	Err       string          `json:"error"`
	Kind      Kind            `json:"kind"`
	Truncated bool            `json:"truncated"`
}

func decode(t *testing.T, res chat.ToolResult) toolResponseTest {
	t.Helper()
	var out toolResponseTest
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(r))
	r.MustRegister(tools.Declaration{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	})
	r.MustRegister(tools.Declaration{Name: "fail"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("upstream unavailable")
	})
	r.MustRegister(tools.Declaration{Name: "boom"}, func(context.Context, map[string]any) (any, error) {
		panic("nil map write")
	})
	return r
}

func TestDispatchProducesOneResultPerCall(t *testing.T) {
	d := New(newRegistry(t), WithConcurrency(3))
	var calls []chat.ToolCall
	for i := 0; i < 7; i++ {
		calls = append(calls, chat.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      "echo",
			Arguments: fmt.Sprintf(`{"n":%d}`, i),
		})
	}

	results, err := d.Dispatch(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.CallID)
		assert.Equal(t, "echo", res.Name)
		resp := decode(t, res)
		assert.True(t, resp.OK)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(resp.Data))
	}
}

func TestDispatchWeatherScenario(t *testing.T) {
	d := New(newRegistry(t))
	results, err := d.Dispatch(context.Background(), []chat.ToolCall{{
		ID:        "call_weather",
		Name:      tools.WeatherToolName,
		Arguments: `{"location":"Boston, MA"}`,
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	resp := decode(t, results[0])
	require.True(t, resp.OK, resp.Err)
	assert.JSONEq(t, `{"location":"Boston, MA","temperature":"72","unit":"fahrenheit","forecast":["sunny","windy"]}`, string(resp.Data))
}

func TestDispatchSoftFailures(t *testing.T) {
	d := New(newRegistry(t))
	calls := []chat.ToolCall{
		{ID: "c1", Name: "echo", Arguments: "{"},
		{ID: "c2", Name: "echo", Arguments: "[1,2]"},
		{ID: "c3", Name: "get_stock_price", Arguments: "{}"},
		{ID: "c4", Name: tools.WeatherToolName, Arguments: `{"unit":"celsius"}`},
		{ID: "c5", Name: "fail", Arguments: "{}"},
		{ID: "c6", Name: "boom", Arguments: "{}"},
		{ID: "c7", Name: "echo", Arguments: ""},
	}
	results, err := d.Dispatch(context.Background(), calls)
	require.NoError(t, err, "soft failures never abort the turn")
	require.Len(t, results, len(calls))

	want := []Kind{KindArgumentParse, KindArgumentParse, KindUnknownTool, KindArgumentInvalid, KindHandler, KindHandlerPanic, KindOK}
	for i, res := range results {
		resp := decode(t, res)
		assert.Equal(t, calls[i].ID, res.CallID)
		assert.Equal(t, want[i], resp.Kind, calls[i].ID)
		assert.Equal(t, want[i] == KindOK, resp.OK, calls[i].ID)
		assert.Equal(t, want[i] != KindOK, res.IsError, calls[i].ID)
	}
	assert.Contains(t, decode(t, results[4]).Err, "upstream unavailable")
}

func TestDispatchFatalAbortsAndWaitsForInFlight(t *testing.T) {
	r := tools.NewRegistry()
	var finished atomic.Bool
	started := make(chan struct{})
	r.MustRegister(tools.Declaration{Name: "slow"}, func(ctx context.Context, _ map[string]any) (any, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil, ctx.Err()
	})
	cause := errors.New("disk full")
	r.MustRegister(tools.Declaration{Name: "exhausted"}, func(context.Context, map[string]any) (any, error) {
		<-started
		return nil, tools.Fatal(cause)
	})

	d := New(r, WithConcurrency(2))
	_, err := d.Dispatch(context.Background(), []chat.ToolCall{
		{ID: "a", Name: "slow"},
		{ID: "b", Name: "exhausted"},
	})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "b", fatal.CallID)
	assert.ErrorIs(t, err, cause)
	assert.True(t, finished.Load(), "in-flight handler finished before Dispatch returned")
}

func TestDispatchHonoursConcurrencyLimit(t *testing.T) {
	r := tools.NewRegistry()
	var running, peak atomic.Int32
	r.MustRegister(tools.Declaration{Name: "work"}, func(context.Context, map[string]any) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return "done", nil
	})
	d := New(r, WithConcurrency(2))
	calls := make([]chat.ToolCall, 8)
	for i := range calls {
		calls[i] = chat.ToolCall{ID: fmt.Sprintf("w%d", i), Name: "work"}
	}
	_, err := d.Dispatch(context.Background(), calls)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatchCancelledContext(t *testing.T) {
	d := New(newRegistry(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Dispatch(ctx, []chat.ToolCall{{ID: "a", Name: "echo"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDispatchTruncatesLargeResults(t *testing.T) {
	r := tools.NewRegistry()
	r.MustRegister(tools.Declaration{Name: "big"}, func(context.Context, map[string]any) (any, error) {
		return strings.Repeat("x", 500), nil
	})
	d := New(r, WithMaxResultBytes(100))
	results, err := d.Dispatch(context.Background(), []chat.ToolCall{{ID: "a", Name: "big"}})
	require.NoError(t, err)
	resp := decode(t, results[0])
	assert.True(t, resp.OK)
	assert.True(t, resp.Truncated)
	assert.True(t, json.Valid(results[0].Payload))
	assert.LessOrEqual(t, len(results[0].Payload), 100)
}

func TestDispatchTruncatedErrorStaysAnError(t *testing.T) {
	r := tools.NewRegistry()
	r.MustRegister(tools.Declaration{Name: "loud"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New(strings.Repeat("x", 500))
	})
	d := New(r, WithMaxResultBytes(100))
	results, err := d.Dispatch(context.Background(), []chat.ToolCall{{ID: "a", Name: "loud"}})
	require.NoError(t, err)

	resp := decode(t, results[0])
	assert.False(t, resp.OK)
	assert.True(t, resp.Truncated)
	assert.Equal(t, KindHandler, resp.Kind)
	assert.Equal(t, "loud", resp.Tool)
	assert.NotEmpty(t, resp.Err)
	assert.True(t, results[0].IsError)
	assert.LessOrEqual(t, len(results[0].Payload), 100)
}

func TestDispatchTruncationAccountsForEscaping(t *testing.T) {
	r := tools.NewRegistry()
	r.MustRegister(tools.Declaration{Name: "ctrl"}, func(context.Context, map[string]any) (any, error) {
		return strings.Repeat("\x01", 400) + strings.Repeat("é", 200), nil
	})
	for _, limit := range []int{80, 150, 600} {
		d := New(r, WithMaxResultBytes(limit))
		results, err := d.Dispatch(context.Background(), []chat.ToolCall{{ID: "a", Name: "ctrl"}})
		require.NoError(t, err)
		assert.True(t, json.Valid(results[0].Payload))
		assert.LessOrEqual(t, len(results[0].Payload), limit, "limit %d", limit)
		assert.True(t, decode(t, results[0]).Truncated)
	}
}

func TestDispatchObserverSeesEveryCall(t *testing.T) {
	var mu sync.Mutex
	kinds := map[string]Kind{}
	d := New(newRegistry(t), WithObserver(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds[ev.CallID] = ev.Kind
	}))
	_, err := d.Dispatch(context.Background(), []chat.ToolCall{
		{ID: "ok", Name: "echo", Arguments: "{}"},
		{ID: "bad", Name: "echo", Arguments: "{"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]Kind{"ok": KindOK, "bad": KindArgumentParse}, kinds)
}

func TestDispatchSchemaValidation(t *testing.T) {
	r := tools.NewRegistry()
	r.MustRegister(tools.Declaration{
		Name: "add",
		Parameters: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"a": {Type: "number"}, "b": {Type: "number"}},
			Required:   []string{"a", "b"},
		},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
	d := New(r)
	results, err := d.Dispatch(context.Background(), []chat.ToolCall{
		{ID: "1", Name: "add", Arguments: `{"a":1,"b":2}`},
		{ID: "2", Name: "add", Arguments: `{"a":1}`},
	})
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(decode(t, results[0]).Data))
	assert.Equal(t, KindArgumentInvalid, decode(t, results[1]).Kind)
}
