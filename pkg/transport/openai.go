package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// RetryConfig bounds exponential backoff for retryable failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Config configures the OpenAI transport.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single attempt. Zero leaves it to the client.
	Timeout time.Duration
	Retry   RetryConfig

	// Stream requests server-sent events and copies content deltas to
	// StreamWriter as they arrive.
	Stream       bool
	StreamWriter io.Writer

	HTTPClient *http.Client
	// OnRetry is called before each retry with the 1-based attempt that failed.
	OnRetry func(attempt int, err error)
	Logger  loggerpkg.Logger
	Verbose bool
}

// OpenAI sends requests with the openai-go client. SDK-level retries are
// disabled; retries are driven by a failsafe retry policy instead.
type OpenAI struct {
	client openai.Client
	cfg    Config
	policy retrypolicy.RetryPolicy[*openai.ChatCompletion]
}

// NewOpenAI builds the transport.
func NewOpenAI(cfg Config) *OpenAI {
	if cfg.Logger == nil {
		cfg.Logger = loggerpkg.NopLogger{}
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		cfg.Retry.MaxDelay = cfg.Retry.BaseDelay
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	t := &OpenAI{client: openai.NewClient(opts...), cfg: cfg}
	t.policy = retrypolicy.NewBuilder[*openai.ChatCompletion]().
		HandleIf(func(_ *openai.ChatCompletion, err error) bool {
			return IsRetryable(err)
		}).
		WithBackoff(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay).
		WithMaxRetries(cfg.Retry.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*openai.ChatCompletion]) {
			loggerpkg.Warn(t.cfg.Logger, "retrying chat completion", map[string]any{
				"attempt": e.Attempts(),
				"error":   errString(e.LastError()),
			})
			if t.cfg.OnRetry != nil {
				t.cfg.OnRetry(e.Attempts(), e.LastError())
			}
		}).
		Build()
	return t
}

// Send performs the request, retrying retryable failures with backoff.
func (t *OpenAI) Send(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	completion, err := failsafe.With[*openai.ChatCompletion](t.policy).
		WithContext(ctx).
		Get(func() (*openai.ChatCompletion, error) {
			return t.attempt(ctx, params)
		})
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return completion, nil
}

func (t *OpenAI) attempt(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if !t.cfg.Stream {
		loggerpkg.Debug(t.cfg.Verbose, t.cfg.Logger, "sending chat completion request", map[string]any{
			"model":    params.Model,
			"messages": len(params.Messages),
			"tools":    len(params.Tools),
		})
		completion, err := t.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, Classify(ctx, err)
		}
		return completion, nil
	}

	loggerpkg.Debug(t.cfg.Verbose, t.cfg.Logger, "sending streaming chat completion request", map[string]any{
		"model":    params.Model,
		"messages": len(params.Messages),
	})
	w := t.cfg.StreamWriter
	if w == nil {
		w = io.Discard
	}
	stream := t.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	streamed := false
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			return nil, &Error{Err: errors.New("failed to accumulate stream")}
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			streamed = true
			if _, err := io.WriteString(w, chunk.Choices[0].Delta.Content); err != nil {
				// Keep accumulating; the completion still carries the full answer.
				loggerpkg.Warn(t.cfg.Logger, "stream output write failed", map[string]any{
					"error": err.Error(),
				})
				w = io.Discard
			}
		}
	}
	if err := stream.Err(); err != nil {
		classified := Classify(ctx, err)
		if streamed {
			// Output already reached the writer; a retry would duplicate it.
			var te *Error
			if errors.As(classified, &te) {
				te.Retryable = false
			}
		}
		return nil, classified
	}
	completion := acc.ChatCompletion
	for i := range completion.Choices {
		if completion.Choices[i].Message.Role == "" {
			completion.Choices[i].Message.Role = "assistant"
		}
	}
	return &completion, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
