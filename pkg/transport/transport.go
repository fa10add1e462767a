// Package transport sends chat completion requests to a provider and
// classifies failures as retryable or terminal.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/openai/openai-go"
)

// Transport performs one logical request/response exchange. Implementations
// may retry internally; the returned error is classified with IsRetryable.
type Transport interface {
	Send(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

func (f Func) Send(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return f(ctx, params)
}

// Error is a classified transport failure.
type Error struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err in *Error. ctx is the caller's context: once it is done
// nothing is retryable.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	out := &Error{Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.StatusCode
	}
	if ctx != nil && ctx.Err() != nil {
		return out
	}
	out.Retryable = retryable(out.StatusCode, err)
	return out
}

// IsRetryable reports whether err is worth sending again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryable(apiErr.StatusCode, err)
	}
	return retryable(0, err)
}

func retryable(status int, err error) bool {
	if status > 0 {
		switch {
		case status == http.StatusRequestTimeout, status == http.StatusConflict, status == http.StatusTooManyRequests:
			return true
		case status >= 500 && status < 600:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A per-request timeout; the caller's own deadline is handled in Classify.
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
