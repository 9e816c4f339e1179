package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNilResult = errors.New("engine returned no result")

// Kind tags a ClassifiedError. Fallback decisions branch on Kind only.
type Kind string

const (
	KindTimeout             Kind = "timeout"
	KindChallengeDetected   Kind = "challenge_detected"
	KindInsufficientContent Kind = "insufficient_content"
	KindHTTPStatus          Kind = "http_status"
	KindEngineUnavailable   Kind = "engine_unavailable"
	KindGeneric             Kind = "generic"
)

// ClassifiedError is the only error type engines hand back to the
// orchestrator. The kind-specific fields are zero unless the Kind uses them.
type ClassifiedError struct {
	Kind      Kind   `json:"kind"`
	Engine    string `json:"engine"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`

	ChallengeType string        `json:"challenge_type,omitempty"`
	ContentLength int           `json:"content_length,omitempty"`
	Threshold     int           `json:"threshold,omitempty"`
	StatusCode    int           `json:"status_code,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`

	Cause error `json:"-"`
}

func (e *ClassifiedError) Error() string {
	if e.Engine == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Engine, e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }

// SiteOutcome reports whether the error describes the target page rather than
// the browser session that loaded it.
func (e *ClassifiedError) SiteOutcome() bool {
	switch e.Kind {
	case KindChallengeDetected, KindInsufficientContent, KindHTTPStatus:
		return true
	}
	return false
}

// NewTimeout reports that the engine's deadline (or the caller's) fired.
func NewTimeout(engine string, timeout time.Duration, cause error) *ClassifiedError {
	msg := "deadline exceeded"
	if timeout > 0 {
		msg = fmt.Sprintf("deadline of %s exceeded", timeout)
	}
	return &ClassifiedError{Kind: KindTimeout, Engine: engine, Message: msg, Retryable: true, Timeout: timeout, Cause: cause}
}

// NewChallengeDetected reports an anti-bot page. challengeType is e.g.
// "cloudflare", "blocked" or "unresolved:js_challenge".
func NewChallengeDetected(engine, challengeType string) *ClassifiedError {
	return &ClassifiedError{
		Kind:          KindChallengeDetected,
		Engine:        engine,
		Message:       "challenge page detected: " + challengeType,
		Retryable:     true,
		ChallengeType: challengeType,
	}
}

func NewInsufficientContent(engine string, length, threshold int) *ClassifiedError {
	return &ClassifiedError{
		Kind:          KindInsufficientContent,
		Engine:        engine,
		Message:       fmt.Sprintf("extracted %d characters, need %d", length, threshold),
		Retryable:     true,
		ContentLength: length,
		Threshold:     threshold,
	}
}

// NewHTTPStatus reports an error status. Only 403, 404, 429 and 5xx are
// retryable on another engine.
func NewHTTPStatus(engine string, status int) *ClassifiedError {
	return &ClassifiedError{
		Kind:       KindHTTPStatus,
		Engine:     engine,
		Message:    fmt.Sprintf("HTTP %d", status),
		Retryable:  retryableStatus(status),
		StatusCode: status,
	}
}

func NewEngineUnavailable(engine, reason string, cause error) *ClassifiedError {
	return &ClassifiedError{Kind: KindEngineUnavailable, Engine: engine, Message: reason, Retryable: true, Cause: cause}
}

func NewGeneric(engine string, retryable bool, cause error) *ClassifiedError {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &ClassifiedError{Kind: KindGeneric, Engine: engine, Message: msg, Retryable: retryable, Cause: cause}
}

func retryableStatus(status int) bool {
	return status == 403 || status == 404 || status == 429 || status >= 500
}

// Classify turns any engine error into a ClassifiedError. Errors that are
// already classified pass through; bare context errors become timeouts and
// everything else is a retryable generic error.
func Classify(engine string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		if ce.Engine != "" {
			return ce
		}
		c := *ce
		c.Engine = engine
		return &c
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeout(engine, 0, err)
	}
	return NewGeneric(engine, true, err)
}

// ShouldFallback reports whether the cascade continues with the next engine.
func ShouldFallback(err *ClassifiedError) bool {
	if err == nil {
		return false
	}
	switch err.Kind {
	case KindTimeout, KindChallengeDetected, KindInsufficientContent, KindEngineUnavailable:
		return true
	case KindHTTPStatus:
		return retryableStatus(err.StatusCode)
	default:
		return err.Retryable
	}
}

// AllEnginesFailedError is returned when no engine in the cascade succeeded.
type AllEnginesFailedError struct {
	Attempted []string
	Errors    map[string]*ClassifiedError
}

func (e *AllEnginesFailedError) Error() string {
	if len(e.Attempted) == 0 {
		return "all engines failed: no engine available"
	}
	parts := make([]string, 0, len(e.Attempted))
	for _, name := range e.Attempted {
		if ce, ok := e.Errors[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", name, ce.Message))
		}
	}
	return "all engines failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-engine errors in attempt order so errors.Is/As can
// look through the aggregate.
func (e *AllEnginesFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, name := range e.Attempted {
		if ce, ok := e.Errors[name]; ok {
			out = append(out, ce)
		}
	}
	return out
}

// Last returns the error of the last engine tried.
func (e *AllEnginesFailedError) Last() *ClassifiedError {
	if len(e.Attempted) == 0 {
		return nil
	}
	return e.Errors[e.Attempted[len(e.Attempted)-1]]
}

// AllTimedOut reports whether every attempted engine failed with a timeout.
func (e *AllEnginesFailedError) AllTimedOut() bool {
	if len(e.Attempted) == 0 {
		return false
	}
	for _, ce := range e.Errors {
		if ce.Kind != KindTimeout {
			return false
		}
	}
	return true
}

// ErrorMessages flattens the per-engine errors into name → message.
func ErrorMessages(errs map[string]*ClassifiedError) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for name, ce := range errs {
		out[name] = ce.Message
	}
	return out
}
