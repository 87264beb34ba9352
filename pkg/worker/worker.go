// Package worker defines the contract between the scheduler and a
// user-supplied per-item worker: the function signature, a typed
// suspension signal, and the sum-typed outcome the invoker classifies a
// call's result into.
//
// The "needs an external brain" escape hatch is modeled as a plain state
// value rather than an exception hierarchy: a typed SuspendError checked
// with errors.As, and a sum-typed Outcome returned by the Invoker, so
// callers switch on Outcome.Kind instead of type-asserting down an error
// class tree.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Func is the opaque per-item worker body. It receives the item's data and
// a Context for logging, and returns either a result value or an error. A
// worker signals suspension by returning (or wrapping) a *SuspendError.
type Func func(ctx context.Context, wctx *Context, data json.RawMessage) (json.RawMessage, error)

// Context is offered to the worker for the single operation the engine
// exposes to it: logging. Appends are mirrored both to the process log,
// tagged with the item ID, and to the item's own durable log sequence.
type Context struct {
	ItemID string
	logger *slog.Logger
	append func(line string)
}

// NewContext builds a worker Context. append is called synchronously;
// callers of Invoke must ensure Log is only invoked from a single goroutine
// at a time per item, which holds here because each item has exactly one
// in-flight worker invocation.
func NewContext(itemID string, logger *slog.Logger, appendLog func(line string)) *Context {
	return &Context{ItemID: itemID, logger: logger, append: appendLog}
}

// Log appends a line to both the process log (tagged with the item ID) and
// the item's durable logs slice. Extra positional arguments are serialized
// to a compact text form and concatenated.
func (c *Context) Log(msg string, args ...any) {
	line := msg
	for _, a := range args {
		line += " " + fmt.Sprint(a)
	}
	if c.logger != nil {
		c.logger.Info(line, "item", c.ItemID)
	}
	if c.append != nil {
		c.append(line)
	}
}

// SuspendError is the sentinel condition a worker raises to delegate
// "thinking" to an external agent. It carries the payload the worker needs
// fulfilled, conventionally a list of chat-style messages.
type SuspendError struct {
	Prompt json.RawMessage
}

func (e *SuspendError) Error() string {
	return "worker requires an external brain"
}

// Suspend constructs a SuspendError carrying prompt, encoded as JSON.
func Suspend(prompt any) error {
	data, err := json.Marshal(prompt)
	if err != nil {
		return fmt.Errorf("worker: encoding suspension prompt: %w", err)
	}
	return &SuspendError{Prompt: data}
}

// Kind classifies an Outcome.
type Kind int

const (
	// KindSuccess: the worker returned a value.
	KindSuccess Kind = iota
	// KindSuspend: the worker raised the suspension signal.
	KindSuspend
	// KindFail: any other error, including timeout.
	KindFail
)

// Outcome is what the Invoker hands back to the Scheduler. The invoker
// itself never mutates the item or checkpoint — applying the outcome is
// the Scheduler's job.
type Outcome struct {
	Kind    Kind
	Value   json.RawMessage // set iff Kind == KindSuccess
	Prompt  json.RawMessage // set iff Kind == KindSuspend
	Message string          // set iff Kind == KindFail
}

// Invoker binds a single item to the worker function, enforcing the
// per-item timeout.
type Invoker struct {
	TimeoutMs int
}

// NewInvoker creates an Invoker with the given timeout in milliseconds (0
// or negative disables the timeout).
func NewInvoker(timeoutMs int) *Invoker {
	return &Invoker{TimeoutMs: timeoutMs}
}

// Invoke races fn against the configured timeout and classifies the
// result. The worker's context is cancelled when the timeout elapses, but
// the goroutine itself is not forcibly killed — workers must observe
// ctx.Done() to actually stop; cancellation here is cooperative only.
func (inv *Invoker) Invoke(ctx context.Context, fn Func, wctx *Context, data json.RawMessage) Outcome {
	runCtx := ctx
	var cancel context.CancelFunc
	if inv.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(inv.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	type result struct {
		value json.RawMessage
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("worker panicked: %v", r)}
			}
		}()
		v, err := fn(runCtx, wctx, data)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return classify(r.value, r.err)
	case <-runCtx.Done():
		if inv.TimeoutMs > 0 && runCtx.Err() == context.DeadlineExceeded {
			return Outcome{Kind: KindFail, Message: fmt.Sprintf("Operation timed out after %dms", inv.TimeoutMs)}
		}
		// Parent ctx was cancelled (e.g. process shutdown); let the caller
		// decide what to do — surfaced as a Fail so the item stays
		// eligible for a later run. The worker goroutine is not waited
		// for: it may keep running until it observes cancellation itself,
		// but done is buffered so it will never block trying to deliver
		// its result.
		return Outcome{Kind: KindFail, Message: "invocation cancelled"}
	}
}

func classify(value json.RawMessage, err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindSuccess, Value: value}
	}
	var suspend *SuspendError
	if errors.As(err, &suspend) {
		return Outcome{Kind: KindSuspend, Prompt: suspend.Prompt}
	}
	return Outcome{Kind: KindFail, Message: err.Error()}
}
