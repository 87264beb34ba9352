package checkpoint

import (
	"encoding/json"
	"fmt"
)

// Item is one unit of work, plus its per-run execution metadata.
type Item struct {
	ID            string          `json:"id"`
	Data          json.RawMessage `json:"data"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	PendingPrompt json.RawMessage `json:"pendingPrompt,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	Logs          []string        `json:"logs"`
}

// NewItem creates an item in its initial state: pending, zero attempts.
func NewItem(id string, data json.RawMessage) *Item {
	return &Item{
		ID:     id,
		Data:   data,
		Status: StatusPending,
		Logs:   []string{},
	}
}

// DataAs unmarshals the item's opaque data payload into v.
func (it *Item) DataAs(v any) error {
	return json.Unmarshal(it.Data, v)
}

// AppendLog appends a line to the item's own durable log sequence, the
// ordered record of everything a worker logged against this item across
// every attempt.
func (it *Item) AppendLog(line string) {
	it.Logs = append(it.Logs, line)
}

// TerminalForRun reports whether this item needs no further work in the
// current run, given maxRetries.
func (it *Item) TerminalForRun(maxRetries int) bool {
	return terminalForRun(it.Status, it.Attempts, maxRetries)
}

// EnterProcessing performs the "pending|failed -> processing" entry action:
// increment attempts.
func (it *Item) EnterProcessing() {
	it.Status = StatusProcessing
	it.Attempts++
}

// EnterCompleted performs the "processing -> completed" entry action: set
// the output and clear any pending prompt. Counters are not touched here;
// callers recompute them with Checkpoint.RecomputeCounters.
func (it *Item) EnterCompleted(output json.RawMessage) {
	it.Status = StatusCompleted
	it.Output = output
	it.PendingPrompt = nil
}

// EnterFailed performs the "processing -> failed" entry action. Returns
// true iff this attempt exhausts the retry budget (failedCount should be
// incremented).
func (it *Item) EnterFailed(message string, maxRetries int) (exhausted bool) {
	it.Status = StatusFailed
	it.LastError = message
	return it.Attempts >= maxRetries
}

// EnterAwaitingAgent performs the "processing -> awaiting_agent" entry
// action: record the prompt and roll the attempt counter back by one, so a
// suspension never consumes retry budget.
func (it *Item) EnterAwaitingAgent(prompt json.RawMessage) {
	it.Status = StatusAwaitingAgent
	it.PendingPrompt = prompt
	it.Attempts--
	if it.Attempts < 0 {
		it.Attempts = 0
	}
}

// Validate checks that status is one of the permitted values and that it
// agrees with whether output is set.
func (it *Item) Validate() error {
	if !it.Status.Valid() {
		return fmt.Errorf("item %s: invalid status %q", it.ID, it.Status)
	}
	if it.Attempts < 0 {
		return fmt.Errorf("item %s: negative attempts %d", it.ID, it.Attempts)
	}
	if it.Status == StatusCompleted && it.Output == nil {
		return fmt.Errorf("item %s: completed without output", it.ID)
	}
	if it.Status != StatusCompleted && it.Output != nil {
		return fmt.Errorf("item %s: output set without completed status", it.ID)
	}
	return nil
}
