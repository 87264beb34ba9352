// Package checkpoint implements the durable, crash-safe job state: the
// per-item state machine and the on-disk checkpoint store. A job has a
// single unit of durable state — the whole run — stored as one JSON file,
// written under the same entry-action discipline every item transition
// follows: mutate, then flush, before the next item is dispatched.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is the whole-job durable state.
type Checkpoint struct {
	JobID     string  `json:"jobId"`
	StartTime string  `json:"startTime"`
	Items     []*Item `json:"items"`

	CompletedCount int `json:"completedCount"`
	FailedCount    int `json:"failedCount"`

	// Extra holds unknown top-level fields, preserved verbatim on round-trip
	// so an older engine version never silently drops a newer one's data.
	Extra map[string]any `json:"-"`
}

// NewCheckpoint creates a fresh job from an ordered input sequence. Items
// are created exactly once, here; each element of inputs becomes the
// opaque Data of one Item, in order.
func NewCheckpoint(inputs []json.RawMessage) *Checkpoint {
	items := make([]*Item, len(inputs))
	for i, in := range inputs {
		items[i] = NewItem(fmt.Sprintf("item-%d", i), in)
	}
	return &Checkpoint{
		JobID:     fmt.Sprintf("job-%d", time.Now().UnixMilli()),
		StartTime: time.Now().UTC().Format(time.RFC3339Nano),
		Items:     items,
	}
}

// ItemByID finds an item by its stable ID, or nil.
func (c *Checkpoint) ItemByID(id string) *Item {
	for _, it := range c.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// RecomputeCounters recomputes completedCount/failedCount from the current
// item statuses. Called after every transition instead of incrementally
// maintaining the counters, so a hand-edited (supervisor-fulfilled)
// checkpoint can never drift out of sync.
func (c *Checkpoint) RecomputeCounters(maxRetries int) {
	completed, failed := 0, 0
	for _, it := range c.Items {
		switch it.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			if it.Attempts >= maxRetries {
				failed++
			}
		}
	}
	c.CompletedCount = completed
	c.FailedCount = failed
}

// AwaitingCount returns the number of items currently suspended awaiting an
// external brain.
func (c *Checkpoint) AwaitingCount() int {
	n := 0
	for _, it := range c.Items {
		if it.Status == StatusAwaitingAgent {
			n++
		}
	}
	return n
}

// Validate checks per-item validity plus agreement between the stored
// counters and what the item statuses actually imply. Attempts-vs-maxRetries
// bounds are the caller's concern since Validate doesn't know maxRetries
// beyond what's passed in; stability of jobId/startTime across saves is
// enforced by Store never overwriting them, not by Validate.
func (c *Checkpoint) Validate(maxRetries int) error {
	if c.JobID == "" {
		return fmt.Errorf("checkpoint: missing jobId")
	}
	completed, failed := 0, 0
	for _, it := range c.Items {
		if err := it.Validate(); err != nil {
			return err
		}
		if it.Status == StatusCompleted {
			completed++
		}
		if it.Status == StatusFailed && it.Attempts >= maxRetries {
			failed++
		}
	}
	if completed != c.CompletedCount {
		return fmt.Errorf("checkpoint: completedCount mismatch: have %d want %d", c.CompletedCount, completed)
	}
	if failed != c.FailedCount {
		return fmt.Errorf("checkpoint: failedCount mismatch: have %d want %d", c.FailedCount, failed)
	}
	return nil
}

// newInvocationID is used by the scheduler/telemetry layer to tag a single
// worker invocation (distinct from the item's stable ID) for tracing.
func newInvocationID() string {
	return uuid.NewString()
}

// NewInvocationID exposes newInvocationID to other packages in this module.
func NewInvocationID() string { return newInvocationID() }
