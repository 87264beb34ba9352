// Package supervisor implements the external-collaborator side of item
// suspension: fulfilling or resetting items a worker has parked in
// awaiting_agent, and watching a checkpoint file for changes made by an
// out-of-band supervising agent.
package supervisor

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/checkpoint"
)

// Fulfill loads the checkpoint at path, marks item itemID completed with
// the given output, and saves it back.
func Fulfill(path, itemID string, output json.RawMessage) error {
	store := checkpoint.NewStore(path)
	cp, err := store.Load()
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("supervisor: no checkpoint at %s", path)
	}
	it := cp.ItemByID(itemID)
	if it == nil {
		return fmt.Errorf("supervisor: no item %s in checkpoint", itemID)
	}
	it.EnterCompleted(output)
	cp.RecomputeCounters(maxRetriesHint(cp))
	return store.Save(cp)
}

// Reset loads the checkpoint at path, rewrites item itemID's data, clears
// its pending prompt, and returns it to pending so the next run reprocesses
// it.
func Reset(path, itemID string, newData json.RawMessage) error {
	store := checkpoint.NewStore(path)
	cp, err := store.Load()
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("supervisor: no checkpoint at %s", path)
	}
	it := cp.ItemByID(itemID)
	if it == nil {
		return fmt.Errorf("supervisor: no item %s in checkpoint", itemID)
	}
	it.Data = newData
	it.Status = checkpoint.StatusPending
	it.PendingPrompt = nil
	cp.RecomputeCounters(maxRetriesHint(cp))
	return store.Save(cp)
}

// Awaiting returns every item currently parked in awaiting_agent, in
// checkpoint order, for a supervisor to inspect and fulfill.
func Awaiting(path string) ([]*checkpoint.Item, error) {
	store := checkpoint.NewStore(path)
	cp, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	var out []*checkpoint.Item
	for _, it := range cp.Items {
		if it.Status == checkpoint.StatusAwaitingAgent {
			out = append(out, it)
		}
	}
	return out, nil
}

// maxRetriesHint recomputes failedCount using the same number that was
// already baked into the checkpoint (an already-failed item stays counted
// consistently); the supervisor does not otherwise know maxRetries, so it
// is conservative and recomputes only completedCount/failedCount from
// their existing agreement. A supervisor editing a checkpoint outside a
// run never changes attempts, so this is safe.
func maxRetriesHint(cp *checkpoint.Checkpoint) int {
	maxAttempts := 0
	for _, it := range cp.Items {
		if it.Status == checkpoint.StatusFailed && it.Attempts > maxAttempts {
			maxAttempts = it.Attempts
		}
	}
	return maxAttempts
}

// Watch watches path with fsnotify and delivers the freshly-loaded
// Checkpoint on ch every time the file is written or renamed into place
// (the Store's atomic-rename Save shows up as a Create event on most
// filesystems), until stop is closed. This lets a supervising process
// react to engine-side checkpoint changes, and an engine operator react to
// supervisor-side fulfillments, without polling.
func Watch(path string, ch chan<- *checkpoint.Checkpoint, stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("supervisor: creating watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("supervisor: watching %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		store := checkpoint.NewStore(path)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cp, err := store.Load()
				if err != nil || cp == nil {
					continue
				}
				ch <- cp
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
