package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridianlabs/topoview/pkg/logging"
)

// Provider fetches a fresh topology snapshot from wherever the inventory
// lives (a file on disk, the upstream topology API).
type Provider interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Inventory holds the current topology snapshot and notifies subscribers
// when it is replaced. Snapshots are immutable; Current is safe to use
// without further locking.
type Inventory struct {
	mu          sync.RWMutex
	provider    Provider
	current     *Snapshot
	version     uint64
	subscribers []func(*Snapshot)
}

// NewInventory creates an empty inventory backed by the given provider
func NewInventory(provider Provider) *Inventory {
	return &Inventory{provider: provider}
}

// Current returns the latest snapshot, or nil before the first refresh
func (inv *Inventory) Current() *Snapshot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.current
}

// Subscribe registers a callback invoked after every snapshot replacement.
// Callbacks run synchronously on the refreshing goroutine and must not call
// back into the inventory.
func (inv *Inventory) Subscribe(fn func(*Snapshot)) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.subscribers = append(inv.subscribers, fn)
}

// Refresh fetches a new snapshot from the provider and installs it
func (inv *Inventory) Refresh(ctx context.Context) error {
	snap, err := inv.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch topology snapshot: %w", err)
	}
	inv.Replace(snap)
	return nil
}

// Replace installs a snapshot directly and notifies subscribers
func (inv *Inventory) Replace(snap *Snapshot) {
	inv.mu.Lock()
	inv.version++
	snap.Version = inv.version
	inv.current = snap
	subs := make([]func(*Snapshot), len(inv.subscribers))
	copy(subs, inv.subscribers)
	inv.mu.Unlock()

	logging.Info("topology snapshot installed",
		"version", snap.Version,
		"metros", len(snap.Metros),
		"devices", len(snap.Devices),
		"links", len(snap.Links),
		"validators", len(snap.Validators))

	for _, fn := range subs {
		fn(snap)
	}
}
