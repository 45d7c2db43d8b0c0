package urlstate

import (
	"net/url"
	"sort"
)

// ChangeOp distinguishes parameter updates from removals
type ChangeOp string

const (
	OpSet ChangeOp = "set"
	OpDel ChangeOp = "del"
)

// Change is a single parameter edit
type Change struct {
	Op    ChangeOp `json:"op"`
	Key   string   `json:"key"`
	Value string   `json:"value,omitempty"`
}

// Diff computes the parameter edits that turn current into next, so the
// address bar is touched key by key instead of replaced wholesale. Changes
// come back sorted by key for deterministic application.
func Diff(current, next url.Values) []Change {
	var changes []Change

	for key := range next {
		nv := next.Get(key)
		if !current.Has(key) || current.Get(key) != nv {
			changes = append(changes, Change{Op: OpSet, Key: key, Value: nv})
		}
	}
	for key := range current {
		if !next.Has(key) {
			changes = append(changes, Change{Op: OpDel, Key: key})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Key != changes[j].Key {
			return changes[i].Key < changes[j].Key
		}
		return changes[i].Op < changes[j].Op
	})
	return changes
}

// Apply replays changes onto a copy of values and returns the result
func Apply(values url.Values, changes []Change) url.Values {
	out := url.Values{}
	for key, vals := range values {
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	for _, c := range changes {
		switch c.Op {
		case OpSet:
			out.Set(c.Key, c.Value)
		case OpDel:
			out.Del(c.Key)
		}
	}
	return out
}
