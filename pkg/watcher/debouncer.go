package watcher

import (
	"context"
	"time"

	"github.com/meridianlabs/topoview/pkg/logging"
)

// Debouncer coalesces bursts of change events into single reloads. A flush
// happens once the input goes quiet for quietPeriod, or when maxWait has
// passed since the first pending event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	quiet := time.NewTimer(d.quietPeriod)
	quiet.Stop()
	defer quiet.Stop()

	var pending []string
	var deadline <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		logging.Debug("flushing batched changes", "count", len(pending))
		d.output <- ChangeEvent{Paths: pending, Timestamp: time.Now()}
		pending = nil
		deadline = nil
		quiet.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if len(pending) == 0 {
				// First event of a batch arms the hard deadline
				deadline = time.After(d.maxWait)
			}
			pending = append(pending, ev.Paths...)
			quiet.Stop()
			quiet.Reset(d.quietPeriod)

		case <-quiet.C:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output delivers the batched events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
