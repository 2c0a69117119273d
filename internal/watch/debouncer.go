package watch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Debouncer coalesces rapid events into a single callback invocation.
// The callback receives every distinct path seen since the last firing,
// in arrival order.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func(paths []string)
	pending  []string
	stopped  bool
	running  sync.WaitGroup
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback.
func NewDebouncer(interval time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records an event for the given path and restarts the quiet
// period.
func (d *Debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = append(d.pending, path)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debouncer callback panicked", slog.Any("error", r))
		}
	}()

	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}

	paths := lo.Uniq(d.pending)
	d.pending = nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()

	d.callback(paths)
}

// Stop cancels any pending debounced callback and waits for one that is
// already running. Later triggers are ignored. Stop must not be called
// from the callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()

	d.stopped = true
	d.pending = nil

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.mu.Unlock()

	d.running.Wait()
}
