package eventloop

import (
	"context"
	"errors"
	"log"
	"sync"

	"screen-ask-llm/src/hotkey"
	"screen-ask-llm/src/session"
)

// Policy decides what happens to a trigger that arrives mid-cycle.
type Policy int

const (
	// DropWhileBusy discards triggers received while a cycle runs.
	DropWhileBusy Policy = iota
	// QueueLatest keeps at most one pending trigger; a newer one supersedes it.
	QueueLatest
)

// Runner is the cycle the loop drives.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// Stats counts trigger outcomes. Accepted never exceeds Raw.
type Stats struct {
	Raw        int
	Accepted   int
	Dropped    int
	Superseded int
}

// Loop is the single-goroutine coordinator between the hotkey listener and
// the session controller.
type Loop struct {
	runner Runner
	policy Policy
	runCh  chan struct{}

	mu      sync.Mutex
	busy    bool
	pending bool
	stats   Stats

	onBusyChange func(bool)
}

func New(runner Runner, policy Policy) *Loop {
	return &Loop{
		runner: runner,
		policy: policy,
		runCh:  make(chan struct{}, 1),
	}
}

// OnBusyChange registers a callback for tray tooltips and similar indicators.
func (l *Loop) OnBusyChange(fn func(busy bool)) { l.onBusyChange = fn }

// Trigger requests a cycle. It never blocks and is safe to call from the
// hotkey goroutine. It reports whether a cycle was started or queued.
func (l *Loop) Trigger() bool {
	l.mu.Lock()
	l.stats.Raw++
	if l.busy {
		switch l.policy {
		case QueueLatest:
			if l.pending {
				l.stats.Superseded++
			}
			l.pending = true
			l.mu.Unlock()
			log.Printf("eventloop: busy, trigger queued")
			return true
		default:
			l.stats.Dropped++
			l.mu.Unlock()
			log.Printf("eventloop: busy, trigger dropped")
			return false
		}
	}
	l.busy = true
	l.stats.Accepted++
	l.mu.Unlock()

	l.notifyBusy(true)
	// busy gates sends, so the one-slot channel always has room.
	l.runCh <- struct{}{}
	return true
}

// Stats returns a snapshot of trigger counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Busy reports whether a cycle is running or about to run.
func (l *Loop) Busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.busy
}

// StartHotkey registers the capture chord and the stop key. onStop runs on
// the hook goroutine when the stop key is pressed.
func (l *Loop) StartHotkey(combo, stopKey string, onStop func()) (func(), error) {
	bindings := []hotkey.Binding{{Combo: combo, OnPress: func() { l.Trigger() }}}
	if stopKey != "" && onStop != nil {
		bindings = append(bindings, hotkey.Binding{Combo: stopKey, OnPress: onStop})
	}
	return hotkey.Listen(bindings...)
}

// Run processes triggers until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.runCh:
			l.runOne(ctx)
		}
	}
}

func (l *Loop) runOne(ctx context.Context) {
	err := l.runner.RunCycle(ctx)
	switch {
	case err == nil:
		log.Printf("eventloop: cycle completed")
	case errors.Is(err, session.ErrBusy):
		log.Printf("eventloop: controller busy, trigger discarded")
	default:
		log.Printf("eventloop: cycle ended with error: %v", err)
	}

	l.mu.Lock()
	if l.pending && ctx.Err() == nil {
		l.pending = false
		l.stats.Accepted++
		l.mu.Unlock()
		l.runCh <- struct{}{}
		return
	}
	l.pending = false
	l.busy = false
	l.mu.Unlock()
	l.notifyBusy(false)
}

func (l *Loop) notifyBusy(b bool) {
	if l.onBusyChange != nil {
		l.onBusyChange(b)
	}
}
