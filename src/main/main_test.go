package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"screen-ask-llm/src/config"
	"screen-ask-llm/src/eventloop"
)

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"screen-ask-llm", "-surface", "gui", "-api-key-path", "/tmp/key"},
			out:  []string{"screen-ask-llm", "--surface", "gui", "--api-key-path", "/tmp/key"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"screen-ask-llm", "-hotkey=Ctrl+Alt+2", "-api-key-path=/tmp/key", "-trigger"},
			out:  []string{"screen-ask-llm", "--hotkey=Ctrl+Alt+2", "--api-key-path=/tmp/key", "--trigger"},
		},
		{
			name: "Leaves other flags unchanged",
			in:   []string{"screen-ask-llm", "--surface", "console", "--other", "-x"},
			out:  []string{"screen-ask-llm", "--surface", "console", "--other", "-x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeLegacyArgs(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("Expected len=%d, got %d", len(tt.out), len(got))
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Fatalf("Expected arg[%d]=%q, got %q", i, tt.out[i], got[i])
				}
			}
		})
	}
}

func TestNewRootCmdParsesFlags(t *testing.T) {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--surface", "gui", "--api-key-path", "/tmp/key", "--hotkey", "Ctrl+Shift+Q", "--trigger"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.surface != "gui" {
		t.Fatalf("Expected surface=gui, got %q", opts.surface)
	}
	if opts.apiKeyPath != "/tmp/key" {
		t.Fatalf("Expected apiKeyPath=/tmp/key, got %q", opts.apiKeyPath)
	}
	if opts.hotkey != "Ctrl+Shift+Q" {
		t.Fatalf("Expected hotkey=Ctrl+Shift+Q, got %q", opts.hotkey)
	}
	if !opts.trigger {
		t.Fatal("Expected trigger=true")
	}
}

func TestPortRange(t *testing.T) {
	got := portRange(&config.Config{InstancePortStart: 49550, InstancePortEnd: 49500})
	if got.Start != 49500 || got.End != 49550 {
		t.Fatalf("Expected normalized 49500-49550, got %s", got)
	}
}

func TestPolicyFor(t *testing.T) {
	if got := policyFor(config.HotkeyPolicyQueue); got != eventloop.QueueLatest {
		t.Fatalf("Expected QueueLatest, got %v", got)
	}
	if got := policyFor(config.HotkeyPolicyDrop); got != eventloop.DropWhileBusy {
		t.Fatalf("Expected DropWhileBusy, got %v", got)
	}
}

type fakeWindow struct {
	quit chan struct{}
	// closedByUser makes Run return without waiting for Quit.
	closedByUser bool
	quits        atomic.Int32
}

func newFakeWindow(closedByUser bool) *fakeWindow {
	return &fakeWindow{quit: make(chan struct{}), closedByUser: closedByUser}
}

func (w *fakeWindow) Run() {
	if w.closedByUser {
		return
	}
	<-w.quit
}

func (w *fakeWindow) Quit() {
	if w.quits.Add(1) == 1 {
		close(w.quit)
	}
}

func TestRunWindowedWaitsForLoopAfterWindowCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var finished atomic.Bool
	run := func(ctx context.Context) error {
		<-ctx.Done()
		// an in-flight cycle still releasing its artifact
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}

	runWindowed(ctx, cancel, newFakeWindow(true), run)
	if !finished.Load() {
		t.Fatal("runWindowed returned before the event loop stopped")
	}
}

func TestRunWindowedQuitsWindowWhenLoopStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newFakeWindow(false)
	done := make(chan struct{})
	go func() {
		runWindowed(ctx, cancel, w, func(context.Context) error { return errors.New("boom") })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runWindowed did not return after the loop stopped")
	}
	if w.quits.Load() != 1 {
		t.Fatalf("expected one Quit call, got %d", w.quits.Load())
	}
	if ctx.Err() == nil {
		t.Fatal("expected context to be cancelled")
	}
}
