package gui

import (
	"context"
	"sync"

	"screen-ask-llm/src/surface"
)

type reply struct {
	text string
	err  error
}

// questionBox hands one question from the window to a waiting controller.
// Input offered while nobody is waiting is refused.
type questionBox struct {
	mu      sync.Mutex
	waiting chan reply
}

func (b *questionBox) wait(ctx context.Context) (string, error) {
	ch := make(chan reply, 1)
	b.mu.Lock()
	b.waiting = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.waiting == ch {
			b.waiting = nil
		}
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.text, r.err
	}
}

func (b *questionBox) submit(text string) bool {
	return b.deliver(reply{text: text})
}

func (b *questionBox) cancel() bool {
	return b.deliver(reply{err: surface.ErrCancelled})
}

func (b *questionBox) awaiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting != nil
}

func (b *questionBox) deliver(r reply) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting == nil {
		return false
	}
	b.waiting <- r
	b.waiting = nil
	return true
}
