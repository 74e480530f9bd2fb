package console

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ask-llm/src/surface"
)

type fakePrompter struct {
	lines   chan promptResult
	history []string
	closed  bool
}

func newFakePrompter() *fakePrompter {
	return &fakePrompter{lines: make(chan promptResult, 4)}
}

func (f *fakePrompter) Prompt(string) (string, error) {
	r := <-f.lines
	return r.text, r.err
}

func (f *fakePrompter) AppendHistory(item string) { f.history = append(f.history, item) }

func (f *fakePrompter) Close() error {
	f.closed = true
	return nil
}

func TestObtainQuestion(t *testing.T) {
	p := newFakePrompter()
	s := newWithPrompter(io.Discard, p)

	p.lines <- promptResult{text: "what is this?"}
	q, err := s.ObtainQuestion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "what is this?", q)
	assert.Equal(t, []string{"what is this?"}, p.history)
}

func TestObtainQuestionAbortIsCancel(t *testing.T) {
	p := newFakePrompter()
	s := newWithPrompter(io.Discard, p)

	p.lines <- promptResult{err: liner.ErrPromptAborted}
	_, err := s.ObtainQuestion(context.Background())
	assert.ErrorIs(t, err, surface.ErrCancelled)

	p.lines <- promptResult{err: io.EOF}
	_, err = s.ObtainQuestion(context.Background())
	assert.ErrorIs(t, err, surface.ErrCancelled)
}

func TestObtainQuestionContextReusesPendingPrompt(t *testing.T) {
	p := newFakePrompter()
	s := newWithPrompter(io.Discard, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.ObtainQuestion(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.lines <- promptResult{text: "late answer"}
	q, err := s.ObtainQuestion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late answer", q)
}

func TestDisplayPrefixesSender(t *testing.T) {
	var buf bytes.Buffer
	s := newWithPrompter(&buf, newFakePrompter())

	s.Display(surface.SenderModel, "hello")
	s.Display(surface.SenderSystem, "Screenshot taken")

	out := buf.String()
	assert.Contains(t, out, "Model:")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "System:")
	assert.Contains(t, out, "Screenshot taken")
}

func TestClose(t *testing.T) {
	p := newFakePrompter()
	s := newWithPrompter(io.Discard, p)
	require.NoError(t, s.Close())
	assert.True(t, p.closed)
}
