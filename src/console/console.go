// Package console implements the terminal surface: a line-edited question
// prompt and coloured transcript lines.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"screen-ask-llm/src/surface"
)

const questionPrompt = "Question> "

var (
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true)
	modelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

type promptResult struct {
	text string
	err  error
}

type Surface struct {
	out  io.Writer
	line prompter

	outMu   sync.Mutex
	mu      sync.Mutex
	pending chan promptResult
}

// New creates a console surface reading from the terminal via liner.
func New(out io.Writer) *Surface {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return newWithPrompter(out, line)
}

func newWithPrompter(out io.Writer, p prompter) *Surface {
	return &Surface{out: out, line: p}
}

// ObtainQuestion blocks until a line is entered or ctx is done. A prompt left
// open by a cancelled call is reused by the next call, so only one terminal
// read is ever outstanding.
func (s *Surface) ObtainQuestion(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.pending == nil {
		ch := make(chan promptResult, 1)
		s.pending = ch
		go func() {
			text, err := s.line.Prompt(questionPrompt)
			ch <- promptResult{text: text, err: err}
		}()
	}
	ch := s.pending
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()

		if errors.Is(r.err, liner.ErrPromptAborted) || errors.Is(r.err, io.EOF) {
			return "", surface.ErrCancelled
		}
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.text) != "" {
			s.line.AppendHistory(r.text)
		}
		return r.text, nil
	}
}

func (s *Surface) Display(sender surface.Sender, message string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, "%s %s\n", styleFor(sender).Render(string(sender)+":"), message)
}

func (s *Surface) Close() error {
	return s.line.Close()
}

func styleFor(sender surface.Sender) lipgloss.Style {
	switch sender {
	case surface.SenderUser:
		return userStyle
	case surface.SenderModel:
		return modelStyle
	default:
		return systemStyle
	}
}
