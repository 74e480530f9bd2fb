// Package conversation holds the append-only turn history exchanged with the
// vision model.
package conversation

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"screen-ask-llm/src/artifact"
	"screen-ask-llm/src/llm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message of the history. Image holds the PNG payload so later
// submissions can forward it after the artifact file is gone.
type Turn struct {
	Role  Role
	Text  string
	Image []byte
	At    time.Time
}

// Metrics is advisory display data for one answered turn.
type Metrics struct {
	Elapsed       time.Duration
	ArtifactBytes int64
	Usage         *llm.Usage
}

type Answer struct {
	Text    string
	Metrics Metrics
}

// Completer is the external endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (llm.Completion, error)
}

type Session struct {
	client Completer
	now    func() time.Time

	mu    sync.Mutex
	turns []Turn
}

func New(client Completer) *Session {
	return &Session{client: client, now: time.Now}
}

// Submit appends a user turn for (a, question), forwards the whole history,
// and appends the model reply. A failed call leaves the user turn in place.
// a may be nil for a text-only turn.
func (s *Session) Submit(ctx context.Context, a *artifact.Artifact, question string) (Answer, error) {
	var image []byte
	if a != nil {
		data, err := os.ReadFile(a.Path)
		if err != nil {
			return Answer{}, &artifact.StorageError{Op: "read", Path: a.Path, Err: err}
		}
		image = data
	}
	return s.SubmitImage(ctx, image, question)
}

// SubmitImage is Submit for image bytes already in memory.
func (s *Session) SubmitImage(ctx context.Context, image []byte, question string) (Answer, error) {
	size := int64(len(image))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Role: RoleUser, Text: question, Image: image, At: s.now()})
	messages := toMessages(s.turns)

	start := time.Now()
	completion, err := s.client.Complete(ctx, messages)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("conversation: call failed after %v with %d turns: %v", elapsed, len(s.turns), err)
		return Answer{}, asExternal(err)
	}

	s.turns = append(s.turns, Turn{Role: RoleModel, Text: completion.Text, At: s.now()})
	log.Printf("conversation: answered in %v, history now %d turns", elapsed, len(s.turns))

	return Answer{
		Text: completion.Text,
		Metrics: Metrics{
			Elapsed:       elapsed,
			ArtifactBytes: size,
			Usage:         completion.Usage,
		},
	}, nil
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset starts a new conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

func toMessages(turns []Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == RoleModel {
			role = llm.RoleAssistant
		}
		var content []llm.Content
		if len(t.Image) > 0 {
			content = append(content, llm.PNGContent(t.Image))
		}
		content = append(content, llm.TextContent(t.Text))
		messages = append(messages, llm.Message{Role: role, Content: content})
	}
	return messages
}

func asExternal(err error) error {
	var ese *llm.ExternalServiceError
	if errors.As(err, &ese) {
		return err
	}
	kind := llm.KindMalformed
	if errors.Is(err, context.DeadlineExceeded) {
		kind = llm.KindTimeout
	} else if errors.Is(err, context.Canceled) {
		kind = llm.KindNetwork
	}
	return &llm.ExternalServiceError{Kind: kind, Message: err.Error(), Err: err}
}
