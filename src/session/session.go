package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"screen-ask-llm/src/artifact"
	"screen-ask-llm/src/conversation"
	"screen-ask-llm/src/llm"
	"screen-ask-llm/src/logutil"
	"screen-ask-llm/src/surface"
)

const instrumentationName = "screen-ask-llm/session"

var errEmptyQuestion = &InputError{Reason: "Please enter a question."}

type ArtifactStore interface {
	CaptureAndStore(ctx context.Context) (*artifact.Artifact, error)
	Release(a *artifact.Artifact) error
}

type Conversation interface {
	Submit(ctx context.Context, a *artifact.Artifact, question string) (conversation.Answer, error)
	Len() int
	Reset()
}

type Options struct {
	Store        ArtifactStore
	Conversation Conversation
	Surface      surface.Surface
	// FreshConversation resets history at the start of every capture.
	FreshConversation bool
	// QueryTimeout bounds the external call. Zero leaves it to the endpoint.
	QueryTimeout time.Duration
	// OnAnswer runs after an answer is displayed. Its error is only logged.
	OnAnswer func(text string) error
	// OnStateChange is called synchronously on every transition.
	OnStateChange func(State)
}

// Controller owns the conversation and the active artifact and runs one
// capture/query cycle at a time.
type Controller struct {
	opts Options

	queryDuration metric.Float64Histogram
	cycleCount    metric.Int64Counter

	mu     sync.Mutex
	state  State
	cycles int
}

func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	if opts.Conversation == nil {
		return nil, errors.New("Conversation is required")
	}
	if opts.Surface == nil {
		return nil, errors.New("Surface is required")
	}

	meter := otel.Meter(instrumentationName)
	queryDuration, err := meter.Float64Histogram("query.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall-clock time of the external model call"))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	cycleCount, err := meter.Int64Counter("cycles",
		metric.WithDescription("Completed capture/query cycles by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &Controller{opts: opts, queryDuration: queryDuration, cycleCount: cycleCount}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cycles returns the number of cycles that have returned to Idle.
func (c *Controller) Cycles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// RunCycle performs one Idle→…→Idle traversal. Every failure is reported on
// the surface and returned for logging; the controller is always back in Idle
// with the artifact released when RunCycle returns.
func (c *Controller) RunCycle(ctx context.Context) (err error) {
	if !c.begin() {
		return ErrBusy
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "capture_cycle", trace.WithSpanKind(trace.SpanKindInternal))
	var held *artifact.Artifact

	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: PANIC in cycle: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("unexpected failure: %v", r)
			c.fail(err)
		}
		if held != nil {
			if rerr := c.opts.Store.Release(held); rerr != nil {
				log.Printf("session: release failed: %v", rerr)
				c.display(surface.SenderSystem, userMessage(rerr))
				if err == nil {
					err = rerr
				}
			}
			span.SetAttributes(attribute.Int64("artifact.bytes", held.Size))
		}

		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("cycle.outcome", outcome),
			attribute.Int("conversation.turns", c.opts.Conversation.Len()),
		)
		c.cycleCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()

		c.finish()
	}()

	a, err := c.opts.Store.CaptureAndStore(ctx)
	if err != nil {
		c.fail(err)
		return err
	}
	held = a
	c.display(surface.SenderSystem, fmt.Sprintf("Screenshot taken and saved. Size: %s", surface.FormatSize(a.Size)))

	if c.opts.FreshConversation {
		c.opts.Conversation.Reset()
	}

	c.setState(AwaitingInput)
	question, err := c.awaitQuestion(ctx)
	if err != nil {
		c.fail(err)
		return err
	}
	c.display(surface.SenderUser, question)

	c.setState(Querying)
	answer, err := c.query(ctx, held, question)
	if err != nil {
		c.fail(err)
		return err
	}

	c.setState(Displaying)
	c.display(surface.SenderModel, surface.FormatAnswer(answer))
	if c.opts.OnAnswer != nil {
		if herr := c.opts.OnAnswer(answer.Text); herr != nil {
			log.Printf("session: answer hook failed: %v", herr)
		}
	}
	return nil
}

func (c *Controller) awaitQuestion(ctx context.Context) (string, error) {
	for {
		text, err := c.opts.Surface.ObtainQuestion(ctx)
		if err != nil {
			return "", &InputError{Reason: "no question received", Err: err}
		}
		if q := strings.TrimSpace(text); q != "" {
			log.Printf("session: question (%d chars): %q", len(q), logutil.Sanitize(q))
			return q, nil
		}
		if err := ctx.Err(); err != nil {
			return "", &InputError{Reason: "no question received", Err: err}
		}
		c.display(surface.SenderSystem, errEmptyQuestion.Error())
	}
}

func (c *Controller) query(ctx context.Context, a *artifact.Artifact, question string) (conversation.Answer, error) {
	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}
	trace.SpanFromContext(ctx).AddEvent("query", trace.WithAttributes(attribute.Int("question.chars", len(question))))
	start := time.Now()
	answer, err := c.opts.Conversation.Submit(ctx, a, question)
	c.queryDuration.Record(ctx, time.Since(start).Seconds())
	return answer, err
}

func (c *Controller) begin() bool {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return false
	}
	c.state = Capturing
	c.mu.Unlock()
	log.Printf("session: %s -> %s", Idle, Capturing)
	c.notify(Capturing)
	return true
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.cycles++
	c.mu.Unlock()
	c.setState(Idle)
}

func (c *Controller) fail(err error) {
	log.Printf("session: cycle failed in %s: %v", c.State(), err)
	c.setState(Error)
	c.display(surface.SenderSystem, userMessage(err))
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}
	log.Printf("session: %s -> %s", prev, s)
	c.notify(s)
}

// notify runs the state observer outside the cycle's own recover, so a panic
// there must not leave the controller stuck in a busy state.
func (c *Controller) notify(s State) {
	if c.opts.OnStateChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: PANIC in state observer (%s): %v", s, r)
		}
	}()
	c.opts.OnStateChange(s)
}

// display never lets a misbehaving surface take the cycle down.
func (c *Controller) display(sender surface.Sender, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: PANIC in surface display: %v", r)
		}
	}()
	c.opts.Surface.Display(sender, message)
}

func userMessage(err error) string {
	var (
		capErr     *artifact.CaptureError
		storageErr *artifact.StorageError
		serviceErr *llm.ExternalServiceError
		inputErr   *InputError
	)
	switch {
	case errors.As(err, &capErr):
		return fmt.Sprintf("Error: screenshot failed: %v", capErr.Err)
	case errors.As(err, &storageErr):
		return fmt.Sprintf("Error: could not %s screenshot file: %v", storageErr.Op, storageErr.Err)
	case errors.As(err, &serviceErr):
		return fmt.Sprintf("Error communicating with the model: %v", serviceErr)
	case errors.As(err, &inputErr):
		return fmt.Sprintf("Capture discarded: %v", inputErr)
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
