// Package surface defines what the controller needs from a front end.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"screen-ask-llm/src/conversation"
)

// Sender labels a transcript line.
type Sender string

const (
	SenderUser   Sender = "You"
	SenderModel  Sender = "Model"
	SenderSystem Sender = "System"
)

// ErrCancelled is returned by ObtainQuestion when the user dismisses the prompt.
var ErrCancelled = errors.New("question cancelled")

// Surface obtains question text and shows transcript lines. ObtainQuestion may
// block; Display must be safe to call from the controller goroutine.
type Surface interface {
	ObtainQuestion(ctx context.Context) (string, error)
	Display(sender Sender, message string)
}

// FormatSize renders a byte count the way capture notices show it.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
}

// FormatAnswer appends the metrics block to the answer text.
func FormatAnswer(ans conversation.Answer) string {
	var b strings.Builder
	b.WriteString(ans.Text)
	b.WriteString("\n--- Stats ---\n")
	fmt.Fprintf(&b, "Response Time: %.2f seconds\n", ans.Metrics.Elapsed.Seconds())
	if ans.Metrics.ArtifactBytes > 0 {
		fmt.Fprintf(&b, "Screenshot Size: %s\n", FormatSize(ans.Metrics.ArtifactBytes))
	}
	if u := ans.Metrics.Usage; u != nil {
		fmt.Fprintf(&b, "Prompt Tokens: %d\n", u.PromptTokens)
		fmt.Fprintf(&b, "Response Tokens: %d\n", u.CompletionTokens)
		fmt.Fprintf(&b, "Total Tokens: %d\n", u.TotalTokens)
	} else {
		b.WriteString("Token usage information not available in the response.\n")
	}
	b.WriteString("--- Stats ---")
	return b.String()
}
