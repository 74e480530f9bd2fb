package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-ask-llm/src/config"
	"screen-ask-llm/src/conversation"
	"screen-ask-llm/src/logutil"
	"screen-ask-llm/src/runtimeinit"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath   string
	question   string
	jsonOutput bool
	verbose    bool
	apiKeyPath string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-ask"}
	}

	opts := &cliOptions{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-ask",
		Short:         "Ask a vision model a question about a PNG image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVarP(&opts.question, "question", "q", "", "Question to ask about the image")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}

	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(opts.stderr)
		fmt.Fprintf(opts.stderr, "[verbose] Starting ask tool\n")
	}

	if strings.TrimSpace(opts.question) == "" {
		return fmt.Errorf("question must not be empty")
	}

	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions: config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath},
	})
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintf(opts.stderr, "[verbose] Config loaded: Model=%s\n", rt.Config.Model)
		fmt.Fprintf(opts.stderr, "[verbose] Effective API key path: %s\n", rt.Config.APIKeyPath)
		fmt.Fprintf(opts.stderr, "[verbose] API key: %s\n", logutil.RedactKey(rt.Config.APIKey))
	}

	imageData, err := readImage(opts.filePath, opts.stdin)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(opts.stderr, "[verbose] Read %d bytes, PNG validation passed\n", len(imageData))
	}

	ans, err := conversation.New(rt.Client).SubmitImage(ctx, imageData, opts.question)
	if err != nil {
		if opts.verbose {
			fmt.Fprintf(opts.stderr, "[verbose] Query failed: %v\n", err)
		}
		return fmt.Errorf("query failed: %w", err)
	}

	if opts.verbose {
		fmt.Fprintf(opts.stderr, "[verbose] Answered in %v (%d characters)\n", ans.Metrics.Elapsed, len(ans.Text))
	}

	return outputResult(opts.stdout, ans, opts.filePath, opts.jsonOutput, time.Now())
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "question", "json", "verbose", "api-key-path"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}

// readImage loads the PNG from a path or, for "-", from stdin.
func readImage(filePath string, stdin io.Reader) ([]byte, error) {
	var imageData []byte
	var err error

	if filePath == "-" {
		if stdin == nil {
			return nil, fmt.Errorf("stdin is not available")
		}
		imageData, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		imageData, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(imageData) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if len(imageData) < len(pngMagic) || !bytes.Equal(imageData[:len(pngMagic)], pngMagic) {
		return nil, fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return imageData, nil
}

type AskResult struct {
	Answer           string  `json:"answer"`
	Source           string  `json:"source"`
	Timestamp        string  `json:"timestamp"`
	Duration         float64 `json:"duration_seconds"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
}

func outputResult(w io.Writer, ans conversation.Answer, sourcePath string, jsonOutput bool, now time.Time) error {
	if !jsonOutput {
		fmt.Fprint(w, ans.Text)
		return nil
	}

	result := AskResult{
		Answer:    ans.Text,
		Source:    sourcePath,
		Timestamp: now.UTC().Format(time.RFC3339),
		Duration:  ans.Metrics.Elapsed.Seconds(),
	}
	if u := ans.Metrics.Usage; u != nil {
		result.PromptTokens = u.PromptTokens
		result.CompletionTokens = u.CompletionTokens
		result.TotalTokens = u.TotalTokens
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
