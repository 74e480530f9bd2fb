package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-ask-llm/src/config"
	"screen-ask-llm/src/conversation"
	"screen-ask-llm/src/llm"
)

func fakePNG() []byte {
	return append(append([]byte{}, pngMagic...), []byte("not really pixels")...)
}

func TestNormalizeLegacyArgs(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		out  []string
	}{
		{
			name: "Normalizes long single dash flags",
			in:   []string{"screen-ask", "-file", "a.png", "-question", "what?", "-json", "-verbose"},
			out:  []string{"screen-ask", "--file", "a.png", "--question", "what?", "--json", "--verbose"},
		},
		{
			name: "Normalizes equals form",
			in:   []string{"screen-ask", "-file=a.png", "-json=true", "-api-key-path=/tmp/key"},
			out:  []string{"screen-ask", "--file=a.png", "--json=true", "--api-key-path=/tmp/key"},
		},
		{
			name: "Leaves other args unchanged",
			in:   []string{"screen-ask", "--file", "-", "-q", "hi"},
			out:  []string{"screen-ask", "--file", "-", "-q", "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, normalizeLegacyArgs(tt.in))
		})
	}
}

func TestNewRootCmdRequiresFileAndQuestion(t *testing.T) {
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs([]string{"--file", "a.png"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question")
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o600))
		return p
	}

	t.Run("valid file", func(t *testing.T) {
		data, err := readImage(write("ok.png", fakePNG()), nil)
		require.NoError(t, err)
		assert.Equal(t, fakePNG(), data)
	})
	t.Run("stdin", func(t *testing.T) {
		data, err := readImage("-", bytes.NewReader(fakePNG()))
		require.NoError(t, err)
		assert.Equal(t, fakePNG(), data)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := readImage(write("empty.png", nil), nil)
		assert.ErrorContains(t, err, "empty")
	})
	t.Run("bad magic", func(t *testing.T) {
		_, err := readImage(write("x.jpg", []byte("\xff\xd8\xff\xe0JFIF....")), nil)
		assert.ErrorContains(t, err, "not a valid PNG")
	})
	t.Run("too large", func(t *testing.T) {
		big := append(fakePNG(), make([]byte, maxFileSize)...)
		_, err := readImage("-", bytes.NewReader(big))
		assert.ErrorContains(t, err, "exceeds maximum size")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := readImage(filepath.Join(dir, "nope.png"), nil)
		assert.ErrorContains(t, err, "failed to read file")
	})
}

func TestOutputResult(t *testing.T) {
	ans := conversation.Answer{
		Text: "A terminal window.",
		Metrics: conversation.Metrics{
			Elapsed: 1500 * time.Millisecond,
			Usage:   &llm.Usage{PromptTokens: 100, CompletionTokens: 5, TotalTokens: 105},
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var plain bytes.Buffer
	require.NoError(t, outputResult(&plain, ans, "a.png", false, now))
	assert.Equal(t, "A terminal window.", plain.String())

	var js bytes.Buffer
	require.NoError(t, outputResult(&js, ans, "a.png", true, now))
	var got AskResult
	require.NoError(t, json.Unmarshal(js.Bytes(), &got))
	assert.Equal(t, AskResult{
		Answer:           "A terminal window.",
		Source:           "a.png",
		Timestamp:        "2026-01-02T03:04:05Z",
		Duration:         1.5,
		PromptTokens:     100,
		CompletionTokens: 5,
		TotalTokens:      105,
	}, got)
}

func TestRunWithOptionsAgainstLocalEndpoint(t *testing.T) {
	var gotQuestion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) == 1 {
			for _, c := range req.Messages[0].Content {
				if c.Type == "text" {
					gotQuestion = c.Text
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"It is a chart."}}],"usage":{"prompt_tokens":10,"completion_tokens":4,"total_tokens":14}}`)
	}))
	defer srv.Close()

	t.Setenv(config.APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv(config.APIKeyEnvVar, "sk-test-123456789")
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("STARTUP_CHECK", "")

	var out bytes.Buffer
	err := runWithOptions(context.Background(), cliOptions{
		filePath:   "-",
		question:   "What is shown?",
		jsonOutput: true,
		stdin:      bytes.NewReader(fakePNG()),
		stdout:     &out,
		stderr:     io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, "What is shown?", gotQuestion)

	var res AskResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "It is a chart.", res.Answer)
	assert.Equal(t, "-", res.Source)
	assert.Equal(t, 14, res.TotalTokens)
}

func TestRunWithOptionsRejectsBlankQuestion(t *testing.T) {
	err := runWithOptions(context.Background(), cliOptions{
		filePath: "-",
		question: "   ",
		stdin:    strings.NewReader(""),
		stdout:   io.Discard,
		stderr:   io.Discard,
	})
	assert.ErrorContains(t, err, "question must not be empty")
}
