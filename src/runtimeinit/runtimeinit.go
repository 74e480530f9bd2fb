package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"time"

	"screen-ask-llm/src/config"
	"screen-ask-llm/src/llm"
	"screen-ask-llm/src/logutil"
)

const pingTimeout = 10 * time.Second

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(cfg *config.Config)
}

// Runtime is what every entry point needs after startup.
type Runtime struct {
	Config *config.Config
	Client *llm.Client
}

// Bootstrap loads configuration, sets up logging and builds the model client.
// A missing API key is fatal. The optional connectivity check only warns.
func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required. Checked key file %s and OPENROUTER_API_KEY env var", cfg.APIKeyPath)
	}

	client, err := llm.New(ClientConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	log.Printf("Model client ready: model=%s key=%s", cfg.Model, logutil.RedactKey(cfg.APIKey))

	if cfg.StartupCheck {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			log.Printf("WARNING: startup check failed: %v", err)
		} else {
			log.Printf("Startup check succeeded")
		}
	}

	return &Runtime{Config: cfg, Client: client}, nil
}

// ClientConfig maps application settings onto the model client.
func ClientConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Providers:   cfg.Providers,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.QueryTimeoutSec) * time.Second,
		MaxAttempts: cfg.QueryMaxAttempts,
	}
}
