package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screen-ask-llm/src/artifact"
	"screen-ask-llm/src/clipboard"
	"screen-ask-llm/src/config"
	"screen-ask-llm/src/console"
	"screen-ask-llm/src/conversation"
	"screen-ask-llm/src/eventloop"
	"screen-ask-llm/src/gui"
	"screen-ask-llm/src/logutil"
	"screen-ask-llm/src/runtimeinit"
	"screen-ask-llm/src/screenshot"
	"screen-ask-llm/src/session"
	"screen-ask-llm/src/singleinstance"
	"screen-ask-llm/src/surface"
	"screen-ask-llm/src/telemetry"
	"screen-ask-llm/src/tray"
)

const appTitle = "Screen Ask LLM"

type mainOptions struct {
	surface    string
	apiKeyPath string
	hotkey     string
	trigger    bool
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()

	if err := run(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-ask-llm"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-ask-llm",
		Short:         "Capture the screen on a hotkey and ask a vision model about it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.trigger {
				return runTrigger(cmd.Context(), *opts)
			}
			return runResident(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.surface, "surface", "", "Front end: console or gui (overrides SURFACE)")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.hotkey, "hotkey", "", "Capture hotkey, e.g. Ctrl+Alt+1 (overrides HOTKEY)")
	cmd.Flags().BoolVar(&opts.trigger, "trigger", false, "Ask the running instance to start a capture, then exit")

	return cmd
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"surface", "api-key-path", "hotkey", "trigger"} {
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

func policyFor(name string) eventloop.Policy {
	if name == config.HotkeyPolicyQueue {
		return eventloop.QueueLatest
	}
	return eventloop.DropWhileBusy
}

func portRange(cfg *config.Config) singleinstance.PortRange {
	return singleinstance.PortRange{Start: cfg.InstancePortStart, End: cfg.InstancePortEnd}.Normalize()
}

// runTrigger hands a capture request to the resident instance.
func runTrigger(ctx context.Context, opts mainOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log.SetOutput(io.Discard)
	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	accepted, err := singleinstance.RequestCapture(ctx, portRange(cfg))
	if err != nil {
		return fmt.Errorf("failed to reach running instance on ports %s: %w", portRange(cfg), err)
	}
	if !accepted {
		fmt.Println("Running instance is busy; capture request dropped.")
		return nil
	}
	fmt.Println("Capture requested.")
	return nil
}

func runResident(ctx context.Context, opts mainOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var logCloser io.Closer
	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			APIKeyPathOverride: opts.apiKeyPath,
			SurfaceOverride:    opts.surface,
			HotkeyOverride:     opts.hotkey,
		},
		SetupLogging: func(cfg *config.Config) {
			logCloser = logutil.Setup(cfg.EnableFileLogging, cfg.LogDir)
		},
	})
	if logCloser != nil {
		defer logCloser.Close()
	}
	if err != nil {
		tray.ShowError(appTitle, err.Error())
		return err
	}
	cfg := rt.Config

	instances := portRange(cfg)
	if port, ok := singleinstance.DetectResident(ctx, instances); ok {
		return fmt.Errorf("already running on port %d; use --trigger to request a capture", port)
	}

	logMonitorConfiguration()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.EnableTelemetry, cfg.LogDir)
	if err != nil {
		log.Printf("WARNING: telemetry disabled: %v", err)
		shutdownTelemetry = func() {}
	}
	defer shutdownTelemetry()

	store := artifact.NewStore(cfg.ArtifactDir, screenshot.Screen{})
	if n, err := store.Sweep(); err != nil {
		log.Printf("WARNING: failed to sweep stale screenshots in %s: %v", store.Dir(), err)
	} else if n > 0 {
		log.Printf("Removed %d stale screenshots from %s", n, store.Dir())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var loop *eventloop.Loop
	var surf surface.Surface
	var window *gui.Surface
	if cfg.Surface == config.SurfaceGUI {
		window = gui.New(appTitle, func() { loop.Trigger() })
		surf = window
	} else {
		term := console.New(os.Stdout)
		defer term.Close()
		surf = term
	}

	var onAnswer func(string) error
	if cfg.CopyAnswer {
		cb, err := clipboard.New()
		if err != nil {
			log.Printf("WARNING: COPY_ANSWER disabled: %v", err)
		} else {
			onAnswer = cb.Copy
		}
	}

	ctrl, err := session.New(session.Options{
		Store:             store,
		Conversation:      conversation.New(rt.Client),
		Surface:           surf,
		FreshConversation: cfg.ConversationMode == config.ConversationFresh,
		QueryTimeout:      time.Duration(cfg.QueryTimeoutSec) * time.Second,
		OnAnswer:          onAnswer,
		OnStateChange:     func(s session.State) { log.Printf("Session state: %s", s) },
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	loop = eventloop.New(ctrl, policyFor(cfg.HotkeyPolicy))

	if cfg.EnableTray && window == nil {
		tooltip := fmt.Sprintf("%s - Press %s to capture", appTitle, cfg.Hotkey)
		loop.OnBusyChange(tray.SetBusy)
		go tray.Run(tray.Config{
			Title:     appTitle,
			Tooltip:   tooltip,
			OnCapture: func() { loop.Trigger() },
			OnExit:    cancel,
		})
		defer tray.Quit()
	}

	if srv, err := singleinstance.Listen(ctx, instances, loop.Trigger); err != nil {
		log.Printf("WARNING: --trigger delegation unavailable: %v", err)
	} else {
		defer srv.Close()
	}

	stopHotkey, err := loop.StartHotkey(cfg.Hotkey, cfg.StopKey, func() {
		log.Printf("Stop key pressed, shutting down")
		cancel()
	})
	if err != nil {
		return fmt.Errorf("failed to register hotkey: %w", err)
	}
	defer stopHotkey()

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Printf("%s initialized: model=%s hotkey=%s stop=%s surface=%s", appTitle, cfg.Model, cfg.Hotkey, cfg.StopKey, cfg.Surface)
	surf.Display(surface.SenderSystem, fmt.Sprintf("Press %s to take a screenshot, %s to quit.", cfg.Hotkey, cfg.StopKey))

	if window != nil {
		runWindowed(ctx, cancel, window, loop.Run)
		return nil
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("event loop stopped: %w", err)
	}
	return nil
}

type windowRunner interface {
	Run()
	Quit()
}

// runWindowed gives the main goroutine to the window and runs the event loop
// beside it. It returns only after the loop has stopped, so deferred cleanup
// never races an in-flight cycle.
func runWindowed(ctx context.Context, cancel context.CancelFunc, window windowRunner, run func(context.Context) error) {
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event loop stopped: %v", err)
		}
		window.Quit()
	}()
	// fyne must own the main goroutine
	window.Run()
	cancel()
	<-loopDone
}
