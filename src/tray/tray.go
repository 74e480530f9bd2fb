// Package tray runs the notification-area icon used alongside the console
// surface.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"
)

type Config struct {
	Title     string
	Tooltip   string
	OnCapture func()
	OnExit    func()
}

var (
	mu      sync.Mutex
	current Config
	ready   bool
)

// Run blocks until Quit is called. On Windows and macOS it must own an OS
// thread; callers usually start it in its own goroutine as the console app does.
func Run(cfg Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
	systray.Run(onReady, onExit)
}

func Quit() {
	systray.Quit()
}

// SetBusy reflects whether a capture cycle is in flight in the tooltip.
func SetBusy(busy bool) {
	mu.Lock()
	defer mu.Unlock()
	if !ready {
		return
	}
	systray.SetTooltip(tooltipFor(current.Tooltip, busy))
}

func tooltipFor(base string, busy bool) string {
	if busy {
		return base + " (working...)"
	}
	return base
}

func onReady() {
	mu.Lock()
	cfg := current
	ready = true
	mu.Unlock()

	systray.SetIcon(Icon())
	systray.SetTitle(cfg.Title)
	systray.SetTooltip(cfg.Tooltip)

	mCapture := systray.AddMenuItem("Capture Screen", "Capture the screen and ask a question")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				log.Printf("Tray: capture requested")
				if cfg.OnCapture != nil {
					cfg.OnCapture()
				}
			case <-mQuit.ClickedCh:
				log.Printf("Tray: quit requested")
				systray.Quit()
				return
			}
		}
	}()
}

func onExit() {
	mu.Lock()
	cfg := current
	ready = false
	mu.Unlock()
	if cfg.OnExit != nil {
		cfg.OnExit()
	}
}
