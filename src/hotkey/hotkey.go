package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Binding is a key combination such as "Ctrl+Alt+1" or a single key such as
// "Esc", and the callback to run when it is pressed.
type Binding struct {
	Combo   string
	OnPress func()
}

var (
	startMu sync.Mutex
	running bool
)

// Listen starts the global keyboard hook and dispatches matching bindings.
// Callbacks run on the hook goroutine and must not block. The returned stop
// function ends the hook.
func Listen(bindings ...Binding) (func(), error) {
	m, err := newMatcher(bindings)
	if err != nil {
		return nil, err
	}

	startMu.Lock()
	if running {
		startMu.Unlock()
		return nil, fmt.Errorf("hotkey listener already running")
	}
	running = true
	startMu.Unlock()

	for _, c := range m.chords {
		log.Printf("Hotkey listener configured for: %s", c.name)
	}

	evChan := gohook.Start()
	if evChan == nil {
		startMu.Lock()
		running = false
		startMu.Unlock()
		return nil, fmt.Errorf("gohook.Start() returned nil channel")
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				for _, fire := range m.press(ev.Rawcode) {
					fire()
				}
			case gohook.KeyUp:
				m.release(ev.Rawcode)
			}
		}
		log.Printf("Event channel closed")
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			gohook.End()
			startMu.Lock()
			running = false
			startMu.Unlock()
		})
	}
	return stop, nil
}

// keyState tracks each rawcode of a key separately so that left and right
// modifiers can be held and released independently.
type keyState struct {
	name     string
	rawcodes []uint16
	down     []bool
}

func (k *keyState) pressed() bool {
	for _, d := range k.down {
		if d {
			return true
		}
	}
	return false
}

func (k *keyState) reset() {
	for i := range k.down {
		k.down[i] = false
	}
}

type chord struct {
	name    string
	keys    []keyState
	onPress func()
}

// matcher tracks per-chord key state. It is independent of the hook so it
// can be driven directly in tests.
type matcher struct {
	mu     sync.Mutex
	chords []*chord
}

func newMatcher(bindings []Binding) (*matcher, error) {
	m := &matcher{}
	for _, b := range bindings {
		keys := parseHotkey(b.Combo)
		if len(keys) == 0 {
			return nil, fmt.Errorf("empty hotkey %q", b.Combo)
		}
		c := &chord{name: b.Combo, onPress: b.OnPress}
		for _, keyName := range keys {
			rawcodes := keyNameToRawcodes(keyName)
			if len(rawcodes) == 0 {
				return nil, fmt.Errorf("cannot map key %q in hotkey %q", keyName, b.Combo)
			}
			c.keys = append(c.keys, keyState{name: keyName, rawcodes: rawcodes, down: make([]bool, len(rawcodes))})
		}
		m.chords = append(m.chords, c)
	}
	return m, nil
}

// press records a key down and returns the callbacks of chords it completes.
func (m *matcher) press(rawcode uint16) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fired []func()
	for _, c := range m.chords {
		if !c.mark(rawcode, true) {
			continue
		}
		if c.complete() {
			log.Printf("HOTKEY COMBINATION DETECTED! %s", c.name)
			for i := range c.keys {
				c.keys[i].reset()
			}
			if c.onPress != nil {
				fired = append(fired, c.onPress)
			}
		}
	}
	return fired
}

func (m *matcher) release(rawcode uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chords {
		c.mark(rawcode, false)
	}
}

func (c *chord) mark(rawcode uint16, pressed bool) bool {
	hit := false
	for i := range c.keys {
		for j, rc := range c.keys[i].rawcodes {
			if rc == rawcode {
				c.keys[i].down[j] = pressed
				hit = true
			}
		}
	}
	return hit
}

func (c *chord) complete() bool {
	for i := range c.keys {
		if !c.keys[i].pressed() {
			return false
		}
	}
	return true
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+1" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			keys = append(keys, "ctrl")
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var specialKeys = map[string][]uint16{
	// Modifiers: left and right variants
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to its Windows virtual key codes.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	switch keyName {
	case "win", "super":
		keyName = "cmd"
	}

	if codes, ok := specialKeys[keyName]; ok {
		return codes
	}

	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65} // VK 0x41-0x5A
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48} // VK 0x30-0x39
		}
	}

	var n int
	if _, err := fmt.Sscanf(keyName, "f%d", &n); err == nil && n >= 1 && n <= 24 && keyName == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)} // VK_F1 = 112
	}

	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
