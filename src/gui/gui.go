// Package gui implements the windowed surface: a transcript pane above a
// question entry. All widget access is marshalled onto the fyne thread.
package gui

import (
	"context"
	"log"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"screen-ask-llm/src/surface"
)

const appID = "screen-ask-llm"

type Surface struct {
	app        fyne.App
	win        fyne.Window
	transcript *fyne.Container
	scroll     *container.Scroll
	input      *widget.Entry
	send       *widget.Button

	box *questionBox
}

// New builds the window. onCapture is bound to the Capture button and may be
// nil. The window is shown by Run.
func New(title string, onCapture func()) *Surface {
	s := &Surface{
		app: app.NewWithID(appID),
		box: &questionBox{},
	}
	s.win = s.app.NewWindow(title)

	s.transcript = container.NewVBox()
	s.scroll = container.NewVScroll(s.transcript)

	s.input = widget.NewEntry()
	s.input.SetPlaceHolder("Take a screenshot, then type your question here")
	s.input.OnSubmitted = func(text string) { s.submit(text) }
	s.input.Disable()

	s.send = widget.NewButton("Send", func() { s.submit(s.input.Text) })
	s.send.Disable()

	capture := widget.NewButton("Capture", func() {
		if onCapture != nil {
			onCapture()
		}
	})

	bottom := container.NewBorder(nil, nil, capture, s.send, s.input)
	s.win.SetContent(container.NewBorder(nil, bottom, nil, nil, s.scroll))
	s.win.Resize(fyne.NewSize(640, 480))
	s.win.SetCloseIntercept(func() {
		if s.box.cancel() {
			log.Printf("Question window closed while awaiting input")
		}
		s.setInputEnabled(false)
		s.win.Hide()
	})
	return s
}

// ObtainQuestion raises the window and waits for Send or Enter.
func (s *Surface) ObtainQuestion(ctx context.Context) (string, error) {
	fyne.Do(func() {
		s.setInputEnabled(true)
		s.win.Show()
		s.win.RequestFocus()
		s.win.Canvas().Focus(s.input)
	})
	defer fyne.Do(func() { s.setInputEnabled(false) })
	return s.box.wait(ctx)
}

func (s *Surface) Display(sender surface.Sender, message string) {
	fyne.Do(func() {
		s.transcript.Add(newLine(sender, message))
		s.scroll.ScrollToBottom()
	})
}

// Run shows the window and blocks in the fyne event loop. It must be called
// from the main goroutine.
func (s *Surface) Run() {
	s.win.Show()
	s.app.Run()
}

// Quit stops the event loop started by Run.
func (s *Surface) Quit() {
	fyne.Do(s.app.Quit)
}

func (s *Surface) submit(text string) {
	if !s.box.awaiting() {
		return
	}
	if s.box.submit(text) {
		s.input.SetText("")
	}
}

func (s *Surface) setInputEnabled(enabled bool) {
	if enabled {
		s.input.Enable()
		s.send.Enable()
		return
	}
	s.input.Disable()
	s.send.Disable()
}

func newLine(sender surface.Sender, message string) fyne.CanvasObject {
	name := widget.NewLabelWithStyle(lineLabel(sender), fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	body := widget.NewLabel(strings.TrimRight(message, "\n"))
	body.Wrapping = fyne.TextWrapWord
	return container.NewVBox(name, body)
}

func lineLabel(sender surface.Sender) string {
	return string(sender) + ":"
}
