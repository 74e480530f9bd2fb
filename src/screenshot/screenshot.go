package screenshot

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Screen is the full-screen capture source used by the artifact store.
type Screen struct{}

// Capture implements the artifact store's source contract.
func (Screen) Capture() (image.Image, error) {
	return Capture()
}

// Capture captures the entire virtual screen across all active displays
func Capture() (*image.RGBA, error) {
	bounds, err := virtualScreenBounds()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return img, nil
}

// GetDisplayBounds returns the bounds of the primary display
func GetDisplayBounds() (image.Rectangle, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	return screenshot.GetDisplayBounds(0), nil
}

func virtualScreenBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	displays := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		displays = append(displays, screenshot.GetDisplayBounds(i))
	}
	return unionBounds(displays), nil
}

func unionBounds(displays []image.Rectangle) image.Rectangle {
	var union image.Rectangle
	for i, b := range displays {
		if i == 0 {
			union = b
			continue
		}
		union = union.Union(b)
	}
	return union
}
