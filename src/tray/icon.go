package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"log"
	"runtime"
	"sync"
)

const iconSize = 32

var (
	iconOnce  sync.Once
	iconBytes []byte
)

// Icon returns the tray icon in the format the platform tray expects:
// an ICO container on Windows, a PNG elsewhere.
func Icon() []byte {
	iconOnce.Do(func() {
		pngData, err := renderPNG()
		if err != nil {
			log.Printf("Tray: failed to render icon: %v", err)
			return
		}
		if runtime.GOOS == "windows" {
			iconBytes = wrapICO(pngData, iconSize)
			return
		}
		iconBytes = pngData
	})
	return iconBytes
}

// renderPNG draws a framed screen with a question-mark dot.
func renderPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	frame := color.RGBA{0x00, 0x78, 0xd4, 0xff}
	screen := color.RGBA{0xe6, 0xf2, 0xfb, 0xff}
	mark := color.RGBA{0x33, 0x33, 0x33, 0xff}

	for y := 4; y < 24; y++ {
		for x := 2; x < 30; x++ {
			if y < 6 || y > 21 || x < 4 || x > 27 {
				img.Set(x, y, frame)
			} else {
				img.Set(x, y, screen)
			}
		}
	}
	// stand
	for y := 24; y < 29; y++ {
		for x := 13; x < 19; x++ {
			img.Set(x, y, frame)
		}
	}
	for y := 11; y < 17; y++ {
		for x := 13; x < 19; x++ {
			img.Set(x, y, mark)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapICO embeds a PNG image as the single entry of an ICO file.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 1})
	// ICONDIRENTRY
	buf.WriteByte(byte(size))
	buf.WriteByte(byte(size))
	buf.WriteByte(0) // palette
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))  // planes
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32)) // bpp
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pngData)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(6+16))
	buf.Write(pngData)
	return buf.Bytes()
}
