package tray

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPNG(t *testing.T) {
	data, err := renderPNG()
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, iconSize, img.Bounds().Dx())
	assert.Equal(t, iconSize, img.Bounds().Dy())
}

func TestWrapICO(t *testing.T) {
	payload := []byte("\x89PNGfake")
	ico := wrapICO(payload, 32)

	require.Len(t, ico, 22+len(payload))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(ico[2:4]), "type icon")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(ico[4:6]), "one image")
	assert.Equal(t, byte(32), ico[6])
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(ico[14:18]))
	assert.Equal(t, uint32(22), binary.LittleEndian.Uint32(ico[18:22]))
	assert.Equal(t, payload, ico[22:])
}

func TestIconNotEmpty(t *testing.T) {
	assert.NotEmpty(t, Icon())
}

func TestTooltipFor(t *testing.T) {
	assert.Equal(t, "Screen Ask LLM", tooltipFor("Screen Ask LLM", false))
	assert.Equal(t, "Screen Ask LLM (working...)", tooltipFor("Screen Ask LLM", true))
}
