package qrcode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_ProducesPNG(t *testing.T) {
	data, err := NewRenderer(256).Render("https://fotobox.example/event/ABCD1234")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestRenderer_RejectsEmpty(t *testing.T) {
	_, err := NewRenderer(0).Render("")
	assert.Error(t, err)
}
