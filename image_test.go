package gan_encoder

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func checkerboard(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestImageToTensor(t *testing.T) {
	shape := ImageShape{Height: 8, Width: 8, Channels: 1}
	dense, err := ImageToTensor(checkerboard(8), shape)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 8, 8}, dense.Shape())
	data := dense.Data().([]float64)
	assert.InDelta(t, 1.0, data[0], 1e-9)
	assert.InDelta(t, -1.0, data[1], 1e-9)

	back, err := TensorToImage(dense, 0, shape)
	require.NoError(t, err)
	r, _, _, _ := back.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, _, _, _ = back.At(1, 0).RGBA()
	assert.Equal(t, uint32(0), r)
}

func TestImageToTensorRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
		}
	}
	shape := ImageShape{Height: 8, Width: 8, Channels: 3}
	dense, err := ImageToTensor(img, shape)
	require.NoError(t, err)
	data := dense.Data().([]float64)
	assert.InDelta(t, 1.0, data[0], 1e-9)
	assert.InDelta(t, -1.0, data[64], 1e-9)
	assert.InDelta(t, 1.0, data[128], 1e-9)

	_, err = ImageToTensor(img, ImageShape{Height: 8, Width: 8, Channels: 2})
	assert.Error(t, err)
}

func TestTensorToImageOutOfRange(t *testing.T) {
	shape := ImageShape{Height: 2, Width: 2, Channels: 1}
	dense := denseOf([]int{1, 1, 2, 2}, 5, -5, 0, 1)
	img, err := TensorToImage(dense, 0, shape)
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, _, _, _ = img.At(1, 0).RGBA()
	assert.Equal(t, uint32(0), r)

	_, err = TensorToImage(dense, 1, shape)
	assert.Error(t, err)
}

func TestImageBatchFromFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	for _, f := range files {
		require.NoError(t, SaveImage(checkerboard(16), f))
	}
	shape := ImageShape{Height: 8, Width: 8, Channels: 1}
	batch, err := LoadImageBatch(files, shape)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.DataLength)
	assert.Equal(t, tensor.Shape{2, 1, 8, 8}, batch.Data.Shape())

	_, err = LoadImageBatch([]string{filepath.Join(dir, "missing.png")}, shape)
	assert.Error(t, err)
	_, err = NewImageBatch(nil, shape)
	assert.Error(t, err)
}

func TestPlotLatent(t *testing.T) {
	latent := NormRandDense(2, 4, 1, 1)
	fname := filepath.Join(t.TempDir(), "latent.png")
	require.NoError(t, PlotLatent(latent, 1, fname))
	assert.FileExists(t, fname)
	assert.Error(t, PlotLatent(latent, 2, fname))
}
