package gan_encoder

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// LoadImage Reads image from file. TIFF is decoded by chai2010/tiff, everything else by imaging.
func LoadImage(filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		f, err := os.Open(filename)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't open image '%s'", filename))
		}
		defer f.Close()
		img, err := tiff.Decode(f)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't decode TIFF image '%s'", filename))
		}
		return img, nil
	default:
		img, err := imaging.Open(filename)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't decode image '%s'", filename))
		}
		return img, nil
	}
}

// SaveImage Writes image to file. Format is picked by extension.
func SaveImage(img image.Image, filename string) error {
	if err := imaging.Save(img, filename); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't save image '%s'", filename))
	}
	return nil
}

// ImageToTensor Resizes image to provided shape and converts it into NCHW tensor (batch size = 1).
// Pixel values are scaled to [-1; 1]. Single channel images are converted to grayscale first.
func ImageToTensor(img image.Image, shape ImageShape) (*tensor.Dense, error) {
	data, err := imageValues(img, shape)
	if err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(shape.NCHW(1)...), tensor.WithBacking(data)), nil
}

func imageValues(img image.Image, shape ImageShape) ([]float64, error) {
	if shape.Channels != 1 && shape.Channels != 3 {
		return nil, fmt.Errorf("Only 1 or 3 channels are supported, but got %d", shape.Channels)
	}
	resized := imaging.Resize(img, shape.Width, shape.Height, imaging.Lanczos)
	if shape.Channels == 1 {
		resized = imaging.Grayscale(resized)
	}
	plane := shape.Height * shape.Width
	data := make([]float64, shape.Size())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			c := resized.NRGBAAt(x, y)
			idx := y*shape.Width + x
			data[idx] = toUnit(c.R)
			if shape.Channels == 3 {
				data[plane+idx] = toUnit(c.G)
				data[2*plane+idx] = toUnit(c.B)
			}
		}
	}
	return data, nil
}

// TensorToImage Converts i-th sample of NCHW tensor with values in [-1; 1] back to image
func TensorToImage(t tensor.Tensor, i int, shape ImageShape) (image.Image, error) {
	if shape.Channels != 1 && shape.Channels != 3 {
		return nil, fmt.Errorf("Only 1 or 3 channels are supported, but got %d", shape.Channels)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Tensor must hold float64 values, but got %T", t.Data())
	}
	size := shape.Size()
	if (i+1)*size > len(data) || i < 0 {
		return nil, fmt.Errorf("Sample #%d of shape %+v is out of tensor with %d elements", i, shape, len(data))
	}
	sample := data[i*size : (i+1)*size]
	plane := shape.Height * shape.Width
	img := image.NewNRGBA(image.Rect(0, 0, shape.Width, shape.Height))
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			idx := y*shape.Width + x
			r := fromUnit(sample[idx])
			g, b := r, r
			if shape.Channels == 3 {
				g = fromUnit(sample[plane+idx])
				b = fromUnit(sample[2*plane+idx])
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img, nil
}

func toUnit(v uint8) float64 {
	return float64(v)/127.5 - 1.0
}

func fromUnit(v float64) uint8 {
	scaled := (v + 1.0) * 127.5
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled + 0.5)
}
