package gan_encoder

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ImageBatch Images stacked into single NCHW tensor
type ImageBatch struct {
	Data       *tensor.Dense
	Shape      ImageShape
	DataLength int
}

// NewImageBatch Resizes every image to provided shape and stacks them
func NewImageBatch(images []image.Image, shape ImageShape) (*ImageBatch, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("Batch must have one image atleast")
	}
	data := make([]float64, 0, len(images)*shape.Size())
	for i, img := range images {
		values, err := imageValues(img, shape)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't convert image #%d", i))
		}
		data = append(data, values...)
	}
	return &ImageBatch{
		Data:       tensor.New(tensor.WithShape(shape.NCHW(len(images))...), tensor.WithBacking(data)),
		Shape:      shape,
		DataLength: len(images),
	}, nil
}

// LoadImageBatch Reads images from files and stacks them
func LoadImageBatch(filenames []string, shape ImageShape) (*ImageBatch, error) {
	images := make([]image.Image, 0, len(filenames))
	for _, fname := range filenames {
		img, err := LoadImage(fname)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return NewImageBatch(images, shape)
}
