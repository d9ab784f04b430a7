package gan_encoder

import (
	"fmt"
	"image/color"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense filled with normally distributed float64 values
//
// shape - shape of resulting dense
//
func NormRandDense(shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = rand.NormFloat64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// UniformRandDense Return reference to tensor.Dense filled with pseudo-random float64 values in range [low, high)
func UniformRandDense(low, high float64, shape ...int) *tensor.Dense {
	data := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range data {
		data[i] = low + (high-low)*rand.Float64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// PlotXY Plot chart for input y(x)
func PlotXY(x, y []float64, xLabel, yLabel, fname string) error {
	if len(x) != len(y) {
		return fmt.Errorf("X and Y(X) must have same number of elements, but X has %d elements and Y(X) has %d elements", len(x), len(y))
	}
	scatterData := make(plotter.XYs, len(x))
	for i := range x {
		scatterData[i].X = x[i]
		scatterData[i].Y = y[i]
	}
	scatter, err := plotter.NewScatter(scatterData)
	if err != nil {
		return errors.Wrap(err, "Can't init new scatter")
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	p := plot.New()
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	p.Add(scatter)
	// Save the plot to a PNG file.
	if err := p.Save(4*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// PlotLatent Plot components of i-th latent vector of batch: component index => value
func PlotLatent(latent tensor.Tensor, i int, fname string) error {
	data, ok := latent.Data().([]float64)
	if !ok {
		return fmt.Errorf("Latent tensor must hold float64 values, but got %T", latent.Data())
	}
	shp := latent.Shape()
	if len(shp) == 0 || shp[0] <= 0 {
		return fmt.Errorf("Latent tensor must have batch dimension, but got shape %v", shp)
	}
	size := shp.TotalSize() / shp[0]
	if i < 0 || i >= shp[0] {
		return fmt.Errorf("Sample #%d is out of batch of size %d", i, shp[0])
	}
	values := data[i*size : (i+1)*size]
	idx := make([]float64, size)
	for j := range idx {
		idx[j] = float64(j)
	}
	return PlotXY(idx, values, "Component", "Value", fname)
}
