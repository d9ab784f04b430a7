package gan_encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ActivationFunc Just an alias to Gorgonia'a api_gen.go - https://github.com/gorgonia/gorgonia/blob/master/api_gen.go#L1
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Abs(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Abs(a) }
func Sign(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Sign(a) }
func Exp(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Exp(a) }
func Log(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Log(a) }
func Neg(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)          { return gorgonia.Neg(a) }
func Square(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)       { return gorgonia.Square(a) }
func Sqrt(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Sqrt(a) }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Softplus(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)     { return gorgonia.Softplus(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }
func Softmax(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	for i := range opts {
		// Check if axis option is provided
		// First i-th option with provided field 'Axis' would be considered for use.
		if len(opts[i].Axis) > 0 {
			return gorgonia.SoftMax(a, opts[i].Axis...)
		}
	}
	return gorgonia.SoftMax(a)
}

// DefaultLeakyReLUAlpha Slope used by LeakyReLU when no (or zero) alpha is provided
const DefaultLeakyReLUAlpha = 0.3

// LeakyReLU f(x) = x for x >= 0 and f(x) = alpha*x otherwise.
// Alpha is taken from the first provided option. Zero alpha means DefaultLeakyReLUAlpha: use Rectify for plain ReLU.
func LeakyReLU(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	alpha := DefaultLeakyReLUAlpha
	if len(opts) > 0 && opts[0].Alpha != 0 {
		alpha = opts[0].Alpha
	}
	return gorgonia.LeakyRelu(a, alpha)
}

// TanhHalf f(x) = tanh(x)/2, so output lies in (-0.5; 0.5)
func TanhHalf(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	th, err := gorgonia.Tanh(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do tanh(x)")
	}
	half, err := scalarLike(a, 0.5)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mul(th, half)
}

// Options Struct for holding options for certain activation functions.
type Options struct {
	Axis  []int
	Alpha float64
}

func scalarLike(a *gorgonia.Node, v float64) (*gorgonia.Node, error) {
	switch a.Dtype() {
	case tensor.Float64:
		return gorgonia.NewConstant(v), nil
	case tensor.Float32:
		return gorgonia.NewConstant(float32(v)), nil
	default:
		return nil, fmt.Errorf("Dtype %v is not supported", a.Dtype())
	}
}
