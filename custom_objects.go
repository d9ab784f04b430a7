package gan_encoder

import (
	"reflect"
	"sort"

	"gorgonia.org/gorgonia"
)

// LossFunc Loss in (yTrue, yPred) order
type LossFunc func(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error)

// CustomObjects Registry of named activations and losses used to resolve serialized models.
// Model files refer to activations and losses by name only.
type CustomObjects struct {
	Activations map[string]ActivationFunc
	Losses      map[string]LossFunc
}

// DefaultCustomObjects Returns registry filled with every activation and loss of this package
func DefaultCustomObjects() CustomObjects {
	return CustomObjects{
		Activations: map[string]ActivationFunc{
			"linear":     NoActivation,
			"abs":        Abs,
			"sign":       Sign,
			"exp":        Exp,
			"log":        Log,
			"neg":        Neg,
			"square":     Square,
			"sqrt":       Sqrt,
			"tanh":       Tanh,
			"sigmoid":    Sigmoid,
			"softplus":   Softplus,
			"relu":       Rectify,
			"softmax":    Softmax,
			"leaky_relu": LeakyReLU,
			"tanh_half":  TanhHalf,
		},
		Losses: map[string]LossFunc{
			"mse":                 mseLoss,
			"l1":                  l1Loss,
			"huber":               huberLoss,
			"crossentropy":        crossEntropyLoss,
			"binary_crossentropy": binaryCrossEntropyLoss,
			"wasserstein_loss":    WassersteinLoss,
		},
	}
}

// With Returns copy of registry extended by provided objects. Provided ones take precedence.
func (objs CustomObjects) With(other CustomObjects) CustomObjects {
	merged := CustomObjects{
		Activations: make(map[string]ActivationFunc, len(objs.Activations)+len(other.Activations)),
		Losses:      make(map[string]LossFunc, len(objs.Losses)+len(other.Losses)),
	}
	for k, v := range objs.Activations {
		merged.Activations[k] = v
	}
	for k, v := range other.Activations {
		merged.Activations[k] = v
	}
	for k, v := range objs.Losses {
		merged.Losses[k] = v
	}
	for k, v := range other.Losses {
		merged.Losses[k] = v
	}
	return merged
}

// activationName Reverse lookup. Only named (non-closure) functions could be found.
func (objs CustomObjects) activationName(fn ActivationFunc) (string, bool) {
	if fn == nil {
		return "linear", true
	}
	ptr := reflect.ValueOf(fn).Pointer()
	names := make([]string, 0, len(objs.Activations))
	for name := range objs.Activations {
		names = append(names, name)
	}
	// Deterministic pick when one function is registered under several names
	sort.Strings(names)
	for _, name := range names {
		if reflect.ValueOf(objs.Activations[name]).Pointer() == ptr {
			return name, true
		}
	}
	return "", false
}
