package gan_encoder

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ModelFileVersion Version of serialized model layout
const ModelFileVersion = 1

// ModelFile Serialized network: architecture, weights and names of custom objects
type ModelFile struct {
	Version int
	Name    string
	Loss    string
	Layers  []LayerSpec
}

// LayerSpec Serialized layer. Activation is stored by name and resolved via CustomObjects on load.
// Mean and Variance are running statistics of batch normalization.
type LayerSpec struct {
	Name       string
	Type       LayerType
	Activation string
	Alpha      float64
	Axis       []int

	KernelHeight int
	KernelWidth  int
	Padding      []int
	PaddingExtra []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
	Momentum     float64
	Epsilon      float64

	Weight   *WeightTensor
	Bias     *WeightTensor
	Scale    *WeightTensor
	Shift    *WeightTensor
	Mean     *WeightTensor
	Variance *WeightTensor
}

// WeightTensor Values of single parameter node
type WeightTensor struct {
	Shape []int
	Data  []float64
}

// SaveNetwork Writes network's architecture and current weights to file
//
// lossName - name of loss function network has been trained with (could be empty)
// objects - registry used to find names of layers' activation functions
//
func SaveNetwork(net *Network, path, lossName string, objects CustomObjects) error {
	spec, err := NetworkSpec(net, lossName, objects)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't create model file '%s'", path))
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(spec); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't encode model into '%s'", path))
	}
	return f.Close()
}

// NetworkSpec Converts network into serializable form
func NetworkSpec(net *Network, lossName string, objects CustomObjects) (*ModelFile, error) {
	if lossName != "" {
		if _, ok := objects.Losses[lossName]; !ok {
			return nil, fmt.Errorf("Unknown loss: '%s'", lossName)
		}
	}
	spec := &ModelFile{
		Version: ModelFileVersion,
		Name:    net.Name,
		Loss:    lossName,
		Layers:  make([]LayerSpec, 0, len(net.Layers)),
	}
	for i, l := range net.Layers {
		if l == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		activationName, ok := objects.activationName(l.Activation)
		if !ok {
			return nil, fmt.Errorf("Activation of layer #%d '%s' is not registered in custom objects", i, l.Name)
		}
		ls := LayerSpec{
			Name:         l.Name,
			Type:         l.Type,
			Activation:   activationName,
			Alpha:        l.Options.Alpha,
			Axis:         l.Options.Axis,
			KernelHeight: l.KernelHeight,
			KernelWidth:  l.KernelWidth,
			Padding:      l.Padding,
			PaddingExtra: l.PaddingExtra,
			Stride:       l.Stride,
			Dilation:     l.Dilation,
			ReshapeDims:  l.ReshapeDims,
			Momentum:     l.Momentum,
			Epsilon:      l.Epsilon,
		}
		var err error
		if ls.Weight, err = weightOf(l.WeightNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d weights", i))
		}
		if ls.Bias, err = weightOf(l.BiasNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d bias", i))
		}
		if ls.Scale, err = weightOf(l.ScaleNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d scale", i))
		}
		if ls.Shift, err = weightOf(l.ShiftNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d shift", i))
		}
		if ls.Mean, err = weightOf(l.MeanNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d running mean", i))
		}
		if ls.Variance, err = weightOf(l.VarianceNode); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d running variance", i))
		}
		spec.Layers = append(spec.Layers, ls)
	}
	return spec, nil
}

func weightOf(n *gorgonia.Node) (*WeightTensor, error) {
	if n == nil {
		return nil, nil
	}
	if n.Value() == nil {
		return nil, fmt.Errorf("Node '%s' has no value", n.Name())
	}
	raw, ok := n.Value().Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Node '%s' must hold float64 values, but got %T", n.Name(), n.Value().Data())
	}
	data := make([]float64, len(raw))
	copy(data, raw)
	return &WeightTensor{
		Shape: n.Shape().Clone(),
		Data:  data,
	}, nil
}

// LoadNetwork Reads network from file and defines it on provided graph
//
// objects - registry used to resolve names of activations and loss
//
func LoadNetwork(g *gorgonia.ExprGraph, path string, objects CustomObjects) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open model file '%s'", path))
	}
	defer f.Close()
	var spec ModelFile
	if err := gob.NewDecoder(f).Decode(&spec); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't decode model file '%s'", path))
	}
	net, err := NetworkFromSpec(g, &spec, objects)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't define model from '%s'", path))
	}
	return net, nil
}

// NetworkFromSpec Defines serialized network on provided graph
func NetworkFromSpec(g *gorgonia.ExprGraph, spec *ModelFile, objects CustomObjects) (*Network, error) {
	if spec.Version != ModelFileVersion {
		return nil, fmt.Errorf("Model file version %d is not supported", spec.Version)
	}
	net := &Network{
		Name:     spec.Name,
		LossName: spec.Loss,
		Layers:   make([]*Layer, 0, len(spec.Layers)),
	}
	if spec.Loss != "" {
		loss, ok := objects.Losses[spec.Loss]
		if !ok {
			return nil, fmt.Errorf("Unknown loss: '%s'. Provide it via custom objects", spec.Loss)
		}
		net.Loss = loss
	}
	for i, ls := range spec.Layers {
		activation, ok := objects.Activations[ls.Activation]
		if !ok {
			return nil, fmt.Errorf("Unknown activation of layer #%d: '%s'. Provide it via custom objects", i, ls.Activation)
		}
		l := &Layer{
			Name:         ls.Name,
			Type:         ls.Type,
			Activation:   activation,
			Options:      Options{Alpha: ls.Alpha, Axis: ls.Axis},
			KernelHeight: ls.KernelHeight,
			KernelWidth:  ls.KernelWidth,
			Padding:      ls.Padding,
			PaddingExtra: ls.PaddingExtra,
			Stride:       ls.Stride,
			Dilation:     ls.Dilation,
			ReshapeDims:  ls.ReshapeDims,
			Momentum:     ls.Momentum,
			Epsilon:      ls.Epsilon,
		}
		prefix := fmt.Sprintf("%s_%s", net.Name, ls.Name)
		var err error
		if l.WeightNode, err = nodeOf(g, ls.Weight, prefix+"_w"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d weights", i))
		}
		if l.BiasNode, err = nodeOf(g, ls.Bias, prefix+"_b"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d bias", i))
		}
		if l.ScaleNode, err = nodeOf(g, ls.Scale, prefix+"_gamma"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d scale", i))
		}
		if l.ShiftNode, err = nodeOf(g, ls.Shift, prefix+"_beta"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d shift", i))
		}
		if l.MeanNode, err = nodeOf(g, ls.Mean, prefix+"_moving_mean"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d running mean", i))
		}
		if l.VarianceNode, err = nodeOf(g, ls.Variance, prefix+"_moving_variance"); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Layer #%d running variance", i))
		}
		if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
			return nil, fmt.Errorf("Layer #%d of type '%s' has no weights", i, l.Type)
		}
		net.Layers = append(net.Layers, l)
	}
	return net, nil
}

func nodeOf(g *gorgonia.ExprGraph, w *WeightTensor, name string) (*gorgonia.Node, error) {
	if w == nil {
		return nil, nil
	}
	shp := tensor.Shape(w.Shape)
	if shp.TotalSize() != len(w.Data) {
		return nil, fmt.Errorf("Shape %v requires %d values, but got %d", shp, shp.TotalSize(), len(w.Data))
	}
	data := make([]float64, len(w.Data))
	copy(data, w.Data)
	value := tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(data))
	return gorgonia.NewTensor(g, gorgonia.Float64, shp.Dims(), gorgonia.WithShape(shp.Clone()...), gorgonia.WithName(name), gorgonia.WithValue(value)), nil
}
