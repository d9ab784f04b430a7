package gan_encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// ScaleNode, ShiftNode - per-channel gamma/beta of batch normalization, shape (1, C, 1, 1)
// MeanNode, VarianceNode - running statistics of batch normalization, shape (1, C, 1, 1). Created on first Fwd when nil
// PaddingExtra - zero rows/columns appended to bottom/right of convolution input before symmetric Padding is applied
// ReshapeDims - target dimensions of a single sample (batch dimension is prepended automatically)
//
type Layer struct {
	Name         string
	WeightNode   *gorgonia.Node
	BiasNode     *gorgonia.Node
	ScaleNode    *gorgonia.Node
	ShiftNode    *gorgonia.Node
	MeanNode     *gorgonia.Node
	VarianceNode *gorgonia.Node
	Activation   ActivationFunc
	Options      Options
	Type         LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	PaddingExtra []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int

	Momentum float64
	Epsilon  float64

	// 1 in training mode, 0 in testing one
	mode    *gorgonia.Node
	testing bool
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerMaxpool
	LayerReshape
	LayerBatchNorm
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerMaxpool:
		return "maxpool2d"
	case LayerReshape:
		return "reshape"
	case LayerBatchNorm:
		return "batchnorm"
	default:
		return fmt.Sprintf("layer_type_%d", uint16(lt))
	}
}

const (
	// Same as Keras' BatchNormalization defaults
	DefaultBatchNormMomentum = 0.99
	DefaultBatchNormEpsilon  = 1e-3
)

var (
	allowedNoWeights = []LayerType{LayerMaxpool, LayerFlatten, LayerReshape, LayerBatchNorm}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Builds non-activated output of the layer for provided input.
// For batch normalization layers statistics of the batch are returned too, so the caller could update running ones after graph execution.
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (l *Layer) Fwd(input *gorgonia.Node, batchSize int) (*gorgonia.Node, *BatchStatistics, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, nil, fmt.Errorf("WeightNode is nil for layer of type '%s'", l.Type)
	}
	switch l.Type {
	case LayerLinear:
		out, err := l.fwdLinear(input, batchSize)
		return out, nil, err
	case LayerConvolutional:
		padded, err := l.padExtra(input)
		if err != nil {
			return nil, nil, err
		}
		out, err := gorgonia.Conv2d(padded, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.dilation())
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
		if l.BiasNode != nil {
			out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0, 2, 3})
			if err != nil {
				return nil, nil, errors.Wrap(err, "Can't add bias to convolution output")
			}
		}
		return out, nil, nil
	case LayerMaxpool:
		out, err := gorgonia.MaxPool2D(input, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't maxpool[2D] input by kernel")
		}
		return out, nil, nil
	case LayerFlatten:
		out, err := gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't flatten input")
		}
		return out, nil, nil
	case LayerReshape:
		shp := append(tensor.Shape{batchSize}, l.ReshapeDims...)
		out, err := gorgonia.Reshape(input, shp)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("Can't reshape input to %v", shp))
		}
		return out, nil, nil
	case LayerBatchNorm:
		return l.fwdBatchNorm(input)
	default:
		return nil, nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
}

func (l *Layer) fwdLinear(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	tOp, err := gorgonia.Transpose(l.WeightNode)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose weights")
	}
	out, err := gorgonia.Mul(input, tOp)
	if err != nil {
		return nil, errors.Wrap(err, "Can't multiply input and weights")
	}
	if l.BiasNode == nil {
		return out, nil
	}
	if batchSize < 2 {
		out, err = gorgonia.Add(out, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to non-activated output")
		}
		return out, nil
	}
	out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
	}
	return out, nil
}

// padExtra Appends PaddingExtra zero rows and columns to the bottom and the right of NCHW input
func (l *Layer) padExtra(input *gorgonia.Node) (*gorgonia.Node, error) {
	out := input
	for i, extra := range l.PaddingExtra {
		if extra <= 0 {
			continue
		}
		if out.Dims() != 4 || i > 1 {
			return nil, fmt.Errorf("Extra padding %v can't be applied to input of shape %v", l.PaddingExtra, out.Shape())
		}
		axis := i + 2
		shp := out.Shape().Clone()
		shp[axis] = extra
		zeros := gorgonia.NewTensor(out.Graph(), out.Dtype(), 4, gorgonia.WithShape(shp...), gorgonia.WithName(fmt.Sprintf("zero_padding_%v", shp)), gorgonia.WithInit(gorgonia.Zeroes()))
		var err error
		out, err = gorgonia.Concat(axis, out, zeros)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't pad input along axis %d", axis))
		}
	}
	return out, nil
}

// fwdBatchNorm Normalizes input per channel: batch statistics in training mode and running ones in testing mode.
// Mode is a scalar node of the graph, so it could be switched without rebuilding graph.
func (l *Layer) fwdBatchNorm(input *gorgonia.Node) (*gorgonia.Node, *BatchStatistics, error) {
	if input.Dims() != 4 {
		return nil, nil, fmt.Errorf("Batch normalization expects NCHW input, but got %d dimensions", input.Dims())
	}
	if l.ScaleNode == nil || l.ShiftNode == nil {
		return nil, nil, fmt.Errorf("Batch normalization requires both ScaleNode and ShiftNode")
	}
	channels := input.Shape()[1]
	if l.ScaleNode.Shape().TotalSize() != channels || l.ShiftNode.Shape().TotalSize() != channels {
		return nil, nil, fmt.Errorf("Batch normalization parameters must have %d elements, but got %v and %v", channels, l.ScaleNode.Shape(), l.ShiftNode.Shape())
	}
	if err := l.prepareStatistics(input); err != nil {
		return nil, nil, err
	}
	batchMean, err := channelMean(input)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't evaluate batch mean")
	}
	batchCentered, err := gorgonia.BroadcastSub(input, batchMean, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't do (X-mean)")
	}
	batchSqr, err := gorgonia.Square(batchCentered)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't do (x^2)")
	}
	batchVariance, err := channelMean(batchSqr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't evaluate batch variance")
	}
	mean, err := l.blend(batchMean, l.MeanNode)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't choose mean")
	}
	variance, err := l.blend(batchVariance, l.VarianceNode)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't choose variance")
	}
	centered, err := gorgonia.BroadcastSub(input, mean, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't do (X-mean)")
	}
	epsilon, err := scalarLike(input, l.epsilon())
	if err != nil {
		return nil, nil, err
	}
	shifted, err := gorgonia.Add(variance, epsilon)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't do (variance+epsilon)")
	}
	std, err := gorgonia.Sqrt(shifted)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't do sqrt(x)")
	}
	normalized, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't normalize input")
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normalized, l.ScaleNode, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't scale normalized input")
	}
	out, err := gorgonia.BroadcastAdd(scaled, l.ShiftNode, nil, []byte{0, 2, 3})
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't shift normalized input")
	}
	stats := &BatchStatistics{Layer: l}
	gorgonia.Read(batchMean, &stats.Mean)
	gorgonia.Read(batchVariance, &stats.Variance)
	return out, stats, nil
}

// prepareStatistics Creates mode node and missing running statistics (zero mean, unit variance)
func (l *Layer) prepareStatistics(input *gorgonia.Node) error {
	g := input.Graph()
	channels := input.Shape()[1]
	if l.MeanNode == nil {
		l.MeanNode = gorgonia.NewTensor(g, input.Dtype(), 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(fmt.Sprintf("%s_moving_mean_%p", l.Name, l)), gorgonia.WithInit(gorgonia.Zeroes()))
	}
	if l.VarianceNode == nil {
		l.VarianceNode = gorgonia.NewTensor(g, input.Dtype(), 4, gorgonia.WithShape(1, channels, 1, 1), gorgonia.WithName(fmt.Sprintf("%s_moving_variance_%p", l.Name, l)), gorgonia.WithInit(gorgonia.Ones()))
	}
	if l.MeanNode.Shape().TotalSize() != channels || l.VarianceNode.Shape().TotalSize() != channels {
		return fmt.Errorf("Running statistics must have %d elements, but got %v and %v", channels, l.MeanNode.Shape(), l.VarianceNode.Shape())
	}
	if l.mode != nil && l.mode.Graph() == g {
		return nil
	}
	value, err := modeValue(input.Dtype(), !l.testing)
	if err != nil {
		return err
	}
	l.mode = gorgonia.NewScalar(g, input.Dtype(), gorgonia.WithName(fmt.Sprintf("%s_training_%p", l.Name, l)), gorgonia.WithValue(value))
	return nil
}

// blend running + mode*(batch - running)
func (l *Layer) blend(batch, running *gorgonia.Node) (*gorgonia.Node, error) {
	runningShaped := running
	if !running.Shape().Eq(batch.Shape()) {
		var err error
		if runningShaped, err = gorgonia.Reshape(running, batch.Shape().Clone()); err != nil {
			return nil, errors.Wrap(err, "Can't reshape running statistics")
		}
	}
	diff, err := gorgonia.Sub(batch, runningShaped)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (batch-running)")
	}
	weighted, err := gorgonia.Mul(l.mode, diff)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (mode*x)")
	}
	return gorgonia.Add(runningShaped, weighted)
}

// channelMean Mean of NCHW input over every axis except channels one, shape (1, C, 1, 1).
// Evaluated as matrix product of (C, N*H*W) view and (N*H*W, 1) column of 1/(N*H*W).
func channelMean(input *gorgonia.Node) (*gorgonia.Node, error) {
	shp := input.Shape()
	channels := shp[1]
	rest := shp.TotalSize() / channels
	perChannel, err := gorgonia.Transpose(input, 1, 0, 2, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose input")
	}
	flat, err := gorgonia.Reshape(perChannel, tensor.Shape{channels, rest})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input")
	}
	weights := make([]float64, rest)
	for i := range weights {
		weights[i] = 1.0 / float64(rest)
	}
	var backing interface{} = weights
	if input.Dtype() == tensor.Float32 {
		weights32 := make([]float32, rest)
		for i := range weights32 {
			weights32[i] = float32(weights[i])
		}
		backing = weights32
	}
	column := gorgonia.NewMatrix(input.Graph(), input.Dtype(), gorgonia.WithShape(rest, 1), gorgonia.WithName(fmt.Sprintf("channel_mean_weights_%d", rest)), gorgonia.WithValue(tensor.New(tensor.WithShape(rest, 1), tensor.WithBacking(backing))))
	mean, err := gorgonia.Mul(flat, column)
	if err != nil {
		return nil, errors.Wrap(err, "Can't multiply input by weights")
	}
	return gorgonia.Reshape(mean, tensor.Shape{1, channels, 1, 1})
}

// SetTraining Makes batch normalization use statistics of the current batch. Default mode
func (l *Layer) SetTraining() error {
	return l.setMode(true)
}

// SetTesting Makes batch normalization use running statistics
func (l *Layer) SetTesting() error {
	return l.setMode(false)
}

// Training Returns true when layer is in training mode
func (l *Layer) Training() bool {
	return !l.testing
}

func (l *Layer) setMode(training bool) error {
	l.testing = !training
	if l.mode == nil {
		return nil
	}
	value, err := modeValue(l.mode.Dtype(), training)
	if err != nil {
		return err
	}
	return gorgonia.Let(l.mode, value)
}

func modeValue(dt tensor.Dtype, training bool) (gorgonia.Value, error) {
	v := 0.0
	if training {
		v = 1.0
	}
	switch dt {
	case tensor.Float64:
		return gorgonia.NewF64(v), nil
	case tensor.Float32:
		return gorgonia.NewF32(float32(v)), nil
	default:
		return nil, fmt.Errorf("Dtype %v is not supported", dt)
	}
}

func (l *Layer) momentum() float64 {
	if l.Momentum == 0 {
		return DefaultBatchNormMomentum
	}
	return l.Momentum
}

func (l *Layer) epsilon() float64 {
	if l.Epsilon == 0 {
		return DefaultBatchNormEpsilon
	}
	return l.Epsilon
}

func (l *Layer) dilation() []int {
	if len(l.Dilation) == 0 {
		return []int{1, 1}
	}
	return l.Dilation
}

func (l *Layer) activate(a *gorgonia.Node) (*gorgonia.Node, error) {
	if l.Activation == nil {
		return a, nil
	}
	return l.Activation(a, l.Options)
}

// SamePadding Returns padding which makes convolution output size equal to ceil(inputSize/stride).
// Total padding is split as Keras does: pad on both sides and extra (0 or 1) at the end.
func SamePadding(inputSize, kernelSize, stride int) (pad, extra int, err error) {
	if inputSize <= 0 || kernelSize <= 0 || stride <= 0 {
		return 0, 0, fmt.Errorf("Input size, kernel size and stride must be positive, but got %d, %d, %d", inputSize, kernelSize, stride)
	}
	outSize := SameOutputSize(inputSize, stride)
	total := (outSize-1)*stride + kernelSize - inputSize
	if total < 0 {
		total = 0
	}
	pad = total / 2
	extra = total - 2*pad
	if got := (inputSize+2*pad+extra-kernelSize)/stride + 1; got != outSize {
		return 0, 0, fmt.Errorf("Can't emulate 'same' padding for input %d, kernel %d, stride %d: padding %d+%d gives %d instead of %d", inputSize, kernelSize, stride, pad, extra, got, outSize)
	}
	return pad, extra, nil
}

// SameOutputSize Output size of 'same'-padded convolution
func SameOutputSize(inputSize, stride int) int {
	return (inputSize + stride - 1) / stride
}
