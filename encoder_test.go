package gan_encoder

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func smallConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.ImageShape = ImageShape{Height: 8, Width: 8, Channels: 1}
	cfg.NFilters = 2
	cfg.LatentShape = ImageShape{Height: 1, Width: 1, Channels: 4}
	cfg.GeneratorFile = filepath.Join(dir, "gen.gob")
	cfg.DiscriminatorFile = filepath.Join(dir, "disc.gob")
	return cfg
}

// writePretrained saves tiny generator and discriminator compatible with provided config
func writePretrained(t *testing.T, cfg Config) {
	t.Helper()
	g := gorgonia.NewGraph()
	img := cfg.ImageShape
	genW := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(img.Size(), cfg.LatentShape.Size()), gorgonia.WithName("gen_w"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	bnShape := []int{1, img.Channels, 1, 1}
	generator := Generator(
		&Layer{Name: "flatten", Type: LayerFlatten, Activation: NoActivation},
		&Layer{Name: "dense", WeightNode: genW, Type: LayerLinear, Activation: NoActivation},
		&Layer{Name: "image", Type: LayerReshape, Activation: NoActivation, ReshapeDims: []int{img.Channels, img.Height, img.Width}},
		&Layer{
			Name:         "batchnorm",
			Type:         LayerBatchNorm,
			Activation:   Tanh,
			ScaleNode:    gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(bnShape...), gorgonia.WithName("gen_gamma"), gorgonia.WithInit(gorgonia.Ones())),
			ShiftNode:    gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(bnShape...), gorgonia.WithName("gen_beta"), gorgonia.WithInit(gorgonia.Zeroes())),
			MeanNode:     gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(bnShape...), gorgonia.WithName("gen_moving_mean"), gorgonia.WithInit(gorgonia.ValuesOf(0.1))),
			VarianceNode: gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(bnShape...), gorgonia.WithName("gen_moving_variance"), gorgonia.WithInit(gorgonia.ValuesOf(2.0))),
		},
	)
	require.NoError(t, SaveNetwork(generator.Network(), cfg.GeneratorFile, "wasserstein_loss", DefaultCustomObjects()))

	discW0 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(2, img.Channels, 3, 3), gorgonia.WithName("disc_w0"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	discW1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 2*img.Height*img.Width), gorgonia.WithName("disc_w1"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	discriminator := Discriminator(
		&Layer{
			Name:         DefaultFeatureLayer,
			WeightNode:   discW0,
			Type:         LayerConvolutional,
			Activation:   LeakyReLU,
			Options:      Options{Alpha: 0.2},
			KernelHeight: 3,
			KernelWidth:  3,
			Padding:      []int{1, 1},
			Stride:       []int{1, 1},
			Dilation:     []int{1, 1},
		},
		&Layer{Name: "flatten", Type: LayerFlatten, Activation: NoActivation},
		&Layer{Name: "score", WeightNode: discW1, Type: LayerLinear, Activation: NoActivation},
	)
	require.NoError(t, SaveNetwork(discriminator.Network(), cfg.DiscriminatorFile, "wasserstein_loss", DefaultCustomObjects()))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ImageShape.Height = 30
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divisible by 8")

	cfg = DefaultConfig()
	cfg.ImageShape.Width = 12
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.NFilters = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LatentShape = ImageShape{}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LearningRate = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Alpha = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LeakyReLU slope")
}

func TestDefineEncoderDefaultShapes(t *testing.T) {
	g := gorgonia.NewGraph()
	cfg := DefaultConfig()
	encoder, err := DefineEncoder(g, cfg)
	require.NoError(t, err)
	require.Len(t, encoder.Layers, 11)

	expectedFilters := []int{64, 128, 128, 256}
	expectedKernels := []int{4, 4, 3, 4}
	for i := range expectedFilters {
		conv := encoder.Layers[2*i]
		assert.Equal(t, LayerConvolutional, conv.Type)
		assert.Nil(t, conv.BiasNode)
		assert.Equal(t, expectedFilters[i], conv.WeightNode.Shape()[0])
		assert.Equal(t, expectedKernels[i], conv.KernelHeight)
		assert.Equal(t, []int{2, 2}, conv.Stride)
		assert.Equal(t, LayerBatchNorm, encoder.Layers[2*i+1].Type)
	}
	// 3x3 kernel over 8x8 with stride 2 needs one zero row/column at the bottom/right only
	assert.Equal(t, []int{1, 1}, encoder.Layers[0].Padding)
	assert.Equal(t, []int{0, 0}, encoder.Layers[0].PaddingExtra)
	assert.Equal(t, []int{0, 0}, encoder.Layers[4].Padding)
	assert.Equal(t, []int{1, 1}, encoder.Layers[4].PaddingExtra)
	// 32 => 16 => 8 => 4 => 2
	dense, _, err := encoder.Layer("dense")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{100, 256 * 2 * 2}, dense.WeightNode.Shape())

	x := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(cfg.ImageShape.NCHW(2)...), gorgonia.WithName("x"))
	require.NoError(t, encoder.Fwd(x, 2))
	assert.Equal(t, tensor.Shape{2, 100, 1, 1}, encoder.Out().Shape())
}

func TestDefineEncoderRejectsShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImageShape.Height = 20
	_, err := DefineEncoder(gorgonia.NewGraph(), cfg)
	assert.Error(t, err)
}

func TestEncoderOutputRange(t *testing.T) {
	g := gorgonia.NewGraph()
	cfg := smallConfig(t.TempDir())
	encoder, err := DefineEncoder(g, cfg)
	require.NoError(t, err)
	x := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(cfg.ImageShape.NCHW(2)...), gorgonia.WithName("x"))
	require.NoError(t, encoder.Fwd(x, 2))
	values := runGraph(t, g, map[*gorgonia.Node]tensor.Tensor{x: UniformRandDense(-1, 1, cfg.ImageShape.NCHW(2)...)}, encoder.Out())
	latent := float64s(t, values[0])
	require.Len(t, latent, 2*4)
	for _, v := range latent {
		assert.True(t, v > -0.5 && v < 0.5, "latent component %f is out of (-0.5; 0.5)", v)
	}
}

func TestNewMissingFiles(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	_, err := New(gorgonia.NewGraph(), cfg)
	assert.Error(t, err)
}

func TestNewRequiresFeatureExtractor(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	writePretrained(t, cfg)
	g := gorgonia.NewGraph()
	w := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, cfg.ImageShape.Size()), gorgonia.WithName("w"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	plain := Discriminator(
		&Layer{Name: "flatten", Type: LayerFlatten},
		&Layer{Name: "score", WeightNode: w, Type: LayerLinear},
	)
	require.NoError(t, SaveNetwork(plain.Network(), cfg.DiscriminatorFile, "wasserstein_loss", DefaultCustomObjects()))
	_, err := New(gorgonia.NewGraph(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultFeatureLayer)
}

func TestEncoderInversionStep(t *testing.T) {
	cfg := smallConfig(t.TempDir())
	writePretrained(t, cfg)
	batchSize := 2

	g := gorgonia.NewGraph()
	inverter, err := New(g, cfg)
	require.NoError(t, err)
	summary := bytes.Buffer{}
	inverter.Summary = &summary
	assert.Equal(t, "wasserstein_loss", inverter.Generator().Network().LossName)
	// Pre-trained networks are frozen
	for _, l := range inverter.Generator().Network().Layers {
		assert.False(t, l.Training())
	}
	for _, l := range inverter.Discriminator().Network().Layers {
		assert.False(t, l.Training())
	}
	genBN, _, err := inverter.Generator().Network().Layer("batchnorm")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1}, float64s(t, genBN.MeanNode.Value()), 1e-12)

	encoder, err := inverter.Encoder()
	require.NoError(t, err)
	composite, err := inverter.EncoderGen(encoder, inverter.Generator())
	require.NoError(t, err)
	assert.Contains(t, summary.String(), "Network: encoder")
	assert.Contains(t, summary.String(), "Network: generator")
	// Generator is frozen
	assert.Equal(t, encoder.Learnables(), composite.Learnables())

	input := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(cfg.ImageShape.NCHW(batchSize)...), gorgonia.WithName("input"))
	require.NoError(t, composite.Fwd(input, batchSize))
	assert.Equal(t, input.Shape(), composite.Out().Shape())
	assert.Equal(t, tensor.Shape{2, 4, 1, 1}, composite.LatentOut().Shape())

	cost, err := inverter.EncoderLoss(batchSize)(input, composite.Out())
	require.NoError(t, err)
	_, err = gorgonia.Grad(cost, composite.Learnables()...)
	require.NoError(t, err)

	var costOut gorgonia.Value
	gorgonia.Read(cost, &costOut)
	tm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(composite.Learnables()...))
	defer tm.Close()
	solver := inverter.Solver(batchSize)

	images := UniformRandDense(-1, 1, cfg.ImageShape.NCHW(batchSize)...)
	require.NoError(t, gorgonia.Let(input, images))
	before := append([]float64{}, encoder.Layers[0].WeightNode.Value().Data().([]float64)...)
	require.NoError(t, tm.RunAll())
	loss := costOut.Data().(float64)
	assert.False(t, math.IsNaN(loss))
	assert.GreaterOrEqual(t, loss, 0.0)
	require.NoError(t, composite.UpdateStatistics())
	encoderBN, _, err := encoder.Layer("batchnorm_0")
	require.NoError(t, err)
	assert.NotEqual(t, make([]float64, cfg.NFilters), float64s(t, encoderBN.MeanNode.Value()))
	assert.InDeltaSlice(t, []float64{0.1}, float64s(t, genBN.MeanNode.Value()), 1e-12)
	require.NoError(t, solver.Step(gorgonia.NodesToValueGrads(composite.Learnables())))
	tm.Reset()

	after := encoder.Layers[0].WeightNode.Value().Data().([]float64)
	assert.NotEqual(t, before, after)
}
