package gan_encoder

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ImageShape Spatial shape of image: height, width and number of channels
type ImageShape struct {
	Height   int
	Width    int
	Channels int
}

// NCHW Returns tensor shape for provided batch size
func (s ImageShape) NCHW(batchSize int) tensor.Shape {
	return tensor.Shape{batchSize, s.Channels, s.Height, s.Width}
}

// Size Number of elements in single sample
func (s ImageShape) Size() int {
	return s.Height * s.Width * s.Channels
}

// Config Parameters of encoder.
//
// ImageShape - shape of input image. Both height and width must be divisible by 8
// NFilters - number of filters of the first convolution. Next ones use 2x and 4x of it
// LatentShape - shape of generator's input (latent vector)
// Alpha - slope of LeakyReLU
// LearningRate - learning rate of Adam solver
// WeightStdDev - standard deviation of normal kernel initializer (mean is 0)
// GeneratorFile, DiscriminatorFile - paths to pre-trained networks
//
type Config struct {
	ImageShape        ImageShape
	NFilters          int
	LatentShape       ImageShape
	Alpha             float64
	LearningRate      float64
	WeightStdDev      float64
	GeneratorFile     string
	DiscriminatorFile string
}

// DefaultConfig Returns default parameters: 32x32x1 images, 64 filters, latent vector of 1x1x100
func DefaultConfig() Config {
	return Config{
		ImageShape:        ImageShape{Height: 32, Width: 32, Channels: 1},
		NFilters:          64,
		LatentShape:       ImageShape{Height: 1, Width: 1, Channels: 100},
		Alpha:             0.2,
		LearningRate:      0.0003,
		WeightStdDev:      0.02,
		GeneratorFile:     "gen.gob",
		DiscriminatorFile: "disc.gob",
	}
}

// Validate Checks parameters
func (cfg Config) Validate() error {
	if cfg.ImageShape.Height <= 0 || cfg.ImageShape.Width <= 0 || cfg.ImageShape.Channels <= 0 {
		return fmt.Errorf("Image shape must be positive, but got %+v", cfg.ImageShape)
	}
	if cfg.ImageShape.Height%8 != 0 || cfg.ImageShape.Width%8 != 0 {
		return fmt.Errorf("Image shape must be divisible by 8, but got %dx%d", cfg.ImageShape.Height, cfg.ImageShape.Width)
	}
	if cfg.NFilters <= 0 {
		return fmt.Errorf("Number of filters must be positive, but got %d", cfg.NFilters)
	}
	if cfg.LatentShape.Size() <= 0 {
		return fmt.Errorf("Latent shape must be positive, but got %+v", cfg.LatentShape)
	}
	if cfg.Alpha <= 0 {
		return fmt.Errorf("LeakyReLU slope must be positive, but got %f", cfg.Alpha)
	}
	if cfg.LearningRate <= 0 {
		return fmt.Errorf("Learning rate must be positive, but got %f", cfg.LearningRate)
	}
	if cfg.WeightStdDev <= 0 {
		return fmt.Errorf("Standard deviation of weights must be positive, but got %f", cfg.WeightStdDev)
	}
	return nil
}

// Encoder GAN inversion: holds pre-trained generator and discriminator and builds encoder on top of them.
//
// Summary - where EncoderGen prints summaries of composed networks. Defaults to stdout, nil disables printing
//
type Encoder struct {
	Config        Config
	Summary       io.Writer
	graph         *gorgonia.ExprGraph
	generator     *GeneratorNet
	discriminator *DiscriminatorNet
}

// New Loads pre-trained generator and discriminator (from cfg.GeneratorFile and cfg.DiscriminatorFile) onto provided graph.
// Both are switched into testing mode.
// Both files are resolved with DefaultCustomObjects extended by provided objects (so 'wasserstein_loss' is always known).
func New(g *gorgonia.ExprGraph, cfg Config, objects ...CustomObjects) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry := DefaultCustomObjects()
	for _, objs := range objects {
		registry = registry.With(objs)
	}
	discriminator, err := LoadNetwork(g, cfg.DiscriminatorFile, registry)
	if err != nil {
		return nil, errors.Wrap(err, "Can't load discriminator")
	}
	if _, _, err := discriminator.Layer(DefaultFeatureLayer); err != nil {
		return nil, errors.Wrap(err, "Discriminator has no feature extractor")
	}
	generator, err := LoadNetwork(g, cfg.GeneratorFile, registry)
	if err != nil {
		return nil, errors.Wrap(err, "Can't load generator")
	}
	// Pre-trained networks are frozen: batch normalization uses running statistics
	if err := discriminator.SetTesting(); err != nil {
		return nil, err
	}
	if err := generator.SetTesting(); err != nil {
		return nil, err
	}
	return &Encoder{
		Config:        cfg,
		Summary:       os.Stdout,
		graph:         g,
		generator:     GeneratorFromNetwork(generator),
		discriminator: DiscriminatorFromNetwork(discriminator),
	}, nil
}

// Generator Returns pre-trained generator
func (enc *Encoder) Generator() *GeneratorNet {
	return enc.generator
}

// Discriminator Returns pre-trained discriminator
func (enc *Encoder) Discriminator() *DiscriminatorNet {
	return enc.discriminator
}

// Graph Returns graph networks are defined on
func (enc *Encoder) Graph() *gorgonia.ExprGraph {
	return enc.graph
}

// Encoder Defines encoder network on encoder's graph
func (enc *Encoder) Encoder() (*Network, error) {
	return DefineEncoder(enc.graph, enc.Config)
}

// EncoderGen Composes encoder and generator and prints summaries of both
func (enc *Encoder) EncoderGen(encoder *Network, generator *GeneratorNet) (*EncoderGenerator, error) {
	composite, err := NewEncoderGenerator(encoder, generator)
	if err != nil {
		return nil, err
	}
	if enc.Summary != nil {
		if err := encoder.Summary(enc.Summary); err != nil {
			return nil, errors.Wrap(err, "Can't print encoder summary")
		}
		if err := generator.Network().Summary(enc.Summary); err != nil {
			return nil, errors.Wrap(err, "Can't print generator summary")
		}
	}
	return composite, nil
}

// EncoderLoss Returns pixel-wise + perceptual loss bound to pre-trained discriminator
func (enc *Encoder) EncoderLoss(batchSize int) LossFunc {
	return EncoderLoss(enc.discriminator, batchSize)
}

// Solver Returns Adam solver configured with encoder's learning rate
func (enc *Encoder) Solver(batchSize int) gorgonia.Solver {
	return gorgonia.NewAdamSolver(gorgonia.WithLearnRate(enc.Config.LearningRate), gorgonia.WithBatchSize(float64(batchSize)))
}

type convBlock struct {
	filters int
	kernel  int
}

// DefineEncoder Defines encoder on provided graph:
//
//	4 x [conv(stride=2, same) => LeakyReLU => BatchNorm] => flatten => linear(TanhHalf) => reshape to latent shape
//
func DefineEncoder(g *gorgonia.ExprGraph, cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	blocks := []convBlock{
		{filters: cfg.NFilters, kernel: 4},
		{filters: 2 * cfg.NFilters, kernel: 4},
		{filters: 2 * cfg.NFilters, kernel: 3},
		{filters: 4 * cfg.NFilters, kernel: 4},
	}
	const stride = 2
	layers := make([]*Layer, 0, 2*len(blocks)+3)
	height, width, channels := cfg.ImageShape.Height, cfg.ImageShape.Width, cfg.ImageShape.Channels
	for i, b := range blocks {
		padH, extraH, err := SamePadding(height, b.kernel, stride)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Block #%d height", i))
		}
		padW, extraW, err := SamePadding(width, b.kernel, stride)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Block #%d width", i))
		}
		w := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(b.filters, channels, b.kernel, b.kernel), gorgonia.WithName(fmt.Sprintf("encoder_w%d", i)), gorgonia.WithInit(gorgonia.Gaussian(0, cfg.WeightStdDev)))
		gamma := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, b.filters, 1, 1), gorgonia.WithName(fmt.Sprintf("encoder_gamma%d", i)), gorgonia.WithInit(gorgonia.Ones()))
		beta := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, b.filters, 1, 1), gorgonia.WithName(fmt.Sprintf("encoder_beta%d", i)), gorgonia.WithInit(gorgonia.Zeroes()))
		movingMean := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, b.filters, 1, 1), gorgonia.WithName(fmt.Sprintf("encoder_moving_mean%d", i)), gorgonia.WithInit(gorgonia.Zeroes()))
		movingVariance := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(1, b.filters, 1, 1), gorgonia.WithName(fmt.Sprintf("encoder_moving_variance%d", i)), gorgonia.WithInit(gorgonia.Ones()))
		layers = append(layers,
			&Layer{
				Name:         fmt.Sprintf("conv_%d", i),
				WeightNode:   w,
				Type:         LayerConvolutional,
				Activation:   LeakyReLU,
				Options:      Options{Alpha: cfg.Alpha},
				KernelHeight: b.kernel,
				KernelWidth:  b.kernel,
				Padding:      []int{padH, padW},
				PaddingExtra: []int{extraH, extraW},
				Stride:       []int{stride, stride},
				Dilation:     []int{1, 1},
			},
			&Layer{
				Name:         fmt.Sprintf("batchnorm_%d", i),
				ScaleNode:    gamma,
				ShiftNode:    beta,
				MeanNode:     movingMean,
				VarianceNode: movingVariance,
				Type:         LayerBatchNorm,
				Activation:   NoActivation,
			},
		)
		height, width, channels = SameOutputSize(height, stride), SameOutputSize(width, stride), b.filters
	}
	units := cfg.LatentShape.Size()
	flat := height * width * channels
	denseW := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(units, flat), gorgonia.WithName("encoder_dense_w"), gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	denseB := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, units), gorgonia.WithName("encoder_dense_b"), gorgonia.WithInit(gorgonia.Zeroes()))
	layers = append(layers,
		&Layer{
			Name:       "flatten",
			Type:       LayerFlatten,
			Activation: NoActivation,
		},
		&Layer{
			Name:       "dense",
			WeightNode: denseW,
			BiasNode:   denseB,
			Type:       LayerLinear,
			Activation: TanhHalf,
		},
		&Layer{
			Name:        "latent",
			Type:        LayerReshape,
			Activation:  NoActivation,
			ReshapeDims: []int{cfg.LatentShape.Channels, cfg.LatentShape.Height, cfg.LatentShape.Width},
		},
	)
	return &Network{
		Name:   "encoder",
		Layers: layers,
	}, nil
}
