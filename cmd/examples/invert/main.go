package main

import (
	"log"
	"math/rand"

	ganenc "github.com/LdDl/gan-encoder"
	"github.com/caarlos0/env/v11"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type config struct {
	GeneratorFile      string   `env:"ENCODER_GENERATOR_FILE" envDefault:"gen.gob"`
	DiscriminatorFile  string   `env:"ENCODER_DISCRIMINATOR_FILE" envDefault:"disc.gob"`
	Images             []string `env:"ENCODER_IMAGES,required" envSeparator:","`
	ReconstructionFile string   `env:"ENCODER_RECONSTRUCTION_FILE" envDefault:"reconstruction.png"`
	LatentPlotFile     string   `env:"ENCODER_LATENT_PLOT_FILE" envDefault:"latent.png"`
	ImageHeight        int      `env:"ENCODER_IMAGE_HEIGHT" envDefault:"32"`
	ImageWidth         int      `env:"ENCODER_IMAGE_WIDTH" envDefault:"32"`
	ImageChannels      int      `env:"ENCODER_IMAGE_CHANNELS" envDefault:"1"`
	NFilters           int      `env:"ENCODER_FILTERS" envDefault:"64"`
	LatentSize         int      `env:"ENCODER_LATENT_SIZE" envDefault:"100"`
	Alpha              float64  `env:"ENCODER_ALPHA" envDefault:"0.2"`
	LearningRate       float64  `env:"ENCODER_LEARNING_RATE" envDefault:"0.0003"`
	Seed               int64    `env:"ENCODER_SEED" envDefault:"1337"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	// Initialize seed with constant value to reproduce results
	rand.Seed(cfg.Seed)

	encCfg := ganenc.DefaultConfig()
	encCfg.ImageShape = ganenc.ImageShape{Height: cfg.ImageHeight, Width: cfg.ImageWidth, Channels: cfg.ImageChannels}
	encCfg.NFilters = cfg.NFilters
	encCfg.LatentShape = ganenc.ImageShape{Height: 1, Width: 1, Channels: cfg.LatentSize}
	encCfg.Alpha = cfg.Alpha
	encCfg.LearningRate = cfg.LearningRate
	encCfg.GeneratorFile = cfg.GeneratorFile
	encCfg.DiscriminatorFile = cfg.DiscriminatorFile

	batch, err := ganenc.LoadImageBatch(cfg.Images, encCfg.ImageShape)
	if err != nil {
		log.Fatalf("load images: %v", err)
	}
	batchSize := batch.DataLength

	g := gorgonia.NewGraph()
	inverter, err := ganenc.New(g, encCfg)
	if err != nil {
		log.Fatalf("init encoder: %v", err)
	}
	encoder, err := inverter.Encoder()
	if err != nil {
		log.Fatalf("define encoder: %v", err)
	}
	composite, err := inverter.EncoderGen(encoder, inverter.Generator())
	if err != nil {
		log.Fatalf("compose encoder and generator: %v", err)
	}
	input := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(encCfg.ImageShape.NCHW(batchSize)...), gorgonia.WithName("encoder_input"))
	if err := composite.Fwd(input, batchSize); err != nil {
		log.Fatalf("feedforward: %v", err)
	}
	cost, err := inverter.EncoderLoss(batchSize)(input, composite.Out())
	if err != nil {
		log.Fatalf("define loss: %v", err)
	}
	gorgonia.WithName("encoder_loss")(cost)

	var latentOut, reconstructionOut, costOut gorgonia.Value
	gorgonia.Read(composite.LatentOut(), &latentOut)
	gorgonia.Read(composite.Out(), &reconstructionOut)
	gorgonia.Read(cost, &costOut)

	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	if err := gorgonia.Let(input, batch.Data); err != nil {
		log.Fatalf("set input: %v", err)
	}
	if err := tm.RunAll(); err != nil {
		log.Fatalf("run graph: %v", err)
	}
	tm.Reset()
	log.Printf("reconstruction loss: %v", costOut)

	img, err := ganenc.TensorToImage(reconstructionOut.(tensor.Tensor), 0, encCfg.ImageShape)
	if err != nil {
		log.Fatalf("convert reconstruction: %v", err)
	}
	if err := ganenc.SaveImage(img, cfg.ReconstructionFile); err != nil {
		log.Fatalf("save reconstruction: %v", err)
	}
	if err := ganenc.PlotLatent(latentOut.(tensor.Tensor), 0, cfg.LatentPlotFile); err != nil {
		log.Fatalf("plot latent vector: %v", err)
	}
	log.Printf("reconstruction saved to %s, latent vector plotted to %s", cfg.ReconstructionFile, cfg.LatentPlotFile)
}
