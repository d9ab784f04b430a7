package main

import (
	"log"
	"math/rand"

	ganenc "github.com/LdDl/gan-encoder"
	"github.com/caarlos0/env/v11"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Writes randomly initialized generator and discriminator in the layout expected by examples/invert
type config struct {
	GeneratorFile     string `env:"ENCODER_GENERATOR_FILE" envDefault:"gen.gob"`
	DiscriminatorFile string `env:"ENCODER_DISCRIMINATOR_FILE" envDefault:"disc.gob"`
	ImageHeight       int    `env:"ENCODER_IMAGE_HEIGHT" envDefault:"32"`
	ImageWidth        int    `env:"ENCODER_IMAGE_WIDTH" envDefault:"32"`
	ImageChannels     int    `env:"ENCODER_IMAGE_CHANNELS" envDefault:"1"`
	LatentSize        int    `env:"ENCODER_LATENT_SIZE" envDefault:"100"`
	Seed              int64  `env:"ENCODER_SEED" envDefault:"1337"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	rand.Seed(cfg.Seed)
	imgShape := ganenc.ImageShape{Height: cfg.ImageHeight, Width: cfg.ImageWidth, Channels: cfg.ImageChannels}

	g := gorgonia.NewGraph()
	objects := ganenc.DefaultCustomObjects()
	generator := defineGenerator(g, imgShape, cfg.LatentSize)
	if err := ganenc.SaveNetwork(generator.Network(), cfg.GeneratorFile, "wasserstein_loss", objects); err != nil {
		log.Fatalf("save generator: %v", err)
	}
	discriminator := defineDiscriminator(g, imgShape)
	if err := ganenc.SaveNetwork(discriminator.Network(), cfg.DiscriminatorFile, "wasserstein_loss", objects); err != nil {
		log.Fatalf("save discriminator: %v", err)
	}
	log.Printf("generator saved to %s, discriminator saved to %s", cfg.GeneratorFile, cfg.DiscriminatorFile)
}

func defineGenerator(g *gorgonia.ExprGraph, imgShape ganenc.ImageShape, latentSize int) *ganenc.GeneratorNet {
	/*
		input(latent,1,1) => flatten(latent) => linear(128, latent) => linear(C*H*W, 128) => reshape(C,H,W)
	*/
	gen_shp0 := tensor.Shape{128, latentSize}
	gen_w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(gen_shp0...), gorgonia.WithName("generator_w0"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	gen_b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 128), gorgonia.WithName("generator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
	gen_shp1 := tensor.Shape{imgShape.Size(), 128}
	gen_w1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(gen_shp1...), gorgonia.WithName("generator_w1"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	return ganenc.Generator(
		[]*ganenc.Layer{
			{
				Name:       "flatten",
				Type:       ganenc.LayerFlatten,
				Activation: ganenc.NoActivation,
			},
			{
				Name:       "dense_0",
				WeightNode: gen_w0,
				BiasNode:   gen_b0,
				Type:       ganenc.LayerLinear,
				Activation: ganenc.LeakyReLU,
				Options:    ganenc.Options{Alpha: 0.2},
			},
			{
				Name:       "dense_1",
				WeightNode: gen_w1,
				Type:       ganenc.LayerLinear,
				Activation: ganenc.Tanh,
			},
			{
				Name:        "image",
				Type:        ganenc.LayerReshape,
				Activation:  ganenc.NoActivation,
				ReshapeDims: []int{imgShape.Channels, imgShape.Height, imgShape.Width},
			},
		}...,
	)
}

func defineDiscriminator(g *gorgonia.ExprGraph, imgShape ganenc.ImageShape) *ganenc.DiscriminatorNet {
	/*
		input(C,H,W) => filters=8,size=3x3,conv(H,W) => filters=8,size=2x2,maxpool(H/2,W/2) [feature_extractor] => flatten => linear(1)
	*/
	dis_shp0 := tensor.Shape{8, imgShape.Channels, 3, 3}
	dis_w0 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(dis_shp0...), gorgonia.WithName("discriminator_w0"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	dis_shp1 := tensor.Shape{1, 8 * (imgShape.Height / 2) * (imgShape.Width / 2)}
	dis_w1 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(dis_shp1...), gorgonia.WithName("discriminator_w1"), gorgonia.WithInit(gorgonia.GlorotN(1.0)))
	return ganenc.Discriminator(
		[]*ganenc.Layer{
			{
				Name:         "conv_0",
				WeightNode:   dis_w0,
				Type:         ganenc.LayerConvolutional,
				Activation:   ganenc.LeakyReLU,
				Options:      ganenc.Options{Alpha: 0.2},
				KernelHeight: 3,
				KernelWidth:  3,
				Padding:      []int{1, 1},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
			{
				Name:         ganenc.DefaultFeatureLayer,
				Type:         ganenc.LayerMaxpool,
				Activation:   ganenc.NoActivation,
				KernelHeight: 2,
				KernelWidth:  2,
				Padding:      []int{0, 0},
				Stride:       []int{2, 2},
			},
			{
				Name:       "flatten",
				Type:       ganenc.LayerFlatten,
				Activation: ganenc.NoActivation,
			},
			{
				Name:       "score",
				WeightNode: dis_w1,
				Type:       ganenc.LayerLinear,
				Activation: ganenc.NoActivation,
			},
		}...,
	)
}
