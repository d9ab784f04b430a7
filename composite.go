package gan_encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// EncoderGenerator Sequential composition image => encoder => latent vector => generator => reconstructed image.
//
// encoderPart - encoder network (trainable)
// generatorPart - pre-trained generator which learnables would be ignored during the training process
// latent - encoder's output
// out - generator's output (reconstruction)
//
type EncoderGenerator struct {
	encoderPart   *Network
	generatorPart *GeneratorNet

	latent     *gorgonia.Node
	out        *gorgonia.Node
	learnables gorgonia.Nodes
}

// NewEncoderGenerator Composes encoder and generator. Both should be defined on the same graph.
func NewEncoderGenerator(encoder *Network, generator *GeneratorNet) (*EncoderGenerator, error) {
	if encoder == nil {
		return nil, fmt.Errorf("Encoder is nil")
	}
	if generator == nil || generator.private == nil {
		return nil, fmt.Errorf("Generator is nil")
	}
	return &EncoderGenerator{
		encoderPart:   encoder,
		generatorPart: generator,
		learnables:    encoder.Learnables(),
	}, nil
}

// Out Returns reference to output node (reconstructed image)
func (net *EncoderGenerator) Out() *gorgonia.Node {
	return net.out
}

// LatentOut Returns reference to output node of encoder part
func (net *EncoderGenerator) LatentOut() *gorgonia.Node {
	return net.latent
}

// Learnables Returns learnables nodes. Only encoder's ones: generator is frozen.
func (net *EncoderGenerator) Learnables() gorgonia.Nodes {
	return net.learnables
}

// Encoder Returns encoder part
func (net *EncoderGenerator) Encoder() *Network {
	return net.encoderPart
}

// Generator Returns generator part
func (net *EncoderGenerator) Generator() *GeneratorNet {
	return net.generatorPart
}

// UpdateStatistics Updates running statistics of encoder's batch normalization layers. Generator is frozen
func (net *EncoderGenerator) UpdateStatistics() error {
	return net.encoderPart.UpdateStatistics()
}

// Fwd Initializates feedforward for provided input image
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *EncoderGenerator) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.encoderPart.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[EncoderGenerator, encoder part]")
	}
	net.latent = net.encoderPart.Out()
	reconstruction, err := net.generatorPart.private.Apply(net.latent, batchSize, "")
	if err != nil {
		return errors.Wrap(err, "[EncoderGenerator, generator part]")
	}
	if !reconstruction.Shape().Eq(input.Shape()) {
		return fmt.Errorf("Reconstruction shape %v differs from input shape %v", reconstruction.Shape(), input.Shape())
	}
	net.out = reconstruction
	return nil
}
