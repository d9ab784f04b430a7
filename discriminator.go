package gan_encoder

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DefaultFeatureLayer Name of discriminator's layer which output is used for perceptual loss
const DefaultFeatureLayer = "feature_extractor"

// DiscriminatorNet Abstraction for pre-trained discriminator part of GAN. It's simple neural network actually.
//
// FeatureLayer - name of layer which output is considered as feature map
//
type DiscriminatorNet struct {
	FeatureLayer string
	private      *Network
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(Layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{
		FeatureLayer: DefaultFeatureLayer,
		private: &Network{
			Name:   "discriminator",
			Layers: Layers,
		},
	}
}

// DiscriminatorFromNetwork Wraps already defined (e.g. loaded) network
func DiscriminatorFromNetwork(net *Network) *DiscriminatorNet {
	return &DiscriminatorNet{
		FeatureLayer: DefaultFeatureLayer,
		private:      net,
	}
}

// Network Returns underlying network
func (net *DiscriminatorNet) Network() *Network {
	return net.private
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}

// Features Builds intermediate model: input => ... => FeatureLayer's activated output
func (net *DiscriminatorNet) Features(input *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	features, err := net.private.Apply(input, batchSize, net.FeatureLayer)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator, features]")
	}
	return features, nil
}
