package gan_encoder

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Abstraction for sequential neural network.
//
// Layers - simple sequence of layers
// LossName, Loss - loss the network has been saved with (filled when network is loaded from file)
// out - alias to activated output of last layer
// outputs - activated outputs of every layer from the last Fwd call
// stats - batch statistics of batch normalization layers from the last Fwd call
//
type Network struct {
	Name     string
	Layers   []*Layer
	LossName string
	Loss     LossFunc

	out     *gorgonia.Node
	outputs []*gorgonia.Node
	stats   []*BatchStatistics
	applied int
}

// Out Returns reference to output node
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l == nil {
			continue
		}
		for _, n := range []*gorgonia.Node{l.WeightNode, l.BiasNode, l.ScaleNode, l.ShiftNode} {
			if n != nil {
				learnables = append(learnables, n)
			}
		}
	}
	return learnables
}

// Layer Returns layer with given name
func (net *Network) Layer(name string) (*Layer, int, error) {
	for i, l := range net.Layers {
		if l != nil && l.Name == name {
			return l, i, nil
		}
	}
	return nil, -1, fmt.Errorf("No such layer: '%s' [%s]", name, net.name())
}

// SetTraining Makes every batch normalization layer use statistics of the current batch
func (net *Network) SetTraining() error {
	for i, l := range net.Layers {
		if l == nil {
			continue
		}
		if err := l.SetTraining(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't switch layer #%d into training mode [%s]", i, net.name()))
		}
	}
	return nil
}

// SetTesting Makes every batch normalization layer use running statistics
func (net *Network) SetTesting() error {
	for i, l := range net.Layers {
		if l == nil {
			continue
		}
		if err := l.SetTesting(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't switch layer #%d into testing mode [%s]", i, net.name()))
		}
	}
	return nil
}

// UpdateStatistics Moves running statistics of batch normalization layers towards statistics of the batch
// from the last graph execution. Only the graph built by Fwd is taken into account. Call it after every
// training step.
func (net *Network) UpdateStatistics() error {
	for _, stats := range net.stats {
		if err := stats.Update(); err != nil {
			return errors.Wrap(err, fmt.Sprintf("[%s]", net.name()))
		}
	}
	return nil
}

func (net *Network) name() string {
	if net.Name != "" {
		return net.Name
	}
	return "network"
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *Network) Fwd(input *gorgonia.Node, batchSize int) error {
	outputs, stats, err := net.apply(input, batchSize, len(net.Layers)-1, net.name())
	if err != nil {
		return err
	}
	net.stats = stats
	net.outputs = outputs
	net.out = outputs[len(outputs)-1]
	return nil
}

// Apply Builds feedforward graph for provided input without touching Out().
// Weights are shared between every application of the network.
//
// until - name of the last layer to apply. Empty string means whole network
//
func (net *Network) Apply(input *gorgonia.Node, batchSize int, until string) (*gorgonia.Node, error) {
	last := len(net.Layers) - 1
	if until != "" {
		_, idx, err := net.Layer(until)
		if err != nil {
			return nil, err
		}
		last = idx
	}
	net.applied++
	outputs, _, err := net.apply(input, batchSize, last, fmt.Sprintf("%s_apply%d", net.name(), net.applied))
	if err != nil {
		return nil, err
	}
	return outputs[len(outputs)-1], nil
}

func (net *Network) apply(input *gorgonia.Node, batchSize int, last int, prefix string) ([]*gorgonia.Node, []*BatchStatistics, error) {
	if len(net.Layers) == 0 {
		return nil, nil, fmt.Errorf("Network must have one layer atleast [%s]", net.name())
	}
	if input == nil {
		return nil, nil, fmt.Errorf("Input node is nil [%s]", net.name())
	}
	if batchSize < 1 {
		return nil, nil, fmt.Errorf("Batch size must be positive, but got %d [%s]", batchSize, net.name())
	}
	outputs := make([]*gorgonia.Node, 0, last+1)
	stats := []*BatchStatistics{}
	lastActivatedLayer := input
	for i := 0; i <= last; i++ {
		l := net.Layers[i]
		if l == nil {
			return nil, nil, fmt.Errorf("Network's layer #%d is nil [%s]", i, net.name())
		}
		// Feedforward input through i-th layer
		layerNonActivated, layerStats, err := l.Fwd(lastActivatedLayer, batchSize)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d '%s'] Can't feedforward input before activation", net.name(), i, l.Name))
		}
		if layerStats != nil {
			stats = append(stats, layerStats)
		}
		if layerNonActivated != lastActivatedLayer {
			gorgonia.WithName(fmt.Sprintf("%s_%d", prefix, i))(layerNonActivated)
		}
		// Activate i-th layer's output
		layerActivated, err := l.activate(layerNonActivated)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("Can't apply activation function to non-activated output of %s's layer #%d", net.name(), i))
		}
		if layerActivated != layerNonActivated {
			gorgonia.WithName(fmt.Sprintf("%s_activated_%d", prefix, i))(layerActivated)
		}
		outputs = append(outputs, layerActivated)
		lastActivatedLayer = layerActivated
	}
	return outputs, stats, nil
}

// Summary Prints table of layers: name, type, output shape (after Fwd) and number of parameters (running statistics included)
func (net *Network) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Network: %s\n", net.name())
	fmt.Fprintln(tw, "Layer\tType\tOutput shape\tParams")
	total := 0
	for i, l := range net.Layers {
		if l == nil {
			continue
		}
		params := 0
		for _, n := range []*gorgonia.Node{l.WeightNode, l.BiasNode, l.ScaleNode, l.ShiftNode, l.MeanNode, l.VarianceNode} {
			if n != nil {
				params += n.Shape().TotalSize()
			}
		}
		total += params
		shape := "?"
		if i < len(net.outputs) {
			shape = fmt.Sprintf("%v", net.outputs[i].Shape())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", l.Name, l.Type, shape, params)
	}
	fmt.Fprintf(tw, "Total params: %d\n", total)
	return tw.Flush()
}
