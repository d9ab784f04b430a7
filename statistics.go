package gan_encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// BatchStatistics Per-channel mean and variance of the batch seen by batch normalization layer.
// Values are filled by graph execution.
type BatchStatistics struct {
	Layer    *Layer
	Mean     gorgonia.Value
	Variance gorgonia.Value
}

// Update Moves running statistics of the layer towards the batch ones:
//
//	running = momentum*running + (1-momentum)*batch
//
// Nothing is done when layer is in testing mode.
func (s *BatchStatistics) Update() error {
	l := s.Layer
	if l == nil || !l.Training() {
		return nil
	}
	if s.Mean == nil || s.Variance == nil {
		return fmt.Errorf("Batch statistics of layer '%s' are not evaluated yet. Run the graph first", l.Name)
	}
	if l.MeanNode == nil || l.VarianceNode == nil {
		return fmt.Errorf("Layer '%s' has no running statistics", l.Name)
	}
	if err := movingAverage(l.MeanNode.Value(), s.Mean, l.momentum()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't update running mean of layer '%s'", l.Name))
	}
	if err := movingAverage(l.VarianceNode.Value(), s.Variance, l.momentum()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't update running variance of layer '%s'", l.Name))
	}
	return nil
}

// movingAverage Updates running values in place
func movingAverage(running, batch gorgonia.Value, momentum float64) error {
	if running == nil {
		return fmt.Errorf("Running value is nil")
	}
	switch r := running.Data().(type) {
	case []float64:
		b, ok := batch.Data().([]float64)
		if !ok || len(b) != len(r) {
			return fmt.Errorf("Batch value %v doesn't match running one %v", batch.Shape(), running.Shape())
		}
		for i := range r {
			r[i] = momentum*r[i] + (1-momentum)*b[i]
		}
	case []float32:
		b, ok := batch.Data().([]float32)
		if !ok || len(b) != len(r) {
			return fmt.Errorf("Batch value %v doesn't match running one %v", batch.Shape(), running.Shape())
		}
		m := float32(momentum)
		for i := range r {
			r[i] = m*r[i] + (1-m)*b[i]
		}
	default:
		return fmt.Errorf("Running values of type %T are not supported", running.Data())
	}
	return nil
}
