package gan_encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// runGraph binds values, runs tape machine once and returns copies of requested nodes' values
func runGraph(t *testing.T, g *gorgonia.ExprGraph, lets map[*gorgonia.Node]tensor.Tensor, read ...*gorgonia.Node) []gorgonia.Value {
	t.Helper()
	values := make([]gorgonia.Value, len(read))
	for i := range read {
		gorgonia.Read(read[i], &values[i])
	}
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	for n, v := range lets {
		require.NoError(t, gorgonia.Let(n, v))
	}
	require.NoError(t, tm.RunAll())
	out := make([]gorgonia.Value, len(values))
	for i := range values {
		require.NotNil(t, values[i])
		cloned, err := gorgonia.CloneValue(values[i])
		require.NoError(t, err)
		out[i] = cloned
	}
	return out
}

func float64s(t *testing.T, v gorgonia.Value) []float64 {
	t.Helper()
	switch data := v.Data().(type) {
	case []float64:
		return data
	case float64:
		return []float64{data}
	default:
		t.Fatalf("unexpected value data %T", v.Data())
		return nil
	}
}

func denseOf(shape []int, data ...float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}
