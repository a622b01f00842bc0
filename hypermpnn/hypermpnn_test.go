package hypermpnn

import (
	"math"
	"os"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/ctxtest"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/fychen32/MolHGCN/hypergraph"

	_ "github.com/gomlx/gomlx/backends/default"
)

func init() {
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		// For testing, we use the CPU backend (and avoid GPU if not explicitly requested).
		must.M(os.Setenv(backends.ConfigEnvVar, "xla:cpu"))
	}
}

func TestWeightedSumAndMax(t *testing.T) {
	// With zero-initialized scoring weights every sigmoid score is 0.5, so the
	// weighted sum is half the per-molecule sum. Molecule 2 has no rows and
	// must read out as zeros; the masked row must not leak into molecule 0.
	ctxtest.RunTestGraphFn(t, "WeightedSumAndMax",
		func(ctx *context.Context, g *Graph) (inputs, outputs []*Node) {
			ctx = ctx.WithInitializer(initializers.Zero)
			x := Const(g, [][]float32{{1, 2}, {3, 4}, {5, 6}, {9, 9}})
			mask := Const(g, []bool{true, true, true, false})
			graphIDs := Const(g, []int32{0, 0, 1, 0})
			inputs = []*Node{x}
			outputs = []*Node{WeightedSumAndMax(ctx, x, mask, graphIDs, 3)}
			return
		}, []any{
			[][]float32{
				{2, 3, 3, 4},
				{2.5, 3, 5, 6},
				{0, 0, 0, 0},
			},
		}, 1e-6)
}

// newTestContext returns a context with a small model configuration.
func newTestContext() *context.Context {
	ctx := context.New()
	ctx.RngStateFromSeed(7)
	ctx.SetParams(map[string]any{
		ParamNodeDim:                8,
		ParamEdgeDim:                6,
		ParamGroupDim:               10,
		ParamNumRounds:              2,
		ParamHiddenLayers:           "16",
		ParamOutputDim:              1,
		layers.ParamNormalization:   "layer",
		activations.ParamActivation: "leaky_relu",
	})
	return ctx
}

// execModel runs ModelGraph on the batch, creating (or reusing) the variables
// held by ctx.
func execModel(ctx *context.Context, batch *hypergraph.Batch) *tensors.Tensor {
	backend := graphtest.BuildTestBackend()
	spec := batch.Spec()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
		return ModelGraph(ctx, spec, inputs)[0]
	})
	args := make([]any, 0, 13)
	for _, input := range batch.Inputs() {
		args = append(args, input)
	}
	return exec.MustExec(args...)[0]
}

func predictions(t *testing.T, result *tensors.Tensor) []float32 {
	rows, ok := result.Value().([][]float32)
	require.True(t, ok, "expected a [numGraphs][1] float32 tensor, got %s", result.Shape())
	out := make([]float32, len(rows))
	for i, row := range rows {
		require.Len(t, row, 1)
		require.False(t, math.IsNaN(float64(row[0])), "prediction %d is NaN", i)
		out[i] = row[0]
	}
	return out
}

func testMolecule() *hypergraph.Graph {
	split := hypergraph.GenerateSynthetic(hypergraph.SyntheticConfig{
		NumGraphs: 1,
		AtomDim:   5, BondDim: 3, GroupDim: 4,
		MinAtoms: 6, MaxAtoms: 6,
		Seed: 3,
	})
	return split.Graphs[0]
}

func TestModelGraphPermutationInvariance(t *testing.T) {
	g := testMolecule()
	perm := []int32{3, 0, 5, 1, 4, 2}
	permuted := must.M1(g.PermuteAtoms(perm))

	budgets := hypergraph.FitBudgets([]*hypergraph.Graph{g}, 1)
	ctx := newTestContext()
	base := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{g}, []float32{0}, 5, 3, 4, budgets))))
	relabeled := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{permuted}, []float32{0}, 5, 3, 4, budgets))))
	require.InDelta(t, base[0], relabeled[0], 1e-4,
		"prediction changed when atoms were renumbered")
}

func TestModelGraphBatchIndependence(t *testing.T) {
	splits := hypergraph.GenerateSynthetic(hypergraph.SyntheticConfig{
		NumGraphs: 2,
		AtomDim:   5, BondDim: 3, GroupDim: 4,
		MinAtoms: 4, MaxAtoms: 8,
		Seed: 11,
	})
	g1, g2 := splits.Graphs[0], splits.Graphs[1]
	budgets := hypergraph.FitBudgets(splits.Graphs, 2)

	ctx := newTestContext()
	pair := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{g1, g2}, []float32{0, 0}, 5, 3, 4, budgets))))
	solo1 := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{g1}, []float32{0}, 5, 3, 4, budgets))))
	solo2 := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{g2}, []float32{0}, 5, 3, 4, budgets))))
	require.InDelta(t, solo1[0], pair[0], 1e-4, "batching changed the prediction of molecule 1")
	require.InDelta(t, solo2[0], pair[1], 1e-4, "batching changed the prediction of molecule 2")
}

func TestModelGraphZeroGroups(t *testing.T) {
	// A molecule with no functional groups must still produce a finite
	// prediction: its group readout is all zeros.
	g := testMolecule()
	g.GroupFeatures = nil
	g.MemberAtoms = nil
	g.MemberGroups = nil
	budgets := hypergraph.FitBudgets([]*hypergraph.Graph{g}, 1)

	ctx := newTestContext()
	out := predictions(t, execModel(ctx, must.M1(
		hypergraph.NewBatch([]*hypergraph.Graph{g}, []float32{0}, 5, 3, 4, budgets))))
	require.Len(t, out, 1)
}

func TestModelGraphDeterminism(t *testing.T) {
	g := testMolecule()
	budgets := hypergraph.FitBudgets([]*hypergraph.Graph{g}, 1)
	batch := must.M1(hypergraph.NewBatch([]*hypergraph.Graph{g}, []float32{0}, 5, 3, 4, budgets))

	// Two independently initialized models with the same seed must agree.
	first := predictions(t, execModel(newTestContext(), batch))
	second := predictions(t, execModel(newTestContext(), batch))
	require.Equal(t, first, second)
}

func TestModelGraphBadInputs(t *testing.T) {
	g := testMolecule()
	budgets := hypergraph.FitBudgets([]*hypergraph.Graph{g}, 1)
	batch := must.M1(hypergraph.NewBatch([]*hypergraph.Graph{g}, []float32{0}, 5, 3, 4, budgets))

	// A spec disagreeing with the actual tensor shapes is a fatal
	// configuration error.
	badSpec := batch.Spec()
	badSpec.AtomDim++
	require.Panics(t, func() {
		backend := graphtest.BuildTestBackend()
		ctx := newTestContext()
		exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
			return ModelGraph(ctx, badSpec, inputs)[0]
		})
		args := make([]any, 0, 13)
		for _, input := range batch.Inputs() {
			args = append(args, input)
		}
		exec.MustExec(args...)
	})

	// Wrong number of inputs.
	require.Panics(t, func() {
		backend := graphtest.BuildTestBackend()
		ctx := newTestContext()
		exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
			return ModelGraph(ctx, batch.Spec(), inputs[:5])[0]
		})
		args := make([]any, 0, 13)
		for _, input := range batch.Inputs() {
			args = append(args, input)
		}
		exec.MustExec(args...)
	})
}
