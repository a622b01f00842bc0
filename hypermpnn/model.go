package hypermpnn

import (
	"github.com/gomlx/gopjrt/dtypes"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers/cosineschedule"

	"github.com/fychen32/MolHGCN/hypergraph"
)

// ModelGraph builds the full regression model for one batch: feature encoders,
// the configured number of HyperMPNN rounds, WeightedSumAndMax readouts for
// atoms and functional groups, and the final regressor. It implements
// train.ModelFn; spec must be the batch's hypergraph.Spec and inputs the 13
// tensors of hypergraph.Batch.Inputs.
//
// It returns one output, the predictions shaped [numGraphs, outputDim].
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	batchSpec, ok := spec.(hypergraph.Spec)
	if !ok {
		Panicf("model expects a hypergraph.Spec as dataset spec, got %T", spec)
	}
	ctx = ctx.WithInitializer(initializers.GlorotUniformFn(ctx))
	g := inputs[0].Graph()

	// Cosine-annealing learning rate with warm restarts, stepped once per
	// training step. A no-op during evaluation or if the period is unset.
	cosineschedule.New(ctx, g, dtypes.Float32).FromContext().Done()

	// Kernels are reused across rounds' pooling helpers, so scope reuse
	// checking is disabled for the model scope.
	ctx = ctx.In("model").Checked(false)

	nodeDim := context.GetParamOr(ctx, ParamNodeDim, 64)
	edgeDim := context.GetParamOr(ctx, ParamEdgeDim, 64)
	groupDim := context.GetParamOr(ctx, ParamGroupDim, 64)
	numRounds := context.GetParamOr(ctx, ParamNumRounds, 1)
	outputDim := context.GetParamOr(ctx, ParamOutputDim, 1)
	if nodeDim <= 0 || edgeDim <= 0 || groupDim <= 0 || numRounds <= 0 || outputDim <= 0 {
		Panicf("hyperparameters %s, %s, %s, %s and %s must all be positive",
			ParamNodeDim, ParamEdgeDim, ParamGroupDim, ParamNumRounds, ParamOutputDim)
	}

	a := newArena(batchSpec, inputs)

	// Linear encoders lift raw features to the hidden dimensions.
	a.atoms = layers.DenseWithBias(ctx.In("atom_encoder"), a.atoms, nodeDim)
	a.bonds = layers.DenseWithBias(ctx.In("bond_encoder"), a.bonds, edgeDim)
	a.groups = layers.DenseWithBias(ctx.In("group_encoder"), a.groups, groupDim)

	messageCfg := feedForwardConfig{
		hidden:      hiddenLayerDims(ctx),
		inputNorm:   true,
		dropoutRate: context.GetParamOr(ctx, ParamDropoutRate, 0.0),
	}
	for r := range numRounds {
		round(ctx.Inf("round_%d", r), a, messageCfg)
	}

	atomReadout := WeightedSumAndMax(ctx.In("atom_readout"), a.atoms, a.atomMask, a.atomGraphs, a.numGraphs)
	groupReadout := WeightedSumAndMax(ctx.In("group_readout"), a.groups, a.groupMask, a.groupGraphs, a.numGraphs)
	readout := Concatenate([]*Node{atomReadout, groupReadout}, -1)
	readout.AssertDims(a.numGraphs, 2*(nodeDim+groupDim))

	regressorCfg := feedForwardConfig{
		outputDim:   outputDim,
		hidden:      hiddenLayerDims(ctx),
		dropoutRate: context.GetParamOr(ctx, ParamRegressorDropoutRate, 0.0),
	}
	predictions := regressorCfg.apply(ctx.In("regressor"), readout, nil)
	return []*Node{predictions}
}
