// Package hypermpnn implements a hypergraph message-passing neural network for
// molecules: atoms exchange messages along bonds, and functional-group
// hyperedges exchange messages with their member atoms. One round updates bond,
// atom, membership-edge and group embeddings in turn, each through a learned
// feed-forward block, with identity-activation gates weighting the
// aggregations.
//
// The model operates on the fixed-shape batch arena produced by the hypergraph
// package: flat embedding matrices per component type, index slices for
// connectivity and boolean masks marking real entries among the padding.
package hypermpnn

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"

	"github.com/fychen32/MolHGCN/hypergraph"
)

var (
	// ParamNodeDim is the atom embedding dimension hyperparameter.
	ParamNodeDim = "hgnn_node_dim"

	// ParamEdgeDim is the bond embedding dimension hyperparameter.
	ParamEdgeDim = "hgnn_edge_dim"

	// ParamGroupDim is the functional-group embedding dimension hyperparameter.
	ParamGroupDim = "hgnn_group_dim"

	// ParamNumRounds is the number of message-passing rounds.
	ParamNumRounds = "hgnn_num_rounds"

	// ParamHiddenLayers is a comma-separated list of hidden-layer widths shared
	// by all message and update networks, e.g. "128,64".
	ParamHiddenLayers = "hgnn_num_neurons"

	// ParamDropoutRate is the dropout rate of the message and update networks.
	ParamDropoutRate = "hgnn_dropout_rate"

	// ParamRegressorDropoutRate is the dropout rate of the final regressor.
	ParamRegressorDropoutRate = "hgnn_regressor_dropout_rate"

	// ParamOutputDim is the number of regression targets per molecule.
	ParamOutputDim = "hgnn_output_dim"
)

// Panicf is an alias to exceptions.Panicf: the graph building functions in this
// package report errors by panicking with them, like the rest of the graph API.
var Panicf = exceptions.Panicf

// arena bundles the graph nodes of one batch during model building. Embedding
// fields are replaced as rounds progress; topology and masks are fixed.
type arena struct {
	numGraphs int

	atoms      *Node // [maxAtoms, dim]
	atomMask   *Node // bool [maxAtoms]
	atomGraphs *Node // int32 [maxAtoms]

	bondSources *Node // int32 [maxBonds]
	bondTargets *Node // int32 [maxBonds]
	bonds       *Node // [maxBonds, dim]
	bondMask    *Node // bool [maxBonds]

	groups      *Node // [maxGroups, dim]
	groupMask   *Node // bool [maxGroups]
	groupGraphs *Node // int32 [maxGroups]

	memberAtoms  *Node // int32 [maxMembers]
	memberGroups *Node // int32 [maxMembers]
	memberMask   *Node // bool [maxMembers]
}

// newArena validates the 13 input tensors against spec and bundles them. Shape
// mismatches are fatal configuration errors, reported by panic at graph build
// time.
func newArena(spec hypergraph.Spec, inputs []*Node) *arena {
	if len(inputs) != 13 {
		Panicf("model expects 13 input tensors, got %d", len(inputs))
	}
	b := spec.Budgets
	a := &arena{
		numGraphs:    spec.NumGraphs,
		atoms:        inputs[0],
		atomMask:     inputs[1],
		atomGraphs:   inputs[2],
		bondSources:  inputs[3],
		bondTargets:  inputs[4],
		bonds:        inputs[5],
		bondMask:     inputs[6],
		groups:       inputs[7],
		groupMask:    inputs[8],
		groupGraphs:  inputs[9],
		memberAtoms:  inputs[10],
		memberGroups: inputs[11],
		memberMask:   inputs[12],
	}
	a.atoms.AssertDims(b.MaxAtoms, spec.AtomDim)
	a.atomMask.AssertDims(b.MaxAtoms)
	a.atomGraphs.AssertDims(b.MaxAtoms)
	a.bondSources.AssertDims(b.MaxBonds)
	a.bondTargets.AssertDims(b.MaxBonds)
	a.bonds.AssertDims(b.MaxBonds, spec.BondDim)
	a.bondMask.AssertDims(b.MaxBonds)
	a.groups.AssertDims(b.MaxGroups, spec.GroupDim)
	a.groupMask.AssertDims(b.MaxGroups)
	a.groupGraphs.AssertDims(b.MaxGroups)
	a.memberAtoms.AssertDims(b.MaxMembers)
	a.memberGroups.AssertDims(b.MaxMembers)
	a.memberMask.AssertDims(b.MaxMembers)
	return a
}

// hiddenLayerDims parses ParamHiddenLayers into a width list.
func hiddenLayerDims(ctx *context.Context) []int {
	config := context.GetParamOr(ctx, ParamHiddenLayers, "128,64")
	if config == "" {
		return nil
	}
	parts := strings.Split(config, ",")
	dims := make([]int, 0, len(parts))
	for _, part := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || dim <= 0 {
			Panicf("invalid %s=%q: each entry must be a positive width", ParamHiddenLayers, config)
		}
		dims = append(dims, dim)
	}
	return dims
}

// feedForwardConfig parameterizes the block shared by all message, update and
// gate networks and by the regressor: optional masked input normalization,
// hidden layers with activation and dropout, and a final linear projection.
// Gates set gated and skip the hidden nonlinearity, keeping the whole network
// identity-activated.
type feedForwardConfig struct {
	outputDim   int
	hidden      []int
	gated       bool
	inputNorm   bool
	dropoutRate float64
}

// apply builds the block under ctx. mask selects the valid rows of x: it only
// affects normalization statistics, padded rows still flow through (and are
// masked by the caller's aggregation).
func (cfg feedForwardConfig) apply(ctx *context.Context, x, mask *Node) *Node {
	if cfg.inputNorm {
		x = layers.MaskedNormalizeFromContext(ctx.In("norm"), x, mask)
	}
	for i, dim := range cfg.hidden {
		layerCtx := ctx.Inf("hidden_%d", i)
		x = layers.DenseWithBias(layerCtx, x, dim)
		if !cfg.gated {
			x = activations.ApplyFromContext(layerCtx, x)
		}
		x = layers.DropoutStatic(layerCtx, x, cfg.dropoutRate)
	}
	return layers.DenseWithBias(ctx.In("output"), x, cfg.outputDim)
}

// maskOut zeroes the rows of x where mask is false. mask is rank-1, x rank-2.
func maskOut(x, mask *Node) *Node {
	return Where(mask, x, ZerosLike(x))
}

// scatterSumByIndex sums rows of values into numRows slots keyed by indices,
// dropping masked rows first. values is [n, dim], indices and mask are [n].
func scatterSumByIndex(values, indices, mask *Node, numRows int) *Node {
	values = maskOut(values, mask)
	target := Zeros(values.Graph(), shapeWithRows(values, numRows))
	return ScatterSum(target, InsertAxes(indices, -1), values, false, false)
}

// scatterMaxByIndex takes the row-wise maximum of values into numRows slots
// keyed by indices. Masked rows are replaced by -inf so they never win, and
// slots selected out by targetMask (no valid contributor) come back as zero.
func scatterMaxByIndex(values, indices, mask, targetMask *Node, numRows int) *Node {
	g := values.Graph()
	negInf := Infinity(g, values.DType(), -1)
	values = Where(mask, values, negInf)
	target := BroadcastToShape(negInf, shapeWithRows(values, numRows))
	pooled := ScatterMax(target, InsertAxes(indices, -1), values, false, false)
	return maskOut(pooled, targetMask)
}

func shapeWithRows(values *Node, numRows int) shapes.Shape {
	shape := values.Shape().Clone()
	shape.Dimensions[0] = numRows
	return shape
}
