package hypermpnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// weightedSumPool sums rows per molecule, each row weighted by a learned
// sigmoid score. x is [n, dim], mask and graphIDs are [n]; the result is
// [numGraphs, dim]. Molecules without any valid row pool to zero.
func weightedSumPool(ctx *context.Context, x, mask, graphIDs *Node, numGraphs int) *Node {
	weights := Sigmoid(layers.DenseWithBias(ctx, x, 1))
	return scatterSumByIndex(Mul(x, weights), graphIDs, mask, numGraphs)
}

// WeightedSumAndMax reduces one component type (atoms or groups) to a fixed
// vector per molecule: the learned-weight sum concatenated with the elementwise
// maximum over the molecule's rows. Pooling never mixes rows of different
// molecules. A molecule with no valid rows reads out as all zeros, for the max
// as well as the sum.
func WeightedSumAndMax(ctx *context.Context, x, mask, graphIDs *Node, numGraphs int) *Node {
	sum := weightedSumPool(ctx.In("weighted_sum"), x, mask, graphIDs, numGraphs)

	counts := scatterSumByIndex(OnesLike(Slice(x, AxisRange(), AxisElem(0))), graphIDs, mask, numGraphs)
	hasRows := Squeeze(GreaterThan(counts, ZerosLike(counts)), -1)
	max := scatterMaxByIndex(x, graphIDs, mask, hasRows, numGraphs)
	return Concatenate([]*Node{sum, max}, -1)
}
