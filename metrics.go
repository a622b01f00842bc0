package molhgcn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
)

// rmseMetric accumulates the mean squared error over batches and reports its
// square root, so the result is the RMSE over the whole dataset rather than a
// mean of per-batch RMSEs.
type rmseMetric struct {
	*metrics.MeanMetric
}

// NewRMSEMetric returns a root-mean-square-error metric.
func NewRMSEMetric(name, shortName string) metrics.Interface {
	return &rmseMetric{
		MeanMetric: metrics.NewMeanMetric(name, shortName, "rmse",
			func(ctx *context.Context, labels, predictions []*Node) *Node {
				return losses.MeanSquaredError(labels, predictions)
			}, nil),
	}
}

func (m *rmseMetric) UpdateGraph(ctx *context.Context, labels, predictions []*Node) *Node {
	return Sqrt(m.MeanMetric.UpdateGraph(ctx, labels, predictions))
}
