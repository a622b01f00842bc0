// Package molhgcn trains a hypergraph message-passing network (HyperMPNN) for
// molecular property regression: molecules are heterogeneous hypergraphs of
// atoms, bonds and functional groups, and the model predicts one scalar
// property per molecule.
//
// The packages split as follows: hypergraph holds the graph data model, disk
// format and fixed-shape batching; hypermpnn builds the model computation
// graph; and this package drives training and evaluation.
package molhgcn

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/regularizers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/fychen32/MolHGCN/hypermpnn"
)

// DType used by the model.
var DType = dtypes.Float32

// ParamsExcludedFromLoading are the hyperparameters not saved along with model
// checkpoints, so they may be overridden in further training sessions.
var ParamsExcludedFromLoading = []string{
	"data_dir", "train_epochs", "num_checkpoints", "plots", "data_workers",
}

// CreateDefaultContext sets the context with the default hyperparameters to
// use with TrainModel.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	ctx.SetParams(map[string]any{
		// Dataset selection: name plus the two feature-configuration flags that
		// pick one of the four pre-featurized file variants on disk.
		"dataset":             "freesolv",
		"data_dir":            "~/work/molhgcn",
		"init_group_features": true, // use the featurized functional-group features
		"fg_cycles":           true, // include ring-derived functional groups

		// Training length and cadence. T_0 of the warm-restart schedule is
		// given in epochs and converted to steps from the train split size.
		"train_epochs":     2400,
		"batch_size":       128,
		"eval_batch_size":  512,
		"log_every_steps":  50,
		"checkpoint_steps": 0, // additional per-step checkpoint cadence, 0 to rely on the periodic saves
		"num_checkpoints":  3,
		"cosine_t0_epochs": 50,

		// Data loading worker pool.
		"data_workers": 3,

		// If true, labels are standardized to the train split statistics and
		// metrics are reported on the standardized scale.
		"standardize_labels": false,

		"plots": true,

		layers.ParamNormalization:       "layer",
		optimizers.ParamOptimizer:       "adam",
		optimizers.ParamLearningRate:    1e-3,
		optimizers.ParamAdamEpsilon:     1e-8,
		cosineschedule.ParamPeriodSteps: 0, // set by TrainModel from cosine_t0_epochs
		activations.ParamActivation:     "leaky_relu",
		regularizers.ParamL2:            0.0,

		// HyperMPNN architecture.
		hypermpnn.ParamNodeDim:              64,
		hypermpnn.ParamEdgeDim:              64,
		hypermpnn.ParamGroupDim:             64,
		hypermpnn.ParamNumRounds:            1,
		hypermpnn.ParamHiddenLayers:         "128,64",
		hypermpnn.ParamDropoutRate:          0.0,
		hypermpnn.ParamRegressorDropoutRate: 0.0,
		hypermpnn.ParamOutputDim:            1,
	})
	return ctx
}
