package molhgcn

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/fychen32/MolHGCN/hypergraph"
	"github.com/fychen32/MolHGCN/hypermpnn"
)

// splitNames on disk. The validation split is named "val" by the featurization
// pipeline.
var splitNames = []string{"train", "val", "test"}

// loadSplits reads the train, validation and test splits for the configured
// dataset and variant. Missing or corrupt files are fatal.
func loadSplits(ctx *context.Context, dataDir string) (trainSplit, valSplit, testSplit *hypergraph.Split) {
	dataset := context.GetParamOr(ctx, "dataset", "")
	if dataset == "" {
		exceptions.Panicf(`Parameter "dataset" must be set`)
	}
	variant := hypergraph.Variant{
		NoInitialGroupFeatures: !context.GetParamOr(ctx, "init_group_features", true),
		NoCycles:               !context.GetParamOr(ctx, "fg_cycles", true),
	}
	splits := make([]*hypergraph.Split, len(splitNames))
	for i, name := range splitNames {
		splits[i] = must.M1(hypergraph.LoadSplit(hypergraph.SplitPath(dataDir, dataset, name, variant)))
	}
	return splits[0], splits[1], splits[2]
}

// TrainModel trains the HyperMPNN regressor with the hyperparameters in ctx.
// paramsSet lists hyperparameters set on the command line, which are excluded
// from checkpoint loading so they keep their new values when resuming.
func TrainModel(ctx *context.Context, dataDir, checkpointPath string, paramsSet []string, evaluateOnEnd bool, verbosity int) {
	dataDir = fsutil.MustReplaceTildeInDir(dataDir)
	if !fsutil.MustFileExists(dataDir) {
		must.M(os.MkdirAll(dataDir, 0777))
	}
	trainSplit, valSplit, testSplit := loadSplits(ctx, dataDir)

	if context.GetParamOr(ctx, "standardize_labels", false) {
		stats := hypergraph.ComputeLabelStats(trainSplit)
		trainSplit = stats.StandardizeLabels(trainSplit)
		valSplit = stats.StandardizeLabels(valSplit)
		testSplit = stats.StandardizeLabels(testSplit)
		if verbosity >= 1 {
			fmt.Printf("Labels standardized: mean=%.4f stddev=%.4f\n", stats.Mean, stats.StdDev)
		}
	}

	// Backend handles creation of ML computation graphs, accelerator resources, etc.
	backend := backends.MustNew()
	if verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	batchSize := context.GetParamOr(ctx, "batch_size", 0)
	if batchSize <= 0 {
		exceptions.Panicf("Batch size must be > 0 (maybe it was not set?): %d", batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, "eval_batch_size", 0)
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	workers := context.GetParamOr(ctx, "data_workers", 3)

	trainDataset := must.M1(NewDataset("train", trainSplit, batchSize,
		hypergraph.FitBudgets(trainSplit.Graphs, batchSize)))
	stepsPerEpoch := trainDataset.NumBatchesPerEpoch()
	trainDS := parallelize(trainDataset.Shuffle().Infinite(), workers)
	newEvalDS := func(name string, split *hypergraph.Split) train.Dataset {
		ds := must.M1(NewDataset(name, split, evalBatchSize,
			hypergraph.FitBudgets(split.Graphs, evalBatchSize)))
		return parallelize(ds, workers)
	}
	trainEvalDS := newEvalDS("train-eval", trainSplit)
	valEvalDS := newEvalDS("val", valSplit)
	testEvalDS := newEvalDS("test", testSplit)

	// The warm-restart period is configured in epochs, the schedule itself
	// advances per step.
	if context.GetParamOr(ctx, cosineschedule.ParamPeriodSteps, 0) == 0 {
		if t0 := context.GetParamOr(ctx, "cosine_t0_epochs", 0); t0 > 0 {
			ctx.SetParam(cosineschedule.ParamPeriodSteps, t0*stepsPerEpoch)
		}
	}

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, dataDir).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromLoading...)...).
			Done())
		fmt.Printf("Checkpoint: %q\n", checkpoint.Dir())
		saveRunConfig(ctx, checkpoint.Dir())
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	trainer := train.NewTrainer(backend, ctx, hypermpnn.ModelGraph,
		losses.MeanSquaredError,
		optimizers.FromContext(ctx),
		[]metrics.Interface{NewRMSEMetric("Train RMSE", "rmse")}, // trainMetrics
		[]metrics.Interface{NewRMSEMetric("RMSE", "rmse")})       // evalMetrics

	loop := train.NewLoop(trainer)
	if verbosity >= 0 {
		commandline.AttachProgressBar(loop)
	}

	// Checkpoint saving: every 3 minutes of training, plus optionally every
	// checkpoint_steps steps.
	if checkpoint != nil {
		train.PeriodicCallback(loop, 3*time.Minute, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
		if every := context.GetParamOr(ctx, "checkpoint_steps", 0); every > 0 {
			train.EveryNSteps(loop, every, "periodic checkpoint", 100,
				func(loop *train.Loop, metrics []*tensors.Tensor) error {
					return checkpoint.Save()
				})
		}
	}

	// Metrics logging: every log_every_steps training steps, evaluate on the
	// validation and test splits and record lr, loss and the RMSEs.
	var pointsWriter chan<- plots.Point
	var writerErr <-chan error
	if checkpoint != nil && context.GetParamOr(ctx, "plots", false) {
		pointsWriter, writerErr = plots.CreatePointsWriter(
			filepath.Join(checkpoint.Dir(), plots.TrainingPlotFileName))
	}
	if every := context.GetParamOr(ctx, "log_every_steps", 0); every > 0 {
		train.EveryNSteps(loop, every, "metrics logging", 80,
			func(loop *train.Loop, trainMetrics []*tensors.Tensor) error {
				return logMetrics(ctx, loop, trainMetrics, pointsWriter, valEvalDS, testEvalDS)
			})
	}

	numTrainSteps := context.GetParamOr(ctx, "train_epochs", 0) * stepsPerEpoch
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(trainDS, numTrainSteps-globalStep))
		if verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
				loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
			fmt.Printf("\tModel #params: %d, memory: %s\n",
				ctx.NumParameters(), humanize.Bytes(uint64(ctx.Memory())))
		}
	} else {
		fmt.Printf("\t - target train_epochs*%d=%d steps already reached. To train further, increase train_epochs.\n",
			stepsPerEpoch, numTrainSteps)
	}
	if checkpoint != nil {
		must.M(checkpoint.Save())
	}
	if pointsWriter != nil {
		close(pointsWriter)
		must.M(<-writerErr)
	}

	if evaluateOnEnd {
		if verbosity >= 1 {
			fmt.Println()
		}
		must.M(commandline.ReportEval(trainer, trainEvalDS, valEvalDS, testEvalDS))
	}
}

// logMetrics records one row of scalar metrics: learning rate and the training
// metrics as of this step, plus the eval RMSE of each given dataset.
func logMetrics(ctx *context.Context, loop *train.Loop, trainMetrics []*tensors.Tensor,
	pointsWriter chan<- plots.Point, evalDatasets ...train.Dataset) error {
	step := float64(loop.Trainer.GlobalStep())
	addPoint := func(point plots.Point) {
		klog.V(1).Infof("step=%.0f %s=%g", step, point.Short, point.Value)
		if pointsWriter != nil {
			pointsWriter <- point
		}
	}

	if lrVar := ctx.InspectVariable(context.RootScope+optimizers.Scope, optimizers.ParamLearningRate); lrVar != nil {
		addPoint(plots.Point{
			MetricName: "Learning Rate",
			Short:      "lr",
			MetricType: "lr",
			Step:       step,
			Value:      shapes.ConvertTo[float64](lrVar.MustValue().Value()),
		})
	}
	for ii, desc := range loop.Trainer.TrainMetrics() {
		value := shapes.ConvertTo[float64](trainMetrics[ii].Value())
		if math.IsNaN(value) || math.IsInf(value, 0) {
			klog.Warningf("Training metric %q is %f at step %.0f", desc.Name(), value, step)
			continue
		}
		addPoint(plots.Point{
			MetricName: "Train: " + desc.Name(),
			Short:      fmt.Sprintf("T/%s", desc.ShortName()),
			MetricType: desc.MetricType(),
			Step:       step,
			Value:      value,
		})
	}
	for _, ds := range evalDatasets {
		evalMetrics, err := loop.Trainer.Eval(ds)
		if err != nil {
			return err
		}
		for ii, desc := range loop.Trainer.EvalMetrics() {
			addPoint(plots.Point{
				MetricName: fmt.Sprintf("%s on %s", desc.Name(), ds.Name()),
				Short:      fmt.Sprintf("%s(%s)", desc.ShortName(), ds.Name()),
				MetricType: desc.MetricType(),
				Step:       step,
				Value:      shapes.ConvertTo[float64](evalMetrics[ii].Value()),
			})
		}
	}
	return nil
}

// saveRunConfig writes the full hyperparameter set plus a fresh run id to
// model_config.yaml in the checkpoint directory.
func saveRunConfig(ctx *context.Context, dir string) {
	config := map[string]any{"run_id": uuid.NewString()}
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope == context.RootScope {
			config[key] = value
		} else {
			config[scope+context.ScopeSeparator+key] = value
		}
	})
	encoded := must.M1(yaml.Marshal(config))
	must.M(os.WriteFile(filepath.Join(dir, "model_config.yaml"), encoded, 0666))
}
