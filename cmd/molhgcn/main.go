// Trainer for the HyperMPNN molecular property regressor.
//
// It expects the featurized dataset splits under --data (see the hypergraph
// package for the file layout), or can generate a synthetic dataset with
// --synthetic to exercise the pipeline end to end:
//
//	$ molhgcn --synthetic --set="dataset=synthetic;train_epochs=10"
//	$ molhgcn --data=~/work/molhgcn --checkpoint=run01 --set="dataset=freesolv"
package main

import (
	"flag"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	molhgcn "github.com/fychen32/MolHGCN"
	"github.com/fychen32/MolHGCN/hypergraph"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir    = flag.String("data", "~/work/molhgcn", "Directory holding the featurized dataset splits and checkpoints.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save and load checkpoints from. If left empty, no checkpoints are created.")
	flagEval       = flag.Bool("eval", true, "Whether to evaluate the model on the train, validation and test splits at the end.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
	flagSynthetic  = flag.Bool("synthetic", false, "Generate a synthetic dataset before training, if its files don't exist yet.")
)

func main() {
	ctx := molhgcn.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	err := exceptions.TryCatch[error](func() {
		if *flagSynthetic {
			generateSynthetic(ctx, *flagDataDir)
		}
		molhgcn.TrainModel(ctx, *flagDataDir, *flagCheckpoint, paramsSet, *flagEval, *flagVerbosity)
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

// syntheticSplitSizes gives the number of molecules generated per split.
var syntheticSplitSizes = map[string]int{"train": 1024, "val": 128, "test": 128}

// generateSynthetic writes synthetic train/val/test splits for the configured
// dataset name and variant, skipping splits whose files already exist.
func generateSynthetic(ctx *context.Context, dataDir string) {
	dataset := context.GetParamOr(ctx, "dataset", "synthetic")
	variant := hypergraph.Variant{
		NoInitialGroupFeatures: !context.GetParamOr(ctx, "init_group_features", true),
		NoCycles:               !context.GetParamOr(ctx, "fg_cycles", true),
	}
	cfg := hypergraph.DefaultSyntheticConfig()
	for split, numGraphs := range syntheticSplitSizes {
		path := hypergraph.SplitPath(dataDir, dataset, split, variant)
		if fsutil.MustFileExists(fsutil.MustReplaceTildeInDir(path)) {
			continue
		}
		cfg.NumGraphs = numGraphs
		cfg.Seed = uint64(len(split)) // distinct but deterministic per split
		must.M(hypergraph.SaveSplit(path, hypergraph.GenerateSynthetic(cfg)))
		klog.Infof("Generated synthetic split %q with %d molecules", path, numGraphs)
	}
}
