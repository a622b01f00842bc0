package hypergraph

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Variant selects one of the dataset preprocessing flavors. Each flavor is a
// separate file on disk, produced by the featurization pipeline.
type Variant struct {
	// NoInitialGroupFeatures replaces functional-group input features with zeros.
	NoInitialGroupFeatures bool
	// NoCycles drops ring-derived functional groups, keeping only pattern-matched ones.
	NoCycles bool
}

// Split is one serialized dataset split (train, validation or test): the graphs
// and their parallel regression labels.
type Split struct {
	Graphs []*Graph
	Labels []float32
}

// FeatureDims returns the feature widths of the split, taking the maximum
// across graphs so that group-less molecules do not hide the group width.
func (s *Split) FeatureDims() (atomDim, bondDim, groupDim int) {
	for _, g := range s.Graphs {
		atomDim = max(atomDim, g.AtomFeatureDim())
		bondDim = max(bondDim, g.BondFeatureDim())
		groupDim = max(groupDim, g.GroupFeatureDim())
	}
	return
}

// SplitPath returns the conventional location of a serialized split under
// baseDir, e.g. "data/freesolv_train.bin" or "data_nocyc/nocyc_noinit_freesolv_test.bin".
func SplitPath(baseDir, dataset, split string, variant Variant) string {
	dir, prefix := "data", ""
	if variant.NoCycles {
		dir, prefix = "data_nocyc", "nocyc_"
	}
	if variant.NoInitialGroupFeatures {
		prefix += "noinit_"
	}
	return filepath.Join(baseDir, dir, fmt.Sprintf("%s%s_%s.bin", prefix, dataset, split))
}

// LoadSplit reads a gob-serialized Split and validates every graph in it.
func LoadSplit(path string) (*Split, error) {
	path = fsutil.MustReplaceTildeInDir(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset split %q", path)
	}
	defer func() { _ = f.Close() }()
	var split Split
	if err := gob.NewDecoder(f).Decode(&split); err != nil {
		return nil, errors.Wrapf(err, "failed to decode dataset split %q", path)
	}
	if len(split.Labels) != len(split.Graphs) {
		return nil, errors.Errorf("split %q has %d labels for %d graphs", path, len(split.Labels), len(split.Graphs))
	}
	for i, g := range split.Graphs {
		if err := g.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "split %q graph %d", path, i)
		}
	}
	return &split, nil
}

// SaveSplit gob-serializes a Split, creating parent directories as needed.
func SaveSplit(path string, split *Split) error {
	path = fsutil.MustReplaceTildeInDir(path)
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create dataset split %q", path)
	}
	if err := gob.NewEncoder(f).Encode(split); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode dataset split %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close dataset split %q", path)
}
