package hypergraph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	base := "datasets"
	assert.Equal(t, filepath.Join(base, "data", "freesolv_train.bin"),
		SplitPath(base, "freesolv", "train", Variant{}))
	assert.Equal(t, filepath.Join(base, "data", "noinit_freesolv_valid.bin"),
		SplitPath(base, "freesolv", "valid", Variant{NoInitialGroupFeatures: true}))
	assert.Equal(t, filepath.Join(base, "data_nocyc", "nocyc_esol_test.bin"),
		SplitPath(base, "esol", "test", Variant{NoCycles: true}))
	assert.Equal(t, filepath.Join(base, "data_nocyc", "nocyc_noinit_esol_test.bin"),
		SplitPath(base, "esol", "test", Variant{NoCycles: true, NoInitialGroupFeatures: true}))
}

func TestSaveLoadSplit(t *testing.T) {
	split := GenerateSynthetic(SyntheticConfig{
		NumGraphs: 8,
		AtomDim:   5, BondDim: 2, GroupDim: 3,
		MinAtoms: 3, MaxAtoms: 6,
		Seed: 17,
	})
	path := SplitPath(t.TempDir(), "synthetic", "train", Variant{})
	require.NoError(t, SaveSplit(path, split))

	loaded, err := LoadSplit(path)
	require.NoError(t, err)
	assert.Equal(t, split.Labels, loaded.Labels)
	assert.Equal(t, split.Graphs, loaded.Graphs)
}

func TestLoadSplitMissing(t *testing.T) {
	_, err := LoadSplit(filepath.Join(t.TempDir(), "data", "nope_train.bin"))
	require.ErrorContains(t, err, "failed to open dataset split")
}
