package hypergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph() *Graph {
	return &Graph{
		AtomFeatures: [][]float32{{1, 0}, {0, 1}, {1, 1}},
		BondSources:  []int32{0, 1, 1, 2},
		BondTargets:  []int32{1, 0, 2, 1},
		BondFeatures: [][]float32{{1}, {1}, {2}, {2}},
		GroupFeatures: [][]float32{
			{0.5, 0.5, 0.5},
		},
		MemberAtoms:  []int32{0, 2},
		MemberGroups: []int32{0, 0},
	}
}

func TestGraphValidate(t *testing.T) {
	g := testGraph()
	require.NoError(t, g.Validate())
	assert.Equal(t, 3, g.NumAtoms())
	assert.Equal(t, 4, g.NumBonds())
	assert.Equal(t, 1, g.NumGroups())
	assert.Equal(t, 2, g.NumMembers())
	assert.Equal(t, 2, g.AtomFeatureDim())
	assert.Equal(t, 1, g.BondFeatureDim())
	assert.Equal(t, 3, g.GroupFeatureDim())

	badBond := testGraph()
	badBond.BondTargets[0] = 7
	require.ErrorContains(t, badBond.Validate(), "out of range")

	badMember := testGraph()
	badMember.MemberGroups[1] = 3
	require.ErrorContains(t, badMember.Validate(), "out of range")

	ragged := testGraph()
	ragged.AtomFeatures[1] = []float32{1}
	require.ErrorContains(t, ragged.Validate(), "width")

	unparallel := testGraph()
	unparallel.BondFeatures = unparallel.BondFeatures[:3]
	require.ErrorContains(t, unparallel.Validate(), "parallel")
}

func TestPermuteAtoms(t *testing.T) {
	g := testGraph()
	perm := []int32{2, 0, 1}
	p, err := g.PermuteAtoms(perm)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	// Atom 0 moved to slot 2, atom 2 to slot 1.
	assert.Equal(t, g.AtomFeatures[0], p.AtomFeatures[2])
	assert.Equal(t, g.AtomFeatures[2], p.AtomFeatures[1])
	assert.Equal(t, []int32{2, 0, 0, 1}, p.BondSources)
	assert.Equal(t, []int32{0, 2, 1, 0}, p.BondTargets)
	assert.Equal(t, g.BondFeatures, p.BondFeatures)
	assert.Equal(t, []int32{2, 1}, p.MemberAtoms)
	assert.Equal(t, g.MemberGroups, p.MemberGroups)

	// Applying the inverse permutation restores the original.
	inverse := make([]int32, len(perm))
	for i, v := range perm {
		inverse[v] = int32(i)
	}
	back, err := p.PermuteAtoms(inverse)
	require.NoError(t, err)
	assert.Equal(t, g, back)

	_, err = g.PermuteAtoms([]int32{0, 1})
	require.Error(t, err)
	_, err = g.PermuteAtoms([]int32{0, 0, 1})
	require.ErrorContains(t, err, "not a permutation")
}

func TestFitBudgets(t *testing.T) {
	g := testGraph()
	small := &Graph{AtomFeatures: [][]float32{{0, 0}}}
	b := FitBudgets([]*Graph{g, small}, 4)
	assert.Equal(t, Budgets{MaxAtoms: 12, MaxBonds: 16, MaxGroups: 4, MaxMembers: 8}, b)

	// Budgets never go to zero, scatter targets need at least one slot.
	b = FitBudgets([]*Graph{small}, 2)
	assert.Equal(t, Budgets{MaxAtoms: 2, MaxBonds: 1, MaxGroups: 1, MaxMembers: 1}, b)
}

func TestNewBatch(t *testing.T) {
	g := testGraph()
	budgets := FitBudgets([]*Graph{g}, 2)
	batch, err := NewBatch([]*Graph{g, g}, []float32{1.5, -0.5}, 2, 1, 3, budgets)
	require.NoError(t, err)

	spec := batch.Spec()
	assert.Equal(t, Spec{NumGraphs: 2, AtomDim: 2, BondDim: 1, GroupDim: 3, Budgets: budgets}, spec)

	// Second copy of the graph is offset by the first one's sizes.
	assert.Equal(t, []int32{0, 1, 1, 2, 3, 4, 4, 5}, batch.bondSources)
	assert.Equal(t, []int32{0, 0, 0, 1, 1, 1}, batch.atomGraphIDs)
	assert.Equal(t, []int32{0, 2, 3, 5}, batch.memberAtoms)
	assert.Equal(t, []int32{0, 0, 1, 1}, batch.memberGroups)
	assert.Equal(t, []int32{0, 1}, batch.groupGraphIDs)
	assert.Equal(t, []bool{true, true, true, true, true, true}, batch.atomMask)
	assert.Equal(t, []float32{1, 0, 0, 1, 1, 1, 1, 0, 0, 1, 1, 1}, batch.atomFeatures)

	inputs := batch.Inputs()
	require.Len(t, inputs, 13)
	assert.Equal(t, []int{6, 2}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{8}, inputs[3].Shape().Dimensions)
	labels := batch.Labels()
	require.Len(t, labels, 1)
	assert.Equal(t, []int{2, 1}, labels[0].Shape().Dimensions)

	// Overflowing the budgets is an error, not silent truncation.
	_, err = NewBatch([]*Graph{g, g, g}, []float32{0, 0, 0}, 2, 1, 3, budgets)
	require.ErrorContains(t, err, "overflows")

	// Mismatched feature widths are rejected.
	_, err = NewBatch([]*Graph{g}, []float32{0}, 5, 1, 3, budgets)
	require.ErrorContains(t, err, "feature width")
}

func TestBatchPadding(t *testing.T) {
	// A graph-less-groups molecule padded into larger budgets: padding entries
	// stay masked out and indices stay in range.
	g := &Graph{
		AtomFeatures: [][]float32{{1}, {2}},
		BondSources:  []int32{0},
		BondTargets:  []int32{1},
		BondFeatures: [][]float32{{3}},
	}
	budgets := Budgets{MaxAtoms: 4, MaxBonds: 3, MaxGroups: 2, MaxMembers: 2}
	batch, err := NewBatch([]*Graph{g}, []float32{0.25}, 1, 1, 1, budgets)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, batch.atomMask)
	assert.Equal(t, []bool{true, false, false}, batch.bondMask)
	assert.Equal(t, []bool{false, false}, batch.groupMask)
	assert.Equal(t, []bool{false, false}, batch.memberMask)
	assert.Equal(t, []int32{0, 0, 0}, batch.bondSources)
}

func TestLabelStats(t *testing.T) {
	split := &Split{Labels: []float32{1, 3, 5, 7}}
	stats := ComputeLabelStats(split)
	assert.InDelta(t, 4.0, stats.Mean, 1e-6)

	standardized := stats.StandardizeLabels(split)
	restored := stats.Destandardize(standardized.Labels[2])
	assert.InDelta(t, 5.0, restored, 1e-5)

	// Constant labels keep a unit stddev so standardization stays invertible.
	constant := ComputeLabelStats(&Split{Labels: []float32{2, 2}})
	assert.Equal(t, 1.0, constant.StdDev)
}

func TestGenerateSynthetic(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.NumGraphs = 32
	split := GenerateSynthetic(cfg)
	require.Len(t, split.Graphs, 32)
	require.Len(t, split.Labels, 32)
	for i, g := range split.Graphs {
		require.NoError(t, g.Validate(), "graph %d", i)
		assert.Equal(t, cfg.AtomDim, g.AtomFeatureDim())
	}

	// Same seed, same data.
	again := GenerateSynthetic(cfg)
	assert.Equal(t, split.Labels, again.Labels)
	assert.Equal(t, split.Graphs[7], again.Graphs[7])
}
