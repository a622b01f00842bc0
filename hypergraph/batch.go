package hypergraph

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Budgets fixes the padded arena sizes of a Batch. Keeping these constant across
// batches keeps the model input shapes constant, so the computation graph is
// compiled once instead of once per molecule-size combination.
type Budgets struct {
	MaxAtoms, MaxBonds, MaxGroups, MaxMembers int
}

// FitBudgets returns budgets large enough for any batch of up to batchSize graphs
// drawn from graphs: per-component maximum over the graphs, times batchSize.
func FitBudgets(graphs []*Graph, batchSize int) Budgets {
	var b Budgets
	for _, g := range graphs {
		b.MaxAtoms = max(b.MaxAtoms, g.NumAtoms())
		b.MaxBonds = max(b.MaxBonds, g.NumBonds())
		b.MaxGroups = max(b.MaxGroups, g.NumGroups())
		b.MaxMembers = max(b.MaxMembers, g.NumMembers())
	}
	b.MaxAtoms *= batchSize
	b.MaxBonds *= batchSize
	b.MaxGroups *= batchSize
	b.MaxMembers *= batchSize
	// Scatter targets must be non-empty even for batches of group-less molecules.
	b.MaxAtoms = max(b.MaxAtoms, 1)
	b.MaxBonds = max(b.MaxBonds, 1)
	b.MaxGroups = max(b.MaxGroups, 1)
	b.MaxMembers = max(b.MaxMembers, 1)
	return b
}

// Spec identifies the static shape of a batch: it is used as the computation
// graph cache key, so two batches with equal Spec reuse the same compiled graph.
type Spec struct {
	NumGraphs                  int
	AtomDim, BondDim, GroupDim int
	Budgets                    Budgets
}

// Batch is a fixed-shape arena holding several graphs flattened together.
// Components of all graphs share one index space; segment ids (one per atom and
// per group) map them back to their graph, and boolean masks mark which entries
// are real as opposed to padding.
type Batch struct {
	spec Spec

	atomFeatures []float32
	atomMask     []bool
	atomGraphIDs []int32

	bondSources  []int32
	bondTargets  []int32
	bondFeatures []float32
	bondMask     []bool

	groupFeatures []float32
	groupMask     []bool
	groupGraphIDs []int32

	memberAtoms  []int32
	memberGroups []int32
	memberMask   []bool

	labels []float32
}

// NewBatch flattens graphs into one padded arena. labels must be parallel to
// graphs, one regression target per graph. Feature widths are taken from the
// dims arguments and must match every non-empty graph; graphs must fit within
// budgets in total.
func NewBatch(graphs []*Graph, labels []float32, atomDim, bondDim, groupDim int, budgets Budgets) (*Batch, error) {
	if len(labels) != len(graphs) {
		return nil, errors.Errorf("got %d labels for %d graphs", len(labels), len(graphs))
	}
	if len(graphs) == 0 {
		return nil, errors.New("batch needs at least one graph")
	}
	b := &Batch{
		spec: Spec{
			NumGraphs: len(graphs),
			AtomDim:   atomDim,
			BondDim:   bondDim,
			GroupDim:  groupDim,
			Budgets:   budgets,
		},
		atomFeatures:  make([]float32, budgets.MaxAtoms*atomDim),
		atomMask:      make([]bool, budgets.MaxAtoms),
		atomGraphIDs:  make([]int32, budgets.MaxAtoms),
		bondSources:   make([]int32, budgets.MaxBonds),
		bondTargets:   make([]int32, budgets.MaxBonds),
		bondFeatures:  make([]float32, budgets.MaxBonds*bondDim),
		bondMask:      make([]bool, budgets.MaxBonds),
		groupFeatures: make([]float32, budgets.MaxGroups*groupDim),
		groupMask:     make([]bool, budgets.MaxGroups),
		groupGraphIDs: make([]int32, budgets.MaxGroups),
		memberAtoms:   make([]int32, budgets.MaxMembers),
		memberGroups:  make([]int32, budgets.MaxMembers),
		memberMask:    make([]bool, budgets.MaxMembers),
		labels:        append([]float32(nil), labels...),
	}
	var nextAtom, nextBond, nextGroup, nextMember int
	for graphIdx, g := range graphs {
		if err := checkDim("atom", graphIdx, g.AtomFeatureDim(), atomDim, g.NumAtoms()); err != nil {
			return nil, err
		}
		if err := checkDim("bond", graphIdx, g.BondFeatureDim(), bondDim, g.NumBonds()); err != nil {
			return nil, err
		}
		if err := checkDim("group", graphIdx, g.GroupFeatureDim(), groupDim, g.NumGroups()); err != nil {
			return nil, err
		}
		if nextAtom+g.NumAtoms() > budgets.MaxAtoms || nextBond+g.NumBonds() > budgets.MaxBonds ||
			nextGroup+g.NumGroups() > budgets.MaxGroups || nextMember+g.NumMembers() > budgets.MaxMembers {
			return nil, errors.Errorf("graph %d overflows batch budgets %+v", graphIdx, budgets)
		}
		atomBase, groupBase := int32(nextAtom), int32(nextGroup)
		for i, row := range g.AtomFeatures {
			copy(b.atomFeatures[(nextAtom+i)*atomDim:], row)
			b.atomMask[nextAtom+i] = true
			b.atomGraphIDs[nextAtom+i] = int32(graphIdx)
		}
		for i := range g.BondSources {
			b.bondSources[nextBond+i] = atomBase + g.BondSources[i]
			b.bondTargets[nextBond+i] = atomBase + g.BondTargets[i]
			copy(b.bondFeatures[(nextBond+i)*bondDim:], g.BondFeatures[i])
			b.bondMask[nextBond+i] = true
		}
		for i, row := range g.GroupFeatures {
			copy(b.groupFeatures[(nextGroup+i)*groupDim:], row)
			b.groupMask[nextGroup+i] = true
			b.groupGraphIDs[nextGroup+i] = int32(graphIdx)
		}
		for i := range g.MemberAtoms {
			b.memberAtoms[nextMember+i] = atomBase + g.MemberAtoms[i]
			b.memberGroups[nextMember+i] = groupBase + g.MemberGroups[i]
			b.memberMask[nextMember+i] = true
		}
		nextAtom += g.NumAtoms()
		nextBond += g.NumBonds()
		nextGroup += g.NumGroups()
		nextMember += g.NumMembers()
	}
	return b, nil
}

func checkDim(name string, graphIdx, got, want, count int) error {
	if count > 0 && got != want {
		return errors.Errorf("graph %d has %s feature width %d, batch expects %d", graphIdx, name, got, want)
	}
	return nil
}

// Spec returns the static-shape descriptor of the batch.
func (b *Batch) Spec() Spec { return b.spec }

// Inputs converts the batch to the tensor list consumed by the model, in the
// fixed order: atom features, atom mask, atom graph ids, bond sources, bond
// targets, bond features, bond mask, group features, group mask, group graph
// ids, member atoms, member groups, member mask.
func (b *Batch) Inputs() []*tensors.Tensor {
	bd := b.spec.Budgets
	return []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.atomFeatures, bd.MaxAtoms, b.spec.AtomDim),
		tensors.FromFlatDataAndDimensions(b.atomMask, bd.MaxAtoms),
		tensors.FromFlatDataAndDimensions(b.atomGraphIDs, bd.MaxAtoms),
		tensors.FromFlatDataAndDimensions(b.bondSources, bd.MaxBonds),
		tensors.FromFlatDataAndDimensions(b.bondTargets, bd.MaxBonds),
		tensors.FromFlatDataAndDimensions(b.bondFeatures, bd.MaxBonds, b.spec.BondDim),
		tensors.FromFlatDataAndDimensions(b.bondMask, bd.MaxBonds),
		tensors.FromFlatDataAndDimensions(b.groupFeatures, bd.MaxGroups, b.spec.GroupDim),
		tensors.FromFlatDataAndDimensions(b.groupMask, bd.MaxGroups),
		tensors.FromFlatDataAndDimensions(b.groupGraphIDs, bd.MaxGroups),
		tensors.FromFlatDataAndDimensions(b.memberAtoms, bd.MaxMembers),
		tensors.FromFlatDataAndDimensions(b.memberGroups, bd.MaxMembers),
		tensors.FromFlatDataAndDimensions(b.memberMask, bd.MaxMembers),
	}
}

// Labels returns the regression targets, shaped [numGraphs, 1].
func (b *Batch) Labels() []*tensors.Tensor {
	return []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.labels, b.spec.NumGraphs, 1),
	}
}
