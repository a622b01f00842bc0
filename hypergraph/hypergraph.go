// Package hypergraph holds the molecular heterogeneous graph representation used by
// the HyperMPNN model: atoms connected by bonds, plus functional-group hyperedges
// that each connect an arbitrary set of member atoms.
//
// Graphs are stored in "arena" form: flat feature matrices indexed by dense ids,
// with edges and hyperedge memberships given as parallel index slices. This is the
// layout the model consumes directly, after batching (see Batch) flattens several
// graphs into one arena with segment ids.
package hypergraph

import (
	"github.com/pkg/errors"
)

// Graph is a single molecule: atom (node) features, bond (edge) connectivity and
// features, and functional-group hyperedges with their atom memberships.
//
// Bonds are directed as stored; undirected molecular bonds are expected to appear
// once per direction. Memberships are pairs (MemberAtoms[i], MemberGroups[i])
// meaning atom MemberAtoms[i] belongs to group MemberGroups[i].
type Graph struct {
	// AtomFeatures is shaped [numAtoms][AtomFeatureDim].
	AtomFeatures [][]float32

	// BondSources and BondTargets are parallel, shaped [numBonds].
	BondSources []int32
	BondTargets []int32

	// BondFeatures is shaped [numBonds][BondFeatureDim].
	BondFeatures [][]float32

	// GroupFeatures is shaped [numGroups][GroupFeatureDim]. A molecule with no
	// recognized functional groups has numGroups == 0.
	GroupFeatures [][]float32

	// MemberAtoms and MemberGroups are parallel, shaped [numMembers].
	MemberAtoms  []int32
	MemberGroups []int32
}

// NumAtoms returns the number of atoms in the graph.
func (g *Graph) NumAtoms() int { return len(g.AtomFeatures) }

// NumBonds returns the number of directed bonds in the graph.
func (g *Graph) NumBonds() int { return len(g.BondSources) }

// NumGroups returns the number of functional-group hyperedges.
func (g *Graph) NumGroups() int { return len(g.GroupFeatures) }

// NumMembers returns the number of (atom, group) membership pairs.
func (g *Graph) NumMembers() int { return len(g.MemberAtoms) }

// Validate checks internal consistency: parallel slices have matching lengths,
// feature rows have uniform widths and all indices are in range.
func (g *Graph) Validate() error {
	if len(g.BondTargets) != len(g.BondSources) {
		return errors.Errorf("bond targets (%d) and sources (%d) must be parallel",
			len(g.BondTargets), len(g.BondSources))
	}
	if len(g.BondFeatures) != len(g.BondSources) {
		return errors.Errorf("bond features (%d) must be parallel to bond endpoints (%d)",
			len(g.BondFeatures), len(g.BondSources))
	}
	if len(g.MemberGroups) != len(g.MemberAtoms) {
		return errors.Errorf("membership groups (%d) and atoms (%d) must be parallel",
			len(g.MemberGroups), len(g.MemberAtoms))
	}
	if err := uniformWidth("atom", g.AtomFeatures); err != nil {
		return err
	}
	if err := uniformWidth("bond", g.BondFeatures); err != nil {
		return err
	}
	if err := uniformWidth("group", g.GroupFeatures); err != nil {
		return err
	}
	numAtoms, numGroups := int32(g.NumAtoms()), int32(g.NumGroups())
	for i := range g.BondSources {
		if g.BondSources[i] < 0 || g.BondSources[i] >= numAtoms ||
			g.BondTargets[i] < 0 || g.BondTargets[i] >= numAtoms {
			return errors.Errorf("bond %d connects (%d, %d), out of range for %d atoms",
				i, g.BondSources[i], g.BondTargets[i], numAtoms)
		}
	}
	for i := range g.MemberAtoms {
		if g.MemberAtoms[i] < 0 || g.MemberAtoms[i] >= numAtoms {
			return errors.Errorf("membership %d refers to atom %d, out of range for %d atoms",
				i, g.MemberAtoms[i], numAtoms)
		}
		if g.MemberGroups[i] < 0 || g.MemberGroups[i] >= numGroups {
			return errors.Errorf("membership %d refers to group %d, out of range for %d groups",
				i, g.MemberGroups[i], numGroups)
		}
	}
	return nil
}

func uniformWidth(name string, features [][]float32) error {
	if len(features) == 0 {
		return nil
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return errors.Errorf("%s features row %d has width %d, want %d", name, i, len(row), width)
		}
	}
	return nil
}

// AtomFeatureDim returns the width of atom feature rows, or 0 if there are no atoms.
func (g *Graph) AtomFeatureDim() int {
	if len(g.AtomFeatures) == 0 {
		return 0
	}
	return len(g.AtomFeatures[0])
}

// BondFeatureDim returns the width of bond feature rows, or 0 if there are no bonds.
func (g *Graph) BondFeatureDim() int {
	if len(g.BondFeatures) == 0 {
		return 0
	}
	return len(g.BondFeatures[0])
}

// GroupFeatureDim returns the width of group feature rows, or 0 if there are no groups.
func (g *Graph) GroupFeatureDim() int {
	if len(g.GroupFeatures) == 0 {
		return 0
	}
	return len(g.GroupFeatures[0])
}

// PermuteAtoms returns a copy of the graph with atoms renumbered by perm:
// atom i of the original becomes atom perm[i] of the result. Bond endpoints and
// memberships are remapped accordingly. perm must be a permutation of [0, NumAtoms).
func (g *Graph) PermuteAtoms(perm []int32) (*Graph, error) {
	if len(perm) != g.NumAtoms() {
		return nil, errors.Errorf("permutation has %d entries, graph has %d atoms", len(perm), g.NumAtoms())
	}
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || int(p) >= len(perm) || seen[p] {
			return nil, errors.Errorf("perm is not a permutation of [0, %d)", len(perm))
		}
		seen[p] = true
	}
	permuted := &Graph{
		AtomFeatures:  make([][]float32, g.NumAtoms()),
		BondSources:   make([]int32, g.NumBonds()),
		BondTargets:   make([]int32, g.NumBonds()),
		BondFeatures:  copyRows(g.BondFeatures),
		GroupFeatures: copyRows(g.GroupFeatures),
		MemberAtoms:   make([]int32, g.NumMembers()),
		MemberGroups:  append([]int32(nil), g.MemberGroups...),
	}
	for i, row := range g.AtomFeatures {
		permuted.AtomFeatures[perm[i]] = append([]float32(nil), row...)
	}
	for i := range g.BondSources {
		permuted.BondSources[i] = perm[g.BondSources[i]]
		permuted.BondTargets[i] = perm[g.BondTargets[i]]
	}
	for i, atom := range g.MemberAtoms {
		permuted.MemberAtoms[i] = perm[atom]
	}
	return permuted, nil
}

func copyRows(rows [][]float32) [][]float32 {
	if rows == nil {
		return nil
	}
	out := make([][]float32, len(rows))
	for i, row := range rows {
		out[i] = append([]float32(nil), row...)
	}
	return out
}
