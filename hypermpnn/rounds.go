package hypermpnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// gatherRows picks the rows of params selected by the rank-1 int indices.
func gatherRows(params, indices *Node) *Node {
	return Gather(params, InsertAxes(indices, -1))
}

// round applies one message-passing round, replacing the atom, bond and group
// embeddings of the arena in place. cfg carries the shared feed-forward block
// settings; gates reuse it with gated=true and a different output dimension.
func round(ctx *context.Context, a *arena, cfg feedForwardConfig) {
	nodeDim := a.atoms.Shape().Dim(1)
	edgeDim := a.bonds.Shape().Dim(1)
	groupDim := a.groups.Shape().Dim(1)

	// Bond update: each bond sees both endpoint atoms and its own state.
	srcAtoms := gatherRows(a.atoms, a.bondSources)
	tgtAtoms := gatherRows(a.atoms, a.bondTargets)
	bondInput := Concatenate([]*Node{srcAtoms, tgtAtoms, a.bonds}, -1)
	edgeCfg := cfg
	edgeCfg.outputDim = edgeDim
	newBonds := edgeCfg.apply(ctx.In("bond_update"), bondInput, a.bondMask)

	// Scalar bond gate, identity activation, weighting the atom aggregation.
	gateCfg := cfg
	gateCfg.outputDim = 1
	gateCfg.gated = true
	bondGate := gateCfg.apply(ctx.In("bond_gate"), bondInput, a.bondMask)

	// Atom update from the gate-weighted sum of incoming (neighbor, bond) messages.
	bondMessages := Mul(Concatenate([]*Node{srcAtoms, newBonds}, -1), bondGate)
	atomAgg := scatterSumByIndex(bondMessages, a.bondTargets, a.bondMask, a.atoms.Shape().Dim(0))
	atomCfg := cfg
	atomCfg.outputDim = nodeDim
	newAtoms := atomCfg.apply(ctx.In("atom_update"), atomAgg, a.atomMask)

	// Membership-edge update: each (atom, group) link sees both endpoints plus
	// their per-molecule pooled contexts.
	atomContext := weightedSumPool(ctx.In("atom_context"), newAtoms, a.atomMask, a.atomGraphs, a.numGraphs)
	groupContext := weightedSumPool(ctx.In("group_context"), a.groups, a.groupMask, a.groupGraphs, a.numGraphs)
	memberAtomH := gatherRows(newAtoms, a.memberAtoms)
	memberGroupH := gatherRows(a.groups, a.memberGroups)
	memberGraphs := gatherRows(a.atomGraphs, a.memberAtoms)
	memberInput := Concatenate([]*Node{
		memberAtomH,
		memberGroupH,
		gatherRows(atomContext, memberGraphs),
		gatherRows(groupContext, memberGraphs),
	}, -1)
	memberCfg := cfg
	memberCfg.outputDim = groupDim
	newMembers := memberCfg.apply(ctx.In("member_update"), memberInput, a.memberMask)

	// Elementwise membership gate, identity activation.
	memberGateCfg := cfg
	memberGateCfg.outputDim = groupDim
	memberGateCfg.gated = true
	memberGate := memberGateCfg.apply(ctx.In("member_gate"), memberInput, a.memberMask)

	// Group update from the aggregated (atom, gated membership) messages,
	// combined with the group's prior state.
	memberMessages := Concatenate([]*Node{memberAtomH, Mul(memberGate, newMembers)}, -1)
	groupAgg := scatterSumByIndex(memberMessages, a.memberGroups, a.memberMask, a.groups.Shape().Dim(0))
	groupCfg := cfg
	groupCfg.outputDim = groupDim
	newGroups := groupCfg.apply(ctx.In("group_update"), Concatenate([]*Node{a.groups, groupAgg}, -1), a.groupMask)

	a.atoms, a.bonds, a.groups = newAtoms, newBonds, newGroups
}
