// Package nodeset assigns every population a disjoint slice of the global id
// space and keeps node sets informed about their population's offset.
//
// Raw ids are population-local and 1-based. The final id of a node is its raw
// id plus the offset of its population. Populations are kept sorted by name
// and their offsets are aligned to BlockSize:
//
//	offset(next) = ceil((prev.offset + prev.maxRawID) / BlockSize) * BlockSize
//
// Growing a population moves the offsets of every population sorted after it.
// Node sets of unrelated populations may therefore see their offset change
// when some other set is mutated. Once ids are handed to the simulator the
// layout must be frozen (Registry.FreezeOffsets or
// Registry.WithFrozenOffsets).
//
// # Collective symmetry
//
// Registry.Register, NodeSet.RegisterGlobal, NodeSet.AddIDs,
// NodeSet.AddSelection and NodeSet.Extend on a registered set issue a
// collective MAX reduction unless offsets are frozen. Every rank must make
// these calls the same number of times and in the same order, even when the
// local rank holds no id for the population. Branching on rank-local data
// around these calls hangs the job.
package nodeset
