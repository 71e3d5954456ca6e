package nodeset

import "weak"

// BlockSize aligns population offsets. Changing it changes the final ids
// handed to the simulator.
const BlockSize = 1000

// A Population is a named slice of the global id space. It refers to its
// node sets weakly: a node set that is no longer used elsewhere is dropped
// from the population instead of being kept alive by it.
type Population struct {
	name     string
	registry *Registry
	members  []weak.Pointer[NodeSet]
	maxRawID uint64
	offset   uint64
}

// Name returns the population name.
func (p *Population) Name() string {
	return p.name
}

// Offset returns the first final id minus one of the population slice.
func (p *Population) Offset() uint64 {
	return p.offset
}

// MaxRawID returns the highest raw id of the population over all ranks.
func (p *Population) MaxRawID() uint64 {
	return p.maxRawID
}

// NodeSets returns the live node sets registered in the population.
func (p *Population) NodeSets() []*NodeSet {
	sets := make([]*NodeSet, 0, len(p.members))
	for _, wp := range p.members {
		if ns := p.liveMember(wp); ns != nil {
			sets = append(sets, ns)
		}
	}

	return sets
}

func (p *Population) liveMember(wp weak.Pointer[NodeSet]) *NodeSet {
	ns := wp.Value()
	if ns == nil || ns.pop != p {
		return nil
	}

	return ns
}

func (p *Population) append(ns *NodeSet) {
	p.members = append(p.members, weak.Make(ns))
	ns.pop = p
}

func (p *Population) remove(ns *NodeSet) {
	target := weak.Make(ns)

	kept := p.members[:0]
	for _, wp := range p.members {
		if wp != target {
			kept = append(kept, wp)
		}
	}

	p.members = kept
}

// setOffset stores the offset and pushes it into every live member, dropping
// the dead ones on the way.
func (p *Population) setOffset(offset uint64) {
	p.offset = offset

	kept := p.members[:0]
	for _, wp := range p.members {
		ns := p.liveMember(wp)
		if ns == nil {
			continue
		}

		ns.offset = offset
		kept = append(kept, wp)
	}

	p.members = kept
}

// end returns the first id past the population slice, before alignment.
func (p *Population) end() uint64 {
	return p.offset + p.maxRawID
}

func alignedOffsetAfter(prev *Population) uint64 {
	if prev == nil {
		return 0
	}

	return (prev.end() + BlockSize - 1) / BlockSize * BlockSize
}
