package nodeset

import (
	"context"
	"iter"
	"log"
	"maps"

	"github.com/sarchlab/circuitid/selection"
)

// A NodeSet is a growable set of raw ids of one population, with optional
// per-id metadata. It only learns its offset once registered in a population.
type NodeSet struct {
	sel      selection.Selection
	maxRawID uint64
	offset   uint64
	info     map[uint64]any
	pop      *Population
}

// New creates an unregistered node set holding ids.
func New(ids ...uint64) *NodeSet {
	return FromSelection(selection.FromIDs(ids...), nil)
}

// FromSelection creates an unregistered node set from raw 1-based ids and
// their optional metadata.
func FromSelection(sel selection.Selection, info map[uint64]any) *NodeSet {
	s := &NodeSet{}
	s.add(sel, info)

	return s
}

// FromZeroBased creates a node set from a selection of 0-based ids, as stored
// by node files.
func FromZeroBased(sel selection.Selection) *NodeSet {
	return FromSelection(sel.Shift(1), nil)
}

func mustBeRawIDs(sel selection.Selection) {
	if sel.IsEmpty() {
		return
	}

	if sel.Ranges()[0].Start == 0 {
		log.Panic("nodeset: raw ids are 1-based, got id 0")
	}
}

func (s *NodeSet) add(sel selection.Selection, info map[uint64]any) {
	mustBeRawIDs(sel)

	s.sel = s.sel.Union(sel)
	s.maxRawID = max(s.maxRawID, s.sel.Max())

	if len(info) > 0 {
		if s.info == nil {
			s.info = make(map[uint64]any, len(info))
		}

		maps.Copy(s.info, info)
	}
}

// AddIDs unions ids into the set. See AddSelection.
func (s *NodeSet) AddIDs(
	ctx context.Context,
	ids []uint64,
	info map[uint64]any,
) error {
	return s.AddSelection(ctx, selection.FromIDs(ids...), info)
}

// AddSelection unions sel into the set and merges info. On a registered set
// this is a collective call (see the package documentation) and may move the
// offsets of populations sorted after this one.
func (s *NodeSet) AddSelection(
	ctx context.Context,
	sel selection.Selection,
	info map[uint64]any,
) error {
	s.add(sel, info)

	return s.checkUpdateOffsets(ctx)
}

// Extend adds all ids and metadata of other.
func (s *NodeSet) Extend(ctx context.Context, other *NodeSet) error {
	mustNotBeNil(other)

	return s.AddSelection(ctx, other.sel, other.info)
}

func (s *NodeSet) checkUpdateOffsets(ctx context.Context) error {
	if s.pop == nil {
		return nil
	}

	return s.pop.registry.update(ctx, s.pop, s)
}

// RegisterGlobal binds the set to the named population of reg, creating the
// population when needed. It is a collective call.
func (s *NodeSet) RegisterGlobal(
	ctx context.Context,
	reg *Registry,
	population string,
) (*NodeSet, error) {
	_, err := reg.Register(ctx, population, s)

	return s, err
}

// Release detaches the set from its population. The population stops pushing
// offsets into it. The last offset received is kept.
func (s *NodeSet) Release() {
	if s.pop == nil {
		return
	}

	s.pop.remove(s)
	s.pop = nil
}

// Len returns the number of ids in the set.
func (s *NodeSet) Len() int {
	return int(s.sel.FlatSize())
}

// Offset returns the offset of the population the set belongs to.
func (s *NodeSet) Offset() uint64 {
	return s.offset
}

// MaxRawID returns the highest raw id ever added.
func (s *NodeSet) MaxRawID() uint64 {
	return s.maxRawID
}

// PopulationName returns the name of the population the set is registered
// in, or "" for unregistered sets.
func (s *NodeSet) PopulationName() string {
	if s.pop == nil {
		return ""
	}

	return s.pop.name
}

// Population returns the population the set is registered in, if any.
func (s *NodeSet) Population() *Population {
	return s.pop
}

// Selection returns the ids of the set, shifted by the offset unless raw.
func (s *NodeSet) Selection(raw bool) selection.Selection {
	if raw {
		return s.sel
	}

	return s.sel.Shift(s.offset)
}

// IDs lists the ids in ascending order, shifted by the offset unless raw.
func (s *NodeSet) IDs(raw bool) []uint64 {
	return s.Selection(raw).Flatten()
}

// All iterates (id, metadata) pairs in ascending id order. Ids are shifted by
// the offset current when iteration starts, unless raw. The sequence can be
// restarted.
func (s *NodeSet) All(raw bool) iter.Seq2[uint64, any] {
	return func(yield func(uint64, any) bool) {
		var shift uint64
		if !raw {
			shift = s.offset
		}

		for id := range s.sel.All() {
			if !yield(id+shift, s.info[id]) {
				return
			}
		}
	}
}

// Info returns the metadata stored for a raw id.
func (s *NodeSet) Info(rawID uint64) (any, bool) {
	v, ok := s.info[rawID]
	return v, ok
}

// ClearInfo drops all the stored metadata.
func (s *NodeSet) ClearInfo() {
	s.info = nil
}

// Intersection returns the ids common to both sets, shifted by this set's
// offset unless raw. Sets of different populations never intersect.
func (s *NodeSet) Intersection(other *NodeSet, raw bool) []uint64 {
	mustNotBeNil(other)

	if s.PopulationName() != other.PopulationName() {
		return nil
	}

	common := s.sel.Intersect(other.sel)
	if !raw {
		common = common.Shift(s.offset)
	}

	return common.Flatten()
}

// Intersects tells if both sets belong to the same population and share at
// least one id.
func (s *NodeSet) Intersects(other *NodeSet) bool {
	mustNotBeNil(other)

	if s.PopulationName() != other.PopulationName() {
		return false
	}

	return !s.sel.Intersect(other.sel).IsEmpty()
}

func mustNotBeNil(other *NodeSet) {
	if other == nil {
		log.Panic("nodeset: expected a *NodeSet, got nil")
	}
}
