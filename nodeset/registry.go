package nodeset

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"log/slog"
	"slices"

	"github.com/sarchlab/circuitid/comm"
	"github.com/sarchlab/circuitid/hooking"
)

// A Registry owns the populations of one simulation run. All ranks hold a
// registry of identical shape: the same populations, mutated by the same
// sequence of calls.
type Registry struct {
	hooking.HookableBase

	comm        comm.Communicator
	logger      *slog.Logger
	populations []*Population
	frozen      bool
}

// Builder creates registries.
type Builder struct {
	comm   comm.Communicator
	logger *slog.Logger
}

// MakeBuilder creates a builder for a single-rank registry.
func MakeBuilder() Builder {
	return Builder{
		comm:   comm.NewSingle(),
		logger: slog.Default(),
	}
}

// WithCommunicator sets the communicator used to reduce population sizes.
func (b Builder) WithCommunicator(c comm.Communicator) Builder {
	b.comm = c
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// Build creates an empty registry.
func (b Builder) Build() *Registry {
	return &Registry{
		comm:   b.comm,
		logger: b.logger,
	}
}

// Communicator returns the communicator used by the registry.
func (r *Registry) Communicator() comm.Communicator {
	return r.comm
}

// Register binds ns to the named population, creating the population when it
// is first seen, and folds the size of ns into the population. It is a
// collective call unless offsets are frozen. Registering a set again in the
// same population does nothing.
func (r *Registry) Register(
	ctx context.Context,
	name string,
	ns *NodeSet,
) (*Population, error) {
	if name == "" {
		log.Panic("nodeset: population name must not be empty")
	}

	mustNotBeNil(ns)

	if ns.pop != nil {
		if ns.pop.registry == r && ns.pop.name == name {
			return ns.pop, nil
		}

		ns.Release()
	}

	pop := r.Get(name)
	if pop == nil {
		pop = r.createPopulation(name)
	}

	pop.append(ns)

	return pop, r.update(ctx, pop, ns)
}

// Get returns the named population, or nil.
func (r *Registry) Get(name string) *Population {
	i, found := r.search(name)
	if !found {
		return nil
	}

	return r.populations[i]
}

func (r *Registry) search(name string) (int, bool) {
	return slices.BinarySearchFunc(r.populations, name,
		func(p *Population, name string) int {
			return cmp.Compare(p.name, name)
		})
}

// Populations returns the populations sorted by name.
func (r *Registry) Populations() []*Population {
	return slices.Clone(r.populations)
}

func (r *Registry) createPopulation(name string) *Population {
	pop := &Population{name: name, registry: r}

	i, _ := r.search(name)
	r.populations = slices.Insert(r.populations, i, pop)

	pop.setOffset(alignedOffsetAfter(r.previous(i)))

	r.logger.Debug("population created",
		"population", name, "offset", pop.offset)
	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosPopulationCreated,
		Item:   pop,
	})

	return pop
}

func (r *Registry) previous(i int) *Population {
	if i == 0 {
		return nil
	}

	return r.populations[i-1]
}

// update pushes the population offset into ns and, unless frozen, reduces the
// population size over all ranks. Growth cascades to later populations.
func (r *Registry) update(ctx context.Context, pop *Population, ns *NodeSet) error {
	ns.offset = pop.offset

	if r.frozen {
		return nil
	}

	local := max(pop.maxRawID, ns.maxRawID)

	reduced, err := r.comm.AllReduceMax(ctx, local)
	if err != nil {
		return fmt.Errorf("nodeset: reducing max raw id of population %q: %w",
			pop.name, err)
	}

	if reduced <= pop.maxRawID {
		return nil
	}

	old := pop.maxRawID
	pop.maxRawID = reduced

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosMaxRawIDChanged,
		Item:   pop,
		Detail: Change{Old: old, New: reduced},
	})

	r.updateOffsets(pop)

	return nil
}

// updateOffsets recomputes the offsets of every population after changed.
func (r *Registry) updateOffsets(changed *Population) {
	i, found := r.search(changed.name)
	if !found {
		log.Panic("nodeset: population " + changed.name + " is not registered")
	}

	for j := i + 1; j < len(r.populations); j++ {
		r.assignOffset(r.populations[j], alignedOffsetAfter(r.populations[j-1]))
	}
}

func (r *Registry) assignOffset(pop *Population, offset uint64) {
	old := pop.offset
	pop.setOffset(offset)

	if old == offset {
		return
	}

	r.logger.Debug("population offset moved",
		"population", pop.name, "old", old, "new", offset)
	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosOffsetChanged,
		Item:   pop,
		Detail: Change{Old: old, New: offset},
	})
}

// FreezeOffsets stops offset recomputation for good. Later mutations still
// receive the current offsets but issue no collective.
func (r *Registry) FreezeOffsets() {
	r.frozen = true
}

// Frozen tells if offsets are frozen.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// WithFrozenOffsets runs fn with offsets frozen and restores the previous
// state afterwards, whether fn returns or panics.
func (r *Registry) WithFrozenOffsets(fn func() error) error {
	prev := r.frozen
	r.frozen = true

	defer func() { r.frozen = prev }()

	return fn()
}

// Reset drops every population and unfreezes offsets. Node sets registered
// before become unregistered. Used between independent runs in one process.
func (r *Registry) Reset() {
	for _, pop := range r.populations {
		for _, ns := range pop.NodeSets() {
			ns.pop = nil
		}

		pop.members = nil
	}

	r.populations = nil
	r.frozen = false
}
