package nodeset

import "github.com/sarchlab/circuitid/hooking"

// HookPosPopulationCreated is triggered when a population is first seen. The
// item is the *Population.
var HookPosPopulationCreated = &hooking.HookPos{Name: "PopulationCreated"}

// HookPosMaxRawIDChanged is triggered when the reduced max raw id of a
// population grows. The item is the *Population, the detail a Change.
var HookPosMaxRawIDChanged = &hooking.HookPos{Name: "MaxRawIDChanged"}

// HookPosOffsetChanged is triggered when a population moves in the global id
// space. The item is the *Population, the detail a Change.
var HookPosOffsetChanged = &hooking.HookPos{Name: "OffsetChanged"}

// Change is the detail of value-changing hooks.
type Change struct {
	Old uint64
	New uint64
}
