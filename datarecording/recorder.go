package datarecording

import (
	"strings"

	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"
)

// The tables written by a Recorder.
const (
	TablePopulationEvents = "population_events"
	TableLayout           = "population_layout"
	TableDiagnostics      = "override_diagnostics"
	TableRules            = "override_rules"
)

// PopulationEvent is a row of the population_events table.
type PopulationEvent struct {
	Seq        uint64
	Event      string
	Population string
	Old        uint64
	New        uint64
}

// LayoutRow is a row of the population_layout table.
type LayoutRow struct {
	Population string
	Offset     uint64
	MaxRawID   uint64
}

// DiagnosticRow is a row of the override_diagnostics table.
type DiagnosticRow struct {
	Seq     uint64
	Kind    string
	Level   string
	Rule    string
	Message string
}

// RuleRow is a row of the override_rules table.
type RuleRow struct {
	Name            string
	Source          string
	Destination     string
	Weight          float64
	Delay           float64
	Overrides       string
	OverriddenBy    string
	FullyOverridden bool
}

// A Recorder is a hook that records registry and resolver events.
type Recorder struct {
	recorder DataRecorder
	seq      uint64
}

// NewRecorder creates the tables of a recording.
func NewRecorder(recorder DataRecorder) *Recorder {
	recorder.CreateTable(TablePopulationEvents, PopulationEvent{})
	recorder.CreateTable(TableLayout, LayoutRow{})
	recorder.CreateTable(TableDiagnostics, DiagnosticRow{})
	recorder.CreateTable(TableRules, RuleRow{})

	return &Recorder{recorder: recorder}
}

// Func records population events and override diagnostics.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case nodeset.HookPosPopulationCreated,
		nodeset.HookPosMaxRawIDChanged,
		nodeset.HookPosOffsetChanged:
		r.recordPopulationEvent(ctx)
	case override.HookPosDiagnostic:
		r.recordDiagnostic(ctx.Item.(override.Diagnostic))
	}
}

func (r *Recorder) recordPopulationEvent(ctx hooking.HookCtx) {
	pop := ctx.Item.(*nodeset.Population)

	e := PopulationEvent{
		Seq:        r.next(),
		Event:      ctx.Pos.Name,
		Population: pop.Name(),
		New:        pop.Offset(),
	}

	if change, ok := ctx.Detail.(nodeset.Change); ok {
		e.Old = change.Old
		e.New = change.New
	}

	r.recorder.InsertData(TablePopulationEvents, e)
}

func (r *Recorder) recordDiagnostic(d override.Diagnostic) {
	r.recorder.InsertData(TableDiagnostics, DiagnosticRow{
		Seq:     r.next(),
		Kind:    d.Kind.String(),
		Level:   d.Level.String(),
		Rule:    d.Rule,
		Message: d.Message,
	})
}

func (r *Recorder) next() uint64 {
	r.seq++
	return r.seq
}

// RecordLayout stores the final population layout.
func (r *Recorder) RecordLayout(entries []nodeset.LayoutEntry) {
	for _, e := range entries {
		r.recorder.InsertData(TableLayout, LayoutRow{
			Population: e.Population,
			Offset:     e.Offset,
			MaxRawID:   e.MaxRawID,
		})
	}
}

// RecordReport stores the resolved rules.
func (r *Recorder) RecordReport(report *override.Report) {
	for _, rule := range report.Rules {
		row := RuleRow{
			Name:            rule.Name(),
			Source:          rule.Conn.Source,
			Destination:     rule.Conn.Destination,
			Weight:          rule.Conn.Weight,
			Delay:           rule.Conn.Delay,
			FullyOverridden: rule.FullyOverridden,
		}

		if rule.Overrides != nil {
			row.Overrides = rule.Overrides.Name()
		}

		names := make([]string, 0, len(rule.OverriddenBy))
		for _, by := range rule.OverriddenBy {
			names = append(names, by.Name())
		}

		row.OverriddenBy = strings.Join(names, ",")

		r.recorder.InsertData(TableRules, row)
	}
}

// Flush writes the buffered rows.
func (r *Recorder) Flush() {
	r.recorder.Flush()
}
