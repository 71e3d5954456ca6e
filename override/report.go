package override

import (
	"fmt"
	"log/slog"
	"strings"
)

// DiagnosticKind classifies the findings of a resolution.
type DiagnosticKind int

// The kinds of diagnostics.
const (
	KindGlobalVars DiagnosticKind = iota
	KindOverrideChain
	KindDelayedOverridesNothing
	KindZeroWeightUnused
)

func (k DiagnosticKind) String() string {
	switch k {
	case KindGlobalVars:
		return "GlobalVars"
	case KindOverrideChain:
		return "OverrideChain"
	case KindDelayedOverridesNothing:
		return "DelayedOverridesNothing"
	case KindZeroWeightUnused:
		return "ZeroWeightUnused"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// A Diagnostic is a non-fatal finding about the connection blocks.
type Diagnostic struct {
	Kind    DiagnosticKind
	Level   slog.Level
	Rule    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Level, d.Rule, d.Message)
}

// GlobalVarUse lists the global variables a connection sets.
type GlobalVarUse struct {
	Rule string
	Vars []string
}

// A Report is the outcome of a resolution.
type Report struct {
	// Rules holds one rule per connection, in input order.
	Rules []*Rule

	// ZeroWeight holds the immediate rules with weight 0, in input order.
	ZeroWeight []*Rule

	GlobalVars []GlobalVarUse

	// Chains holds the override chains, each from its last rule down to its
	// base.
	Chains [][]*Rule

	Diagnostics []Diagnostic
}

// Rule returns the rule of the named connection, or nil.
func (r *Report) Rule(name string) *Rule {
	for _, rule := range r.Rules {
		if rule.Name() == name {
			return rule
		}
	}

	return nil
}

// DiagnosticsOf returns the diagnostics of one kind.
func (r *Report) DiagnosticsOf(kind DiagnosticKind) []Diagnostic {
	var found []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			found = append(found, d)
		}
	}

	return found
}

// FormatChain renders a chain for operators, one link per line.
func FormatChain(chain []*Rule) string {
	var b strings.Builder

	for _, rule := range chain {
		marker := " ^"
		if rule.Overrides == nil {
			marker = "(base)"
		}

		c := rule.Conn

		spont := "-"
		if c.SpontMinis != nil {
			spont = fmt.Sprint(*c.SpontMinis)
		}

		fmt.Fprintf(&b, " -> %-6s %-24s %s -> %s  Weight: %v  SpontMinis: %s  SynConfigure: %s\n",
			marker, c.Name, c.Source, c.Destination, c.Weight, spont,
			strings.Join(c.ConfigureVars(), ", "))
	}

	return b.String()
}
