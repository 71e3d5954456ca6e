package override

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sarchlab/circuitid/configerr"
	"github.com/sarchlab/circuitid/hooking"
)

// HookPosDiagnostic is triggered for every diagnostic. The item is the
// Diagnostic.
var HookPosDiagnostic = &hooking.HookPos{Name: "Diagnostic"}

// An Oracle tells if two targets, given by spec text, may share nodes.
type Oracle interface {
	Intersecting(ctx context.Context, a, b string) (bool, error)
}

// A Resolver works out how the connection blocks override each other.
type Resolver struct {
	hooking.HookableBase

	oracle Oracle
	logger *slog.Logger
}

// Builder creates resolvers.
type Builder struct {
	oracle Oracle
	logger *slog.Logger
}

// MakeBuilder creates a resolver builder.
func MakeBuilder() Builder {
	return Builder{logger: slog.Default()}
}

// WithOracle sets how target intersections are decided.
func (b Builder) WithOracle(o Oracle) Builder {
	b.oracle = o
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a resolver. It panics without an oracle.
func (b Builder) Build() *Resolver {
	if b.oracle == nil {
		panic("override: resolver requires an oracle")
	}

	return &Resolver{
		oracle: b.oracle,
		logger: b.logger,
	}
}

// Resolve links the connection blocks into override chains and validates the
// weight=0 blocks. A weight=0 block that is only partially overridden is a
// ConfigurationError. The report is returned along with that error.
//
// Intersections may read targets, which registers node sets. All ranks must
// resolve the same connections.
func (r *Resolver) Resolve(ctx context.Context, conns []Connection) (*Report, error) {
	r.logger.Info("checking connection configurations", "connections", len(conns))

	report := &Report{Rules: make([]*Rule, len(conns))}
	for i := range conns {
		report.Rules[i] = &Rule{Conn: conns[i]}
	}

	if err := r.buildChains(ctx, report); err != nil {
		return nil, err
	}

	if err := r.processDelayed(ctx, report); err != nil {
		return nil, err
	}

	r.collectChains(report)
	r.reportGlobalVars(report)

	return report, r.checkZeroWeight(report)
}

// buildChains links each immediate rule to the nearest earlier immediate rule
// with an overlapping pathway.
func (r *Resolver) buildChains(ctx context.Context, report *Report) error {
	var processed []*Rule

	for _, rule := range report.Rules {
		if rule.Conn.IsDelayed() {
			continue
		}

		if vars := rule.Conn.GlobalVars(); len(vars) > 0 {
			report.GlobalVars = append(report.GlobalVars,
				GlobalVarUse{Rule: rule.Name(), Vars: vars})
		}

		if rule.IsZeroWeight() {
			report.ZeroWeight = append(report.ZeroWeight, rule)
		}

		for i := len(processed) - 1; i >= 0; i-- {
			base := processed[i]

			overlap, err := r.pathwaysOverlap(ctx, base, rule)
			if err != nil {
				return err
			}

			if !overlap {
				continue
			}

			rule.Overrides = base
			base.OverriddenBy = append(base.OverriddenBy, rule)

			if pathwaysEqual(base, rule) {
				base.FullyOverridden = true
			}

			break
		}

		processed = append(processed, rule)
	}

	return nil
}

// processDelayed links each delayed rule to every overlapping weight=0 rule.
func (r *Resolver) processDelayed(ctx context.Context, report *Report) error {
	for _, rule := range report.Rules {
		if !rule.Conn.IsDelayed() {
			continue
		}

		overriding := false

		for i := len(report.ZeroWeight) - 1; i >= 0; i-- {
			base := report.ZeroWeight[i]

			overlap, err := r.pathwaysOverlap(ctx, base, rule)
			if err != nil {
				return err
			}

			if !overlap {
				continue
			}

			overriding = true
			base.OverriddenBy = append(base.OverriddenBy, rule)

			if pathwaysEqual(base, rule) {
				base.FullyOverridden = true
			}
		}

		if !overriding {
			r.diagnose(report, Diagnostic{
				Kind:    KindDelayedOverridesNothing,
				Level:   slog.LevelWarn,
				Rule:    rule.Name(),
				Message: "delayed connection is not overriding any weight=0 connection",
			})
		}
	}

	return nil
}

// collectChains walks every chain once, starting from the latest rules.
func (r *Resolver) collectChains(report *Report) {
	for i := len(report.Rules) - 1; i >= 0; i-- {
		rule := report.Rules[i]
		if rule.Overrides == nil || rule.visited {
			continue
		}

		var chain []*Rule
		for cur := rule; cur != nil; cur = cur.Overrides {
			chain = append(chain, cur)

			if cur.visited {
				break
			}

			cur.visited = true
		}

		report.Chains = append(report.Chains, chain)

		r.diagnose(report, Diagnostic{
			Kind:    KindOverrideChain,
			Level:   slog.LevelWarn,
			Rule:    rule.Name(),
			Message: "connection takes part in overriding chain:\n" + FormatChain(chain),
		})
	}
}

func (r *Resolver) reportGlobalVars(report *Report) {
	if len(report.GlobalVars) == 0 {
		r.logger.Info("no global variables in SynapseConfigure")
		return
	}

	for _, use := range report.GlobalVars {
		r.diagnose(report, Diagnostic{
			Kind:  KindGlobalVars,
			Level: slog.LevelWarn,
			Rule:  use.Rule,
			Message: fmt.Sprintf("global variables in SynapseConfigure %v, "+
				"move them to the Conditions block", use.Vars),
		})
	}
}

// checkZeroWeight fails on the first weight=0 rule that was overridden only
// in part, and warns about those never overridden.
func (r *Resolver) checkZeroWeight(report *Report) error {
	var unused []*Rule

	for _, rule := range report.ZeroWeight {
		switch {
		case len(rule.OverriddenBy) == 0:
			unused = append(unused, rule)
		case !rule.FullyOverridden:
			return configerr.Wrap(rule.Name(), configerr.ErrPartialOverride,
				"partial weight=0 override is not supported")
		}
	}

	if len(unused) == 0 {
		r.logger.Info("no single weight=0 block left")
		return nil
	}

	for _, rule := range unused {
		r.diagnose(report, Diagnostic{
			Kind:    KindZeroWeightUnused,
			Level:   slog.LevelWarn,
			Rule:    rule.Name(),
			Message: "weight=0 connection is not overridden, it won't be instantiated",
		})
	}

	return nil
}

func (r *Resolver) diagnose(report *Report, d Diagnostic) {
	report.Diagnostics = append(report.Diagnostics, d)

	r.logger.Log(context.Background(), d.Level, d.Message, "rule", d.Rule)
	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosDiagnostic,
		Item:   d,
	})
}

func (r *Resolver) pathwaysOverlap(ctx context.Context, a, b *Rule) (bool, error) {
	src, err := r.oracle.Intersecting(ctx, a.Conn.Source, b.Conn.Source)
	if err != nil || !src {
		return false, err
	}

	return r.oracle.Intersecting(ctx, a.Conn.Destination, b.Conn.Destination)
}

func pathwaysEqual(a, b *Rule) bool {
	return a.Conn.SourceSpec() == b.Conn.SourceSpec() &&
		a.Conn.DestinationSpec() == b.Conn.DestinationSpec()
}
