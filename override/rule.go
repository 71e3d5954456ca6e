package override

// A Rule tracks one connection through resolution.
type Rule struct {
	Conn Connection

	// Overrides is the nearest earlier immediate rule whose pathway overlaps
	// this one. Nil for the base of a chain.
	Overrides *Rule

	// OverriddenBy lists the later rules that override this one. Delayed rules
	// only ever override weight=0 rules.
	OverriddenBy []*Rule

	// FullyOverridden is set once a later rule matched the exact pathway.
	FullyOverridden bool

	visited bool
}

// Name returns the connection name.
func (r *Rule) Name() string {
	return r.Conn.Name
}

// IsZeroWeight tells if the rule silences its pathway.
func (r *Rule) IsZeroWeight() bool {
	return r.Conn.Weight == 0
}

// Chain returns the rule followed by the rules it overrides, down to the
// base of the chain.
func (r *Rule) Chain() []*Rule {
	var chain []*Rule
	for cur := r; cur != nil; cur = cur.Overrides {
		chain = append(chain, cur)
	}

	return chain
}
