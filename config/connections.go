package config

import (
	"context"
	"log/slog"

	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/override"
	"github.com/sarchlab/circuitid/target"
)

// UpdateConnectionBlocks rewrites the populations of the connection sources
// and destinations from aliases to real population names.
func (c *SimConfig) UpdateConnectionBlocks(aliases map[string]string) {
	rewrite := func(text string) string {
		spec := target.ParseSpec(text)

		if name, found := aliases[spec.Population]; found && spec.Population != "" {
			spec.Population = name
		}

		return spec.String()
	}

	for i := range c.Connections {
		conn := &c.Connections[i]
		conn.Source = rewrite(conn.Source)
		conn.Destination = rewrite(conn.Destination)
	}
}

// CheckConnectionsConfigure resolves the connection overrides with the
// targets of oracle. A nil logger means the default one. The hooks receive
// the diagnostics. It is a collective call when targets have to be read.
func (c *SimConfig) CheckConnectionsConfigure(
	ctx context.Context,
	oracle override.Oracle,
	logger *slog.Logger,
	hooks ...hooking.Hook,
) (*override.Report, error) {
	builder := override.MakeBuilder().WithOracle(oracle)
	if logger != nil {
		builder = builder.WithLogger(logger)
	}

	resolver := builder.Build()

	for _, h := range hooks {
		resolver.AcceptHook(h)
	}

	return resolver.Resolve(ctx, c.Connections)
}
