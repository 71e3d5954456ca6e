package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sarchlab/circuitid/comm"
	"github.com/sarchlab/circuitid/monitoring"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/target"
	"github.com/spf13/cobra"
)

var layoutCmd = &cobra.Command{
	Use:   "layout <nodesets.yaml> [node set names...]",
	Short: "Print the population layout of node sets.",
	Long: "`layout <nodesets.yaml> [node set names...]` materializes the " +
		"named node sets, all of them by default, and prints where each " +
		"population lands in the global id space.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}

		opts := layoutOptions{
			simulationFile: args[0],
			names:          args[1:],
		}
		opts.circuitFile, _ = cmd.Flags().GetString("circuit")
		opts.split, _ = cmd.Flags().GetInt("split")

		m := startMonitor(cmd)
		if m != nil {
			if err := serveMonitor(cmd, m); err != nil {
				return err
			}
		}

		err = runLayout(cmd.Context(), cmd.OutOrStdout(), logger, m, opts)

		if m != nil {
			waitForInterrupt(cmd)
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().String("circuit", "",
		"Node sets file of the circuit, overridden by the given file")
	layoutCmd.Flags().Int("split", 0,
		"Also split every node set in this many parts, as multi-cycle builds do")
	addMonitorFlags(layoutCmd)
}

type layoutOptions struct {
	circuitFile    string
	simulationFile string
	names          []string
	split          int
}

func runLayout(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	m *monitoring.Monitor,
	opts layoutOptions,
) error {
	reg := nodeset.MakeBuilder().
		WithCommunicator(comm.NewSingle()).
		WithLogger(logger).
		Build()

	if m != nil {
		m.RegisterRegistry(reg)
	}

	src, err := target.LoadFileSource(reg, logger,
		opts.circuitFile, opts.simulationFile)
	if err != nil {
		return err
	}

	mgr := target.MakeBuilder().
		WithSource(src).
		WithLogger(logger).
		Build()

	names := opts.names
	if len(names) == 0 {
		names = src.Names()
	}

	var bar *monitoring.ProgressBar
	if m != nil {
		bar = m.CreateProgressBar("Node sets", uint64(len(names)))
		defer m.CompleteProgressBar(bar)
	}

	for _, name := range names {
		if bar != nil {
			bar.IncrementInProgress(1)
		}

		t, err := mgr.Target(ctx, target.Spec{Name: name})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s: %d nodes in %v\n",
			t.Name(), t.GIDCount(), t.PopulationNames())

		if err := printSplit(ctx, out, reg, t, opts.split); err != nil {
			return err
		}

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}
	}

	fmt.Fprintln(out, "Population layout:")

	return nodeset.WriteLayout(out, reg.Layout())
}

func printSplit(
	ctx context.Context,
	out io.Writer,
	reg *nodeset.Registry,
	t *target.NodesetTarget,
	n int,
) error {
	parts, err := t.GenerateSubtargets(ctx, reg, n)
	if err != nil {
		return err
	}

	for i, part := range parts {
		fmt.Fprintf(out, "  part %d:", i)

		for _, sub := range part {
			fmt.Fprintf(out, " %s=%d", sub.Name(), sub.GIDCount())
		}

		fmt.Fprintln(out)
	}

	return nil
}
