package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/circuitid/comm"
	"github.com/sarchlab/circuitid/config"
	"github.com/sarchlab/circuitid/datarecording"
	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/metrics"
	"github.com/sarchlab/circuitid/monitoring"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"
	"github.com/sarchlab/circuitid/target"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var checkCmd = &cobra.Command{
	Use:   "check <config.yaml>",
	Short: "Check the connection overrides of a simulation configuration.",
	Long: "`check <config.yaml>` loads the node sets of the configuration, " +
		"lays out the populations and resolves the connection overrides. " +
		"It fails on configuration errors.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}

		opts := checkOptions{configFile: args[0]}
		opts.envFiles, _ = cmd.Flags().GetStringSlice("env")
		opts.ranks, _ = cmd.Flags().GetInt("ranks")
		opts.record, _ = cmd.Flags().GetString("record")
		opts.saveLayout, _ = cmd.Flags().GetBool("save-layout")
		opts.timeout, _ = cmd.Flags().GetDuration("timeout")

		run := &checkRun{
			opts:   opts,
			out:    cmd.OutOrStdout(),
			logger: logger,
		}

		run.monitor = startMonitor(cmd)
		if run.monitor != nil {
			promReg := prometheus.NewRegistry()
			run.metrics = metrics.NewCollector(promReg)
			run.monitor.WithMetrics(promReg)

			if err := serveMonitor(cmd, run.monitor); err != nil {
				return err
			}
		}

		_, err = run.run(cmd.Context())

		if run.monitor != nil {
			waitForInterrupt(cmd)
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Int("ranks", 1,
		"Number of in-process ranks that resolve the overrides together")
	checkCmd.Flags().String("record", "",
		"Record the layout and the diagnostics in <record>.sqlite3")
	checkCmd.Flags().Bool("save-layout", false,
		"Save the population layout for a later restore")
	checkCmd.Flags().StringSlice("env", nil,
		".env files with CIRCUITID_* overrides")
	checkCmd.Flags().Duration("timeout", time.Minute,
		"Give up when the ranks do not meet in a collective within this time")
	addMonitorFlags(checkCmd)
}

func waitForInterrupt(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Fprintln(cmd.ErrOrStderr(), "Check done, press Ctrl-C to stop the monitor.")
	<-ctx.Done()
}

type checkOptions struct {
	configFile string
	envFiles   []string
	ranks      int
	record     string
	saveLayout bool
	timeout    time.Duration
}

// checkRun resolves the overrides of one configuration. Only rank 0 reports,
// records and feeds the monitor; the other ranks run silently.
type checkRun struct {
	opts    checkOptions
	out     io.Writer
	logger  *slog.Logger
	monitor *monitoring.Monitor
	metrics *metrics.Collector
}

type rankResult struct {
	reg    *nodeset.Registry
	report *override.Report
	calls  uint64
}

func (r *checkRun) run(ctx context.Context) (*override.Report, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}

	restore, err := readLayoutFile(cfg.PopulationsOffsetRestorePath())
	if err != nil {
		return nil, err
	}

	var recorder *datarecording.Recorder
	if r.opts.record != "" {
		dr, err := datarecording.New(r.opts.record)
		if err != nil {
			return nil, err
		}
		defer dr.Close()

		recorder = datarecording.NewRecorder(dr)
	}

	results, err := r.runRanks(ctx, cfg, restore, recorder)

	first := results[0]
	if first.report != nil {
		r.printReport(first.report)

		if recorder != nil {
			recorder.RecordReport(first.report)
		}

		if r.monitor != nil {
			r.monitor.SetReport(first.report)
		}
	}

	if err != nil {
		return first.report, err
	}

	r.checkSymmetry(results)

	layout := first.reg.Layout()
	r.printLayout(layout)

	if recorder != nil {
		recorder.RecordLayout(layout)
		recorder.Flush()
	}

	if r.opts.saveLayout {
		err = saveLayout(layout,
			cfg.PopulationsOffsetSavePath(),
			cfg.PopulationsOffsetOutputPath())
		if err != nil {
			return first.report, err
		}
	}

	return first.report, nil
}

func (r *checkRun) loadConfig() (*config.SimConfig, error) {
	cfg, err := config.Load(r.opts.configFile)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(r.opts.envFiles...); err != nil {
		return nil, err
	}

	if err := config.Validate(cfg, config.DefaultValidators()); err != nil {
		return nil, err
	}

	cfg.UpdateConnectionBlocks(cfg.PopulationAliases)

	return cfg, nil
}

func (r *checkRun) runRanks(
	ctx context.Context,
	cfg *config.SimConfig,
	restore []nodeset.LayoutEntry,
	recorder *datarecording.Recorder,
) ([]rankResult, error) {
	n := max(r.opts.ranks, 1)

	var comms []comm.Communicator
	if n == 1 {
		comms = []comm.Communicator{comm.NewSingle()}
	} else {
		comms = comm.NewLocalGroup(n)
	}

	if r.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.timeout)
		defer cancel()
	}

	results := make([]rankResult, n)
	g, gctx := errgroup.WithContext(ctx)

	for i, c := range comms {
		g.Go(func() error {
			counting := comm.NewCounting(c)

			var instrumented comm.Communicator = counting
			if r.metrics != nil {
				instrumented = r.metrics.Instrument(counting)
			}

			reg, report, err := r.rank(gctx, cfg, instrumented, restore, recorder)
			results[i] = rankResult{reg: reg, report: report, calls: counting.Calls()}

			if err != nil {
				return fmt.Errorf("rank %d: %w", i, err)
			}

			return nil
		})
	}

	return results, g.Wait()
}

func (r *checkRun) rank(
	ctx context.Context,
	cfg *config.SimConfig,
	c comm.Communicator,
	restore []nodeset.LayoutEntry,
	recorder *datarecording.Recorder,
) (*nodeset.Registry, *override.Report, error) {
	logger := r.logger
	if c.Rank() > 0 {
		logger = slog.New(slog.DiscardHandler)
	}

	reg := nodeset.MakeBuilder().
		WithCommunicator(c).
		WithLogger(logger).
		Build()

	var hooks []hooking.Hook
	if c.Rank() == 0 {
		if recorder != nil {
			hooks = append(hooks, recorder)
		}

		if r.metrics != nil {
			hooks = append(hooks, r.metrics)
		}

		for _, h := range hooks {
			reg.AcceptHook(h)
		}

		if r.monitor != nil {
			r.monitor.RegisterRegistry(reg)
			hooks = append(hooks, r.monitor)
		}
	}

	if restore != nil {
		if err := reg.RestoreLayout(restore); err != nil {
			return reg, nil, err
		}
	}

	src, err := target.LoadFileSource(reg, logger,
		cfg.CircuitNodeSetsFile, cfg.NodeSetsFile)
	if err != nil {
		return reg, nil, err
	}

	mgr := target.MakeBuilder().
		WithSource(src).
		WithLogger(logger).
		Build()

	report, err := cfg.CheckConnectionsConfigure(ctx, mgr, logger, hooks...)

	return reg, report, err
}

// checkSymmetry warns when the ranks did not issue the same number of
// collectives. With real processes such a run would hang.
func (r *checkRun) checkSymmetry(results []rankResult) {
	for i, res := range results[1:] {
		if res.calls != results[0].calls {
			r.logger.Warn("ranks issued different numbers of collectives",
				"rank", i+1, "calls", res.calls, "rank0_calls", results[0].calls)
		}
	}

	r.logger.Debug("collectives issued", "calls", results[0].calls)
}

func (r *checkRun) printReport(report *override.Report) {
	for _, chain := range report.Chains {
		fmt.Fprint(r.out, override.FormatChain(chain))
		fmt.Fprintln(r.out)
	}

	for _, use := range report.GlobalVars {
		fmt.Fprintf(r.out, "%s sets global variables: %v\n", use.Rule, use.Vars)
	}

	fmt.Fprintf(r.out, "%d connection rules, %d with weight=0, %d diagnostics\n",
		len(report.Rules), len(report.ZeroWeight), len(report.Diagnostics))
}

func (r *checkRun) printLayout(layout []nodeset.LayoutEntry) {
	fmt.Fprintln(r.out, "Population layout:")
	if err := nodeset.WriteLayout(r.out, layout); err != nil {
		r.logger.Error("cannot print the layout", "error", err)
	}
}

// readLayoutFile returns nil for an empty path.
func readLayoutFile(path string) ([]nodeset.LayoutEntry, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("restoring the layout: %w", err)
	}
	defer f.Close()

	return nodeset.ReadLayout(f)
}

func saveLayout(layout []nodeset.LayoutEntry, paths ...string) error {
	var errs []error

	for _, path := range paths {
		errs = append(errs, writeLayoutFile(path, layout))
	}

	return errors.Join(errs...)
}

func writeLayoutFile(path string, layout []nodeset.LayoutEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving the layout: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving the layout: %w", err)
	}

	if err := nodeset.WriteLayout(f, layout); err != nil {
		f.Close()
		return fmt.Errorf("saving the layout: %w", err)
	}

	return f.Close()
}
