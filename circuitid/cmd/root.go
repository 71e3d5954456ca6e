// Package cmd provides the command-line interface for circuitid.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/browser"
	"github.com/sarchlab/circuitid/configerr"
	"github.com/sarchlab/circuitid/monitoring"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "circuitid",
	Short: "circuitid lays out node ids and checks connection overrides.",
	Long: `circuitid lays out the node ids of the populations of a circuit ` +
		`and checks the connection overrides of a simulation configuration ` +
		`before any rank builds the model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info",
		"Log level: debug, info, warn or error")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		if configerr.Is(err) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}

		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	handler := slog.NewTextHandler(cmd.ErrOrStderr(),
		&slog.HandlerOptions{Level: level})

	return slog.New(handler), nil
}

func addMonitorFlags(cmd *cobra.Command) {
	cmd.Flags().Int("monitor", 0,
		"Serve the monitor on this port; any value below 1000 picks a random one")
	cmd.Flags().Bool("open", false, "Open the monitor in a browser")
}

// startMonitor creates the monitor when the --monitor flag is given, and
// returns nil otherwise.
func startMonitor(cmd *cobra.Command) *monitoring.Monitor {
	if !cmd.Flags().Changed("monitor") {
		return nil
	}

	port, _ := cmd.Flags().GetInt("monitor")

	return monitoring.NewMonitor().WithPortNumber(port)
}

func serveMonitor(cmd *cobra.Command, m *monitoring.Monitor) error {
	url, err := m.StartServer()
	if err != nil {
		return err
	}

	if open, _ := cmd.Flags().GetBool("open"); open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Cannot open %s: %s\n", url, err)
		}
	}

	return nil
}
