// Package commands implements the lanehud command line.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"lanehud/internal/config"
	"lanehud/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

// Execute builds the command tree and runs it.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lanehud",
		Short: "Turn-by-turn lane guidance for a vehicle HUD",
		Long: `lanehud drives a navigation session against a routing engine and
pushes lane guidance to a heads-up display over WebSocket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")

	root.AddCommand(serveCmd(), replayCmd())
	return root
}

// initConfig loads defaults, the optional config file and LANEHUD_*
// overrides, then builds the process logger.
func initConfig() error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c
	logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}
