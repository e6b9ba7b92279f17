package main

import (
	"fmt"
	"os"

	"github.com/danmuck/cwpctl/internal/config"
	"github.com/danmuck/cwpctl/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cwpctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "cwpctl",
		Short: "CWP morse telegraphy client",
		Long: `cwpctl speaks CWP, continuous-wave telegraphy carried as timed key
transitions over TCP. It keys text as morse, decodes what other stations
send and can encode or decode morse offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
			if lvl, ok := logging.ParseLevel(opts.logLevel); ok {
				logging.SetLevel(lvl)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")

	root.AddCommand(
		connectCmd(opts),
		encodeCmd(),
		decodeCmd(),
		configCmd(opts),
		versionCmd(),
	)
	return root
}

// loadConfig returns the file config when one is given, defaults otherwise.
func (o *rootOptions) loadConfig() (config.Client, error) {
	if o.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(o.configPath)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cwpctl %s (%s)\n", version, commit)
		},
	}
}
