// Package main is the alipaykernel command line tool.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Environment variables that provide flag defaults.
const (
	envConfigPath = "ALIPAYKERNEL_CONFIG"
	envLogLevel   = "ALIPAYKERNEL_LOG_LEVEL"
	envLogFormat  = "ALIPAYKERNEL_LOG_FORMAT"
)

// cliFlags holds the persistent command line flags.
type cliFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree writing results to out.
func newRootCommand(out, errOut io.Writer) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "alipaykernel",
		Short: "Sign, send and verify Alipay open platform calls",
		Long: `alipaykernel signs requests for the Alipay open platform gateway,
verifies the replies and keeps the gateway certificate up to date.

The certificate commands work offline. call and watch read the client
configuration from --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	bindGlobalFlags(root.PersistentFlags(), flags)

	root.AddCommand(
		newCertSNCommand(),
		newRootCertSNCommand(),
		newPubKeyCommand(),
		newSignCommand(),
		newCallCommand(flags),
		newWatchCommand(flags),
		newVersionCommand(),
	)
	return root
}

// bindGlobalFlags registers the flags shared by every command. Defaults
// come from the environment.
func bindGlobalFlags(fs *pflag.FlagSet, flags *cliFlags) {
	fs.StringVarP(&flags.configPath, "config", "c",
		flagDefault(envConfigPath, "configs/alipaykernel.yaml"), "Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", flagDefault(envLogLevel, ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	fs.StringVar(&flags.logFormat, "log-format", flagDefault(envLogFormat, ""),
		"Log format (json, console); overrides the configuration")
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "alipaykernel version %s\n", version)
			fmt.Fprintf(w, "  Build time: %s\n", buildTime)
			fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
		},
	}
}

// syncLogger flushes logger, ignoring the error stdout and stderr return
// on some platforms.
func syncLogger(logger observability.Logger) {
	_ = logger.Sync()
}
