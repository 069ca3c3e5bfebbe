package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/byteflow-dev/byteflow/internal/config"
	"github.com/byteflow-dev/byteflow/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┳┓   ┏┓┓
  ┣┫┓┏╋┣ ┃┏┓┓┏┏
  ┻┛┗┫┗┻ ┗┗┛┗┻┛
     ┛
`

// globalFlags are shared by every command.
type globalFlags struct {
	dir      string
	logLevel string
	noColor  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(errors.Classify(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "byteflow",
		Short: "Binary packet protocol over WebSockets",
		Long: `ByteFlow packs typed packets into a compact binary envelope and
exchanges them over WebSocket connections with heartbeats.

  • serve    run a WebSocket server for the demo packets
  • dial     connect, log in and exchange packets
  • inspect  decode a hex frame
  • bench    measure pack and unpack time`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Directory containing byteflow.json and .env")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (default from byteflow.json)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		serveCmd(g),
		dialCmd(g),
		inspectCmd(),
		benchCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads and validates the configuration and installs the
// configured logger as the slog default.
func loadConfig(g *globalFlags, logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.Log.NewLogger(logOut))
	return cfg, nil
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.FgHiBlack).SprintFunc()
)

// printBanner prints the ByteFlow banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}
