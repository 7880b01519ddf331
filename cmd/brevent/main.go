package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Zereker/brevent"
	"github.com/Zereker/brevent/internal/config"
	"github.com/Zereker/brevent/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	addr       string
	logLevel   string
	noColor    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "brevent",
		Short: "Talk to the brevent service over its loopback protocol",
		Long: `brevent speaks the loopback protocol of the brevent background service.

It can run a reference service, check whether the service is listening,
and send status and update requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a TOML config file")
	pf.StringVar(&flags.addr, "addr", "", "service address (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored log output")

	rootCmd.AddCommand(
		serveCmd(flags),
		probeCmd(flags),
		statusCmd(flags),
		updateCmd(flags),
		versionCmd(),
	)

	return rootCmd
}

// resolve loads the config file, if any, and applies flag overrides.
func (f *globalFlags) resolve() (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (f *globalFlags) logger(cfg config.Config) zerolog.Logger {
	return logging.New(os.Stderr, "brevent", cfg.LogLevel, f.noColor)
}

// clientOptions builds the options shared by the client-side commands.
func clientOptions(cfg config.Config, logger zerolog.Logger) []brevent.Option {
	codec := brevent.NewFrameCodec(brevent.MaxRecordSizeOption(cfg.MaxRecordSize))
	return []brevent.Option{
		brevent.AddrOption(cfg.Addr),
		brevent.CustomCodecOption(codec),
		brevent.LoggerOption(logging.NewAdapter(logger)),
		brevent.IdleTimeoutOption(cfg.IdleTimeout),
		brevent.ProbeTimeoutOption(cfg.ProbeTimeout),
	}
}
