package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/internal/check"
	"github.com/srg/sppcheck/internal/console"
	"github.com/srg/sppcheck/internal/devicefactory"
	"github.com/srg/sppcheck/pkg/config"
)

// newRootCmd builds the command tree. The root command runs the check.
func newRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "sppcheck",
		Short: "RobotSpider Bluetooth SPP integration test",
		Long: `End-to-end check of a RobotSpider reachable over Bluetooth Classic:

1. Discover nearby devices and find the target by its exact name
2. Resolve the Serial Port Profile (SPP) channel over SDP
3. Open an RFCOMM connection to that channel
4. Keep the connection open for a short probe window and report any data

Exit status is 0 on success, 1 when a step fails and 130 when interrupted.`,
		Version:       formatVersion(version),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE:          runCheck,
	}
	cmd.SetVersionTemplate("sppcheck {{.Version}} (commit " + commit + ", built " + date + ")\n")

	// Global flags
	pf := cmd.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("adapter", "", "Local Bluetooth adapter (e.g. hci0; default: first available)")
	pf.Duration("sdp-timeout", defaults.SDPTimeout, "Service discovery (SDP) query timeout")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("verbose", false, "Enable debug logging")

	f := cmd.Flags()
	f.BoolP("version", "v", false, "Show version information")
	f.Bool("send", false, "Send test commands after connecting (not implemented yet)")
	f.StringP("name", "n", defaults.TargetName, "Exact Bluetooth name of the target device")
	f.DurationP("duration", "d", defaults.DiscoveryDuration, "Discovery duration")
	f.Duration("hold", defaults.ProbeDuration, "How long to keep the connection open")
	f.Duration("connect-timeout", defaults.ConnectTimeout, "RFCOMM connection timeout")
	f.Bool("stop-on-match", defaults.StopOnMatch, "End discovery as soon as the target is seen")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newServicesCmd())
	cmd.AddCommand(newBridgeCmd())

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := devicefactory.AdapterFactory(logger, adapterOptions(cfg))
	if err != nil {
		return err
	}

	opts := check.OptionsFromConfig(cfg)
	opts.Send, _ = cmd.Flags().GetBool("send")

	out := newPrinter(cmd, cfg)
	err = check.NewRunner(adapter, out, logger, opts).Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		out.Blank()
		out.Warning("Test interrupted by user")
	}
	return err
}

// loadConfig reads --config and applies the flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if flagChanged(cmd, "name") {
		cfg.TargetName, _ = f.GetString("name")
	}
	if flagChanged(cmd, "adapter") {
		cfg.Adapter, _ = f.GetString("adapter")
	}
	if flagChanged(cmd, "duration") {
		cfg.DiscoveryDuration, _ = f.GetDuration("duration")
	}
	if flagChanged(cmd, "hold") {
		cfg.ProbeDuration, _ = f.GetDuration("hold")
	}
	if flagChanged(cmd, "connect-timeout") {
		cfg.ConnectTimeout, _ = f.GetDuration("connect-timeout")
	}
	if flagChanged(cmd, "sdp-timeout") {
		cfg.SDPTimeout, _ = f.GetDuration("sdp-timeout")
	}
	if flagChanged(cmd, "flush-cache") {
		cfg.FlushCache, _ = f.GetBool("flush-cache")
	}
	if flagChanged(cmd, "stop-on-match") {
		cfg.StopOnMatch, _ = f.GetBool("stop-on-match")
	}
	if flagChanged(cmd, "format") {
		cfg.OutputFormat, _ = f.GetString("format")
	}
	if flagChanged(cmd, "no-color") {
		cfg.NoColor, _ = f.GetBool("no-color")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func adapterOptions(cfg *config.Config) devicefactory.Options {
	return devicefactory.Options{ConnectTimeout: cfg.ConnectTimeout, SDPTimeout: cfg.SDPTimeout}
}

// flagChanged reports whether cmd knows the flag and it was set on the command line
func flagChanged(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

func newPrinter(cmd *cobra.Command, cfg *config.Config) *console.Printer {
	var opts []console.Option
	if cfg.NoColor {
		opts = append(opts, console.WithColor(false))
	}
	return console.New(cmd.OutOrStdout(), opts...)
}
