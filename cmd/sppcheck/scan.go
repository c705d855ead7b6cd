package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/devicefactory"
	"github.com/srg/sppcheck/pkg/config"
	"github.com/srg/sppcheck/scanner"
)

func newScanCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for Bluetooth Classic devices",
		Long: `Run a Bluetooth Classic inquiry and list the devices that answered,
in the order they were first seen.

With --live every new or updated device is printed as soon as it is seen.
Ctrl+C ends the scan early and still prints what was found.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	f := cmd.Flags()
	f.DurationP("duration", "d", defaults.DiscoveryDuration, "Scan duration")
	f.StringP("format", "f", defaults.OutputFormat, "Output format (table, json)")
	f.StringSlice("allow", nil, "Only show devices with these addresses")
	f.StringSlice("block", nil, "Hide devices with these addresses")
	f.Bool("flush-cache", defaults.FlushCache, "Only report devices that answer during this scan")
	f.BoolP("live", "l", false, "Print devices as they are discovered")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
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
	s, err := scanner.NewScanner(adapter, logger)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	allow, _ := cmd.Flags().GetStringSlice("allow")
	block, _ := cmd.Flags().GetStringSlice("block")
	opts := &scanner.ScanOptions{
		Duration:   cfg.DiscoveryDuration,
		Adapter:    cfg.Adapter,
		FlushCache: cfg.FlushCache,
		AllowList:  allow,
		BlockList:  block,
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var devices []device.Device
	if live, _ := cmd.Flags().GetBool("live"); live {
		devices, err = runLiveScan(ctx, s, opts, out)
	} else {
		progress := NewCountdownProgressPrinter(out, "Scanning for Bluetooth devices", "Scanning", opts.Duration, "Processing results")
		progress.Start()
		devices, err = s.Scan(ctx, opts, progress.Callback())
		progress.Stop()
	}

	if errors.Is(err, context.Canceled) {
		// Interrupted: show what was seen so far
		logger.Debug("Scan interrupted")
		devices, err = s.Devices(), nil
	}
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	return displayDevices(out, devices, cfg.OutputFormat)
}

// runLiveScan prints scanner events while the scan runs.
func runLiveScan(ctx context.Context, s *scanner.Scanner, opts *scanner.ScanOptions, out io.Writer) ([]device.Device, error) {
	type result struct {
		devices []device.Device
		err     error
	}
	done := make(chan result, 1)
	go func() {
		devices, err := s.Scan(ctx, opts, nil)
		done <- result{devices, err}
	}()

	for {
		select {
		case ev := <-s.Events():
			printEvent(out, ev)
		case res := <-done:
			// Flush events published before the scan returned
			for {
				select {
				case ev := <-s.Events():
					printEvent(out, ev)
				default:
					return res.devices, res.err
				}
			}
		}
	}
}

func printEvent(out io.Writer, ev scanner.DeviceEvent) {
	fmt.Fprintf(out, "[%s] %s  %s  %s\n", ev.Type, ev.Device.Address, ev.Device.DisplayName(), formatRSSI(ev.Device.RSSI))
}

func displayDevices(out io.Writer, devices []device.Device, format string) error {
	if format == config.FormatJSON {
		if devices == nil {
			devices = []device.Device{}
		}
		return writeJSON(out, devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCLASS\tPAIRED")

	for _, d := range devices {
		name := truncateName(d.DisplayName(), 24)
		class := "-"
		if d.Class != 0 {
			class = fmt.Sprintf("0x%06x", d.Class)
		}
		paired := "no"
		if d.Paired {
			paired = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, d.Address, formatRSSI(d.RSSI), class, paired)
	}

	return w.Flush()
}

// truncateName shortens name to at most limit runes, marking the cut with "...".
func truncateName(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit-3]) + "..."
}

func formatRSSI(rssi int16) string {
	if rssi == 0 {
		return "-"
	}
	return fmt.Sprintf("%d dBm", rssi)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
