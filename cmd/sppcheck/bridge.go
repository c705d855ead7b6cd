package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/bridge"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/pkg/config"
)

func newBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge <device-address>",
		Short: "Bridge a device's serial port to a local PTY",
		Long: `Open an RFCOMM connection to a device and expose it as a pseudo-terminal,
so that terminal programs (screen, minicom, picocom) can talk to it.

Bytes typed into the PTY are sent to the device and bytes received from the
device are written to the PTY. Without --channel the serial service is
resolved over SDP first. The bridge runs until Ctrl+C or until the link drops.

Example:
  sppcheck bridge 24:0A:C4:00:11:22
  sppcheck bridge --channel 1 --link /tmp/robotspider 24:0A:C4:00:11:22
  picocom /tmp/robotspider`,
		Args: cobra.ExactArgs(1),
		RunE: runBridge,
	}

	f := cmd.Flags()
	f.Uint8("channel", 0, "RFCOMM channel (default: resolve the serial service over SDP)")
	f.String("link", "", "Create a symlink to the PTY device (e.g. /tmp/robotspider)")
	f.Duration("connect-timeout", config.DefaultConfig().ConnectTimeout, "RFCOMM connection timeout")
	return cmd
}

func runBridge(cmd *cobra.Command, args []string) error {
	address := device.NormalizeAddress(args[0])
	if _, err := device.ParseAddress(address); err != nil {
		return err
	}
	channel, _ := cmd.Flags().GetUint8("channel")
	if channel > 30 {
		return fmt.Errorf("invalid RFCOMM channel %d: must be between 1 and 30", channel)
	}
	link, _ := cmd.Flags().GetString("link")

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

	out := newPrinter(cmd, cfg)
	ctx := cmd.Context()

	progress := func(phase string) {
		logger.WithField("phase", phase).Debug("Bridge progress")
		if phase == "Connecting" {
			out.Info("Connecting to %s...", address)
		}
	}

	_, err = bridge.RunDeviceBridge(ctx, &bridge.BridgeOptions{
		Address:        address,
		Channel:        channel,
		ConnectTimeout: cfg.ConnectTimeout,
		SDPTimeout:     cfg.SDPTimeout,
		Logger:         logger,
		TTYSymlinkPath: link,
	}, progress, func(b bridge.Bridge) (struct{}, error) {
		out.Success("Connected to %s on channel %d", b.Address(), b.Channel())
		out.Info("PTY: %s", b.TTYName())
		if b.TTYSymlink() != "" {
			out.Info("Link: %s", b.TTYSymlink())
		}
		out.Info("Press Ctrl+C to stop")

		select {
		case <-ctx.Done():
			logger.Info("Bridge shutting down...")
			stats := b.Stats()
			out.Blank()
			out.Info("Bridge stopped (%d bytes from device, %d bytes to device)", stats.FromDevice, stats.ToDevice)
			return struct{}{}, nil
		case <-b.Done():
			out.Error("Connection lost")
			return struct{}{}, b.Err()
		}
	})

	return err
}
