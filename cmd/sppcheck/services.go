package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/sppcheck/inspector"
	"github.com/srg/sppcheck/internal/device"
	"github.com/srg/sppcheck/internal/devicefactory"
	"github.com/srg/sppcheck/pkg/config"
)

func newServicesCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "services <device-address>",
		Short: "List the SDP service records of a device",
		Long: `Query the SDP server of a Bluetooth Classic device and list its service
records. The record the check would connect to is marked with '*'.

Example:
  sppcheck services 24:0A:C4:00:11:22
  sppcheck services --format json 24:0A:C4:00:11:22`,
		Args: cobra.ExactArgs(1),
		RunE: runServices,
	}

	cmd.Flags().StringP("format", "f", defaults.OutputFormat, "Output format (table, json)")
	return cmd
}

// servicesOutput is the JSON form of the services command
type servicesOutput struct {
	Address  string           `json:"address"`
	Selected *device.Service  `json:"selected,omitempty"`
	Services []device.Service `json:"services"`
}

func runServices(cmd *cobra.Command, args []string) error {
	address := device.NormalizeAddress(args[0])
	if _, err := device.ParseAddress(address); err != nil {
		return err
	}

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

	res, err := inspector.ResolveService(cmd.Context(), adapter, address, logger, nil)
	// A device without an RFCOMM record still has a listing worth showing
	if err != nil && (res == nil || len(res.Services) == 0) {
		return err
	}

	output := servicesOutput{Address: address, Services: res.Services}
	if err == nil {
		output.Selected = &res.Selected
	}

	out := cmd.OutOrStdout()
	if cfg.OutputFormat == config.FormatJSON {
		return writeJSON(out, output)
	}
	return displayServicesTable(out, output)
}

func displayServicesTable(out io.Writer, output servicesOutput) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " \tHANDLE\tNAME\tPROTOCOL\tPORT\tCLASSES")

	for _, svc := range output.Services {
		mark := " "
		if output.Selected != nil && svc.Handle == output.Selected.Handle {
			mark = "*"
		}

		classes := make([]string, 0, len(svc.ServiceClasses))
		for _, uuid := range svc.ServiceClasses {
			classes = append(classes, device.ServiceClassName(uuid))
		}

		protocol, port := "-", "-"
		if svc.Protocol != "" {
			protocol = string(svc.Protocol)
			port = fmt.Sprintf("%d", svc.Port)
		}

		fmt.Fprintf(w, "%s\t0x%08x\t%s\t%s\t%s\t%s\n",
			mark, svc.Handle, svc.DisplayName(), protocol, port, strings.Join(classes, ","))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if output.Selected == nil {
		fmt.Fprintln(out, "\nNo SPP/RFCOMM service found")
	}
	return nil
}
