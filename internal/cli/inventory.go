package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	eeprom "github.com/YdPater/i2c-tools"
	"github.com/YdPater/i2c-tools/bus"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List the slave addresses answering on the bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := eeprom.ParseSlaveAddress(a.cfg.Address)
			if err != nil {
				return err
			}
			// the model only shapes the sim adapter, scanning works without one
			m, _ := a.model()

			b, err := a.openBus(addr, m)
			if err != nil {
				return err
			}
			defer b.Close()

			found, err := bus.Scan(cmd.Context(), b, bus.ScanFirst, bus.ScanLast)
			if err != nil {
				return err
			}
			writeScanGrid(cmd.OutOrStdout(), found)
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d device(s) on %s\n", len(found), b)

			return nil
		},
	}
}

// writeScanGrid prints found as an i2cdetect style table.
func writeScanGrid(w io.Writer, found []uint16) {
	var sb strings.Builder
	sb.WriteString("   ")
	for col := 0; col < 16; col++ {
		fmt.Fprintf(&sb, "  %x", col)
	}
	sb.WriteString("\n")

	for row := uint16(0); row < 0x80; row += 0x10 {
		line := fmt.Sprintf("%02x:", row)
		for addr := row; addr < row+0x10; addr++ {
			switch {
			case addr < bus.ScanFirst || addr > bus.ScanLast:
				line += "   "
			case slices.Contains(found, addr):
				line += fmt.Sprintf(" %02x", addr)
			default:
				line += " --"
			}
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}

	io.WriteString(w, sb.String())
}

func newAdaptersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the attached FTDI devices and USB serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			adapters, err := a.deps.Adapters()
			if err != nil {
				return err
			}
			if len(adapters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No adapters found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Kind", "Name", "Product", "USB ID", "Serial", "Adapter"})
			table.SetAutoWrapText(false)
			for _, ad := range adapters {
				table.Append([]string{ad.Kind, ad.Name, ad.Product, ad.VID + ":" + ad.PID, ad.Serial, ad.URL})
			}
			table.Render()

			return nil
		},
	}
}

// modelsFile is the shape of the "models" section of a config file.
type modelsFile struct {
	Models []eeprom.Model `yaml:"models" toml:"models"`
}

func newModelsCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the known EEPROM models",
		Long: `List the known EEPROM models.

--format yaml and --format toml print the catalog as a config file "models"
section, a starting point for declaring new parts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			models := a.catalog.Models()

			switch format {
			case "table":
				writeModelsTable(out, models)
				return nil
			case "yaml", "toml":
				file := modelsFile{Models: make([]eeprom.Model, 0, len(models))}
				for _, m := range models {
					file.Models = append(file.Models, *m)
				}
				if format == "toml" {
					return toml.NewEncoder(out).Encode(file)
				}
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(file); err != nil {
					return err
				}
				return enc.Close()
			}

			return fmt.Errorf("unknown format %q, want table, yaml or toml", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, yaml or toml")

	return cmd
}

func writeModelsTable(w io.Writer, models []*eeprom.Model) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Model", "Vendor", "Part", "Size", "Page", "Address bytes"})
	for _, m := range models {
		table.Append([]string{
			m.Name,
			m.Vendor,
			m.Part,
			humanize.IBytes(uint64(m.Size)),
			fmt.Sprint(m.PageSize),
			fmt.Sprint(m.AddrBytes),
		})
	}
	table.Render()
}
