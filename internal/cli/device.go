package cli

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	eeprom "github.com/YdPater/i2c-tools"
)

func newHeadCmd(a *app) *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:     "head",
		Aliases: []string{"dump_head"},
		Short:   "Print the first bytes of the EEPROM as HEX rows",
		Args:    cobra.NoArgs,
		RunE: a.deviceRunE(func(cmd *cobra.Command, _ []string, e *eeprom.EEPROM) error {
			return e.DumpHead(cmd.Context(), cmd.OutOrStdout(), length)
		}),
	}
	cmd.Flags().IntVarP(&length, "length", "n", eeprom.HeadLength, "number of bytes to print")

	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var appendMode bool

	cmd := &cobra.Command{
		Use:     "dump",
		Aliases: []string{"dump_full_content"},
		Short:   "Dump the whole EEPROM to a file",
		Long: `Dump the whole EEPROM to --output-file.

Files ending in .hex are written as Intel HEX, anything else as raw bytes.`,
		Args: cobra.NoArgs,
		RunE: a.deviceRunE(func(cmd *cobra.Command, _ []string, e *eeprom.EEPROM) error {
			var buf bytes.Buffer
			if err := e.Dump(cmd.Context(), &buf, progressPrinter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if err := eeprom.SaveImage(a.cfg.Output, buf.Bytes(), appendMode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dumped %s to %s\n", e.Model, a.cfg.Output)

			return nil
		}),
	}
	cmd.Flags().StringP("output-file", "o", "mem.out", "dump file for the EEPROM contents")
	cmd.Flags().BoolVar(&appendMode, "append", false, "append to the dump file instead of replacing it")

	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:     "read [ADDR]",
		Aliases: []string{"read_from"},
		Short:   "Read a cell, prompting for its address when not given",
		Example: "  i2c-eeprom -d atmel_24c256 read 0x0001",
		Args:    cobra.MaximumNArgs(1),
		RunE: a.deviceRunE(func(cmd *cobra.Command, args []string, e *eeprom.EEPROM) error {
			p := newPrompter(cmd, a.yes)
			s, err := p.argOrAsk(args, 0, "Supply the 4 byte address to read from (ex: 0x0001): ")
			if err != nil {
				return err
			}
			addr, err := eeprom.ParseCellAddress(s, e.Model.Size)
			if err != nil {
				return err
			}

			if length > 1 {
				data, err := e.ReadAt(cmd.Context(), addr, min(length, e.Model.Size-addr))
				if err != nil {
					return err
				}
				return eeprom.WriteRows(cmd.OutOrStdout(), addr, data, eeprom.HeadRowWidth)
			}

			v, err := e.ReadCell(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HEX value found at 0x%04x -> 0x%x\n", addr, v)

			return nil
		}),
	}
	cmd.Flags().IntVarP(&length, "length", "n", 1, "number of bytes to read")

	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "write [ADDR [VALUE]]",
		Aliases: []string{"write_to"},
		Short:   "Write one byte to a cell, prompting for what is not given",
		Example: "  i2c-eeprom -d atmel_24c256 write 0x0001 0x41",
		Args:    cobra.MaximumNArgs(2),
		RunE: a.deviceRunE(func(cmd *cobra.Command, args []string, e *eeprom.EEPROM) error {
			p := newPrompter(cmd, a.yes)
			s, err := p.argOrAsk(args, 0, "Supply the 4 byte address to write to (ex: 0x0001): ")
			if err != nil {
				return err
			}
			addr, err := eeprom.ParseCellAddress(s, e.Model.Size)
			if err != nil {
				return err
			}
			s, err = p.argOrAsk(args, 1, "Please supply the HEX value to write to the register (ex: 0x41): ")
			if err != nil {
				return err
			}
			value, err := eeprom.ParseByte(s)
			if err != nil {
				return err
			}

			ok, err := p.confirm("I am about to write 0x%02x to register 0x%04x", value, addr)
			if err != nil || !ok {
				return err
			}

			if err := e.WriteCell(cmd.Context(), addr, value); err != nil {
				return err
			}
			got, err := e.ReadCell(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Byte successfully written to: 0x%04x. Data currently in register: 0x%x\n", addr, got)

			return nil
		}),
	}
}

func newProgramCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "program FILE",
		Short: "Write an image file (.bin raw from cell 0, .hex Intel HEX) to the EEPROM",
		Args:  cobra.ExactArgs(1),
		RunE: a.deviceRunE(func(cmd *cobra.Command, args []string, e *eeprom.EEPROM) error {
			p := newPrompter(cmd, a.yes)
			ok, err := p.confirm("I am about to program %s into the %s", args[0], e.Model)
			if err != nil || !ok {
				return err
			}

			if err := e.WriteFile(cmd.Context(), args[0], verify, progressPrinter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Programmed %s into the %s\n", args[0], e.Model)

			return nil
		}),
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "read the image back after writing it")

	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Compare an image file with the EEPROM contents",
		Args:  cobra.ExactArgs(1),
		RunE: a.deviceRunE(func(cmd *cobra.Command, args []string, e *eeprom.EEPROM) error {
			segments, err := eeprom.LoadImage(args[0])
			if err != nil {
				return err
			}

			total := 0
			for _, s := range segments {
				if err := e.Model.CheckRange(s.Addr, len(s.Data)); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if err := e.Verify(cmd.Context(), s.Addr, s.Data); err != nil {
					return err
				}
				total += len(s.Data)
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Verification OK: %s of %s match the device\n", humanize.IBytes(uint64(total)), args[0])

			return nil
		}),
	}
}

func newEraseCmd(a *app) *cobra.Command {
	var fill string

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Fill the whole EEPROM with one byte",
		Args:  cobra.NoArgs,
		RunE: a.deviceRunE(func(cmd *cobra.Command, _ []string, e *eeprom.EEPROM) error {
			value, err := eeprom.ParseByte(fill)
			if err != nil {
				return err
			}

			p := newPrompter(cmd, a.yes)
			ok, err := p.confirm("I am about to fill the %s with 0x%02x", e.Model, value)
			if err != nil || !ok {
				return err
			}

			if err := e.Erase(cmd.Context(), value, progressPrinter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Erased the %s\n", e.Model)

			return nil
		}),
	}
	cmd.Flags().StringVar(&fill, "fill", "0xFF", "byte written to every cell")

	return cmd
}
