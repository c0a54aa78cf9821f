package cmd

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/rocketdma/pkg/config"
)

var (
	writeAddr string
	readAddr  string
	readSize  string
)

var writeCmd = &cobra.Command{
	Use:   "write --addr <address> <file>",
	Short: "Copy a file to a card address",
	Example: `  xdma write --addr 0x80001000 patch.bin`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := config.ParseAddress(writeAddr)
		if err != nil {
			return err
		}
		out, err := newRocket().Write(uint64(addr), args[0])
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read --addr <address> --size <bytes> [output]",
	Short: "Copy bytes from a card address",
	Long: `Copy bytes from a card address into a file. Without an output file the
region is treated as a result page and saved into the file it names.

Sizes accept plain byte counts or units such as 4KiB.`,
	Example: `  xdma read --addr 0xD0000000 --size 4KiB page.bin`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := config.ParseAddress(readAddr)
		if err != nil {
			return err
		}
		size, err := parseSize(readSize)
		if err != nil {
			return err
		}
		var dest string
		if len(args) == 1 {
			dest = args[0]
		}
		out, err := newRocket().Read(uint64(addr), size, dest)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(readCmd)

	writeCmd.Flags().StringVarP(&writeAddr, "addr", "a", "", "card address (hex or decimal)")
	writeCmd.MarkFlagRequired("addr")

	readCmd.Flags().StringVarP(&readAddr, "addr", "a", "", "card address (hex or decimal)")
	readCmd.Flags().StringVarP(&readSize, "size", "s", "4KiB", "bytes to read")
	readCmd.MarkFlagRequired("addr")
}

// parseSize accepts "4096", "0x1000" or humanized sizes like "4KiB".
func parseSize(s string) (int, error) {
	if a, err := config.ParseAddress(s); err == nil {
		return checkSize(s, uint64(a))
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return checkSize(s, n)
}

func checkSize(s string, n uint64) (int, error) {
	if n == 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("invalid size %q: must be between 1 and %d bytes", s, math.MaxInt32)
	}
	return int(n), nil
}
