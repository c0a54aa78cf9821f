package cmd

import (
	"github.com/spf13/cobra"
)

var noClear bool

var loadCmd = &cobra.Command{
	Use:   "load <image>",
	Short: "Load a program image and reset Rocket",
	Long: `Clear the result page, copy the image to program memory and pulse reset.
The reset is skipped if the image transfer fails.

Examples:
  xdma load bbl.bin
  xdma load --no-clear bbl.bin       # Keep the current result page`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := newRocket()
		if noClear {
			outs, err := r.Load(args[0])
			printOutcomes(cmd.OutOrStdout(), outs)
			return err
		}
		outs, err := r.Boot(args[0])
		printOutcomes(cmd.OutOrStdout(), outs)
		return err
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset [image]",
	Short: "Reset Rocket, reloading an image first when given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var image string
		if len(args) == 1 {
			image = args[0]
		}
		outs, err := newRocket().Reload(image)
		printOutcomes(cmd.OutOrStdout(), outs)
		return err
	},
}

var resultCmd = &cobra.Command{
	Use:   "result [output]",
	Short: "Read the result page",
	Long: `Read the 4 KiB result page. With an output file the raw page is saved
there. Without one the page is split at its first newline: the text before it
names the destination file and the rest is written into that file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dest string
		if len(args) == 1 {
			dest = args[0]
		}
		out, err := newRocket().ReadResult(dest)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Zero the result page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newRocket().InitResultPage()
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(clearCmd)

	loadCmd.Flags().BoolVar(&noClear, "no-clear", false, "do not zero the result page before loading")
}
