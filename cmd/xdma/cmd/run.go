package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/rocketdma/pkg/plan"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run <plan>",
	Short: "Run a transfer plan",
	Long: `Run the steps of a plan file in order, stopping at the first failure.
Relative paths in the plan resolve against the plan's directory.

Plan syntax:
  # comment
  clear                               # zero the result page
  load "bbl.bin"                      # load and reset
  reset                               # reset only
  reset "bbl.bin"                     # reload and reset
  write 0x80001000 "patch.bin"        # copy a file to an address
  read 0xD0000000 4096 "page.bin"     # copy bytes to a file
  read 0xD0000000 4096                # extract a result page found there
  result                              # extract the result page
  result "out.txt"                    # save the raw result page`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.ParseFile(args[0])
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Fprint(cmd.OutOrStdout(), p.String())
			return nil
		}

		outs, err := p.Run(newRocket())
		printOutcomes(cmd.OutOrStdout(), outs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d step(s), %d transfer(s)\n", len(p.Steps), len(outs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "parse and print the plan without running it")
}
