package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/rocketdma/internal/logger"
	"github.com/OpenTraceLab/rocketdma/pkg/config"
	"github.com/OpenTraceLab/rocketdma/pkg/rocket"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	h2cPath string
	c2hPath string

	// Single-shot operation flags
	loadOp   bool
	resetOp  bool
	resultOp bool
	fileName string

	// Effective configuration, set by setup before any command runs
	cfg      *config.Config
	closeLog func() error
)

var errNoOperation = errors.New("no operation selected: use --load, --reset, --result or a subcommand")

var rootCmd = &cobra.Command{
	Use:   "xdma",
	Short: "Load, reset and collect results from a Rocket core over XDMA",
	Long: `Move data between the host and a Rocket core on an FPGA card through the
XDMA host-to-card and card-to-host streaming channels.

Examples:
  xdma --load --file bbl.bin                 # Clear the result page, load bbl.bin and reset
  xdma --reset --file bbl.bin                # Reload bbl.bin into a running core
  xdma --result                              # Save the result into the file the page names
  xdma --result --file out.txt               # Save the raw result page into out.txt
  xdma read --addr 0x80000000 --size 4KiB dump.bin
  xdma run boot.plan                         # Run a transfer plan`,
	Version:           "0.1.0",
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runRoot,
}

// Execute runs the root command
func Execute() {
	err := rootCmd.Execute()
	if closeLog != nil {
		closeLog()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default "+config.GetDefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&h2cPath, "h2c", "",
		"host-to-card device (default from config, "+xdma.DefaultH2CPath+")")
	rootCmd.PersistentFlags().StringVar(&c2hPath, "c2h", "",
		"card-to-host device (default from config, "+xdma.DefaultC2HPath+")")

	rootCmd.Flags().BoolVarP(&loadOp, "load", "l", false, "clear the result page, load --file and reset Rocket")
	rootCmd.Flags().BoolVarP(&resetOp, "reset", "r", false, "reset a running Rocket, reloading --file first when given")
	rootCmd.Flags().BoolVarP(&resultOp, "result", "x", false, "read the result page into --file, or into the file it names")
	rootCmd.Flags().StringVarP(&fileName, "file", "f", "", "image to load, or result output file")
	rootCmd.MarkFlagsMutuallyExclusive("load", "reset", "result")
}

// setup loads the configuration, applies flag overrides and configures
// logging.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if h2cPath != "" {
		c.Device.H2C = h2cPath
	}
	if c2hPath != "" {
		c.Device.C2H = c2hPath
	}
	if verbose {
		c.Logging.Level = "DEBUG"
	}

	w, closer, err := logger.OpenOutput(c.Logging.Output)
	if err != nil {
		return err
	}
	if closeLog != nil {
		closeLog()
	}
	logger.SetOutput(w)
	logger.SetLevel(c.Logging.Level)
	logger.SetFormat(c.Logging.Format)
	closeLog = closer

	cfg = c
	logger.Debug("Using h2c=%s c2h=%s", cfg.Device.H2C, cfg.Device.C2H)
	return nil
}

// newRocket wires the operations to the configured devices and addresses.
func newRocket() *rocket.Rocket {
	engine := xdma.NewEngine(cfg.Opener(), xdma.WithPayloadMode(cfg.PayloadMode()))
	return rocket.New(engine, cfg.AddressMap())
}

func runRoot(cmd *cobra.Command, args []string) error {
	r := newRocket()

	switch {
	case loadOp:
		if fileName == "" {
			return errors.New("--load needs an image: --file <bbl>")
		}
		outs, err := r.Boot(fileName)
		printOutcomes(cmd.OutOrStdout(), outs)
		return err

	case resetOp:
		outs, err := r.Reload(fileName)
		printOutcomes(cmd.OutOrStdout(), outs)
		return err

	case resultOp:
		out, err := r.ReadResult(fileName)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	}

	if fileName != "" {
		return fmt.Errorf("--file %s given without an operation", fileName)
	}
	cmd.Usage()
	return errNoOperation
}
