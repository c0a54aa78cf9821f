package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

var (
	pageText    string
	pageFrom    string
	pageOutput  string
	pagePayload string
)

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Build and inspect result pages offline",
}

var pageEncodeCmd = &cobra.Command{
	Use:   "encode <path>",
	Short: "Build a result page naming <path>",
	Long: `Build the 4 KiB page the accelerator leaves in the result region: the
destination path, a newline, then the payload, zero padded.

Examples:
  xdma page encode /tmp/answer.txt --text "42" -o page.bin
  xdma page encode /tmp/dump.bin --from dump.bin -o page.bin
  xdma write --addr 0xD0000000 page.bin            # Seed the card with it`,
	Args: cobra.ExactArgs(1),
	RunE: runPageEncode,
}

var pageDecodeCmd = &cobra.Command{
	Use:   "decode <page-file>",
	Short: "Show the path and payload size of a saved result page",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageDecode,
}

func init() {
	rootCmd.AddCommand(pageCmd)
	pageCmd.AddCommand(pageEncodeCmd)
	pageCmd.AddCommand(pageDecodeCmd)

	pageEncodeCmd.Flags().StringVar(&pageText, "text", "", "payload text")
	pageEncodeCmd.Flags().StringVar(&pageFrom, "from", "", "read the payload from a file")
	pageEncodeCmd.Flags().StringVarP(&pageOutput, "output", "o", "", "page file to write (default stdout)")
	pageEncodeCmd.MarkFlagsMutuallyExclusive("text", "from")

	pageDecodeCmd.Flags().StringVar(&pagePayload, "payload", "", "also write the payload to this file")
}

func runPageEncode(cmd *cobra.Command, args []string) error {
	payload := []byte(pageText)
	if pageFrom != "" {
		data, err := os.ReadFile(pageFrom)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		payload = data
	}

	page, err := xdma.EncodeResultPage(args[0], payload)
	if err != nil {
		return err
	}

	if pageOutput == "" {
		_, err = cmd.OutOrStdout().Write(page)
		return err
	}
	if err := os.WriteFile(pageOutput, page, 0o644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s page for %s to %s\n",
		humanize.IBytes(uint64(len(page))), args[0], pageOutput)
	return nil
}

func runPageDecode(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	page := make([]byte, xdma.ResultPageSize)
	n, err := io.ReadFull(f, page)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read page: %w", err)
	}

	path, payload, err := xdma.SplitResultPage(page[:n], cfg.PayloadMode())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Path:    %s\n", strconv.Quote(path))
	fmt.Fprintf(w, "Payload: %s (%s mode)\n", humanize.IBytes(uint64(len(payload))), cfg.PayloadMode())

	if pagePayload != "" {
		if err := os.WriteFile(pagePayload, payload, 0o644); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}
