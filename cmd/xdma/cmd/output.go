package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

func printOutcome(w io.Writer, out xdma.Outcome) {
	switch out.Direction {
	case xdma.ToCard:
		fmt.Fprintf(w, "%s: wrote %s @ 0x%X\n", out.Direction, humanize.IBytes(uint64(out.Bytes)), out.Address)
	case xdma.FromCard:
		fmt.Fprintf(w, "%s: read %s @ 0x%X -> %s (%s)\n", out.Direction,
			humanize.IBytes(uint64(out.Bytes)), out.Address,
			out.Destination, humanize.IBytes(uint64(out.PayloadBytes)))
	}
}

func printOutcomes(w io.Writer, outs []xdma.Outcome) {
	for _, out := range outs {
		printOutcome(w, out)
	}
}
