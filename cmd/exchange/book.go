package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/erain9/exchange/pkg/core"
	"github.com/fatih/color"
)

// printBook renders a depth snapshot as a ladder, asks on top
func printBook(out io.Writer, snap *core.BookSnapshot) error {
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", cyan("Price"), cyan("Volume"), cyan("Orders"), cyan("Side"))

	for i := len(snap.Asks) - 1; i >= 0; i-- {
		level := snap.Asks[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t\n", level.Price, level.Volume, level.Orders, red("ASK"))
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", "-----", "------", "------", "----")
	for _, level := range snap.Bids {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t\n", level.Price, level.Volume, level.Orders, green("BID"))
	}
	return w.Flush()
}
