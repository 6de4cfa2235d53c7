package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/eshaffer321/tablesplit-backend/internal/domain/money"
	"github.com/eshaffer321/tablesplit-backend/internal/domain/splitter"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, orderID string, committed bool) {
	mode := "PREVIEW"
	if committed {
		mode = "COMMITTED"
	}
	fmt.Fprintf(w, "tablesplit: order %s (%s)\n", orderID, mode)
}

// PrintSplit prints every bucket and the remainder with their totals
func PrintSplit(w io.Writer, result *splitter.SplitResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ORDER\tITEMS\tSUBTOTAL\tDISCOUNT\tTAX\tTOTAL\t")

	for _, b := range result.Buckets {
		printRow(tw, b.Name, len(b.Items), b.Totals)
	}
	printRow(tw, "(remainder)", len(result.Remainder.Items), result.Remainder.Totals)
	_ = tw.Flush()

	fmt.Fprintln(w, strings.Repeat("-", 60))
	sum := result.Sum()
	fmt.Fprintf(w, "Sum: subtotal=%s discount=%s tax=%s total=%s\n",
		money.Format(sum.Subtotal),
		money.Format(sum.Discount),
		money.Format(sum.Tax),
		money.Format(sum.Total))

	if !result.Residual.IsZero() {
		fmt.Fprintf(w, "Rounding absorbed: subtotal=%d discount=%d tax=%d total=%d\n",
			result.Residual.Subtotal,
			result.Residual.Discount,
			result.Residual.Tax,
			result.Residual.Total)
	}
}

func printRow(w io.Writer, name string, items int, t splitter.Totals) {
	fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t\n",
		name,
		items,
		money.Format(t.Subtotal),
		money.Format(t.Discount),
		money.Format(t.Tax),
		money.Format(t.Total))
}
