package insights

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Write renders the report as aligned plain text.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Rows:\t%d\n\n", r.Rows)

	fmt.Fprintln(tw, "Column\tCount\tMissing\tMean\tStd\tMin\tMedian\tMax")
	for _, n := range r.Numeric {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			n.Field, n.Count, n.Missing, n.Mean, n.Std, n.Min, n.Median, n.Max)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Column\tCount\tMissing\tUnique\tTop\tFreq")
	for _, c := range r.Categorical {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%d\n", c.Field, c.Count, c.Missing, c.Unique, c.Top, c.Freq)
	}
	fmt.Fprintln(tw)

	writeGroups(tw, "Average price by time of day", r.AvgPriceByTimeOfDay)
	writeGroups(tw, "Average price by day of week", r.AvgPriceByDayOfWeek)

	if r.DistancePriceCorrelation != nil {
		fmt.Fprintf(tw, "Distance/price correlation:\t%.3f\n\n", *r.DistancePriceCorrelation)
	}

	if len(r.PriceHistogram) > 0 {
		fmt.Fprintln(tw, "Price distribution")
		peak := 0
		for _, b := range r.PriceHistogram {
			peak = max(peak, b.Count)
		}
		for _, b := range r.PriceHistogram {
			bar := 0
			if peak > 0 {
				bar = b.Count * 40 / peak
			}
			fmt.Fprintf(tw, "%.2f - %.2f\t%d\t%s\n", b.Lower, b.Upper, b.Count, strings.Repeat("#", bar))
		}
	}

	return tw.Flush()
}

func writeGroups(w io.Writer, title string, groups []GroupAverage) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, g := range groups {
		fmt.Fprintf(w, "  %s\t%d rows\t$%.2f\n", g.Value, g.Count, g.MeanPrice)
	}
	fmt.Fprintln(w)
}
