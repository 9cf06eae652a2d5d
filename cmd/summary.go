package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/banzaicloud/ess-billing-exporter/poller"
)

// renderSummary writes the per index document counts of a cycle.
func renderSummary(w io.Writer, res *poller.Result) {
	indices := make([]string, 0, len(res.Documents))
	for index := range res.Documents {
		indices = append(indices, index)
	}
	sort.Strings(indices)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("Cycle %s (%s)", res.CycleID, res.Duration.Round(time.Millisecond)))
	tw.AppendHeader(table.Row{"Index", "Documents"})
	for _, index := range indices {
		tw.AppendRow(table.Row{index, res.Documents[index]})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"fetch errors", res.FetchErrors})
	tw.AppendRow(table.Row{"schema errors", res.SchemaErrors})
	tw.AppendFooter(table.Row{"Total", res.Total()})
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	tw.Render()
}
