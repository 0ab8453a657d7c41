package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ActionsCmd lists what this binary can run.
var ActionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List registered actions and distributions",
	RunE:  runActions,
}

func runActions(cmd *cobra.Command, args []string) error {
	rows := pterm.TableData{{"Action"}}
	for _, name := range newRegistry().Names() {
		rows = append(rows, []string{name})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	// listing does not generate, so no client is needed
	dists := pterm.TableData{{"Distribution", "Interval", "Enabled"}}
	for _, d := range newDistributions(nil) {
		enabled := "yes"
		if settings.Excluded(d.Name()) {
			enabled = pterm.Yellow("excluded")
		}
		interval := d.CollectInterval()
		if s, ok := settings.Distributor.Intervals[d.Name()]; ok {
			interval = time.Duration(s) * time.Second
		}
		dists = append(dists, []string{d.Name(), interval.String(), enabled})
	}
	pterm.Println()
	return pterm.DefaultTable.WithHasHeader().WithData(dists).Render()
}
