package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tutu-network/wakeboost/internal/daemon"
	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/sqlite"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of cycles to show")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent boost cycles from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := sqlite.Open(daemon.WakeboostHome())
	if err != nil {
		return err
	}
	defer db.Close()

	cycles, err := db.Recent(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(cycles) == 0 {
		fmt.Fprintln(out, "No boost cycles recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRIGGER\tWINDOW\tSTARTED\tLASTED\tOUTCOME")
	for _, c := range cycles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(c.ID),
			c.Trigger,
			(time.Duration(c.DurationMS) * time.Millisecond).String(),
			humanize.Time(c.StartedAt),
			lasted(c),
			outcome(c),
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func lasted(c domain.BoostCycle) string {
	if c.EndedAt == nil {
		return "-"
	}
	return c.EndedAt.Sub(c.StartedAt).Round(time.Millisecond).String()
}

func outcome(c domain.BoostCycle) string {
	if c.Open() {
		return "active"
	}
	return string(c.Outcome)
}
