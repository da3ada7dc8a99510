package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tutu-network/wakeboost/internal/api"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show boost state and per-CPU frequency ranges",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var st api.StatusResponse
	if err := c.getJSON("/api/status", &st); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	display := st.Display
	if display == "" {
		display = "unknown"
	}
	fmt.Fprintf(out, "State:       %s\n", st.Boost.State)
	fmt.Fprintf(out, "wake_boost:  %d ms\n", st.Boost.DurationMS)
	fmt.Fprintf(out, "Display:     %s\n", display)
	fmt.Fprintf(out, "Exit armed:  %t\n", st.Boost.ExitPending)
	fmt.Fprintf(out, "Jobs run:    %s\n", humanize.Comma(st.Boost.Queue.Run))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CPU\tMIN\tMAX\tHW MIN\tHW MAX")
	for _, p := range st.Policies {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			p.CPU, formatKHz(p.Min), formatKHz(p.Max), formatKHz(p.HWMin), formatKHz(p.HWMax))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(st.Health) > 0 {
		fmt.Fprintln(out)
		for _, h := range st.Health {
			mark := "ok"
			if !h.Healthy {
				mark = "FAIL " + h.Error
			}
			fmt.Fprintf(out, "  %-15s %s\n", h.Name, mark)
		}
	}
	return nil
}

// formatKHz renders a sysfs kHz value as e.g. "2.4 GHz".
func formatKHz(khz uint64) string {
	return humanize.SIWithDigits(float64(khz)*1000, 2, "Hz")
}
