package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/tutu-network/wakeboost/internal/domain"
)

func init() {
	rootCmd.AddCommand(eventCmd, refreshCmd)
}

var eventCmd = &cobra.Command{
	Use:   "event STATE",
	Short: "Inject a display transition (unblank, blank, powerdown, ...)",
	Long: `Announce a display power transition to the daemon as if the display
driver had reported it. STATE is a blank level name or number:
unblank (0), blank (1), vsync_suspend (2), hsync_suspend (3), powerdown (4).`,
	Args: cobra.ExactArgs(1),
	RunE: runEvent,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a policy recomputation on every online CPU",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func runEvent(cmd *cobra.Command, args []string) error {
	level, err := domain.ParseBlankLevel(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	if _, err := c.do(http.MethodPost, "/api/display/"+url.PathEscape(level.String()), nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Display -> %s\n", level)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	data, err := c.do(http.MethodPost, "/api/refresh", nil)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
