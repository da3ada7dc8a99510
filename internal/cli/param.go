package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

const paramWakeBoost = "wake_boost"

func init() {
	paramCmd.AddCommand(paramGetCmd, paramSetCmd)
	rootCmd.AddCommand(paramCmd)
}

var paramCmd = &cobra.Command{
	Use:   "param",
	Short: "Read or write the wake_boost parameter (milliseconds)",
}

var paramGetCmd = &cobra.Command{
	Use:   "get wake_boost",
	Short: "Print the current boost window in milliseconds",
	Args:  cobra.ExactArgs(1),
	RunE:  runParamGet,
}

var paramSetCmd = &cobra.Command{
	Use:   "set wake_boost MS",
	Short: "Set the boost window and start a boost cycle",
	Args:  cobra.ExactArgs(2),
	RunE:  runParamSet,
}

func checkParamName(name string) error {
	if name != paramWakeBoost {
		return fmt.Errorf("unknown parameter %q (only %s exists)", name, paramWakeBoost)
	}
	return nil
}

func runParamGet(cmd *cobra.Command, args []string) error {
	if err := checkParamName(args[0]); err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	data, err := c.do(http.MethodGet, "/api/params/"+paramWakeBoost, nil)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runParamSet(cmd *cobra.Command, args []string) error {
	if err := checkParamName(args[0]); err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	data, err := c.do(http.MethodPut, "/api/params/"+paramWakeBoost, strings.NewReader(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wake_boost = %s ms, boost started\n", strings.TrimSpace(string(data)))
	return nil
}
