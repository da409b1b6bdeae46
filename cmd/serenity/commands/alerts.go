package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ZanzyTHEbar/serenity/serenity/generation/harness/adapters"
	"github.com/spf13/cobra"
)

var alertStatus string

// NewAlertsCmd creates the alerts command group for crisis follow-up.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and resolve crisis alerts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List crisis alerts",
		Args:  cobra.NoArgs,
		RunE:  runAlertsList,
	}
	list.Flags().StringVar(&alertStatus, "status", adapters.AlertPending, "filter by status (empty for all)")

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a crisis alert as resolved",
		Args:  cobra.ExactArgs(1),
		RunE:  runAlertsResolve,
	}

	cmd.AddCommand(list, resolve)
	return cmd
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	conn, err := requireDatabase(cmd.Context(), state.cfg.Database, state.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	alerts, err := adapters.NewSQLArchive(conn).Alerts(cmd.Context(), alertStatus)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIDENTITY\tSTATUS\tCREATED")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Identity, a.Status, a.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	conn, err := requireDatabase(cmd.Context(), state.cfg.Database, state.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := adapters.NewSQLArchive(conn).ResolveAlert(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
	return nil
}
