package commands

import (
	"fmt"

	"github.com/ZanzyTHEbar/serenity/serenity/db"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := requireDatabase(cmd.Context(), state.cfg.Database, state.logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			version, err := db.Version(conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
