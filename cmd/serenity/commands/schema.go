package commands

import (
	"fmt"

	"github.com/ZanzyTHEbar/serenity/serenity/api"
	"github.com/spf13/cobra"
)

// NewSchemaCmd creates the schema command.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [request|response]",
		Short:     "Print the JSON schema of the turn contract",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"request", "response"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := api.ResponseSchema()
			if len(args) == 1 && args[0] == "request" {
				s = api.RequestSchema()
			}
			raw, err := api.SchemaJSON(s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
}
