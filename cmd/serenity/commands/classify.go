package commands

import (
	"encoding/json"
	"strings"

	"github.com/ZanzyTHEbar/serenity/serenity/analysis"
	"github.com/ZanzyTHEbar/serenity/serenity/routing"
	"github.com/spf13/cobra"
)

type classification struct {
	analysis.Result
	Redirect *string `json:"redirect"`
}

// NewClassifyCmd creates the classify command.
func NewClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Classify a message without generating a reply",
		Long: `Run the crisis, emotion and sentiment classifiers on a message and
print the result with the suggested redirect as JSON.

Examples:
  serenity classify "I am so stressed and overwhelmed at work"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := analysis.NewAnalyzer().Analyze(strings.Join(args, " "))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(classification{Result: res, Redirect: routing.Route(res.Emotion.Emotion).Ptr()})
		},
	}
}
