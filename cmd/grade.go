package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/app"
)

var gradeCmd = &cobra.Command{
	Use:   "grade <question-id> <answer-json>",
	Short: "Grade one answer against a catalog question",
	Example: `  gradewise grade add-1 '{"selected":["b"]}'
  gradewise grade frac-3 '{"text":"denominator"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("answer is not valid JSON: %s", args[1])
		}
		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.engine.Grade(cmd.Context(), args[0], json.RawMessage(args[1]))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}
