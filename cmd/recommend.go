package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/app"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <student>",
	Short: "Recommend the next module for a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.engine.Recommend(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(out, rec)
		}

		if rec.FullyBlocked {
			fmt.Fprintf(out, "Every module is blocked: %s\n\n", rec.Reason)
			for _, g := range rec.Blockers {
				fmt.Fprintf(out, "  %-20s needs %-20s %5.1f / %5.1f\n", g.Skill, g.Prerequisite, g.Current, g.Required)
			}
			return nil
		}

		fmt.Fprintf(out, "%s: %s (%s)\n", rec.Type, rec.Module.Title, rec.Module.ID)
		fmt.Fprintf(out, "Mastery %.1f, practice at %s difficulty, priority %d\n",
			rec.Mastery, rec.RecommendedDifficulty, rec.Priority)
		if rec.RemedialSkill != "" {
			fmt.Fprintf(out, "Remedial skill: %s\n", rec.RemedialSkill)
		}
		fmt.Fprintf(out, "Why: %s\n\n", rec.Reason)

		fmt.Fprintf(out, "%-24s  %6s  %-5s  %s\n", "Module", "Level", "Due", "Blocked by")
		fmt.Fprintln(out, strings.Repeat("─", 70))
		for _, c := range rec.Ranked {
			due := ""
			if c.Due {
				due = "yes"
			}
			var blockers []string
			for _, b := range c.Blockers {
				blockers = append(blockers, b.Prerequisite)
			}
			fmt.Fprintf(out, "%-24s  %6.1f  %-5s  %s\n",
				truncate(c.Module.ID, 24), c.Mastery, due, strings.Join(blockers, ", "))
		}
		return nil
	},
}

func init() {
	recommendCmd.Flags().Bool("json", false, "Print the full recommendation as JSON")
}
