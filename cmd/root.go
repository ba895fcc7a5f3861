package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gradewise",
	Short: "Auto-grading and adaptive mastery engine",
	Long: "Gradewise grades quiz attempts, tracks per-skill mastery with spaced review, " +
		"recommends the next module from a prerequisite graph and allocates peer reviews.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./gradewise.yaml or the user config dir)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides GRADEWISE_DB)")
	rootCmd.PersistentFlags().String("catalog", "", "Path to catalog YAML (default: built-in sample)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(masteryCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(assignReviewsCmd)
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
