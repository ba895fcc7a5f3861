package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/app"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/question"
)

var masteryCmd = &cobra.Command{
	Use:   "mastery",
	Short: "Inspect and edit per-skill mastery",
}

var masteryShowCmd = &cobra.Command{
	Use:   "show <student>",
	Short: "Show a student's mastery records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		records, err := rt.engine.MasteryRecords(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintf(out, "No mastery recorded for %s.\n", args[0])
			return nil
		}

		fmt.Fprintf(out, "%-20s  %6s  %8s  %5s  %-12s  %-10s  %s\n",
			"Skill", "Level", "Accuracy", "Tries", "Category", "Signal", "Next review")
		fmt.Fprintln(out, strings.Repeat("─", 90))
		for _, r := range records {
			signal := string(r.Signal)
			if signal == "" {
				signal = "-"
			}
			fmt.Fprintf(out, "%-20s  %6.1f  %7.0f%%  %5d  %-12s  %-10s  %s\n",
				truncate(r.SkillKey, 20), r.MasteryLevel, r.AvgAccuracy*100, r.TotalAttempts,
				mastery.CategoryOf(r.MasteryLevel), signal,
				r.NextReviewAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var masteryRecordCmd = &cobra.Command{
	Use:   "record <student> <skill> <outcome>",
	Short: "Record a learning interaction (outcome: correct, partial, incorrect, skipped)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = "cli:" + uuid.NewString()
		}
		difficulty, _ := cmd.Flags().GetString("difficulty")
		score, _ := cmd.Flags().GetFloat64("score")
		hints, _ := cmd.Flags().GetInt("hints")
		spent, _ := cmd.Flags().GetDuration("time")

		outcome := mastery.Outcome(strings.ToLower(args[2]))
		if !cmd.Flags().Changed("score") {
			score = outcome.Score()
		}

		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.engine.RecordInteraction(cmd.Context(), mastery.Interaction{
			ID:               id,
			StudentID:        args[0],
			SkillKey:         args[1],
			Difficulty:       question.Difficulty(strings.ToUpper(difficulty)),
			Outcome:          outcome,
			Score:            score,
			TimeSpentSeconds: int(spent / time.Second),
			HintsUsed:        hints,
			Source:           "cli",
		})
		if errors.Is(err, mastery.ErrDuplicateInteraction) {
			fmt.Fprintf(cmd.ErrOrStderr(), "interaction %s already recorded; record unchanged\n", id)
			err = nil
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var masteryAdjustCmd = &cobra.Command{
	Use:   "adjust <student> <skill> <level>",
	Short: "Set a mastery level (0-100) by hand",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[2], err)
		}
		reason, _ := cmd.Flags().GetString("reason")

		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.engine.AdjustMastery(cmd.Context(), args[0], args[1], level, reason)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var masteryResetCmd = &cobra.Command{
	Use:   "reset <student> <skill>",
	Short: "Reset a skill's mastery to zero",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("reset discards %s's progress on %s; rerun with --force", args[0], args[1])
		}
		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		if _, err := rt.engine.ResetMastery(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s for %s.\n", args[1], args[0])
		return nil
	},
}

var masteryStatsCmd = &cobra.Command{
	Use:   "stats <student>",
	Short: "Summarize a student's mastery and due reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		stats, err := rt.engine.MasteryStats(ctx, args[0])
		if err != nil {
			return err
		}
		due, err := rt.engine.ReviewQueue(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Skills:        %d\n", stats.Skills)
		fmt.Fprintf(out, "Average level: %.1f\n", stats.AverageLevel)
		fmt.Fprintf(out, "Mastered:      %d\n", stats.Mastered)
		for _, c := range mastery.AllCategories() {
			fmt.Fprintf(out, "  %-12s %d\n", c, stats.ByCategory[c])
		}
		fmt.Fprintf(out, "Due reviews:   %d\n", stats.DueReviews)
		for _, it := range due {
			fmt.Fprintf(out, "  %-20s %.1f days overdue\n", it.Key, it.OverdueDays)
		}
		return nil
	},
}

var masteryResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Replay graded attempts whose mastery update failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if dryRun {
			pending, err := rt.engine.PendingMasteryFeeds(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "No mastery feeds pending.")
				return nil
			}
			for _, p := range pending {
				fmt.Fprintf(out, "%-36s  %-16s  %3d tries  %s\n",
					p.AttemptID, truncate(p.StudentID, 16), p.Tries, p.LastError)
			}
			return nil
		}

		landed, err := rt.engine.ResyncMastery(ctx)
		fmt.Fprintf(out, "Replayed %d attempt(s).\n", landed)
		return err
	},
}

func init() {
	masteryRecordCmd.Flags().String("id", "", "Interaction ID for deduplication (default: random)")
	masteryRecordCmd.Flags().String("difficulty", "MEDIUM", "Item difficulty: EASY, MEDIUM or HARD")
	masteryRecordCmd.Flags().Float64("score", 0, "Score fraction 0-1 (default: derived from outcome)")
	masteryRecordCmd.Flags().Int("hints", 0, "Hints used")
	masteryRecordCmd.Flags().Duration("time", 0, "Time spent")
	masteryAdjustCmd.Flags().String("reason", "manual adjustment", "Reason recorded with the change")
	masteryResetCmd.Flags().Bool("force", false, "Confirm the reset")
	masteryResyncCmd.Flags().Bool("dry-run", false, "List pending feeds without replaying them")

	masteryCmd.AddCommand(masteryShowCmd)
	masteryCmd.AddCommand(masteryRecordCmd)
	masteryCmd.AddCommand(masteryAdjustCmd)
	masteryCmd.AddCommand(masteryResetCmd)
	masteryCmd.AddCommand(masteryStatsCmd)
	masteryCmd.AddCommand(masteryResyncCmd)
}
