package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/app"
	"github.com/abhisek/gradewise/internal/peerreview"
)

var assignReviewsCmd = &cobra.Command{
	Use:   "assign-reviews <submission>...",
	Short: "Allocate peer reviewers from a cohort to submissions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cohort, _ := cmd.Flags().GetString("cohort")
		n, _ := cmd.Flags().GetInt("reviewers")
		self, _ := cmd.Flags().GetBool("allow-self")
		anon, _ := cmd.Flags().GetBool("anonymous")
		if cohort == "" {
			return fmt.Errorf("--cohort is required")
		}
		if n < 1 {
			return fmt.Errorf("--reviewers must be at least 1")
		}

		rt, err := openEngine(cmd, app.WithProvider(nil))
		if err != nil {
			return err
		}
		defer rt.Close()

		as, err := rt.engine.AssignReviews(cmd.Context(), cohort, args, n,
			peerreview.Options{AllowSelfReview: self, Anonymous: anon})
		if err != nil {
			return err
		}

		bySub := make(map[string][]string)
		for _, a := range as {
			bySub[a.SubmissionID] = append(bySub[a.SubmissionID], a.ReviewerID)
		}
		out := cmd.OutOrStdout()
		for _, sub := range args {
			reviewers := bySub[sub]
			sort.Strings(reviewers)
			fmt.Fprintf(out, "%-24s  %s\n", sub, strings.Join(reviewers, ", "))
		}
		fmt.Fprintf(out, "\n%d assignments\n", len(as))
		return nil
	},
}

func init() {
	assignReviewsCmd.Flags().String("cohort", "", "Cohort to draw reviewers from")
	assignReviewsCmd.Flags().IntP("reviewers", "n", 3, "Reviewers per submission")
	assignReviewsCmd.Flags().Bool("allow-self", false, "Allow authors to review their own submission")
	assignReviewsCmd.Flags().Bool("anonymous", false, "Hide reviewer identities from authors")
}
