package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/gradewise/internal/skillgraph"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Browse the skill graph",
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List modules in prerequisite order (optionally filtered by subject)",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		g := cat.Graph()

		var modules []skillgraph.Module
		for _, skill := range g.TopologicalOrder() {
			for _, m := range g.ModulesForSkill(skill) {
				if subject == "" || m.Subject == subject {
					modules = append(modules, m)
				}
			}
		}
		if len(modules) == 0 {
			if subject != "" {
				return fmt.Errorf("no modules found for subject %q", subject)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "The catalog has no modules.")
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-24s  %-30s  %-16s  %-10s  %s\n",
			"ID", "Title", "Skill", "Subject", "Requires")
		fmt.Fprintln(out, strings.Repeat("─", 110))

		for _, m := range modules {
			var reqs []string
			for _, e := range g.Prerequisites(m.SkillKey) {
				reqs = append(reqs, fmt.Sprintf("%s≥%.0f", e.From, e.RequiredMastery))
			}
			fmt.Fprintf(out, "%-24s  %-30s  %-16s  %-10s  %s\n",
				truncate(m.ID, 24), truncate(m.Title, 30), m.SkillKey, m.Subject, strings.Join(reqs, ", "))
		}

		fmt.Fprintf(out, "\n%d modules\n", len(modules))
		return nil
	},
}

func init() {
	skillListCmd.Flags().String("subject", "", "Filter by subject")

	skillCmd.AddCommand(skillListCmd)
}
