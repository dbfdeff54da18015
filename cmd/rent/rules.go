package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/pattern"
)

func rulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage mapping rules",
		Long: `View and maintain the rules that classify transactions by their bank label.

Every change reclassifies the transactions the rule matches.`,
	}

	cmd.AddCommand(rulesListCmd(a))
	cmd.AddCommand(rulesSetCmd(a))
	cmd.AddCommand(rulesEditCmd(a))
	cmd.AddCommand(rulesDeleteCmd(a))
	cmd.AddCommand(rulesTestCmd(a))

	return cmd
}

func matchLabel(prefix bool) string {
	if prefix {
		return "prefix"
	}
	return "exact"
}

func rulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mapping rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				rules, err := s.store.GetRuleSet(cmd.Context(), a.property())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if rules.Len() == 0 {
					return writeln(out, cli.InfoStyle.Render("No mapping rules. Use 'rent rules set' to create one."))
				}

				rows := make([][]string, 0, rules.Len())
				for _, r := range rules.Rules() {
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						r.Name,
						matchLabel(r.IsPrefixMatch),
						strconv.Itoa(r.Priority),
						r.Levels.String(),
					})
				}
				if err := writeln(out, cli.FormatTitle(fmt.Sprintf("Mapping rules of property %d", a.property()))); err != nil {
					return err
				}
				return writeln(out, cli.RenderTable([]string{"ID", "Name", "Match", "Priority", "Classification"}, rows))
			})
		},
	}
}

func printRuleResult(cmd *cobra.Command, verb string, res *engine.RuleResult) error {
	return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
		"%s rule %q → %s, %d transactions reclassified",
		verb, res.Rule.Name, res.Rule.Levels, res.Reclassified)))
}

func rulesSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name> [level1 level2 [level3]]",
		Short: "Create or update the rule for a label",
		Long: `Create a prefix rule named after a label, or update the classification of
the existing rule with that name. Without levels you pick them interactively
among the allowed combinations.`,
		Args: cobra.RangeArgs(1, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withServices(ctx, func(s *services) error {
				var levels model.Levels
				var err error
				if len(args) == 1 {
					prompter := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
					levels, err = prompter.ChooseLevels(ctx, s.registry, a.property())
				} else {
					levels, err = levelsFromArgs(args[1:])
				}
				if err != nil {
					return err
				}

				res, err := s.engine.CreateOrUpdateRuleFromClassification(ctx, args[0], levels, a.property())
				if err != nil {
					return err
				}
				verb := "Updated"
				if res.Created {
					verb = "Created"
				}
				return printRuleResult(cmd, verb, res)
			})
		},
	}
	return cmd
}

func rulesEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a mapping rule",
		Long: `Change the name, classification, match mode or priority of a rule. Only the
flags you pass are changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "rule")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			flags := cmd.Flags()

			return a.withServices(ctx, func(s *services) error {
				current, err := s.store.GetRule(ctx, id)
				if err != nil {
					return err
				}

				var update engine.RuleUpdate
				if flags.Changed("name") {
					name, _ := flags.GetString("name")
					update.Name = &name
				}
				if flags.Changed("level1") || flags.Changed("level2") || flags.Changed("level3") {
					levels := current.Levels
					if flags.Changed("level1") {
						levels.Level1, _ = flags.GetString("level1")
					}
					if flags.Changed("level2") {
						levels.Level2, _ = flags.GetString("level2")
					}
					if flags.Changed("level3") {
						l3, _ := flags.GetString("level3")
						levels.Level3 = model.Level3(l3)
					}
					levels = levels.Normalize()
					update.Levels = &levels
				}
				if flags.Changed("prefix") {
					prefix, _ := flags.GetBool("prefix")
					update.IsPrefixMatch = &prefix
				}
				if flags.Changed("priority") {
					priority, _ := flags.GetInt("priority")
					update.Priority = &priority
				}

				res, err := s.engine.UpdateRule(ctx, id, update)
				if err != nil {
					return err
				}
				return printRuleResult(cmd, "Updated", res)
			})
		},
	}

	cmd.Flags().String("name", "", "New rule name")
	cmd.Flags().String("level1", "", "New level 1")
	cmd.Flags().String("level2", "", "New level 2")
	cmd.Flags().String("level3", "", "New level 3 (empty for none)")
	cmd.Flags().Bool("prefix", true, "Match labels starting with the name")
	cmd.Flags().Int("priority", 0, "Rule priority")
	return cmd
}

func rulesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mapping rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "rule")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				res, err := s.engine.DeleteRule(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Deleted rule %q, %d transactions reclassified", res.Previous.Name, res.Reclassified)))
			})
		},
	}
}

func rulesTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <label>",
		Short: "Explain which rule a label would match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				rules, err := s.store.GetRuleSet(cmd.Context(), a.property())
				if err != nil {
					return err
				}
				return printResolution(cmd, pattern.Resolve(args[0], rules.Rules()))
			})
		},
	}
}

func candidateRows(candidates []pattern.Candidate) [][]string {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{
			c.Rule.Name,
			string(c.Kind),
			strconv.Itoa(c.Length),
			strconv.FormatFloat(c.Ratio, 'f', 2, 64),
			c.Rule.Levels.String(),
		})
	}
	return rows
}

func printResolution(cmd *cobra.Command, res pattern.Resolution) error {
	out := cmd.OutOrStdout()
	headers := []string{"Rule", "Kind", "Length", "Ratio", "Classification"}

	if len(res.Candidates) > 0 {
		if err := writeln(out, cli.BoldStyle.Render("Matching rules")); err != nil {
			return err
		}
		if err := writeln(out, cli.RenderTable(headers, candidateRows(res.Candidates))); err != nil {
			return err
		}
	}
	if len(res.Rejected) > 0 {
		if err := writeln(out, cli.BoldStyle.Render(fmt.Sprintf("Rejected (ratio below %.2f)", pattern.MinLengthRatio))); err != nil {
			return err
		}
		if err := writeln(out, cli.RenderTable(headers, candidateRows(res.Rejected))); err != nil {
			return err
		}
	}

	switch {
	case res.Rule != nil:
		return writeln(out, cli.FormatSuccess(fmt.Sprintf("Classified by %q → %s", res.Rule.Name, res.Rule.Levels)))
	case res.Ambiguous:
		names := make([]string, 0, len(res.Conflicting()))
		for _, c := range res.Conflicting() {
			names = append(names, strconv.Quote(c.Rule.Name))
		}
		return writeln(out, cli.FormatWarning(fmt.Sprintf("Ambiguous: %v match with the same length, left unassigned", names)))
	default:
		return writeln(out, cli.FormatInfo("No rule matches, left unassigned"))
	}
}
