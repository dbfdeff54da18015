package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/combinations"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/reference"
)

func combinationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "combinations",
		Aliases: []string{"combos"},
		Short:   "Manage allowed classification combinations",
		Long: `View and maintain the (level 1, level 2, level 3) triples a property may use.

Hardcoded combinations come from the reference list and cannot be removed.`,
	}

	cmd.AddCommand(combinationsListCmd(a))
	cmd.AddCommand(combinationsAddCmd(a))
	cmd.AddCommand(combinationsRemoveCmd(a))
	cmd.AddCommand(combinationsResetCmd(a))
	cmd.AddCommand(combinationsSeedCmd(a))
	cmd.AddCommand(combinationsOptionsCmd(a))

	return cmd
}

func combinationsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List allowed combinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asCSV, _ := cmd.Flags().GetBool("csv")
			return a.withServices(cmd.Context(), func(s *services) error {
				combos, err := s.registry.List(cmd.Context(), a.property())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asCSV {
					return reference.WriteCSV(out, combos)
				}
				if len(combos) == 0 {
					return writeln(out, cli.InfoStyle.Render("No allowed combinations. Use 'rent combinations seed' or 'rent combinations add'."))
				}

				rows := make([][]string, 0, len(combos))
				for _, c := range combos {
					source := "manual"
					if c.IsHardcoded {
						source = "hardcoded"
					}
					rows = append(rows, []string{
						strconv.FormatInt(c.ID, 10),
						c.Levels.Level1,
						c.Levels.Level2,
						cli.Level3Label(c.Levels.Level3),
						source,
					})
				}
				if err := writeln(out, cli.FormatTitle(fmt.Sprintf("Allowed combinations of property %d", a.property()))); err != nil {
					return err
				}
				return writeln(out, cli.RenderTable([]string{"ID", "Level 1", "Level 2", "Level 3", "Source"}, rows))
			})
		},
	}

	cmd.Flags().Bool("csv", false, "Write the list as level_1,level_2,level_3 CSV")
	return cmd
}

func combinationsAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <level1> <level2> [level3]",
		Short: "Allow a new combination",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			levels, err := levelsFromArgs(args)
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				combo, err := s.registry.Add(cmd.Context(), a.property(), levels)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Allowed %s (ID %d)", combo.Levels, combo.ID)))
			})
		},
	}
}

func combinationsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a manual combination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "combination")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				removed, err := s.registry.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return writeln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("No combination with ID %d", id)))
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Removed combination %d", id)))
			})
		},
	}
}

func combinationsResetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every manual combination and the rules using them",
		Long: `Delete every manual combination of the property, every mapping rule whose
classification is no longer allowed, and unassign the transactions those rules
had classified. Hardcoded combinations stay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				prompter := cli.NewPrompter(cmd.InOrStdin(), out)
				ok, err := prompter.Confirm(ctx, fmt.Sprintf("Reset the combinations of property %d?", a.property()))
				if err != nil {
					return err
				}
				if !ok {
					return writeln(out, cli.FormatInfo("Nothing changed"))
				}
			}

			return a.withServices(ctx, func(s *services) error {
				stats, err := s.registry.Reset(ctx, a.property())
				if err != nil {
					return err
				}
				return writeln(out, cli.FormatSuccess(fmt.Sprintf(
					"Deleted %d combinations and %d rules, unassigned %d transactions",
					stats.CombinationsDeleted, stats.RulesDeleted, stats.TransactionsUnassigned)))
			})
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func combinationsSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Load hardcoded combinations from a reference list",
		Long: `Insert the combinations of a YAML or CSV reference list as hardcoded entries.
Existing manual entries are promoted. Without a file argument the
reference.combinations_file setting is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.CombinationsFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return common.NewUserError("no reference list given and reference.combinations_file is not set", common.ErrMissingConfig)
			}

			list, err := reference.Load(path)
			if err != nil {
				return err
			}

			return a.withServices(cmd.Context(), func(s *services) error {
				stats, err := s.registry.Seed(cmd.Context(), a.property(), list)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Seeded %d combinations: %d inserted, %d promoted, %d already present",
					len(list), stats.Inserted, stats.Promoted, stats.Skipped)))
			})
		},
	}
}

func combinationsOptionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Show the values still possible for each level",
		Long: `Given any of --level1, --level2 and --level3, list the values each level can
still take so that the triple stays allowed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l1, _ := cmd.Flags().GetString("level1")
			l2, _ := cmd.Flags().GetString("level2")
			l3, _ := cmd.Flags().GetString("level3")
			sel := combinations.Selection{
				Level1: strings.TrimSpace(l1),
				Level2: strings.TrimSpace(l2),
				Level3: model.Level3(strings.TrimSpace(l3)),
			}

			return a.withServices(cmd.Context(), func(s *services) error {
				opts, err := s.registry.Options(cmd.Context(), a.property(), sel)
				if err != nil {
					return err
				}

				level3 := make([]string, len(opts.Level3))
				for i, v := range opts.Level3 {
					level3[i] = cli.Level3Label(v)
				}

				out := cmd.OutOrStdout()
				for _, section := range []struct {
					title  string
					values []string
				}{
					{"Level 1", opts.Level1},
					{"Level 2", opts.Level2},
					{"Level 3", level3},
				} {
					if err := writef(out, "%s\n", cli.BoldStyle.Render(section.title)); err != nil {
						return err
					}
					for _, v := range section.values {
						if err := writef(out, "  %s\n", v); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().String("level1", "", "Chosen level 1")
	cmd.Flags().String("level2", "", "Chosen level 2")
	cmd.Flags().String("level3", "", "Chosen level 3")
	return cmd
}
