package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

func amortizationCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "amortization",
		Aliases: []string{"amort"},
		Short:   "Manage depreciation types and schedules",
		Long: `Depreciation types spread the cost of classified transactions over several
years on a 30/360 basis. Schedules follow classification changes automatically.`,
	}

	types := &cobra.Command{
		Use:   "types",
		Short: "Manage amortization types",
	}
	types.AddCommand(amortizationTypesListCmd(a))
	types.AddCommand(amortizationTypesAddCmd(a))
	types.AddCommand(amortizationTypesEditCmd(a))
	types.AddCommand(amortizationTypesDeleteCmd(a))

	cmd.AddCommand(types)
	cmd.AddCommand(amortizationRecalcCmd(a))
	cmd.AddCommand(amortizationShowCmd(a))

	return cmd
}

func amortizationTypeFlags(flags *pflag.FlagSet) {
	flags.String("name", "", "Type name, used as the schedule category")
	flags.String("level2", "", "Level 2 the type applies to")
	flags.StringSlice("level1", nil, "Level 1 values the type applies to (repeatable or comma separated)")
	flags.Float64("years", 0, "Duration in years; 0 disables the type")
	flags.String("start", "", "Start date override (YYYY-MM-DD)")
	flags.String("annual", "", "Annual amount override")
}

// applyTypeFlags copies the changed flags onto t.
func applyTypeFlags(flags *pflag.FlagSet, t *model.AmortizationType) error {
	if flags.Changed("name") {
		t.Name, _ = flags.GetString("name")
		t.Name = strings.TrimSpace(t.Name)
	}
	if flags.Changed("level2") {
		t.Level2Value, _ = flags.GetString("level2")
		t.Level2Value = strings.TrimSpace(t.Level2Value)
	}
	if flags.Changed("level1") {
		values, _ := flags.GetStringSlice("level1")
		t.Level1Values = t.Level1Values[:0]
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				t.Level1Values = append(t.Level1Values, v)
			}
		}
	}
	if flags.Changed("years") {
		t.DurationYears, _ = flags.GetFloat64("years")
	}
	if flags.Changed("start") {
		raw, _ := flags.GetString("start")
		if raw == "" {
			t.StartDateOverride = nil
		} else {
			d, err := parseDate(raw)
			if err != nil {
				return err
			}
			t.StartDateOverride = &d
		}
	}
	if flags.Changed("annual") {
		raw, _ := flags.GetString("annual")
		if raw == "" {
			t.AnnualAmountOverride = decimal.NullDecimal{}
		} else {
			d, err := parseAmount(raw)
			if err != nil {
				return err
			}
			t.AnnualAmountOverride = decimal.NewNullDecimal(d)
		}
	}

	if t.Name == "" || t.Level2Value == "" || len(t.Level1Values) == 0 {
		return common.NewUserError("an amortization type needs --name, --level2 and at least one --level1", common.ErrMissingConfig)
	}
	if t.DurationYears < 0 {
		return common.NewUserError("--years cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

func amortizationTypesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List amortization types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				types, err := s.scheduler.Types(cmd.Context(), a.property())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(types) == 0 {
					return writeln(out, cli.InfoStyle.Render("No amortization types. Use 'rent amortization types add' to create one."))
				}

				rows := make([][]string, 0, len(types))
				for _, t := range types {
					start, annual := "-", "-"
					if t.StartDateOverride != nil {
						start = t.StartDateOverride.Format(time.DateOnly)
					}
					if t.AnnualAmountOverride.Valid {
						annual = t.AnnualAmountOverride.Decimal.StringFixed(2)
					}
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						t.Name,
						t.Level2Value,
						strings.Join(t.Level1Values, ", "),
						strconv.FormatFloat(t.DurationYears, 'f', -1, 64),
						start,
						annual,
					})
				}
				return writeln(out, cli.RenderTable([]string{"ID", "Name", "Level 2", "Level 1", "Years", "Start", "Annual"}, rows))
			})
		},
	}
}

func amortizationTypesAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an amortization type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := model.AmortizationType{PropertyID: a.property()}
			if err := applyTypeFlags(cmd.Flags(), &t); err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				rows, err := s.scheduler.CreateType(cmd.Context(), &t)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Created amortization type %q (ID %d), %d schedule rows written", t.Name, t.ID, rows)))
			})
		},
	}
	amortizationTypeFlags(cmd.Flags())
	return cmd
}

func amortizationTypesEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an amortization type",
		Long: `Change the flags you pass. An empty --start or --annual removes the override.
Every schedule of the property is rebuilt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "amortization type")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withServices(ctx, func(s *services) error {
				t, err := s.store.GetAmortizationType(ctx, id)
				if err != nil {
					return err
				}
				if err := applyTypeFlags(cmd.Flags(), t); err != nil {
					return err
				}
				rows, err := s.scheduler.UpdateType(ctx, t)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Updated amortization type %q, %d schedule rows written", t.Name, rows)))
			})
		},
	}
	amortizationTypeFlags(cmd.Flags())
	return cmd
}

func amortizationTypesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an amortization type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "amortization type")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				rows, err := s.scheduler.DeleteType(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Deleted amortization type %d, %d schedule rows remain", id, rows)))
			})
		},
	}
}

func amortizationRecalcCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Rebuild every depreciation schedule of the property",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Recalculation")
			ctx := interrupts.HandleInterrupts(cmd.Context(), true)
			defer interrupts.Stop()

			return a.withServices(ctx, func(s *services) error {
				progress := cli.NewProgress(cmd.ErrOrStderr(), "Rebuilding schedules...")
				rows, err := s.scheduler.RecalculateAll(ctx, a.property(), progress.Report)
				progress.Finish()
				if err != nil {
					if interrupts.WasInterrupted() {
						return nil
					}
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%d schedule rows written", rows)))
			})
		},
	}
}

func amortizationShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Show the depreciation schedule of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				results, err := s.scheduler.Schedule(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(results) == 0 {
					return writeln(out, cli.InfoStyle.Render(fmt.Sprintf("Transaction %d has no depreciation schedule.", id)))
				}

				total := decimal.Zero
				rows := make([][]string, 0, len(results)+1)
				for _, r := range results {
					total = total.Add(r.Amount)
					rows = append(rows, []string{strconv.Itoa(r.Year), r.Category, r.Amount.StringFixed(2)})
				}
				rows = append(rows, []string{"Total", "", total.StringFixed(2)})
				return writeln(out, cli.RenderTable([]string{"Year", "Category", "Amount"}, rows))
			})
		},
	}
}
