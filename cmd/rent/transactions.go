package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-rent-must-flow/internal/cli"
	"github.com/Veraticus/the-rent-must-flow/internal/common"
	"github.com/Veraticus/the-rent-must-flow/internal/engine"
	"github.com/Veraticus/the-rent-must-flow/internal/model"
	"github.com/Veraticus/the-rent-must-flow/internal/service"
	"github.com/Veraticus/the-rent-must-flow/internal/tui"
)

func transactionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "Record, list and classify bank transactions",
	}

	cmd.AddCommand(transactionsAddCmd(a))
	cmd.AddCommand(transactionsListCmd(a))
	cmd.AddCommand(transactionsEditCmd(a))
	cmd.AddCommand(transactionsClassifyCmd(a))
	cmd.AddCommand(transactionsSetCmd(a))
	cmd.AddCommand(transactionsReviewCmd(a))

	return cmd
}

func parseDate(s string) (time.Time, error) {
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, common.NewUserError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s), err)
	}
	return d, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, common.NewUserError(fmt.Sprintf("invalid amount %q", s), err)
	}
	return d, nil
}

func printClassifyResult(cmd *cobra.Command, txnID int64, res engine.Result) error {
	out := cmd.OutOrStdout()
	switch {
	case res.Rule != nil:
		return writeln(out, cli.FormatSuccess(fmt.Sprintf("Transaction %d → %s (rule %q)", txnID, res.Levels, res.Rule.Name)))
	default:
		return writeln(out, cli.FormatInfo(fmt.Sprintf("Transaction %d left unassigned", txnID)))
	}
}

func transactionsAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <date> <amount> <label>",
		Short: "Record a transaction and classify it",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			txn := model.Transaction{
				PropertyID: a.property(),
				Date:       date,
				Amount:     amount,
				Name:       strings.Join(args[2:], " "),
			}

			return a.withServices(cmd.Context(), func(s *services) error {
				res, err := s.engine.Ingest(cmd.Context(), &txn)
				if err != nil {
					return err
				}
				return printClassifyResult(cmd, txn.ID, res)
			})
		},
	}
}

func transactionsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions with their classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			filter := service.TransactionFilter{PropertyID: a.property()}
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			for flag, target := range map[string]**time.Time{"from": &filter.StartDate, "to": &filter.EndDate} {
				raw, _ := cmd.Flags().GetString(flag)
				if raw == "" {
					continue
				}
				d, err := parseDate(raw)
				if err != nil {
					return err
				}
				*target = &d
			}
			unassigned, _ := cmd.Flags().GetBool("unassigned")

			return a.withServices(ctx, func(s *services) error {
				txns, err := s.store.GetTransactions(ctx, filter)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(txns))
				for _, txn := range txns {
					var levels model.Levels
					c, err := s.store.GetClassification(ctx, txn.ID)
					switch {
					case errors.Is(err, common.ErrNotFound):
					case err != nil:
						return err
					default:
						levels = c.Levels
					}
					if unassigned && !levels.IsEmpty() {
						continue
					}
					rows = append(rows, []string{
						strconv.FormatInt(txn.ID, 10),
						txn.Date.Format(time.DateOnly),
						txn.Amount.StringFixed(2),
						txn.Name,
						formatLevels(levels),
					})
				}

				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					return writeln(out, cli.InfoStyle.Render("No transactions."))
				}
				return writeln(out, cli.RenderTable([]string{"ID", "Date", "Amount", "Label", "Classification"}, rows))
			})
		},
	}

	cmd.Flags().String("from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 0, "Maximum number of transactions")
	cmd.Flags().Bool("unassigned", false, "Only show unassigned transactions")
	return cmd
}

func transactionsEditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct a transaction and reclassify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			flags := cmd.Flags()

			return a.withServices(ctx, func(s *services) error {
				txn, err := s.store.GetTransactionByID(ctx, id)
				if err != nil {
					return err
				}
				if flags.Changed("label") {
					txn.Name, _ = flags.GetString("label")
				}
				if flags.Changed("amount") {
					raw, _ := flags.GetString("amount")
					if txn.Amount, err = parseAmount(raw); err != nil {
						return err
					}
				}
				if flags.Changed("date") {
					raw, _ := flags.GetString("date")
					if txn.Date, err = parseDate(raw); err != nil {
						return err
					}
				}

				res, err := s.engine.UpdateTransaction(ctx, txn)
				if err != nil {
					return err
				}
				return printClassifyResult(cmd, txn.ID, res)
			})
		},
	}

	cmd.Flags().String("label", "", "New bank label")
	cmd.Flags().String("amount", "", "New amount")
	cmd.Flags().String("date", "", "New date (YYYY-MM-DD)")
	return cmd
}

func transactionsClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <id>",
		Short: "Classify one transaction with the current rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				res, err := s.engine.ClassifyByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printClassifyResult(cmd, id, res)
			})
		},
	}
}

func transactionsSetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <id> [level1 level2 [level3]]",
		Short: "Classify one transaction by hand",
		Long: `Set the classification of a transaction regardless of the rules. The triple
must be allowed for the property. Use --clear to unassign it, or give no levels
to pick them interactively.`,
		Args: cobra.RangeArgs(1, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "transaction")
			if err != nil {
				return err
			}
			unassign, _ := cmd.Flags().GetBool("clear")
			ctx := cmd.Context()

			return a.withServices(ctx, func(s *services) error {
				var levels model.Levels
				switch {
				case unassign:
				case len(args) == 1:
					prompter := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
					if levels, err = prompter.ChooseLevels(ctx, s.registry, a.property()); err != nil {
						return err
					}
				default:
					if levels, err = levelsFromArgs(args[1:]); err != nil {
						return err
					}
				}

				c, err := s.engine.SetManualClassification(ctx, id, levels)
				if err != nil {
					return err
				}
				return writeln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Transaction %d → %s", id, c.Levels)))
			})
		},
	}

	cmd.Flags().Bool("clear", false, "Unassign the transaction")
	return cmd
}

func transactionsReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Classify unassigned transactions in an interactive screen",
		Long: `Walk through every unassigned transaction of the property and pick its
levels among the allowed combinations. Each choice can also save a rule named
after the bank label, which then classifies the other matching transactions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			saveRules, _ := cmd.Flags().GetBool("rules")

			return a.withServices(ctx, func(s *services) error {
				queue, err := s.store.GetUnassignedTransactions(ctx, a.property())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(queue) == 0 {
					return writeln(out, cli.FormatSuccess("No unassigned transactions."))
				}

				stats, err := tui.Run(ctx, tui.Config{
					Classifier: s.engine,
					Options:    s.registry,
					Input:      cmd.InOrStdin(),
					Output:     out,
					Queue:      queue,
					PropertyID: a.property(),
					SaveRules:  saveRules,
				})
				if err != nil {
					return err
				}
				return writeln(out, cli.FormatSuccess(fmt.Sprintf(
					"%d classified, %d skipped, %d rules saved (%d other transactions reclassified)",
					stats.Classified, stats.Skipped, stats.RulesSaved, stats.Reclassified)))
			})
		},
	}

	cmd.Flags().Bool("rules", true, "Save a rule for each choice (toggle with r)")
	return cmd
}
