package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/store"
	"cortex/internal/system"
)

var (
	budgetSetQuota int
	budgetReset    bool
)

// statsCmd shows index statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runStats,
}

// budgetCmd shows or adjusts per-user token budgets
var budgetCmd = &cobra.Command{
	Use:   "budget [user]",
	Short: "Show or adjust per-user token budgets",
	Long: `Without arguments, lists every tracked user's monthly quota and usage.
With a user id, shows that user; --set-quota and --reset modify it.

Examples:
  cortex budget
  cortex budget dana --set-quota 250000
  cortex budget dana --reset`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBudget,
}

func init() {
	budgetCmd.Flags().IntVar(&budgetSetQuota, "set-quota", 0, "set the user's monthly token quota")
	budgetCmd.Flags().BoolVar(&budgetReset, "reset", false, "reset the user's used tokens to zero")
}

func runStats(cmd *cobra.Command, args []string) error {
	sys, err := system.Boot(cmd.Context(), workspace)
	if err != nil {
		return err
	}
	defer sys.Close()

	fmt.Println(headerStyle.Render("Index"))
	for _, collection := range []string{
		store.CollectionSummaries, store.CollectionChunks,
		store.CollectionBrains, store.CollectionTools,
	} {
		n, err := sys.Store.Count(collection)
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s %d\n", collection, n)
	}
	fmt.Printf("  %-10s %d\n", "files", len(sys.Indexer.KnownFiles()))
	return nil
}

func runBudget(cmd *cobra.Command, args []string) error {
	sys, err := system.Boot(cmd.Context(), workspace)
	if err != nil {
		return err
	}
	defer sys.Close()

	if len(args) == 1 {
		user := args[0]
		if budgetSetQuota > 0 {
			sys.Usage.SetQuota(user, budgetSetQuota)
		}
		if budgetReset {
			sys.Usage.Reset(user)
		}
		fmt.Printf("%s: used %d, remaining %d\n", user, sys.Usage.Used(user), sys.Usage.Remaining(user))
		return nil
	}

	budgets := sys.Usage.Snapshot()
	if len(budgets) == 0 {
		fmt.Println(labelStyle.Render("no tracked users"))
		return nil
	}
	fmt.Println(headerStyle.Render("Budgets"))
	for _, b := range budgets {
		fmt.Printf("  %-16s quota=%-8d used=%-8d (%d%%)\n", b.UserID, b.MonthlyQuota, b.UsedTokens, b.UsagePct())
	}
	return nil
}
