package cmd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/logging"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Inspect or reset the API cost ledger",
}

var costShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show accumulated API spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		ledger := cost.NewLedger(cfg.LedgerPath(), logging.Console(cfg.Debug))
		stats := ledger.Stats()

		t := stats.Total
		fmt.Printf("Total: $%.4f (%d requests, %d in / %d out tokens)\n", t.Cost, t.Requests, t.InputTokens, t.OutputTokens)
		if t.CacheReadTokens > 0 || t.CacheCreationTokens > 0 {
			fmt.Printf("Cache: %d read / %d written tokens\n", t.CacheReadTokens, t.CacheCreationTokens)
		}

		if len(stats.Daily) > 0 {
			fmt.Println("\nBy day:")
			days := make([]string, 0, len(stats.Daily))
			for day := range stats.Daily {
				days = append(days, day)
			}
			slices.Sort(days)
			slices.Reverse(days)
			for _, day := range days {
				b := stats.Daily[day]
				fmt.Printf("  %s  $%.4f  (%d requests)\n", day, b.Cost, b.Requests)
			}
		}

		if len(stats.Sessions) > 0 {
			fmt.Println("\nBy session:")
			names := make([]string, 0, len(stats.Sessions))
			for name := range stats.Sessions {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				b := stats.Sessions[name]
				fmt.Printf("  %-24s $%.4f  (%d requests)\n", name, b.Cost, b.Requests)
			}
		}

		if stats.LastUpdate != "" {
			fmt.Printf("\nLast update: %s\n", stats.LastUpdate)
		}
		return nil
	},
}

var costResetCmd = &cobra.Command{
	Use:   "reset <all|daily|sessions|session> [session-id]",
	Short: "Clear cost buckets",
	Example: `  propbot cost reset daily
  propbot cost reset session user_123456`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		scope := cost.Scope(args[0])
		var sessionID string
		switch scope {
		case cost.ScopeAll, cost.ScopeDaily, cost.ScopeSessions:
			if len(args) > 1 {
				return fmt.Errorf("scope %q takes no session id", args[0])
			}
		case cost.ScopeSession:
			if len(args) != 2 {
				return errors.New("scope \"session\" needs a session id")
			}
			sessionID = args[1]
		default:
			return fmt.Errorf("unknown scope %q (use all, daily, sessions or session)", args[0])
		}

		ledger := cost.NewLedger(cfg.LedgerPath(), logging.Console(cfg.Debug))
		if err := ledger.Reset(scope, sessionID); err != nil {
			return err
		}
		fmt.Printf("Cleared %s costs\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(costCmd)
	costCmd.AddCommand(costShowCmd)
	costCmd.AddCommand(costResetCmd)
}
