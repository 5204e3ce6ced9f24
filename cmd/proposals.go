package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teknestudio/propbot/internal/logging"
	"github.com/teknestudio/propbot/internal/proposal"
)

var proposalsLimit int

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Work with saved proposals",
}

var proposalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent proposals, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		store := proposal.NewStore(cfg.RepoDir, logging.Console(cfg.Debug))
		entries, err := store.List(proposalsLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("(no proposals)")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("- %s\n    %s | %s | %s\n", e.Path, e.Title, e.Client, e.Date)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(proposalsCmd)
	proposalsCmd.AddCommand(proposalsListCmd)
	proposalsListCmd.Flags().IntVarP(&proposalsLimit, "limit", "n", 10, "maximum proposals to list")
}
