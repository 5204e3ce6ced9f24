package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teknestudio/propbot/internal/agent"
	"github.com/teknestudio/propbot/internal/anthropic"
	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/gitrepo"
	"github.com/teknestudio/propbot/internal/history"
	"github.com/teknestudio/propbot/internal/logging"
	"github.com/teknestudio/propbot/internal/openai"
	"github.com/teknestudio/propbot/internal/proposal"
	"github.com/teknestudio/propbot/internal/render"
)

var (
	askSession string
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one agent turn from the terminal",
	Example: `  propbot ask "liste as 10 propostas mais recentes"
  propbot ask --session trabalho "mude o título para 'Proposta Metaverso'"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		if cfg.AnthropicAPIKey == "" {
			return errors.New("anthropic api key is not set (ANTHROPIC_API_KEY)")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		log := logging.Console(cfg.Debug)

		httpTimeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second
		baseDelay := time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		maxDelay := time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond

		store := proposal.NewStore(cfg.RepoDir, log.With("component", "proposal"))
		ledger := cost.NewLedger(cfg.LedgerPath(), log.With("component", "cost"))
		hist, err := history.Open(cfg.HistoryPath(), log.With("component", "history"))
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hist.Close()

		renderer := render.New(cfg.RepoDir, time.Duration(cfg.RenderTimeoutSec)*time.Second, log.With("component", "render"))
		publisher := gitrepo.New(cfg.RepoDir, log.With("component", "gitrepo"))
		claude := anthropic.NewClient(cfg.AnthropicAPIKey, httpTimeout, cfg.RetryMaxAttempts, baseDelay, maxDelay, log.With("component", "anthropic"))

		var images agent.ImageGenerator
		if cfg.OpenAIAPIKey != "" {
			images = openai.NewClient(cfg.OpenAIAPIKey, httpTimeout, cfg.RetryMaxAttempts, baseDelay, maxDelay, log.With("component", "openai"))
		}

		runner := agent.NewRunner(agent.Options{
			Client:        claude,
			Store:         store,
			Renderer:      renderer,
			Publisher:     publisher,
			Images:        images,
			History:       hist,
			Ledger:        ledger,
			Instructions:  agent.LoadInstructions(cfg.RepoDir, log),
			MaxToolRounds: cfg.MaxToolRounds,
			Log:           log.With("component", "agent"),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hooks := agent.Hooks{
			Status: func(text string) {
				fmt.Println(text)
			},
			AwaitImage: func(proposalDir, position string) {
				fmt.Printf("(the agent is waiting for an image for %s at %s; attachments need the Telegram bot)\n", proposalDir, position)
			},
		}

		message := strings.Join(args, " ")
		reply, err := runner.Run(ctx, "cli_"+askSession, message, hooks)
		if err != nil {
			return err
		}

		fmt.Println(reply.Text)
		if reply.PDFPath != "" {
			fmt.Printf("PDF: %s\n", reply.PDFPath)
		}
		if askVerbose {
			fmt.Printf("\nrole=%s model=%s tools=%s elapsed=%s\n",
				reply.RoleName, reply.Model.ID, strings.Join(reply.ToolsUsed, ","), reply.Elapsed.Round(time.Millisecond))
			fmt.Printf("cost: $%.4f this run (session $%.4f, today $%.4f, total $%.4f)\n",
				reply.Totals.ThisRequest, reply.Totals.Session, reply.Totals.Today, reply.Totals.Total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askSession, "session", "default", "session name for conversation memory and cost buckets")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print role, model, tools and cost after the reply")
}
