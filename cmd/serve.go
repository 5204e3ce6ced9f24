package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teknestudio/propbot/internal/agent"
	"github.com/teknestudio/propbot/internal/anthropic"
	"github.com/teknestudio/propbot/internal/bot"
	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/gitrepo"
	"github.com/teknestudio/propbot/internal/history"
	"github.com/teknestudio/propbot/internal/logging"
	"github.com/teknestudio/propbot/internal/openai"
	"github.com/teknestudio/propbot/internal/proposal"
	"github.com/teknestudio/propbot/internal/render"
	"github.com/teknestudio/propbot/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		if cfg.TelegramBotToken == "" {
			return errors.New("telegram bot token is not set (TELEGRAM_BOT_TOKEN)")
		}
		if cfg.AnthropicAPIKey == "" {
			return errors.New("anthropic api key is not set (ANTHROPIC_API_KEY)")
		}
		allowed, err := cfg.AllowedUserIDs()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		log, closeLog, err := logging.Setup(cfg.DataDir, cfg.Debug, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("set up logging: %w", err)
		}
		defer closeLog()

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

		// Voice transcription and image generation ride on the same OpenAI
		// key; without it the bot still runs, those two features degrade.
		var images agent.ImageGenerator
		var transcriber bot.Transcriber
		if cfg.OpenAIAPIKey != "" {
			oai := openai.NewClient(cfg.OpenAIAPIKey, httpTimeout, cfg.RetryMaxAttempts, baseDelay, maxDelay, log.With("component", "openai"))
			images = oai
			transcriber = oai
		} else {
			log.Warn("OPENAI_API_KEY is not set, voice transcription and image generation are disabled")
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

		tg := telegram.NewClient(cfg.TelegramBotToken, httpTimeout, log.With("component", "telegram"))
		b := bot.New(bot.Options{
			Client:       tg,
			Agent:        runner,
			Ledger:       ledger,
			Store:        store,
			Transcriber:  transcriber,
			AllowedUsers: allowed,
			Log:          log.With("component", "bot"),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("starting bot", "repo_dir", cfg.RepoDir, "data_dir", cfg.DataDir)
		if err := b.Serve(ctx); err != nil {
			return err
		}
		log.Info("bot stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
