package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teknestudio/propbot/internal/logging"
	"github.com/teknestudio/propbot/internal/render"
)

var renderTemplate string

var renderCmd = &cobra.Command{
	Use:   "render <proposal-path>",
	Short: "Render a proposal YAML to PDF via the repo's render script",
	Example: `  propbot render docs/2026-01-sesc-metaverso/proposta-sesc-metaverso.yaml
  propbot render docs/2026-01-sesc-metaverso/proposta-sesc-metaverso.yaml --template institucional`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration could not be loaded")
		}
		log := logging.Console(cfg.Debug)
		renderer := render.New(cfg.RepoDir, time.Duration(cfg.RenderTimeoutSec)*time.Second, log.With("component", "render"))

		res, err := renderer.Render(cmd.Context(), args[0], renderTemplate)
		if err != nil {
			return err
		}
		fmt.Printf("PDF: %s (%s)\n", res.PDFPath, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&renderTemplate, "template", "", "template name passed to the render script")
}
