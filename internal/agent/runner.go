package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teknestudio/propbot/internal/anthropic"
	"github.com/teknestudio/propbot/internal/classify"
	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/gitrepo"
	"github.com/teknestudio/propbot/internal/history"
	"github.com/teknestudio/propbot/internal/llm"
	"github.com/teknestudio/propbot/internal/proposal"
	"github.com/teknestudio/propbot/internal/render"
)

// defaultMaxToolRounds bounds the tool-use loop. A run that still wants
// tools after this many rounds is cut off with whatever text it produced.
const defaultMaxToolRounds = 10

// completedFallback stands in when a run ends on tool use with no text.
const completedFallback = "✅ Operação concluída com sucesso."

// MessagesClient is the slice of the Anthropic client the run loop needs.
type MessagesClient interface {
	Messages(ctx context.Context, req anthropic.MessagesRequest) (*llm.ChatResponse, error)
}

// Options wires a Runner. Client, Store, Renderer, Publisher, History and
// Ledger are required; Images may be nil when no OpenAI key is configured.
type Options struct {
	Client        MessagesClient
	Store         *proposal.Store
	Renderer      *render.Renderer
	Publisher     *gitrepo.Publisher
	Images        ImageGenerator
	History       *history.Store
	Ledger        *cost.Ledger
	Instructions  string
	MaxToolRounds int
	Log           *slog.Logger
}

// Runner classifies each request, assembles the conversation window and
// drives the tool-use loop until the model answers in plain text.
type Runner struct {
	client        MessagesClient
	store         *proposal.Store
	renderer      *render.Renderer
	publisher     *gitrepo.Publisher
	images        ImageGenerator
	history       *history.Store
	ledger        *cost.Ledger
	instructions  string
	maxToolRounds int
	log           *slog.Logger
}

func NewRunner(opts Options) *Runner {
	rounds := opts.MaxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}
	return &Runner{
		client:        opts.Client,
		store:         opts.Store,
		renderer:      opts.Renderer,
		publisher:     opts.Publisher,
		images:        opts.Images,
		history:       opts.History,
		ledger:        opts.Ledger,
		instructions:  opts.Instructions,
		maxToolRounds: rounds,
		log:           opts.Log,
	}
}

// Reply is one completed agent turn.
type Reply struct {
	RunID     string
	Text      string
	RoleName  string
	Decision  classify.Decision
	Model     anthropic.ModelInfo
	ToolsUsed []string
	Usage     llm.Usage
	Totals    cost.Totals
	// PDFPath is set when the run generated a PDF, so the chat layer can
	// send the document.
	PDFPath string
	Elapsed time.Duration
}

// Run processes one user message end to end: classify, converse, execute
// tools, account cost, persist history. Statuses stream through hooks while
// the run is in flight; the returned Reply is the final message.
func (r *Runner) Run(ctx context.Context, sessionID, message string, hooks Hooks) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("message cannot be empty")
	}
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}

	runID := uuid.NewString()
	decision := classify.Classify(message)
	rc := RoleFor(decision.Role)
	model := anthropic.ModelFor(decision.Tier)
	log := r.log.With("run", runID, "session", sessionID)
	log.Info("request classified",
		"role", decision.Role, "role_rule", decision.RoleRule, "role_keyword", decision.RoleKeyword,
		"tier", decision.Tier, "tier_rule", decision.TierRule, "model", model.ID)

	msgs := r.window(ctx, sessionID, rc.HistoryRuns, log)
	msgs = append(msgs, llm.ChatMessage{Role: "user", Content: message})

	exec := NewExecutor(r.store, r.renderer, r.publisher, r.images, hooks, log)
	system := systemPrompt(r.instructions, rc)
	tools := rc.Tools()

	var usage llm.Usage
	var toolsUsed []string
	var text string
	start := time.Now()

	for round := 0; ; round++ {
		resp, err := r.client.Messages(ctx, anthropic.MessagesRequest{
			Model:     model.ID,
			System:    system,
			Messages:  msgs,
			Tools:     tools,
			MaxTokens: rc.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			text = resp.Content
			break
		}
		if round >= r.maxToolRounds {
			log.Warn("tool round budget exhausted", "rounds", round)
			text = resp.Content
			break
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, call.Name)
			log.Info("tool call", "tool", call.Name)
			results = append(results, exec.Execute(ctx, call))
		}
		msgs = append(msgs,
			llm.ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls},
			llm.ChatMessage{Role: "user", ToolResults: results},
		)
	}
	elapsed := time.Since(start)

	if strings.TrimSpace(text) == "" {
		text = completedFallback
	}

	totals, err := r.ledger.Record(sessionID, cost.Usage{
		InputTokens:         usage.InputTokens,
		OutputTokens:        usage.OutputTokens,
		CacheReadTokens:     usage.CacheReadTokens,
		CacheCreationTokens: usage.CacheCreationTokens,
		Cost:                model.Cost(usage),
	})
	if err != nil {
		log.Warn("cost ledger write failed", "error", err)
	}

	if _, err := r.history.Append(ctx, history.Run{
		SessionID: sessionID,
		Role:      string(decision.Role),
		Model:     model.ID,
		UserText:  message,
		ReplyText: text,
	}); err != nil {
		log.Warn("history append failed", "error", err)
	}

	if slices.Contains(toolsUsed, ToolSaveProposal) && !slices.Contains(toolsUsed, ToolCommitAndPush) {
		log.Warn("proposal saved without commit")
		hooks.status("⚠️ Aviso: Proposta salva mas não enviada ao repositório")
	}
	if slices.Contains(toolsUsed, ToolGeneratePDF) {
		hooks.status(fmt.Sprintf(
			"💰 _Custo desta requisição:_ `$%.4f`\n📊 _Sessão:_ `$%.4f` | _Hoje:_ `$%.4f` | _Total:_ `$%.4f`",
			totals.ThisRequest, totals.Session, totals.Today, totals.Total))
	}

	log.Info("run finished",
		"elapsed", elapsed.Round(time.Millisecond),
		"tools", len(toolsUsed),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cost", fmt.Sprintf("%.4f", totals.ThisRequest))

	return &Reply{
		RunID:     runID,
		Text:      text,
		RoleName:  rc.Name,
		Decision:  decision,
		Model:     model,
		ToolsUsed: toolsUsed,
		Usage:     usage,
		Totals:    totals,
		PDFPath:   exec.PDFPath(),
		Elapsed:   elapsed,
	}, nil
}

// window loads the recent conversation as alternating user/assistant turns.
// History being unavailable degrades to an empty window instead of failing
// the run.
func (r *Runner) window(ctx context.Context, sessionID string, n int, log *slog.Logger) []llm.ChatMessage {
	runs, err := r.history.Window(ctx, sessionID, n)
	if err != nil {
		log.Warn("history window unavailable", "error", err)
		return nil
	}
	msgs := make([]llm.ChatMessage, 0, 2*len(runs)+1)
	for _, run := range runs {
		msgs = append(msgs, llm.ChatMessage{Role: "user", Content: run.UserText})
		if run.ReplyText != "" {
			msgs = append(msgs, llm.ChatMessage{Role: "assistant", Content: run.ReplyText})
		}
	}
	return msgs
}

// Reset clears a session's conversation history.
func (r *Runner) Reset(ctx context.Context, sessionID string) error {
	return r.history.Clear(ctx, sessionID)
}
