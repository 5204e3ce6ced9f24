// Package bot is the Telegram shell around the proposal agent: long polling,
// an allowlist, per-user sessions and streaming of run progress into the
// chat. Each user's messages are handled in arrival order on a dedicated
// worker; different users proceed concurrently.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teknestudio/propbot/internal/agent"
	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/llm"
	"github.com/teknestudio/propbot/internal/proposal"
	"github.com/teknestudio/propbot/internal/telegram"
)

const (
	pollTimeoutSeconds = 50
	pollRetryDelay     = 3 * time.Second
	queueCapacity      = 16
	agentRetryDelay    = 2 * time.Second
)

// Agent is the slice of the agent runner the shell drives.
type Agent interface {
	Run(ctx context.Context, sessionID, message string, hooks agent.Hooks) (*agent.Reply, error)
	Reset(ctx context.Context, sessionID string) error
}

// Transcriber turns an audio attachment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Options wires a Bot. Client, Agent, Ledger and Store are required;
// Transcriber may be nil when audio transcription is not configured.
type Options struct {
	Client       *telegram.Client
	Agent        Agent
	Ledger       *cost.Ledger
	Store        *proposal.Store
	Transcriber  Transcriber
	AllowedUsers []int64
	Log          *slog.Logger
}

// Bot runs the Telegram side of the proposal workflow.
type Bot struct {
	client      *telegram.Client
	agent       Agent
	ledger      *cost.Ledger
	store       *proposal.Store
	transcriber Transcriber
	sessions    *sessions
	allowed     map[int64]struct{}
	log         *slog.Logger

	retryDelay     time.Duration
	pollRetryDelay time.Duration

	mu     sync.Mutex
	queues map[int64]chan *telegram.Message
	wg     sync.WaitGroup
}

func New(opts Options) *Bot {
	allowed := make(map[int64]struct{}, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = struct{}{}
	}
	return &Bot{
		client:         opts.Client,
		agent:          opts.Agent,
		ledger:         opts.Ledger,
		store:          opts.Store,
		transcriber:    opts.Transcriber,
		sessions:       newSessions(),
		allowed:        allowed,
		log:            opts.Log,
		retryDelay:     agentRetryDelay,
		pollRetryDelay: pollRetryDelay,
		queues:         make(map[int64]chan *telegram.Message),
	}
}

// Serve publishes the command menu and long-polls for updates until ctx is
// canceled. Poll failures back off and retry; only non-transient API errors
// (bad token, malformed request) abort the loop.
func (b *Bot) Serve(ctx context.Context) error {
	if len(b.allowed) == 0 {
		b.log.Warn("allowlist is empty, bot is open to all users")
	} else {
		b.log.Info("access control enabled", "users", len(b.allowed))
	}
	if err := b.client.SetMyCommands(ctx, menuCommands); err != nil {
		b.log.Warn("could not set bot commands", "error", err)
	}
	b.log.Info("bot started")

	var offset int64
	for ctx.Err() == nil {
		updates, err := b.client.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if !llm.IsTransient(err) {
				b.stop()
				return fmt.Errorf("poll updates: %w", err)
			}
			b.log.Warn("poll failed, backing off", "error", err)
			select {
			case <-time.After(b.pollRetryDelay):
			case <-ctx.Done():
			}
			continue
		}
		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			b.enqueue(ctx, u.Message)
		}
	}
	b.stop()
	b.log.Info("bot stopped")
	return nil
}

// enqueue hands the message to the sender's worker, spawning one on first
// contact. A full queue drops the message rather than stalling the poll loop.
func (b *Bot) enqueue(ctx context.Context, msg *telegram.Message) {
	b.mu.Lock()
	q, ok := b.queues[msg.From.ID]
	if !ok {
		q = make(chan *telegram.Message, queueCapacity)
		b.queues[msg.From.ID] = q
		b.wg.Add(1)
		go b.worker(ctx, q)
	}
	b.mu.Unlock()

	select {
	case q <- msg:
	default:
		b.log.Warn("user queue full, dropping message", "user", msg.From.ID)
	}
}

// worker drains one user's queue so that user's messages stay in order.
func (b *Bot) worker(ctx context.Context, q chan *telegram.Message) {
	defer b.wg.Done()
	for msg := range q {
		if ctx.Err() != nil {
			return
		}
		b.handle(ctx, msg)
	}
}

// stop closes all user queues and waits for in-flight handlers to return.
func (b *Bot) stop() {
	b.mu.Lock()
	for _, q := range b.queues {
		close(q)
	}
	b.queues = make(map[int64]chan *telegram.Message)
	b.mu.Unlock()
	b.wg.Wait()
}

// handle routes one message to its command or media handler.
func (b *Bot) handle(ctx context.Context, msg *telegram.Message) {
	if cmd, ok := parseCommand(msg.Text); ok {
		b.runCommand(ctx, msg, cmd)
		return
	}
	switch {
	case len(msg.Photo) > 0:
		if !b.authorize(ctx, msg, "photo message") {
			return
		}
		b.handlePhoto(ctx, msg)
	case msg.Voice != nil || msg.Audio != nil:
		if !b.authorize(ctx, msg, "audio message") {
			return
		}
		b.handleAudio(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		if !b.authorize(ctx, msg, "text message") {
			return
		}
		b.handleText(ctx, msg)
	}
}

// parseCommand extracts the command name from "/name@bot args" style text.
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// authorize enforces the allowlist. An empty allowlist admits everyone.
func (b *Bot) authorize(ctx context.Context, msg *telegram.Message, what string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	if _, ok := b.allowed[msg.From.ID]; ok {
		return true
	}
	b.log.Warn("unauthorized access attempt",
		"user", msg.From.ID, "username", msg.From.Username, "handler", what)
	b.send(ctx, msg.Chat.ID, refusedReply)
	return false
}

// send delivers plain text, logging failures; by this point there is nothing
// better to do with a send error.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendMessage(ctx, chatID, text); err != nil {
		b.log.Warn("send failed", "chat", chatID, "error", err)
	}
}

// edit replaces the text of a status message the bot sent earlier.
func (b *Bot) edit(ctx context.Context, chatID, messageID int64, text string) {
	if err := b.client.EditMessageText(ctx, chatID, messageID, text); err != nil {
		b.log.Warn("edit failed", "chat", chatID, "error", err)
	}
}
