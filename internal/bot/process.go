package bot

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/teknestudio/propbot/internal/agent"
	"github.com/teknestudio/propbot/internal/llm"
	"github.com/teknestudio/propbot/internal/telegram"
	"github.com/teknestudio/propbot/internal/utils"
)

// runAgent drives one agent turn: progress placeholder, status streaming, the
// run itself with a single retry on transient API failures, then the reply
// (and the PDF, when one was generated) back into the chat.
func (b *Bot) runAgent(ctx context.Context, chatID, userID int64, message, placeholder string) {
	sid, ok := b.sessions.id(userID)
	if !ok {
		b.send(ctx, chatID, sessionHintReply)
		return
	}

	prog := b.newProgress(ctx, chatID, placeholder)
	defer prog.finish(ctx)

	hooks := agent.Hooks{
		Status: func(text string) {
			prog.halt()
			b.send(ctx, chatID, text)
		},
		AwaitImage: func(proposalDir, position string) {
			b.sessions.markAwaiting(userID, proposalDir, position)
			b.log.Info("waiting for user image",
				"user", userID, "dir", proposalDir, "position", position)
		},
	}

	b.log.Info("forwarding to agent", "session", sid, "chars", len(message))
	reply, err := b.agent.Run(ctx, sid, message, hooks)
	if err != nil && llm.IsTransient(err) && ctx.Err() == nil {
		b.log.Warn("agent run failed, retrying once", "session", sid, "error", err)
		select {
		case <-time.After(b.retryDelay):
		case <-ctx.Done():
			return
		}
		reply, err = b.agent.Run(ctx, sid, message, hooks)
	}
	if err != nil {
		prog.halt()
		b.log.Error("agent run failed", "session", sid, "error", err)
		if llm.IsTransient(err) {
			b.send(ctx, chatID, apiTroubleReply)
		} else {
			b.send(ctx, chatID, "❌ Erro: "+err.Error())
		}
		return
	}

	prog.halt()
	if reply.PDFPath != "" {
		b.sendPDF(ctx, chatID, reply.PDFPath)
	}
	for _, chunk := range utils.SplitMessage(reply.Text, telegram.MaxMessageLength) {
		b.send(ctx, chatID, chunk)
	}
}

// sendPDF uploads the generated document. A missing file is only logged; the
// streamed statuses already told the user how the render went.
func (b *Bot) sendPDF(ctx context.Context, chatID int64, rel string) {
	abs := filepath.Join(b.store.Root(), filepath.FromSlash(rel))
	data, err := os.ReadFile(abs)
	if err != nil {
		b.log.Warn("generated pdf not readable", "path", rel, "error", err)
		return
	}
	name := path.Base(rel)
	if err := b.client.SendDocument(ctx, chatID, name, data, "📄 "+name); err != nil {
		b.log.Error("pdf send failed", "path", rel, "error", err)
	}
}
