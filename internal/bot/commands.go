package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/teknestudio/propbot/internal/cost"
	"github.com/teknestudio/propbot/internal/telegram"
)

// The bot speaks Portuguese to its users; log lines stay in English.
const (
	refusedReply     = "❌ Você não tem permissão para usar este bot."
	sessionHintReply = "💡 Use /proposal primeiro para criar uma proposta."
	apiTroubleReply  = "⚠️ Problema de conexão com a API. Por favor, tente novamente."

	resetReply      = "✅ Sessão e custos resetados! Use /proposal para começar uma nova proposta."
	resetDailyReply = "✅ Custos diários resetados!"
	resetAllReply   = "✅ TODOS os custos foram resetados!\n\n⚠️ Todos os dados de custo (total, diário e sessões) foram apagados."

	// kickoffMessage seeds a fresh session so the agent opens by listing
	// what already exists.
	kickoffMessage      = "Olá! Liste as 10 propostas mais recentes. O que você gostaria de fazer: criar uma nova proposta ou editar uma existente?"
	proposalPlaceholder = "🚀 Iniciando gerador de propostas..."
	thinkingPlaceholder = "💭 Processando..."
)

const helpReply = `📖 *Comandos Disponíveis*

*PRINCIPAIS (mostrados no menu)*
/proposal - ✨ Criar nova proposta comercial
/reset - 🔄 Nova sessão (limpar conversa e custos)
/help - 📖 Mostrar esta mensagem

*OUTROS COMANDOS*
/cost - 💰 Ver estatísticas de uso da API
/hello - 👋 Teste básico de conexão

*COMANDOS AVANÇADOS*
/resetdaily - 🗓️ Resetar apenas custos diários
/resetall - ⚠️ Resetar TODOS os custos (total + diário + sessões)

📝 *OUTRAS FUNCIONALIDADES*
• Envie mensagens de voz ou áudio → transcrevo para você!
• Envie mensagens de texto → converso sobre propostas
• Envie imagens → adiciono às propostas`

// menuCommands is the short list pinned to the Telegram command menu; /help
// describes the rest.
var menuCommands = []telegram.BotCommand{
	{Command: "proposal", Description: "✨ Criar ou editar propostas"},
	{Command: "reset", Description: "🔄 Nova sessão (limpar conversa)"},
	{Command: "help", Description: "📖 Ver todos os comandos"},
}

// runCommand dispatches one slash command. /hello, /help and /reset stay
// open to everyone; the rest go through the allowlist. Unknown commands are
// ignored.
func (b *Bot) runCommand(ctx context.Context, msg *telegram.Message, cmd string) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	switch cmd {
	case "hello":
		b.send(ctx, chatID, fmt.Sprintf("Hello %s!\nYour user ID: `%d`", msg.From.FirstName, userID))
	case "help":
		if _, err := b.client.SendMarkdown(ctx, chatID, helpReply); err != nil {
			b.log.Warn("send failed", "chat", chatID, "error", err)
		}
	case "cost":
		if !b.authorize(ctx, msg, "cost command") {
			return
		}
		b.costCommand(ctx, chatID, userID)
	case "proposal":
		if !b.authorize(ctx, msg, "proposal command") {
			return
		}
		b.startProposal(ctx, msg)
	case "reset":
		b.resetCommand(ctx, chatID, userID)
	case "resetdaily":
		if !b.authorize(ctx, msg, "reset-daily command") {
			return
		}
		if err := b.ledger.Reset(cost.ScopeDaily, ""); err != nil {
			b.log.Error("daily cost reset failed", "error", err)
			b.send(ctx, chatID, "❌ Erro: "+err.Error())
			return
		}
		b.log.Info("daily costs reset", "user", userID)
		b.send(ctx, chatID, resetDailyReply)
	case "resetall":
		if !b.authorize(ctx, msg, "resetall command") {
			return
		}
		if err := b.ledger.Reset(cost.ScopeAll, ""); err != nil {
			b.log.Error("full cost reset failed", "error", err)
			b.send(ctx, chatID, "❌ Erro: "+err.Error())
			return
		}
		b.log.Info("all costs reset", "user", userID)
		b.send(ctx, chatID, resetAllReply)
	default:
		b.log.Debug("unknown command ignored", "command", cmd, "user", userID)
	}
}

// startProposal opens (or restarts) the user's session and seeds the agent
// so the first reply lists recent proposals.
func (b *Bot) startProposal(ctx context.Context, msg *telegram.Message) {
	b.sessions.start(msg.From.ID)
	b.log.Info("proposal session started", "user", msg.From.ID, "username", msg.From.Username)
	b.runAgent(ctx, msg.Chat.ID, msg.From.ID, kickoffMessage, proposalPlaceholder)
}

// resetCommand drops the session, its conversation history and its cost
// bucket. Clearing is best effort; the user gets a fresh session either way.
func (b *Bot) resetCommand(ctx context.Context, chatID, userID int64) {
	sid := sessionID(userID)
	b.sessions.clear(userID)
	if err := b.agent.Reset(ctx, sid); err != nil {
		b.log.Warn("history reset failed", "session", sid, "error", err)
	}
	if err := b.ledger.Reset(cost.ScopeSession, sid); err != nil {
		b.log.Warn("session cost reset failed", "session", sid, "error", err)
	}
	b.log.Info("session reset", "user", userID)
	b.send(ctx, chatID, resetReply)
}

// costCommand renders the usage report. The ledger never fails to read, so
// the only error left is the send itself (usually Markdown the client
// rejects).
func (b *Bot) costCommand(ctx context.Context, chatID, userID int64) {
	report := costReport(b.ledger.Stats(), sessionID(userID), time.Now())
	if _, err := b.client.SendMarkdown(ctx, chatID, report); err != nil {
		b.log.Error("cost report send failed", "error", err)
		b.send(ctx, chatID, "❌ Erro ao obter estatísticas: "+err.Error())
	}
}
