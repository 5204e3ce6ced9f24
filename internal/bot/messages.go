package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teknestudio/propbot/internal/telegram"
)

const photoUnexpectedReply = "📷 Recebi a imagem, mas não estou esperando uma imagem no momento.\n" +
	"Por favor, diga ao agente que deseja adicionar uma imagem à proposta."

// handleText forwards a chat message to the agent. Without an open session
// the user gets pointed at /proposal instead.
func (b *Bot) handleText(ctx context.Context, msg *telegram.Message) {
	b.log.Info("text received", "user", msg.From.ID, "chars", len(msg.Text))
	b.runAgent(ctx, msg.Chat.ID, msg.From.ID, msg.Text, thinkingPlaceholder)
}

// handleAudio downloads a voice note or audio file, transcribes it with
// Whisper, shows the transcript and then hands the text to the agent.
func (b *Bot) handleAudio(ctx context.Context, msg *telegram.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	status, err := b.client.SendMessage(ctx, chatID, "🎧 Transcrevendo áudio...")
	if err != nil {
		b.log.Warn("send failed", "chat", chatID, "error", err)
		return
	}

	var fileID string
	var duration int
	switch {
	case msg.Voice != nil:
		fileID, duration = msg.Voice.FileID, msg.Voice.Duration
	case msg.Audio != nil:
		fileID, duration = msg.Audio.FileID, msg.Audio.Duration
	default:
		b.edit(ctx, chatID, status.MessageID, "❌ Nenhum áudio encontrado")
		return
	}
	b.log.Info("audio received", "user", userID, "duration_s", duration)

	started := time.Now()
	text, err := b.transcribeFile(ctx, fileID)
	if err != nil {
		b.log.Error("transcription failed", "user", userID, "error", err)
		b.edit(ctx, chatID, status.MessageID, "❌ Erro ao transcrever: "+err.Error())
		return
	}
	b.log.Info("transcription complete",
		"chars", len(text), "elapsed", time.Since(started).Round(time.Millisecond))
	b.edit(ctx, chatID, status.MessageID, "📝 Transcrição:\n"+text)

	b.runAgent(ctx, chatID, userID, text, thinkingPlaceholder)
}

// transcribeFile pulls the audio bytes from Telegram and runs Whisper.
func (b *Bot) transcribeFile(ctx context.Context, fileID string) (string, error) {
	if b.transcriber == nil {
		return "", errors.New("transcription is not configured (OPENAI_API_KEY is missing)")
	}
	file, err := b.client.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("resolve audio file: %w", err)
	}
	data, err := b.client.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	return b.transcriber.Transcribe(ctx, fileID+".ogg", bytes.NewReader(data))
}

// handlePhoto stores an incoming photo into the proposal directory the agent
// is waiting on. Photos outside an image request only get a hint; the bot
// never guesses where they belong.
func (b *Bot) handlePhoto(ctx context.Context, msg *telegram.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if _, ok := b.sessions.id(userID); !ok {
		b.send(ctx, chatID, sessionHintReply)
		return
	}
	pending, waiting := b.sessions.pending(userID)
	b.log.Info("photo received", "user", userID, "waiting_for_image", waiting)
	if !waiting {
		b.send(ctx, chatID, photoUnexpectedReply)
		return
	}

	photo, ok := telegram.LargestPhoto(msg.Photo)
	if !ok {
		return
	}
	status, err := b.client.SendMessage(ctx, chatID, "📥 Baixando imagem...")
	if err != nil {
		b.log.Warn("send failed", "chat", chatID, "error", err)
		return
	}
	if pending.ProposalDir == "" {
		b.edit(ctx, chatID, status.MessageID, "❌ Erro: diretório da proposta não encontrado.")
		return
	}

	data, err := b.downloadPhoto(ctx, photo.FileID)
	if err != nil {
		b.log.Error("photo download failed", "user", userID, "error", err)
		b.edit(ctx, chatID, status.MessageID, "❌ Erro ao processar imagem: "+err.Error())
		return
	}

	// The file lands next to the YAML, so the document references it by
	// bare name.
	name := fmt.Sprintf("imagem-usuario-%d.jpg", time.Now().Unix())
	rel, err := b.store.SaveAttachment(pending.ProposalDir, name, data)
	if err != nil {
		b.log.Error("photo save failed", "user", userID, "error", err)
		b.edit(ctx, chatID, status.MessageID, "❌ Erro ao processar imagem: "+err.Error())
		return
	}
	b.sessions.clearAwaiting(userID)
	b.log.Info("user image saved", "path", rel, "position", pending.Position)

	b.edit(ctx, chatID, status.MessageID, "✅ Imagem recebida e salva!\nAgora vou adicionar à proposta...")

	notice := fmt.Sprintf("Usuário enviou a imagem. Caminho: %s. Por favor, adicione a imagem à proposta na posição solicitada.", name)
	b.runAgent(ctx, chatID, userID, notice, thinkingPlaceholder)
}

func (b *Bot) downloadPhoto(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.client.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve photo file: %w", err)
	}
	return b.client.DownloadFile(ctx, file.FilePath)
}
