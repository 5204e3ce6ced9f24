package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teknestudio/propbot/internal/telegram"
)

// Braille spinner plus a rotating activity line: new frame every 300ms, new
// line every 3s.
var (
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	workingLines  = []string{
		"💭 Processando",
		"🤔 Analisando sua solicitação",
		"📝 Preparando resposta",
		"🧠 Pensando",
		"⚙️ Trabalhando nisso",
	}
)

const (
	spinnerInterval = 300 * time.Millisecond
	framesPerLine   = 10
)

// progress owns the placeholder message shown while a run is in flight. The
// animation stops on the first streamed status so the updates read in order;
// the placeholder itself is removed when the run ends.
type progress struct {
	client    *telegram.Client
	chatID    int64
	messageID int64
	log       *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// newProgress posts the placeholder and starts animating it. Returns nil when
// the placeholder cannot be sent; a nil progress is safe to halt and finish.
func (b *Bot) newProgress(ctx context.Context, chatID int64, text string) *progress {
	_ = b.client.SendChatAction(ctx, chatID, "typing")
	msg, err := b.client.SendMessage(ctx, chatID, text)
	if err != nil {
		b.log.Warn("could not send progress placeholder", "chat", chatID, "error", err)
		return nil
	}
	p := &progress{
		client:    b.client,
		chatID:    chatID,
		messageID: msg.MessageID,
		log:       b.log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.animate(ctx)
	return p
}

// animate rewrites the placeholder until halted. Edit failures are expected
// noise (flood control, unchanged text) and are ignored.
func (p *progress) animate(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		spinner := spinnerFrames[frame%len(spinnerFrames)]
		line := workingLines[(frame/framesPerLine)%len(workingLines)]
		_ = p.client.EditMessageText(ctx, p.chatID, p.messageID, spinner+" "+line+"...")
	}
}

// halt freezes the animation, leaving the placeholder as is.
func (p *progress) halt() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stop) })
}

// finish stops the animation and removes the placeholder from the chat.
func (p *progress) finish(ctx context.Context) {
	if p == nil {
		return
	}
	p.halt()
	<-p.done
	if err := p.client.DeleteMessage(ctx, p.chatID, p.messageID); err != nil {
		p.log.Debug("could not delete progress message", "chat", p.chatID, "error", err)
	}
}
