package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teknestudio/propbot/internal/agent"
	"github.com/teknestudio/propbot/internal/telegram"
)

func voiceMsg(userID int64, fileID string) *telegram.Message {
	m := textMsg(userID, "")
	m.Voice = &telegram.Voice{FileID: fileID, Duration: 4}
	return m
}

func photoMsg(userID int64, fileIDs ...string) *telegram.Message {
	m := textMsg(userID, "")
	for i, id := range fileIDs {
		m.Photo = append(m.Photo, telegram.PhotoSize{FileID: id, Width: 100 * (i + 1), Height: 100 * (i + 1)})
	}
	return m
}

func TestTextWithoutSessionGetsHint(t *testing.T) {
	e := newEnv(t)
	e.bot.handle(context.Background(), textMsg(7, "cria uma proposta"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != sessionHintReply {
		t.Fatalf("sends = %q", sends)
	}
	if len(e.agent.recorded()) != 0 {
		t.Errorf("agent ran without a session: %+v", e.agent.recorded())
	}
}

func TestTextRunsAgentAndRepliesInOrder(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(h agent.Hooks) (*agent.Reply, error) {
			h.Status("✏️ Atualizei o campo 'meta.title'!")
			return &agent.Reply{Text: "Título atualizado. Quer que eu gere o PDF agora?"}, nil
		},
	}

	e.bot.handle(context.Background(), textMsg(7, "mudar o título para Metaverso"))

	runs := e.agent.recorded()
	if len(runs) != 1 || runs[0].session != "user_7" || runs[0].message != "mudar o título para Metaverso" {
		t.Fatalf("runs = %+v", runs)
	}
	sends := e.api.sends()
	want := []string{
		thinkingPlaceholder,
		"✏️ Atualizei o campo 'meta.title'!",
		"Título atualizado. Quer que eu gere o PDF agora?",
	}
	if len(sends) != len(want) {
		t.Fatalf("sends = %q", sends)
	}
	for i := range want {
		if sends[i] != want[i] {
			t.Errorf("send %d = %q, want %q", i, sends[i], want[i])
		}
	}
	if e.api.deletions() != 1 {
		t.Errorf("placeholder deletions = %d, want 1", e.api.deletions())
	}
}

func TestTransientAgentFailureRetriesOnce(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(agent.Hooks) (*agent.Reply, error) { return nil, flakyErr{} },
		func(agent.Hooks) (*agent.Reply, error) { return &agent.Reply{Text: "agora foi"}, nil },
	}

	e.bot.handle(context.Background(), textMsg(7, "lista as propostas"))

	if got := len(e.agent.recorded()); got != 2 {
		t.Fatalf("agent runs = %d, want 2", got)
	}
	sends := e.api.sends()
	if len(sends) != 2 || sends[1] != "agora foi" {
		t.Errorf("sends = %q", sends)
	}
}

func TestPersistentTransientFailureTellsUser(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(agent.Hooks) (*agent.Reply, error) { return nil, flakyErr{} },
		func(agent.Hooks) (*agent.Reply, error) { return nil, flakyErr{} },
	}

	e.bot.handle(context.Background(), textMsg(7, "oi"))

	if got := len(e.agent.recorded()); got != 2 {
		t.Fatalf("agent runs = %d, want exactly 2 (one retry)", got)
	}
	sends := e.api.sends()
	if len(sends) != 2 || sends[1] != apiTroubleReply {
		t.Errorf("sends = %q", sends)
	}
}

func TestNonTransientFailureIsNotRetried(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(agent.Hooks) (*agent.Reply, error) { return nil, errors.New("campo inválido") },
	}

	e.bot.handle(context.Background(), textMsg(7, "oi"))

	if got := len(e.agent.recorded()); got != 1 {
		t.Fatalf("agent runs = %d, want 1", got)
	}
	sends := e.api.sends()
	if len(sends) != 2 || sends[1] != "❌ Erro: campo inválido" {
		t.Errorf("sends = %q", sends)
	}
}

func TestGeneratedPDFIsSentBeforeTheReply(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	pdfRel := "docs/2026-01-sesc-metaverso/proposta-sesc-metaverso.pdf"
	abs := filepath.Join(e.root, filepath.FromSlash(pdfRel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(h agent.Hooks) (*agent.Reply, error) {
			h.Status("🔨 Gerando o PDF da proposta...")
			return &agent.Reply{Text: "PDF pronto!", PDFPath: pdfRel}, nil
		},
	}

	e.bot.handle(context.Background(), textMsg(7, "gera o pdf"))

	e.api.mu.Lock()
	docs := append([]sentDoc(nil), e.api.docs...)
	e.api.mu.Unlock()
	if len(docs) != 1 {
		t.Fatalf("documents sent = %d", len(docs))
	}
	if docs[0].filename != "proposta-sesc-metaverso.pdf" {
		t.Errorf("filename = %q", docs[0].filename)
	}
	if docs[0].caption != "📄 proposta-sesc-metaverso.pdf" {
		t.Errorf("caption = %q", docs[0].caption)
	}
	if string(docs[0].data) != "%PDF-1.4 fake" {
		t.Errorf("document bytes = %q", docs[0].data)
	}

	events := e.api.eventLog()
	docAt, replyAt := -1, -1
	for i, ev := range events {
		switch ev {
		case "doc:proposta-sesc-metaverso.pdf":
			docAt = i
		case "send:PDF pronto!":
			replyAt = i
		}
	}
	if docAt == -1 || replyAt == -1 || docAt > replyAt {
		t.Errorf("event order = %q", events)
	}
}

func TestMissingPDFIsLoggedNotSent(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(agent.Hooks) (*agent.Reply, error) {
			return &agent.Reply{Text: "feito", PDFPath: "docs/sumiu/proposta.pdf"}, nil
		},
	}

	e.bot.handle(context.Background(), textMsg(7, "gera o pdf"))

	e.api.mu.Lock()
	docCount := len(e.api.docs)
	e.api.mu.Unlock()
	if docCount != 0 {
		t.Errorf("documents sent = %d, want 0", docCount)
	}
	sends := e.api.sends()
	if len(sends) != 2 || sends[1] != "feito" {
		t.Errorf("sends = %q", sends)
	}
}

func TestLongReplyIsSplitWithContinuations(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	long := strings.Repeat("Proposta aprovada pelo cliente. ", 200) // ~6400 runes
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(agent.Hooks) (*agent.Reply, error) { return &agent.Reply{Text: long}, nil },
	}

	e.bot.handle(context.Background(), textMsg(7, "resume tudo"))

	sends := e.api.sends()
	if len(sends) != 3 { // placeholder + two chunks
		t.Fatalf("sends = %d messages", len(sends))
	}
	if len([]rune(sends[1])) > telegram.MaxMessageLength {
		t.Errorf("chunk 1 too long: %d runes", len([]rune(sends[1])))
	}
	if !strings.HasPrefix(sends[2], "(continuação 2):\n\n") {
		t.Errorf("chunk 2 lacks continuation header: %q", sends[2][:40])
	}
}

func TestVoiceIsTranscribedShownAndForwarded(t *testing.T) {
	tr := &fakeTranscriber{text: "mudar a data para 2026-01-08"}
	e := newEnv(t, func(o *Options) { o.Transcriber = tr })
	e.bot.sessions.start(7)
	e.api.addFile("voz1", []byte("OGGDATA"))

	e.bot.handle(context.Background(), voiceMsg(7, "voz1"))

	if tr.filename != "voz1.ogg" || string(tr.audio) != "OGGDATA" {
		t.Errorf("transcriber got %q/%q", tr.filename, tr.audio)
	}
	edits := e.api.edits()
	if len(edits) != 1 || edits[0] != "📝 Transcrição:\nmudar a data para 2026-01-08" {
		t.Errorf("edits = %q", edits)
	}
	runs := e.agent.recorded()
	if len(runs) != 1 || runs[0].message != "mudar a data para 2026-01-08" {
		t.Errorf("runs = %+v", runs)
	}
	sends := e.api.sends()
	if len(sends) == 0 || sends[0] != "🎧 Transcrevendo áudio..." {
		t.Errorf("sends = %q", sends)
	}
}

func TestVoiceTranscriptionFailureIsReported(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("whisper indisponível")}
	e := newEnv(t, func(o *Options) { o.Transcriber = tr })
	e.bot.sessions.start(7)
	e.api.addFile("voz1", []byte("OGGDATA"))

	e.bot.handle(context.Background(), voiceMsg(7, "voz1"))

	edits := e.api.edits()
	if len(edits) != 1 || !strings.HasPrefix(edits[0], "❌ Erro ao transcrever: ") {
		t.Errorf("edits = %q", edits)
	}
	if len(e.agent.recorded()) != 0 {
		t.Errorf("agent ran after failed transcription")
	}
}

func TestVoiceWithoutTranscriberExplainsWhy(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)

	e.bot.handle(context.Background(), voiceMsg(7, "voz1"))

	edits := e.api.edits()
	if len(edits) != 1 || !strings.Contains(edits[0], "OPENAI_API_KEY") {
		t.Errorf("edits = %q", edits)
	}
}

func TestVoiceWithoutSessionStillShowsTranscript(t *testing.T) {
	tr := &fakeTranscriber{text: "oi, tudo bem?"}
	e := newEnv(t, func(o *Options) { o.Transcriber = tr })
	e.api.addFile("voz1", []byte("OGGDATA"))

	e.bot.handle(context.Background(), voiceMsg(7, "voz1"))

	edits := e.api.edits()
	if len(edits) != 1 || edits[0] != "📝 Transcrição:\noi, tudo bem?" {
		t.Errorf("edits = %q", edits)
	}
	sends := e.api.sends()
	if len(sends) != 2 || sends[1] != sessionHintReply {
		t.Errorf("sends = %q", sends)
	}
	if len(e.agent.recorded()) != 0 {
		t.Errorf("agent ran without a session")
	}
}

func TestPhotoBeforeProposalGetsHint(t *testing.T) {
	e := newEnv(t)
	e.bot.handle(context.Background(), photoMsg(7, "foto1"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != sessionHintReply {
		t.Fatalf("sends = %q", sends)
	}
}

func TestPhotoWhenNotWaitingGetsExplanation(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)

	e.bot.handle(context.Background(), photoMsg(7, "foto1"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != photoUnexpectedReply {
		t.Fatalf("sends = %q", sends)
	}
	if len(e.agent.recorded()) != 0 {
		t.Errorf("agent ran for an unexpected photo")
	}
}

func TestPhotoWhileWaitingIsSavedAndAgentNotified(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.bot.sessions.markAwaiting(7, "docs/2026-01-sesc-metaverso", "section_1_before")
	e.api.addFile("grande", []byte("JPEGDATA"))

	e.bot.handle(context.Background(), photoMsg(7, "pequena", "grande"))

	e.api.mu.Lock()
	gets := append([]string(nil), e.api.fileGets...)
	e.api.mu.Unlock()
	if len(gets) != 1 || gets[0] != "grande" {
		t.Errorf("downloaded file ids = %q, want the largest size", gets)
	}

	dir := filepath.Join(e.root, "docs", "2026-01-sesc-metaverso")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read proposal dir: %v", err)
	}
	var saved string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "imagem-usuario-") && strings.HasSuffix(entry.Name(), ".jpg") {
			saved = entry.Name()
		}
	}
	if saved == "" {
		t.Fatalf("no imagem-usuario-*.jpg in %q", dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, saved))
	if err != nil || string(data) != "JPEGDATA" {
		t.Errorf("saved bytes = %q, err = %v", data, err)
	}

	if _, waiting := e.bot.sessions.pending(7); waiting {
		t.Error("session still awaiting an image after the photo arrived")
	}

	edits := e.api.edits()
	if len(edits) != 1 || edits[0] != "✅ Imagem recebida e salva!\nAgora vou adicionar à proposta..." {
		t.Errorf("edits = %q", edits)
	}

	runs := e.agent.recorded()
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
	wantNotice := "Usuário enviou a imagem. Caminho: " + saved + ". Por favor, adicione a imagem à proposta na posição solicitada."
	if runs[0].message != wantNotice {
		t.Errorf("notice = %q\nwant  = %q", runs[0].message, wantNotice)
	}
}

func TestAwaitImageHookArmsTheSession(t *testing.T) {
	e := newEnv(t)
	e.bot.sessions.start(7)
	e.agent.script = []func(agent.Hooks) (*agent.Reply, error){
		func(h agent.Hooks) (*agent.Reply, error) {
			h.AwaitImage("docs/2026-02-sesc-kids", "before_first_section")
			return &agent.Reply{Text: "Pode enviar a imagem!"}, nil
		},
	}

	e.bot.handle(context.Background(), textMsg(7, "quero uma foto minha na capa"))

	pending, waiting := e.bot.sessions.pending(7)
	if !waiting {
		t.Fatal("session is not awaiting an image")
	}
	if pending.ProposalDir != "docs/2026-02-sesc-kids" || pending.Position != "before_first_section" {
		t.Errorf("pending = %+v", pending)
	}
}
