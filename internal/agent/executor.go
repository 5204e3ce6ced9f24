package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/teknestudio/propbot/internal/fieldpath"
	"github.com/teknestudio/propbot/internal/gitrepo"
	"github.com/teknestudio/propbot/internal/llm"
	"github.com/teknestudio/propbot/internal/proposal"
	"github.com/teknestudio/propbot/internal/render"
)

// ImageGenerator is the slice of the OpenAI client the image tool needs.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Hooks carries per-run callbacks from the chat layer into the run. Any
// field may be nil.
type Hooks struct {
	// Status streams progress lines ("🔨 Gerando o PDF...") to the user
	// while the run is still going.
	Status func(text string)
	// AwaitImage flips the session into the awaiting-attachment state so
	// the next photo lands in the given proposal directory.
	AwaitImage func(proposalDir, position string)
}

func (h Hooks) status(text string) {
	if h.Status != nil {
		h.Status(text)
	}
}

func (h Hooks) awaitImage(dir, position string) {
	if h.AwaitImage != nil {
		h.AwaitImage(dir, position)
	}
}

// Executor runs tool calls for one agent run. It remembers the last
// generated PDF so the chat layer can send the file without parsing status
// text.
type Executor struct {
	store     *proposal.Store
	renderer  *render.Renderer
	publisher *gitrepo.Publisher
	images    ImageGenerator
	hooks     Hooks
	log       *slog.Logger

	pdfPath string
}

func NewExecutor(store *proposal.Store, renderer *render.Renderer, publisher *gitrepo.Publisher, images ImageGenerator, hooks Hooks, log *slog.Logger) *Executor {
	return &Executor{
		store:     store,
		renderer:  renderer,
		publisher: publisher,
		images:    images,
		hooks:     hooks,
		log:       log,
	}
}

// PDFPath returns the repository-relative path of the PDF generated during
// this run, or "" when none was.
func (e *Executor) PDFPath() string { return e.pdfPath }

// Execute runs one tool call. Failures never propagate as Go errors: they
// become error tool results so the model can react (retry, explain, ask).
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	out, err := e.dispatch(ctx, call)
	if err != nil {
		e.log.Warn("tool failed", "tool", call.Name, "error", err)
		return llm.ToolResult{ToolCallID: call.ID, Content: toolErrorMessage(err), IsError: true}
	}
	return llm.ToolResult{ToolCallID: call.ID, Content: out}
}

func (e *Executor) dispatch(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case ToolSaveProposal:
		return e.saveProposal(call.Input)
	case ToolLoadProposal:
		return e.loadProposal(call.Input)
	case ToolUpdateField:
		return e.updateField(call.Input)
	case ToolStructure:
		return e.structure(call.Input)
	case ToolReadSection:
		return e.readSection(call.Input)
	case ToolListProposals:
		return e.listProposals(call.Input)
	case ToolDeleteProposal:
		return e.deleteProposal(call.Input)
	case ToolRenameDir:
		return e.renameDir(call.Input)
	case ToolGeneratePDF:
		return e.generatePDF(ctx, call.Input)
	case ToolGenerateImage:
		return e.generateImage(ctx, call.Input)
	case ToolRequestUserImage:
		return e.requestUserImage(call.Input)
	case ToolCommitAndPush:
		return e.commitAndPush(ctx, call.Input)
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func decodeArgs(input json.RawMessage, into any) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, into); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func (e *Executor) saveProposal(input json.RawMessage) (string, error) {
	var a struct {
		YAMLContent      string `json:"yaml_content"`
		ClientName       string `json:"client_name"`
		ProjectSlug      string `json:"project_slug"`
		Date             string `json:"date"`
		ExistingFilePath string `json:"existing_file_path"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	if a.YAMLContent == "" {
		return "", errors.New("yaml_content cannot be empty")
	}
	if a.ExistingFilePath != "" {
		sum, err := e.store.SaveExisting(a.ExistingFilePath, a.YAMLContent)
		if err != nil {
			return "", err
		}
		e.log.Info("document rewritten", "path", a.ExistingFilePath, "added", sum.Added, "removed", sum.Removed)
		e.hooks.status("📝 Atualizei o arquivo da proposta!")
		return a.ExistingFilePath, nil
	}
	rel, err := e.store.Save(a.YAMLContent, a.ClientName, a.ProjectSlug, a.Date)
	if err != nil {
		return "", err
	}
	e.hooks.status("📝 Criei o arquivo da proposta!")
	return rel, nil
}

func (e *Executor) loadProposal(input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string `json:"yaml_file_path"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	// Raw YAML, no framing: every extra byte here is billed on the next turn.
	return e.store.Load(a.YAMLFilePath)
}

func (e *Executor) updateField(input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string          `json:"yaml_file_path"`
		FieldPath    string          `json:"field_path"`
		NewValue     json.RawMessage `json:"new_value"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	value := fieldpath.Remove()
	if raw := bytes.TrimSpace(a.NewValue); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("invalid new_value: %w", err)
		}
		value = fieldpath.NewValue(v)
	}
	change, err := e.store.UpdateField(a.YAMLFilePath, a.FieldPath, value)
	if err != nil {
		return "", err
	}
	e.hooks.status(change.Confirmation())
	if change.Removed {
		return fmt.Sprintf("✅ Campo '%s' removido de %s", a.FieldPath, a.YAMLFilePath), nil
	}
	return fmt.Sprintf("✅ Campo '%s' atualizado em %s", a.FieldPath, a.YAMLFilePath), nil
}

func (e *Executor) structure(input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string `json:"yaml_file_path"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	out, err := e.store.Structure(a.YAMLFilePath)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s\n", out.Path)
	fmt.Fprintf(&b, "Título: %s\n", out.Title)
	fmt.Fprintf(&b, "Cliente: %s\n", out.Client)
	fmt.Fprintf(&b, "Data: %s\n", out.Date)
	fmt.Fprintf(&b, "Seções (%d):\n", len(out.Sections))
	for _, sec := range out.Sections {
		fmt.Fprintf(&b, "[%d] %s (%d caracteres", sec.Index, sec.Title, sec.ContentChars)
		if sec.Bullets > 0 {
			fmt.Fprintf(&b, ", %d bullets", sec.Bullets)
		}
		if sec.HasImageBefore {
			b.WriteString(", imagem antes")
		}
		if sec.HasImage {
			b.WriteString(", imagem")
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Executor) readSection(input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string `json:"yaml_file_path"`
		SectionIndex int    `json:"section_index"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	sec, err := e.store.ReadSection(a.YAMLFilePath, a.SectionIndex)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Seção [%d]: %s\n", sec.Index, sec.Title)
	if sec.Content != "" {
		b.WriteString("\n" + sec.Content + "\n")
	}
	if len(sec.Bullets) > 0 {
		b.WriteString("\nBullets:\n")
		for _, bl := range sec.Bullets {
			b.WriteString("- " + bl + "\n")
		}
	}
	if sec.ImageBefore != "" {
		fmt.Fprintf(&b, "\nImagem antes: %s\n", sec.ImageBefore)
	}
	if sec.Image != "" {
		fmt.Fprintf(&b, "\nImagem: %s\n", sec.Image)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Executor) listProposals(input json.RawMessage) (string, error) {
	var a struct {
		Limit int `json:"limit"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	entries, err := e.store.List(a.Limit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Nenhuma proposta encontrada em docs/", nil
	}
	items := make([]string, len(entries))
	for i, p := range entries {
		items[i] = fmt.Sprintf("%d. 📄 %s\n   Cliente: %s\n   Título: %s\n   Data: %s",
			i+1, p.Path, p.Client, p.Title, p.Date)
	}
	return fmt.Sprintf("Propostas mais recentes (%d):\n\n%s", len(entries), strings.Join(items, "\n\n")), nil
}

func (e *Executor) deleteProposal(input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string `json:"yaml_file_path"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	if err := e.store.Delete(a.YAMLFilePath); err != nil {
		return "", err
	}
	e.hooks.status("🗑️ Proposta removida!")
	return fmt.Sprintf("✅ Proposta removida: %s", a.YAMLFilePath), nil
}

func (e *Executor) renameDir(input json.RawMessage) (string, error) {
	var a struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	yamlRel, err := e.store.RenameDir(a.OldName, a.NewName)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("✅ Diretório renomeado: `%s` → `%s`", a.OldName, a.NewName)
	if yamlRel != "" {
		msg += fmt.Sprintf("\n📄 Arquivo YAML: `%s`", yamlRel)
	}
	return msg, nil
}

func (e *Executor) generatePDF(ctx context.Context, input json.RawMessage) (string, error) {
	var a struct {
		YAMLFilePath string `json:"yaml_file_path"`
		Template     string `json:"template"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	e.hooks.status("🔨 Gerando o PDF da proposta...")
	res, err := e.renderer.Render(ctx, a.YAMLFilePath, a.Template)
	if err != nil {
		return "", err
	}
	e.pdfPath = res.PDFPath
	e.hooks.status(fmt.Sprintf("✅ PDF gerado em %.1fs! Caminho: %s", res.Elapsed.Seconds(), res.PDFPath))
	return fmt.Sprintf("PDF gerado com sucesso: %s", res.PDFPath), nil
}

func (e *Executor) generateImage(ctx context.Context, input json.RawMessage) (string, error) {
	var a struct {
		Prompt       string `json:"prompt"`
		Filename     string `json:"filename"`
		YAMLFilePath string `json:"yaml_file_path"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	if e.images == nil {
		return "", errors.New("image generation is not configured (OPENAI_API_KEY is missing)")
	}
	if a.Filename == "" {
		return "", errors.New("filename cannot be empty")
	}
	data, err := e.images.GenerateImage(ctx, a.Prompt)
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(a.Filename, ".png") + ".png"
	rel, err := e.store.SaveAttachment(path.Dir(a.YAMLFilePath), name, data)
	if err != nil {
		return "", err
	}
	e.hooks.status("✅ Imagem gerada! Caminho: " + rel)
	return rel, nil
}

func (e *Executor) requestUserImage(input json.RawMessage) (string, error) {
	var a struct {
		ProposalDir string `json:"proposal_dir"`
		Position    string `json:"position"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	if a.ProposalDir == "" {
		return "", errors.New("proposal_dir cannot be empty")
	}
	if a.Position == "" {
		a.Position = "before_first_section"
	}
	e.hooks.awaitImage(a.ProposalDir, a.Position)
	e.log.Info("awaiting user image", "dir", a.ProposalDir, "position", a.Position)
	return fmt.Sprintf("Marked as waiting for user image. Position: %s. "+
		"User will send image via Telegram. Tell user you're waiting for the image.", a.Position), nil
}

func (e *Executor) commitAndPush(ctx context.Context, input json.RawMessage) (string, error) {
	var a struct {
		Message string `json:"message"`
	}
	if err := decodeArgs(input, &a); err != nil {
		return "", err
	}
	e.hooks.status("📤 Enviando para o repositório...")
	res, err := e.publisher.CommitAndPush(ctx, a.Message)
	if err != nil {
		e.hooks.status("❌ Erro ao enviar: " + gitDiagnostic(err))
		return "", err
	}
	if res.Skipped {
		return "⚠️ Git não configurado neste ambiente. O PDF foi gerado com sucesso, mas não foi enviado ao repositório.", nil
	}
	if res.Forced {
		e.hooks.status("✅ Proposta enviada para o repositório! (force push)")
		return fmt.Sprintf("✅ Committed and pushed (force): %s", a.Message), nil
	}
	e.hooks.status("✅ Proposta enviada para o repositório!")
	return fmt.Sprintf("✅ Committed and pushed: %s", a.Message), nil
}

// toolErrorMessage renders a tool failure for the model. Typed errors keep
// their kind in the text so the model can tell a missing document from a
// renderer crash.
func toolErrorMessage(err error) string {
	var notFound *proposal.DocumentNotFoundError
	var renderErr *render.RenderError
	var gitErr *gitrepo.GitError
	switch {
	case errors.As(err, &notFound):
		return "Error: File not found: " + notFound.Path
	case errors.As(err, &renderErr):
		if renderErr.TimedOut {
			return "Error: PDF generation timed out"
		}
		if renderErr.Stderr != "" {
			return "Error generating PDF: " + renderErr.Stderr
		}
		return "Error generating PDF: " + renderErr.Err.Error()
	case errors.As(err, &gitErr):
		return "Git error: " + gitDiagnostic(err)
	default:
		return "Error: " + err.Error()
	}
}

func gitDiagnostic(err error) string {
	var gitErr *gitrepo.GitError
	if errors.As(err, &gitErr) && gitErr.Stderr != "" {
		return gitErr.Stderr
	}
	return err.Error()
}
