package agent

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// instructionsCut marks where CLAUDE.md's verbose example sections begin.
// Everything after it is dropped to keep the cached prompt small.
const instructionsCut = "## EXAMPLE PROMPT → YAML"

const fallbackInstructions = "Generate proposals in YAML format for Tekne Studio."

const workflowRules = `

---

## BOT WORKFLOW RULES

**After ANY proposal edit/creation:**
1. Save YAML, then ask the user if they want the PDF, then generate_pdf (only if the user confirms), then Commit (in that order)
2. Commit message should describe the change clearly
3. **CRITICAL:** Always ask "Quer que eu gere o PDF agora?" after YAML edits. NEVER auto-generate the PDF.

**Token optimization (critical):**
- Start with get_proposal_structure to navigate
- Use read_section_content for single section context
- Only use load_proposal_yaml when you need to see or restructure the entire proposal
- Always edit with update_proposal_field (never rewrite the full YAML); send null as new_value to remove a field

**PDF regeneration without edits:**
- If the user just wants the PDF regenerated, call generate_pdf directly
- Do NOT load or update the YAML unnecessarily
- Do NOT commit (git may not be available in production)

**Response style:**
- Concise (2-3 lines max)
- Past tense: "Editei a proposta" not "Vou editar"
- Telegram markdown: *bold*, _italic_, ` + "`code`" + `
- The bot sends the PDF automatically, don't include the path in the response`

// LoadInstructions builds the base system prompt from the proposals
// repository's authoring guide (CLAUDE.md) plus the bot workflow rules. A
// missing guide degrades to a minimal fallback so the bot still answers.
func LoadInstructions(repoRoot string, log *slog.Logger) string {
	base := fallbackInstructions
	b, err := os.ReadFile(filepath.Join(repoRoot, "CLAUDE.md"))
	if err != nil {
		log.Warn("authoring guide not found, using fallback instructions", "root", repoRoot, "error", err)
	} else {
		full := string(b)
		if i := strings.Index(full, instructionsCut); i >= 0 {
			base = full[:i]
			log.Info("authoring guide loaded, examples trimmed", "chars", len(base))
		} else {
			base = full
			log.Info("authoring guide loaded in full", "chars", len(base))
		}
	}
	return base + workflowRules
}

// systemPrompt appends a role's specialization to the shared base prompt.
func systemPrompt(base string, rc RoleConfig) string {
	return base + "\n\n---\n\n" + rc.Specialization
}
