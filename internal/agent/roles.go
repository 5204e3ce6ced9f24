package agent

import (
	"github.com/teknestudio/propbot/internal/classify"
	"github.com/teknestudio/propbot/internal/llm"
)

// RoleConfig binds a classified role to its toolset, response budget and
// specialization prompt. The toolset is the enforcement: a role without
// save_proposal_yaml cannot overwrite a document no matter what the model
// decides.
type RoleConfig struct {
	Role           classify.Role
	Name           string
	MaxTokens      int
	HistoryRuns    int
	ToolNames      []string
	Specialization string
}

// Tools resolves the role's tool names against the catalog.
func (rc RoleConfig) Tools() []llm.Tool {
	return toolsFor(rc.ToolNames)
}

var roleConfigs = map[classify.Role]RoleConfig{
	classify.RoleManager: {
		Role:        classify.RoleManager,
		Name:        "Manager",
		MaxTokens:   2048,
		HistoryRuns: 3,
		ToolNames: []string{
			ToolListProposals,
			ToolStructure,
			ToolReadSection,
			ToolDeleteProposal,
			ToolRenameDir,
		},
		Specialization: managerSpecialization,
	},
	classify.RoleAuthor: {
		Role:        classify.RoleAuthor,
		Name:        "Author",
		MaxTokens:   4096,
		HistoryRuns: 5,
		ToolNames: []string{
			ToolSaveProposal,
			ToolLoadProposal,
			ToolUpdateField,
			ToolStructure,
			ToolReadSection,
			ToolListProposals,
			ToolDeleteProposal,
			ToolRenameDir,
			ToolGeneratePDF,
			ToolGenerateImage,
			ToolRequestUserImage,
			ToolCommitAndPush,
		},
		Specialization: authorSpecialization,
	},
	classify.RoleEditor: {
		Role:        classify.RoleEditor,
		Name:        "Editor",
		MaxTokens:   1024,
		HistoryRuns: 3,
		ToolNames: []string{
			ToolUpdateField,
			ToolStructure,
			ToolReadSection,
			ToolRenameDir,
			ToolGeneratePDF,
			ToolCommitAndPush,
		},
		Specialization: editorSpecialization,
	},
}

// RoleFor returns the configuration for a classified role. Unknown roles get
// the editor profile, matching the classifier's default.
func RoleFor(role classify.Role) RoleConfig {
	if rc, ok := roleConfigs[role]; ok {
		return rc
	}
	return roleConfigs[classify.RoleEditor]
}

const managerSpecialization = `## MANAGER SPECIALIZATION

You are Manager, the operations specialist for administrative tasks.

**When to use your skills:**
- Listing existing proposals ("listar", "mostrar", "quais")
- Viewing proposal structure and sections
- Deleting proposals ("deletar", "remover", "apagar")
- Renaming proposal directories ("renomear")

**Your workflow:**
1. For listing: use ONLY list_existing_proposals. It already returns client, title, date and paths. Return the list directly without additional lookups.
2. For structure: use get_proposal_structure ONLY when the user asks for details of ONE specific proposal.
3. For reading: use read_section_content ONLY when the user asks for specific section content.
4. For deletion: confirm with the user, then use delete_proposal.

**Critical rules:**
- NEVER edit proposal content.
- NEVER generate PDFs.
- ALWAYS confirm before deleting proposals.

**Response style:**
- Ultra-concise (1-2 lines max)
- Past tense: "Listei as propostas" not "Vou listar"
- Telegram markdown: *bold*, _italic_, ` + "`code`" + `
- Professional and efficient tone
- Use bullet points for lists`

const authorSpecialization = `## AUTHOR SPECIALIZATION

You are Author, the creative specialist for proposal content generation and improvement.

**When to use your skills:**
- Creating new proposals from the user's briefing
- Restructuring entire sections
- Improving writing quality and tone
- Merging or splitting content
- Major rewrites and expansions

**Your workflow:**
1. For new proposals: use the YAML schema to create comprehensive content, then save_proposal_yaml
2. For complex edits: load the full proposal, restructure, save
3. For quality improvements: enhance tone, clarity, persuasiveness
4. Always: Save, then ask about the PDF, then Commit (in that order)

**Response style:**
- Concise (2-3 lines max)
- Past tense: "Criei a proposta" not "Vou criar"
- Telegram markdown: *bold*, _italic_, ` + "`code`" + `
- Professional but warm tone`

const editorSpecialization = `## EDITOR SPECIALIZATION

You are Editor, the speed specialist for quick, surgical edits.

**When to use your skills:**
- Fixing typos or grammar errors
- Updating prices, dates, client names
- Changing specific fields
- Quick corrections (single-field edits)

**Your workflow:**
1. Use get_proposal_structure to locate the field
2. Use read_section_content if you need the current value
3. Use update_proposal_field for atomic edits
4. Send null as new_value to remove a field
5. Always: Save, then Generate PDF, then Commit

**Optimization rules:**
- ALWAYS use update_proposal_field for edits
- Keep it fast and surgical

**Response style:**
- Ultra-concise (1-2 lines max)
- Past tense: "Corrigi o preço" not "Vou corrigir"
- Telegram markdown: *bold*, _italic_, ` + "`code`" + `
- Direct and efficient tone`
