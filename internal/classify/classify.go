// Package classify routes a user message to a model tier and an agent role
// before any API call happens. The policy is a fixed, ordered list of keyword
// rules with a documented default, so routing stays deterministic and new
// keywords are a data change.
package classify

import "strings"

// Tier picks how much model capability a request gets.
type Tier string

const (
	TierFastCheap        Tier = "fast_cheap"
	TierCapableExpensive Tier = "capable_expensive"
)

// Role picks which toolset and responsibility profile handles the request.
type Role string

const (
	// RoleManager handles administrative work: listing, deletion, renaming.
	// It never edits proposal content.
	RoleManager Role = "manager"
	// RoleAuthor handles creation and restructuring with the full toolset,
	// including whole-document saves.
	RoleAuthor Role = "author"
	// RoleEditor handles surgical single-field edits and review passes. It
	// has no whole-document load or save, so it cannot silently discard
	// unrelated content.
	RoleEditor Role = "editor"
)

// Decision is the outcome of classifying one message. The rule and keyword
// fields exist for logging; empty keyword means the default rule applied.
type Decision struct {
	Tier        Tier
	Role        Role
	TierRule    string
	TierKeyword string
	RoleRule    string
	RoleKeyword string
}

// Keywords are matched as substrings of the lowercased message, mixing
// Portuguese and English the way users actually type.
var (
	polishKeywords = []string{
		"revisar", "revise", "revisada", "revisão", "review",
		"polir", "polish", "polida", "bem pensada",
		"finalizar", "finalize", "finalizada", "versão final",
		"aprimorar", "melhorar", "melhore",
	}
	creationKeywords = []string{
		"criar proposta", "nova proposta", "create proposal", "new proposal",
		"fazer proposta", "fazer uma proposta", "montar proposta",
		"gerar proposta",
	}
	structuralKeywords = []string{
		"adicionar seção", "add section", "nova seção",
		"reorganizar", "reorganize", "reestruturar",
		"mover", "move", "duplicar", "duplicate",
	}
	adminKeywords = []string{
		"listar", "liste", "mostrar", "mostre", "quais", "quantas",
		"deletar", "delete", "apagar", "apague", "excluir", "exclua",
		"renomear", "renomeie", "limpar", "cleanup", "órfão",
		"validar", "valide", "verificar", "verifique", "status",
	}
	authoringKeywords = concat(creationKeywords, structuralKeywords)
)

type tierRule struct {
	name     string
	tier     Tier
	keywords []string
}

type roleRule struct {
	name     string
	role     Role
	keywords []string
}

// Rule order is the policy. Quality-critical work (polish, creation,
// structure) claims the capable tier; everything else runs cheap.
var tierRules = []tierRule{
	{name: "polish", tier: TierCapableExpensive, keywords: polishKeywords},
	{name: "creation", tier: TierCapableExpensive, keywords: creationKeywords},
	{name: "structural", tier: TierCapableExpensive, keywords: structuralKeywords},
}

// Authoring wins over review and admin: an author can also delete and edit,
// while the narrower roles cannot write whole documents.
var roleRules = []roleRule{
	{name: "authoring", role: RoleAuthor, keywords: authoringKeywords},
	{name: "review", role: RoleEditor, keywords: polishKeywords},
	{name: "admin", role: RoleManager, keywords: adminKeywords},
}

// Classify maps a message to a tier and role. It never fails: unmatched
// messages get the cheap tier and the atomic-edit role.
func Classify(message string) Decision {
	m := strings.ToLower(message)
	d := Decision{
		Tier:     TierFastCheap,
		Role:     RoleEditor,
		TierRule: "default",
		RoleRule: "default",
	}
	for _, r := range tierRules {
		if kw := firstMatch(m, r.keywords); kw != "" {
			d.Tier = r.tier
			d.TierRule = r.name
			d.TierKeyword = kw
			break
		}
	}
	for _, r := range roleRules {
		if kw := firstMatch(m, r.keywords); kw != "" {
			d.Role = r.role
			d.RoleRule = r.name
			d.RoleKeyword = kw
			break
		}
	}
	return d
}

func firstMatch(message string, keywords []string) string {
	for _, k := range keywords {
		if strings.Contains(message, k) {
			return k
		}
	}
	return ""
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
