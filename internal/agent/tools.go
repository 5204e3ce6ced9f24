// Package agent drives the proposal agent: it classifies each request,
// assembles the system prompt and conversation window, runs the Anthropic
// tool-use loop and executes the tools against the proposal repository.
package agent

import (
	"encoding/json"

	"github.com/teknestudio/propbot/internal/llm"
)

// Tool names as exposed to the model. Role configs reference these.
const (
	ToolSaveProposal     = "save_proposal_yaml"
	ToolLoadProposal     = "load_proposal_yaml"
	ToolUpdateField      = "update_proposal_field"
	ToolStructure        = "get_proposal_structure"
	ToolReadSection      = "read_section_content"
	ToolListProposals    = "list_existing_proposals"
	ToolDeleteProposal   = "delete_proposal"
	ToolRenameDir        = "rename_proposal_directory"
	ToolGeneratePDF      = "generate_pdf"
	ToolGenerateImage    = "generate_image"
	ToolRequestUserImage = "request_user_image"
	ToolCommitAndPush    = "commit_and_push"
)

// catalog declares every tool the agent can expose, in the order they are
// sent to the API. Descriptions carry the usage rules the model needs; the
// schemas stay permissive and validation happens in the executor.
var catalog = []llm.Tool{
	{
		Name: ToolSaveProposal,
		Description: "Save proposal YAML under docs/. To EDIT an existing proposal, pass existing_file_path. " +
			"To CREATE a new proposal, pass client_name and project_slug; the directory and file names are derived from them. " +
			"Returns the saved file's path.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_content": {"type": "string", "description": "The complete YAML content"},
				"client_name": {"type": "string", "description": "Client name for the directory slug (required for new proposals)"},
				"project_slug": {"type": "string", "description": "Project name for the file slug (required for new proposals)"},
				"date": {"type": "string", "description": "Date in YYYY-MM-DD format (defaults to today)"},
				"existing_file_path": {"type": "string", "description": "Path of the existing file to update, e.g. docs/2026-01-sesc-metaverso/proposta-sesc-metaverso.yml"}
			},
			"required": ["yaml_content"]
		}`),
	},
	{
		Name: ToolLoadProposal,
		Description: "Load an existing proposal's raw YAML for restructuring. Expensive in tokens: " +
			"prefer get_proposal_structure and read_section_content unless the whole document is needed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string", "description": "Relative path from the repository root"}
			},
			"required": ["yaml_file_path"]
		}`),
	},
	{
		Name: ToolUpdateField,
		Description: "Update a single field in a proposal YAML without rewriting the file. " +
			"Ideal for typos, titles, prices, dates and single bullets. " +
			"Field path examples: meta.title, meta.client, sections[0].title, sections[1].content, sections[0].bullets[2], sections[0].image. " +
			"Pass null (or omit new_value) to REMOVE the field entirely.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string", "description": "Relative path, e.g. docs/2026-01-client-project/proposta-client-project.yml"},
				"field_path": {"type": "string", "description": "Dot path with optional [n] indices, e.g. sections[0].bullets[2]"},
				"new_value": {"description": "New value (string, number, boolean, list or object). null or omitted removes the field."}
			},
			"required": ["yaml_file_path", "field_path"]
		}`),
	},
	{
		Name: ToolStructure,
		Description: "Get a proposal's outline: metadata plus per-section title, size and image flags. " +
			"Cheap. Always start here when navigating an existing proposal.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string"}
			},
			"required": ["yaml_file_path"]
		}`),
	},
	{
		Name:        ToolReadSection,
		Description: "Read the full content of one section (by zero-based index) of a proposal.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string"},
				"section_index": {"type": "integer", "description": "Zero-based section index from get_proposal_structure"}
			},
			"required": ["yaml_file_path", "section_index"]
		}`),
	},
	{
		Name:        ToolListProposals,
		Description: "List existing proposals under docs/, most recent first, with client, title and date.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Maximum number of proposals to return (default 10)"}
			}
		}`),
	},
	{
		Name: ToolDeleteProposal,
		Description: "Delete a proposal. Removes the whole proposal directory (images and PDFs included) " +
			"when the file sits in its own directory under docs/. Ask the user for confirmation first.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string"}
			},
			"required": ["yaml_file_path"]
		}`),
	},
	{
		Name: ToolRenameDir,
		Description: "Rename a proposal directory under docs/, e.g. to fix its month or client slug. " +
			"Both arguments are bare directory names like 2026-01-sesc-metaverso.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"old_name": {"type": "string", "description": "Current directory name"},
				"new_name": {"type": "string", "description": "New directory name"}
			},
			"required": ["old_name", "new_name"]
		}`),
	},
	{
		Name: ToolGeneratePDF,
		Description: "Generate the PDF of a proposal with the typesetting script. " +
			"Only call after the user confirms they want the PDF. The bot sends the PDF to the user automatically.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"yaml_file_path": {"type": "string"},
				"template": {"type": "string", "description": "Optional template identifier for the typesetter"}
			},
			"required": ["yaml_file_path"]
		}`),
	},
	{
		Name: ToolGenerateImage,
		Description: "Generate an illustration with DALL-E 3 (1792x1024) and save it next to the proposal's YAML. " +
			"Returns the image's path for use in sections[n].image or sections[n].image_before.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string", "description": "Image description for the generator"},
				"filename": {"type": "string", "description": "File name without extension, e.g. banner-capa"},
				"yaml_file_path": {"type": "string", "description": "Proposal the image belongs to; the file is saved in its directory"}
			},
			"required": ["prompt", "filename", "yaml_file_path"]
		}`),
	},
	{
		Name: ToolRequestUserImage,
		Description: "Mark the session as waiting for the user to send an image via Telegram. " +
			"When it arrives the bot saves it into the proposal directory and tells you its path. " +
			"Positions: before_first_section (default), section_N (image in section N) or section_N_before (image_before in section N).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"proposal_dir": {"type": "string", "description": "Proposal directory, e.g. docs/2026-01-sesc-metaverso"},
				"position": {"type": "string", "description": "Where the image goes (default before_first_section)"}
			},
			"required": ["proposal_dir"]
		}`),
	},
	{
		Name: ToolCommitAndPush,
		Description: "Commit and push ALL changes in the proposals repository (YAMLs, images and PDFs). " +
			"The commit message should describe the change clearly.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string", "description": "Commit message, e.g. Update SESC proposal"}
			},
			"required": ["message"]
		}`),
	},
}

// toolsFor resolves tool names to catalog entries, keeping catalog order so
// every role presents its tools consistently.
func toolsFor(names []string) []llm.Tool {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var out []llm.Tool
	for _, t := range catalog {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
