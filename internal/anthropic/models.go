package anthropic

import (
	"github.com/teknestudio/propbot/internal/classify"
	"github.com/teknestudio/propbot/internal/llm"
)

// ModelInfo carries identity and pricing for one Claude model. Cache writes
// bill at a multiple of the input rate (extended 1-hour TTL), cache reads at
// a tenth of it.
type ModelInfo struct {
	ID             string
	Name           string
	InputPer1M     float64
	OutputPer1M    float64
	CacheWriteMult float64
	CacheReadMult  float64
}

const (
	ModelSonnet = "claude-sonnet-4-5"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

var models = map[string]ModelInfo{
	ModelSonnet: {
		ID:             ModelSonnet,
		Name:           "Sonnet 4.5",
		InputPer1M:     3.00,
		OutputPer1M:    15.00,
		CacheWriteMult: 2.0,
		CacheReadMult:  0.1,
	},
	ModelHaiku: {
		ID:             ModelHaiku,
		Name:           "Haiku 3.5",
		InputPer1M:     0.80,
		OutputPer1M:    4.00,
		CacheWriteMult: 2.0,
		CacheReadMult:  0.1,
	},
}

// ModelFor resolves a classification tier to a concrete model.
func ModelFor(tier classify.Tier) ModelInfo {
	if tier == classify.TierCapableExpensive {
		return models[ModelSonnet]
	}
	return models[ModelHaiku]
}

// ModelByID looks a model up by its API identifier.
func ModelByID(id string) (ModelInfo, bool) {
	m, ok := models[id]
	return m, ok
}

// Cost prices one usage record under this model's rates.
func (m ModelInfo) Cost(u llm.Usage) float64 {
	base := float64(u.InputTokens) / 1_000_000 * m.InputPer1M
	cacheWrite := float64(u.CacheCreationTokens) / 1_000_000 * m.InputPer1M * m.CacheWriteMult
	cacheRead := float64(u.CacheReadTokens) / 1_000_000 * m.InputPer1M * m.CacheReadMult
	output := float64(u.OutputTokens) / 1_000_000 * m.OutputPer1M
	return base + cacheWrite + cacheRead + output
}
