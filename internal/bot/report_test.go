package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/teknestudio/propbot/internal/cost"
)

func reportNow(t *testing.T) time.Time {
	t.Helper()
	now, err := time.Parse(time.RFC3339, "2026-08-25T14:03:22Z")
	if err != nil {
		t.Fatal(err)
	}
	return now
}

func TestCostReportAllSections(t *testing.T) {
	stats := &cost.Snapshot{
		Total: cost.Bucket{
			Cost: 204.5616, InputTokens: 1830500, OutputTokens: 92100,
			CacheReadTokens: 512000, CacheCreationTokens: 64000, Requests: 310,
		},
		Daily: map[string]cost.Bucket{
			"2026-08-25": {Cost: 1.5, InputTokens: 12000, OutputTokens: 900, Requests: 4},
			"2026-08-24": {Cost: 0.75, Requests: 2},
		},
		Sessions: map[string]cost.Bucket{
			"user_7": {Cost: 0.25, InputTokens: 2200, OutputTokens: 140, Requests: 3},
		},
		LastUpdate: "2026-08-25T14:03:22Z",
	}

	report := costReport(stats, "user_7", reportNow(t))

	for _, want := range []string{
		"📊 *Estatísticas de Uso da API*\n==========\n\n",
		"💵 *TOTAL (all time)*\n   Custo: `$204.5616`\n   Tokens: `1,830,500` in + `92,100` out = `1,922,600`\n   🔄 Cache: `512,000` read + `64,000` write\n",
		"📅 *HOJE* (2026-08-25)\n   Custo: `$1.5000`\n   Requisições: `4`\n   Tokens: `12,000` in + `900` out\n",
		"📆 *ÚLTIMOS 7 DIAS*\n   `2026-08-25`: $1.5000 (4 req)\n   `2026-08-24`: $0.7500 (2 req)\n",
		"👤 *SUA SESSÃO*\n   Custo: `$0.2500`\n   Requisições: `3`\n   Tokens: `2,200` in + `140` out\n",
		"🕐 Última atualização: `2026-08-25T14:03:22`\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing section:\n%q\n\nfull report:\n%s", want, report)
		}
	}
	if !strings.HasSuffix(report, "==========") {
		t.Error("report lacks the closing rule")
	}
}

func TestCostReportEmptyLedger(t *testing.T) {
	stats := &cost.Snapshot{
		Sessions: map[string]cost.Bucket{},
		Daily:    map[string]cost.Bucket{},
	}
	report := costReport(stats, "user_7", reportNow(t))

	if !strings.Contains(report, "Custo: `$0.0000`") {
		t.Error("zero total not rendered")
	}
	if !strings.Contains(report, "Tokens: `0` in + `0` out = `0`") {
		t.Error("zero tokens not rendered")
	}
	for _, absent := range []string{"🔄 Cache", "📅 *HOJE*", "📆 *ÚLTIMOS 7 DIAS*", "👤 *SUA SESSÃO*", "🕐"} {
		if strings.Contains(report, absent) {
			t.Errorf("empty report should not contain %q", absent)
		}
	}
}

func TestCostReportOmitsHistoryForASingleDay(t *testing.T) {
	stats := &cost.Snapshot{
		Daily: map[string]cost.Bucket{
			"2026-08-25": {Cost: 1, Requests: 1},
		},
	}
	report := costReport(stats, "user_7", reportNow(t))
	if strings.Contains(report, "ÚLTIMOS 7 DIAS") {
		t.Error("single-day ledger should not render the history section")
	}
}

func TestCostReportCapsHistoryAtSevenNewestDays(t *testing.T) {
	daily := map[string]cost.Bucket{}
	for day := 10; day <= 19; day++ {
		daily["2026-08-"+string(rune('0'+day/10))+string(rune('0'+day%10))] = cost.Bucket{Cost: 1, Requests: 1}
	}
	stats := &cost.Snapshot{Daily: daily}

	report := costReport(stats, "user_7", reportNow(t))

	if got := strings.Count(report, " req)"); got != 7 {
		t.Errorf("history lines = %d, want 7", got)
	}
	if !strings.Contains(report, "`2026-08-19`") || strings.Contains(report, "`2026-08-12`") {
		t.Error("history should keep the newest seven days")
	}
	first := strings.Index(report, "`2026-08-19`")
	second := strings.Index(report, "`2026-08-18`")
	if first == -1 || second == -1 || first > second {
		t.Error("history days are not newest first")
	}
}
