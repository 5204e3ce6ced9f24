package bot

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/teknestudio/propbot/internal/cost"
)

// tokenPrinter renders token counts with thousands separators.
var tokenPrinter = message.NewPrinter(language.AmericanEnglish)

const reportRule = "=========="

// costReport renders the /cost statistics in Telegram Markdown. Sections with
// nothing to say (no usage today, no bucket for this session) are omitted.
func costReport(stats *cost.Snapshot, sessionID string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("📊 *Estatísticas de Uso da API*\n")
	sb.WriteString(reportRule + "\n\n")

	sb.WriteString("💵 *TOTAL (all time)*\n")
	fmt.Fprintf(&sb, "   Custo: `$%.4f`\n", stats.Total.Cost)
	fmt.Fprintf(&sb, "   Tokens: `%s` in + `%s` out = `%s`\n",
		group(stats.Total.InputTokens), group(stats.Total.OutputTokens),
		group(stats.Total.InputTokens+stats.Total.OutputTokens))
	writeCacheLine(&sb, stats.Total)
	sb.WriteString("\n")

	today := now.Format("2006-01-02")
	if day, ok := stats.Daily[today]; ok {
		fmt.Fprintf(&sb, "📅 *HOJE* (%s)\n", today)
		fmt.Fprintf(&sb, "   Custo: `$%.4f`\n", day.Cost)
		fmt.Fprintf(&sb, "   Requisições: `%d`\n", day.Requests)
		fmt.Fprintf(&sb, "   Tokens: `%s` in + `%s` out\n",
			group(day.InputTokens), group(day.OutputTokens))
		writeCacheLine(&sb, day)
		sb.WriteString("\n")
	}

	if len(stats.Daily) > 1 {
		sb.WriteString("📆 *ÚLTIMOS 7 DIAS*\n")
		days := make([]string, 0, len(stats.Daily))
		for day := range stats.Daily {
			days = append(days, day)
		}
		slices.Sort(days)
		slices.Reverse(days)
		if len(days) > 7 {
			days = days[:7]
		}
		for _, day := range days {
			d := stats.Daily[day]
			fmt.Fprintf(&sb, "   `%s`: $%.4f (%d req)\n", day, d.Cost, d.Requests)
		}
		sb.WriteString("\n")
	}

	if sess, ok := stats.Sessions[sessionID]; ok {
		sb.WriteString("👤 *SUA SESSÃO*\n")
		fmt.Fprintf(&sb, "   Custo: `$%.4f`\n", sess.Cost)
		fmt.Fprintf(&sb, "   Requisições: `%d`\n", sess.Requests)
		fmt.Fprintf(&sb, "   Tokens: `%s` in + `%s` out\n",
			group(sess.InputTokens), group(sess.OutputTokens))
		writeCacheLine(&sb, sess)
		sb.WriteString("\n")
	}

	if stats.LastUpdate != "" {
		ts := stats.LastUpdate
		if len(ts) > 19 {
			ts = ts[:19]
		}
		fmt.Fprintf(&sb, "🕐 Última atualização: `%s`\n", ts)
	}
	sb.WriteString(reportRule)
	return sb.String()
}

// writeCacheLine adds cache token counts when the bucket has any; older
// ledgers predate cache accounting and would always print zeros.
func writeCacheLine(sb *strings.Builder, b cost.Bucket) {
	if b.CacheReadTokens == 0 && b.CacheCreationTokens == 0 {
		return
	}
	fmt.Fprintf(sb, "   🔄 Cache: `%s` read + `%s` write\n",
		group(b.CacheReadTokens), group(b.CacheCreationTokens))
}

// group formats n with thousands separators: 12345 -> "12,345".
func group(n int64) string {
	return tokenPrinter.Sprintf("%d", n)
}
