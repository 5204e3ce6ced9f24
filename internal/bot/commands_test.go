package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/teknestudio/propbot/internal/cost"
)

func allowOnly(ids ...int64) func(*Options) {
	return func(o *Options) { o.AllowedUsers = ids }
}

func TestHelloSkipsAllowlist(t *testing.T) {
	e := newEnv(t, allowOnly(99))
	e.bot.handle(context.Background(), textMsg(7, "/hello"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != "Hello Ana!\nYour user ID: `7`" {
		t.Fatalf("sends = %q", sends)
	}
}

func TestHelpIsMarkdownAndListsEverything(t *testing.T) {
	e := newEnv(t)
	e.bot.handle(context.Background(), textMsg(7, "/help"))

	sends := e.api.sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %q", sends)
	}
	help := sends[0]
	if !strings.HasPrefix(help, "📖 *Comandos Disponíveis*") {
		t.Errorf("help starts with %q", help[:40])
	}
	for _, cmd := range []string{"/proposal", "/reset", "/help", "/cost", "/hello", "/resetdaily", "/resetall"} {
		if !strings.Contains(help, cmd+" - ") {
			t.Errorf("help does not document %s", cmd)
		}
	}
	if !e.api.sentAsMarkdown(help) {
		t.Error("help was not sent as Markdown")
	}
}

func TestCostCommandReportsLedger(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.Record("user_7", cost.Usage{InputTokens: 1200, OutputTokens: 300, Cost: 0.0421}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	e.bot.handle(context.Background(), textMsg(7, "/cost"))

	sends := e.api.sends()
	if len(sends) != 1 {
		t.Fatalf("sends = %q", sends)
	}
	report := sends[0]
	for _, want := range []string{
		"📊 *Estatísticas de Uso da API*",
		"💵 *TOTAL (all time)*",
		"Custo: `$0.0421`",
		"Tokens: `1,200` in + `300` out = `1,500`",
		"📅 *HOJE*",
		"👤 *SUA SESSÃO*",
		"🕐 Última atualização:",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if !e.api.sentAsMarkdown(report) {
		t.Error("report was not sent as Markdown")
	}
}

func TestResetClearsSessionHistoryAndCosts(t *testing.T) {
	e := newEnv(t, allowOnly(99)) // /reset works even off the allowlist
	e.bot.sessions.start(7)
	if _, err := e.ledger.Record("user_7", cost.Usage{Cost: 0.10}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	e.bot.handle(context.Background(), textMsg(7, "/reset"))

	if _, ok := e.bot.sessions.id(7); ok {
		t.Error("session still active after /reset")
	}
	if len(e.agent.resets) != 1 || e.agent.resets[0] != "user_7" {
		t.Errorf("agent resets = %v", e.agent.resets)
	}
	if _, ok := e.ledger.Stats().Sessions["user_7"]; ok {
		t.Error("session cost bucket survived /reset")
	}
	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != resetReply {
		t.Errorf("sends = %q", sends)
	}
}

func TestResetDailyKeepsPriorDaysAndTotal(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.Record("user_7", cost.Usage{Cost: 0.25}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	e.bot.handle(context.Background(), textMsg(7, "/resetdaily"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != resetDailyReply {
		t.Fatalf("sends = %q", sends)
	}
	stats := e.ledger.Stats()
	today := time.Now().Format("2006-01-02")
	if _, ok := stats.Daily[today]; ok {
		t.Error("today's bucket survived /resetdaily")
	}
	if stats.Total.Cost != 0.25 {
		t.Errorf("total cost = %v, want untouched 0.25", stats.Total.Cost)
	}
}

func TestResetAllWipesTheLedger(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.Record("user_7", cost.Usage{Cost: 0.25}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	e.bot.handle(context.Background(), textMsg(7, "/resetall"))

	sends := e.api.sends()
	if len(sends) != 1 || sends[0] != resetAllReply {
		t.Fatalf("sends = %q", sends)
	}
	stats := e.ledger.Stats()
	if stats.Total.Cost != 0 || len(stats.Sessions) != 0 || len(stats.Daily) != 0 {
		t.Errorf("ledger not empty after /resetall: %+v", stats)
	}
}

func TestProposalOpensSessionAndSeedsKickoff(t *testing.T) {
	e := newEnv(t)
	e.bot.handle(context.Background(), textMsg(7, "/proposal"))

	if _, ok := e.bot.sessions.id(7); !ok {
		t.Error("no session after /proposal")
	}
	runs := e.agent.recorded()
	if len(runs) != 1 || runs[0].session != "user_7" || runs[0].message != kickoffMessage {
		t.Fatalf("runs = %+v", runs)
	}

	sends := e.api.sends()
	if len(sends) != 2 || sends[0] != proposalPlaceholder || sends[1] != "ok" {
		t.Errorf("sends = %q", sends)
	}
	if e.api.deletions() != 1 {
		t.Errorf("placeholder deletions = %d, want 1", e.api.deletions())
	}
}

func TestUnauthorizedCommandsAreRefused(t *testing.T) {
	e := newEnv(t, allowOnly(99))
	ctx := context.Background()

	for _, cmd := range []string{"/cost", "/proposal", "/resetdaily", "/resetall"} {
		e.bot.handle(ctx, textMsg(7, cmd))
	}
	sends := e.api.sends()
	if len(sends) != 4 {
		t.Fatalf("sends = %q", sends)
	}
	for i, s := range sends {
		if s != refusedReply {
			t.Errorf("send %d = %q, want refusal", i, s)
		}
	}
	if len(e.agent.recorded()) != 0 {
		t.Errorf("agent ran for an unauthorized user: %+v", e.agent.recorded())
	}
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.bot.handle(context.Background(), textMsg(7, "/frobnicate"))
	if sends := e.api.sends(); len(sends) != 0 {
		t.Errorf("sends = %q", sends)
	}
}
