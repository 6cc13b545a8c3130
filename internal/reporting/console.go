// Package reporting renders session summaries for operators: rounded
// console tables during the run and an Excel workbook at session end.
package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tradequorum/quorum-bot/internal/portfolio"
	"github.com/tradequorum/quorum-bot/internal/session"
	"github.com/tradequorum/quorum-bot/internal/signal"
)

// PrintStartupInfo renders the bot configuration at session start.
func PrintStartupInfo(symbols []string, market, broker string, paperMode bool) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("QUORUM BOT")
	t.SetStyle(table.StyleRounded)

	mode := "live trading"
	if paperMode {
		mode = "paper trading"
	}
	t.AppendRows([]table.Row{
		{"📊 Symbols", fmt.Sprintf("%v", symbols)},
		{"🏪 Market", market},
		{"🏪 Broker", broker},
		{"🚨 Mode", mode},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintAggregation renders one symbol's vote tally.
func PrintAggregation(agg *signal.AggregatedSignal) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("SIGNAL CONSENSUS: %s", agg.Symbol))
	t.SetStyle(table.StyleRounded)

	verdict := "⏸️ HOLD"
	switch {
	case agg.ShouldBuy:
		verdict = "✅ BUY"
	case agg.ShouldSell:
		verdict = "🔻 SELL"
	}

	t.AppendRows([]table.Row{
		{"📊 Sources", agg.TotalSources},
		{"📈 Buy votes", fmt.Sprintf("%d (%.1f%%)", agg.BuySignals, agg.BuyPercentage)},
		{"⏸️ Hold votes", agg.HoldSignals},
		{"📉 Sell votes", agg.SellSignals},
		{"🎯 Required", agg.RequiredVotes},
		{"🏁 Verdict", verdict},
	})

	t.AppendSeparator()
	for _, sig := range agg.Signals {
		t.AppendRow(table.Row{sig.Source, fmt.Sprintf("%s (%.0f%%)", sig.Direction, sig.Confidence)})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintSessionSummary renders session totals and the final portfolio.
func PrintSessionSummary(s *session.Session, snap portfolio.Snapshot) {
	if s == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	duration := s.EndTime.Sub(s.StartTime)
	t.AppendRows([]table.Row{
		{"🆔 Session", s.ID},
		{"⏰ Duration", duration.Round(1e9).String()},
		{"🔄 Trades", s.TradesCount},
		{"💰 Balance", fmt.Sprintf("$%.2f", snap.Balance)},
		{"💰 Equity", fmt.Sprintf("$%.2f", snap.Equity)},
		{"📈 Daily PnL", fmt.Sprintf("$%.2f", snap.DailyRealizedPnL)},
		{"📉 Drawdown", fmt.Sprintf("%.2f%%", snap.DrawdownPct)},
	})

	if len(snap.Positions) > 0 {
		t.AppendSeparator()
		for _, pos := range snap.Positions {
			t.AppendRow(table.Row{
				fmt.Sprintf("📌 %s", pos.Symbol),
				fmt.Sprintf("%.4f @ $%.2f (PnL $%.2f)", pos.Quantity, pos.EntryPrice, pos.UnrealizedPnL),
			})
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}
