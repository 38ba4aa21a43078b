package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"orbiter/internal/backtest"
	"orbiter/internal/strategy"
)

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tickerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bestStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

func signedStyle(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return gainStyle
	case v < 0:
		return lossStyle
	default:
		return lipgloss.NewStyle()
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

func renderStrategies(entries []strategy.Entry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Strategies ") + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s %s\n",
			tickerStyle.Render(padOrTrunc(e.ID, 26)),
			dimStyle.Render(padOrTrunc(e.KindName, 9)),
			e.Name,
		)
		if e.Description != "" {
			fmt.Fprintf(&b, "%s%s\n", strings.Repeat(" ", 37), dimStyle.Render(e.Description))
		}
	}
	return b.String()
}

// renderReport summarises every ticker of resp in one table.
func renderReport(resp *backtest.Response) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" Backtest %s ", resp.RunID)) + "\n\n")

	header := fmt.Sprintf("%-8s %10s %14s %7s %7s %10s", "TICKER", "ROI", "FINAL", "TRADES", "W/L", "FEES")
	b.WriteString(colHeaderStyle.Render(header) + "\n")

	for _, r := range resp.TradingsResults {
		ticker := tickerStyle.Render(padOrTrunc(r.Ticker, 8))
		if r.Failed() {
			fmt.Fprintf(&b, "%s %s\n", ticker, lossStyle.Render(r.Error))
			continue
		}
		bal := r.Balance
		fmt.Fprintf(&b, "%s %s %14.2f %7d %7s %10.2f\n",
			ticker,
			signedStyle(bal.ROI).Render(fmt.Sprintf("%10s", pct(bal.ROI))),
			bal.FinalBalance,
			len(r.Trades),
			fmt.Sprintf("%d/%d", bal.WinningTrades, bal.LosingTrades),
			bal.TotalFees,
		)
	}

	b.WriteString("\n")
	if resp.Benchmark.BestROI == nil {
		b.WriteString(dimStyle.Render("no successful tickers") + "\n")
	} else {
		id := ""
		if resp.Benchmark.BestStrategy != nil {
			id = resp.Benchmark.BestStrategy.ID
		}
		b.WriteString(bestStyle.Render(fmt.Sprintf("best: %s %s (%s)",
			resp.Benchmark.BestTicker, pct(*resp.Benchmark.BestROI), id)) + "\n")
	}
	return b.String()
}

// renderTrades lists the trades of one ticker.
func renderTrades(r backtest.TradingResult) string {
	var b strings.Builder
	if r.Failed() {
		b.WriteString(lossStyle.Render(r.Error) + "\n")
		return b.String()
	}
	if r.StrategyDef != nil {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render("strategy:"), r.StrategyDef.ID)
	}
	fmt.Fprintf(&b, "%s %s  %s %.2f -> %.2f  %s %d bars\n\n",
		dimStyle.Render("roi:"), signedStyle(r.Balance.ROI).Render(pct(r.Balance.ROI)),
		dimStyle.Render("balance:"), r.Balance.InitialBalance, r.Balance.FinalBalance,
		dimStyle.Render("candles:"), len(r.Candles),
	)

	if len(r.Trades) == 0 {
		b.WriteString(dimStyle.Render("no trades") + "\n")
		return b.String()
	}
	header := fmt.Sprintf("%-20s %10s %-20s %10s %12s %10s %12s  %s",
		"ENTRY", "PRICE", "EXIT", "PRICE", "NOMINALS", "FEES", "NET", "REASON")
	b.WriteString(colHeaderStyle.Render(header) + "\n")
	for _, t := range r.Trades {
		fmt.Fprintf(&b, "%-20s %10.4f %-20s %10.4f %12.4f %10.4f %s  %s\n",
			shortDate(t.EntryDate), t.EntryPrice,
			shortDate(t.ExitDate), t.ExitPrice,
			t.Nominals, t.Fees,
			signedStyle(t.Net).Render(fmt.Sprintf("%12.2f", t.Net)),
			dimStyle.Render(string(t.Reason)),
		)
	}
	return b.String()
}

// shortDate drops a midnight time component from an RFC 3339 timestamp.
func shortDate(s string) string {
	return strings.TrimSuffix(s, "T00:00:00Z")
}

func padOrTrunc(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
