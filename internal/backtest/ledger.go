package backtest

import (
	"github.com/shopspring/decimal"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStrategy     ExitReason = "strategy"
	ExitReasonExitStrategy ExitReason = "exit_strategy"
	ExitReasonEndOfData    ExitReason = "end_of_data"
)

// Position is an open long position. Nominals is positive while open.
type Position struct {
	EntryPrice decimal.Decimal
	EntryIndex int
	EntryFees  decimal.Decimal
	Nominals   decimal.Decimal
}

// Trade is a closed round trip.
type Trade struct {
	EntryIndex int        `json:"entry_index"`
	EntryDate  string     `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	ExitIndex  int        `json:"exit_index"`
	ExitDate   string     `json:"exit_date"`
	ExitPrice  float64    `json:"exit_price"`
	Nominals   float64    `json:"nominals"`
	Fees       float64    `json:"fees"`
	Net        float64    `json:"net"`
	Reason     ExitReason `json:"reason"`
}

// BalanceSummary holds the final metrics of a run.
type BalanceSummary struct {
	ROI            float64 `json:"roi"`
	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	FinalNominals  float64 `json:"final_nominals"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	TotalWins      float64 `json:"total_wins"`
	TotalLosses    float64 `json:"total_losses"`
	TotalFees      float64 `json:"total_fees"`
}

// ledger is the per-run cash and position state. It is owned by a single
// simulation and never shared.
type ledger struct {
	initial  decimal.Decimal
	fee      decimal.Decimal
	truncate bool

	cash        decimal.Decimal
	pos         *Position
	totalFees   decimal.Decimal
	totalWins   decimal.Decimal
	totalLosses decimal.Decimal
	winTrades   int
	lossTrades  int
}

func newLedger(initialBalance, feePct float64, truncate bool) *ledger {
	initial := decimal.NewFromFloat(initialBalance)
	return &ledger{
		initial:  initial,
		fee:      decimal.NewFromFloat(feePct),
		truncate: truncate,
		cash:     initial,
	}
}

func (l *ledger) inPosition() bool {
	return l.pos != nil
}

// entryPrice returns the open position's entry price, or 0 when flat.
func (l *ledger) entryPrice() float64 {
	if l.pos == nil {
		return 0
	}
	return l.pos.EntryPrice.InexactFloat64()
}

func (l *ledger) nominals() decimal.Decimal {
	if l.pos == nil {
		return decimal.Zero
	}
	return l.pos.Nominals
}

// enter opens a position at price with all available cash. It reports false
// when nothing could be bought.
func (l *ledger) enter(price float64, index int) bool {
	p := decimal.NewFromFloat(price)
	if l.pos != nil || !p.IsPositive() || !l.cash.IsPositive() {
		return false
	}
	units := l.cash.Div(p.Mul(decimal.NewFromInt(1).Add(l.fee)))
	if l.truncate {
		units = units.Floor()
	}
	if !units.IsPositive() {
		return false
	}

	cost := units.Mul(p)
	entryFee := cost.Mul(l.fee)
	if l.truncate {
		l.cash = l.cash.Sub(cost).Sub(entryFee)
	} else {
		l.cash = decimal.Zero
	}
	l.totalFees = l.totalFees.Add(entryFee)
	l.pos = &Position{
		EntryPrice: p,
		EntryIndex: index,
		EntryFees:  entryFee,
		Nominals:   units,
	}
	return true
}

// exit closes the open position at price and books the realised P&L.
func (l *ledger) exit(price float64, index int, reason ExitReason) (Trade, bool) {
	if l.pos == nil {
		return Trade{}, false
	}
	p := decimal.NewFromFloat(price)
	proceeds := l.pos.Nominals.Mul(p)
	exitFee := proceeds.Mul(l.fee)
	net := p.Sub(l.pos.EntryPrice).Mul(l.pos.Nominals).Sub(l.pos.EntryFees).Sub(exitFee)

	l.totalFees = l.totalFees.Add(exitFee)
	if net.IsNegative() {
		l.totalLosses = l.totalLosses.Add(net)
		l.lossTrades++
	} else {
		l.totalWins = l.totalWins.Add(net)
		l.winTrades++
	}
	l.cash = l.cash.Add(proceeds).Sub(exitFee)

	t := Trade{
		EntryIndex: l.pos.EntryIndex,
		EntryPrice: l.pos.EntryPrice.InexactFloat64(),
		ExitIndex:  index,
		ExitPrice:  price,
		Nominals:   l.pos.Nominals.InexactFloat64(),
		Fees:       l.pos.EntryFees.Add(exitFee).InexactFloat64(),
		Net:        net.InexactFloat64(),
		Reason:     reason,
	}
	l.pos = nil
	return t, true
}

// markToMarket values the account with open units priced at price.
func (l *ledger) markToMarket(price float64) decimal.Decimal {
	return l.cash.Add(l.nominals().Mul(decimal.NewFromFloat(price)))
}

func (l *ledger) summary(lastClose float64) *BalanceSummary {
	final := l.markToMarket(lastClose)
	roi := final.Sub(l.initial).Div(l.initial)
	return &BalanceSummary{
		ROI:            roi.InexactFloat64(),
		InitialBalance: l.initial.InexactFloat64(),
		FinalBalance:   final.InexactFloat64(),
		FinalNominals:  l.nominals().InexactFloat64(),
		WinningTrades:  l.winTrades,
		LosingTrades:   l.lossTrades,
		TotalWins:      l.totalWins.InexactFloat64(),
		TotalLosses:    l.totalLosses.InexactFloat64(),
		TotalFees:      l.totalFees.InexactFloat64(),
	}
}
