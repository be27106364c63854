package engine

import (
	"time"

	"quantbt/internal/domain"
)

// tradeLedger accumulates filled orders as Trade records. A buy opens a
// ledger row; the next sell of the same symbol closes it, populating the
// exit fields and derived PnL. A sell with no open buy (which the engine
// itself never produces) is kept as its own row so nothing is silently
// lost.
type tradeLedger struct {
	trades []domain.Trade
	open   map[string]int // symbol -> index of the open buy row
}

func newTradeLedger() *tradeLedger {
	return &tradeLedger{
		trades: []domain.Trade{},
		open:   make(map[string]int),
	}
}

func (l *tradeLedger) recordBuy(order domain.PendingOrder, quantity int, fillPrice float64, fillDate time.Time, commission float64) {
	l.trades = append(l.trades, domain.Trade{
		Symbol:      order.Symbol,
		Side:        domain.OrderSideBuy,
		Quantity:    quantity,
		SignalPrice: order.SignalPrice,
		SignalDate:  order.SignalDate,
		FillPrice:   fillPrice,
		FillDate:    fillDate,
		Commission:  commission,
	})
	l.open[order.Symbol] = len(l.trades) - 1
}

func (l *tradeLedger) recordSell(order domain.PendingOrder, quantity int, fillPrice float64, fillDate time.Time, commission float64) {
	idx, ok := l.open[order.Symbol]
	if !ok {
		l.trades = append(l.trades, domain.Trade{
			Symbol:      order.Symbol,
			Side:        domain.OrderSideSell,
			Quantity:    quantity,
			SignalPrice: order.SignalPrice,
			SignalDate:  order.SignalDate,
			FillPrice:   fillPrice,
			FillDate:    fillDate,
			Commission:  commission,
		})
		return
	}
	delete(l.open, order.Symbol)

	t := &l.trades[idx]
	t.Closed = true
	t.ExitSignalPrice = order.SignalPrice
	t.ExitFillPrice = fillPrice
	t.ExitDate = fillDate
	t.ExitCommission = commission

	buyCost := t.FillPrice*float64(t.Quantity) + t.Commission
	sellRevenue := fillPrice*float64(quantity) - commission
	t.PnL = sellRevenue - buyCost
	if buyCost > 0 {
		t.PnLPercent = t.PnL / buyCost
	}
	t.HoldingDays = int(fillDate.Sub(t.FillDate).Hours() / 24)
}
