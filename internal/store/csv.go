package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"quantbt/internal/domain"
)

// csv.go reads bar data from CSV files (for ad-hoc backtests over data that
// never went through the Parquet store) and exports run results to CSV.
//
// The bar format is one header row then date,open,high,low,close,volume with
// dates as YYYY-MM-DD.

// ReadBarsCSV parses bars for one symbol from r.
func ReadBarsCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: want 6 columns, got %d", i+2, len(rec))
		}
		ts, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+2, j+2, err)
			}
			vals[j] = v
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ts.UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ReadBarsCSVFile parses bars for one symbol from a file on disk.
func ReadBarsCSVFile(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBarsCSV(f, symbol)
}

// WriteTradesCSV exports a run's trade ledger to w.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	header := []string{"symbol", "side", "quantity", "signal_price", "signal_date",
		"fill_price", "fill_date", "commission", "closed", "exit_fill_price",
		"exit_date", "pnl", "pnl_percent", "holding_days"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		exitDate := ""
		if t.Closed {
			exitDate = t.ExitDate.Format("2006-01-02")
		}
		row := []string{
			t.Symbol,
			string(t.Side),
			strconv.Itoa(t.Quantity),
			formatFloat(t.SignalPrice),
			t.SignalDate.Format("2006-01-02"),
			formatFloat(t.FillPrice),
			t.FillDate.Format("2006-01-02"),
			formatFloat(t.Commission),
			strconv.FormatBool(t.Closed),
			formatFloat(t.ExitFillPrice),
			exitDate,
			formatFloat(t.PnL),
			formatFloat(t.PnLPercent),
			strconv.Itoa(t.HoldingDays),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV exports an equity curve to w.
func WriteEquityCSV(w io.Writer, curve []domain.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "equity", "cash", "drawdown"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			p.Date.Format("2006-01-02"),
			formatFloat(p.Equity),
			formatFloat(p.Cash),
			formatFloat(p.Drawdown),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
