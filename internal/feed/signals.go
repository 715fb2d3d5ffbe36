package feed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"swing-trader/internal/models"
)

// signalRow is the CSV schema for externally produced signals:
// date,strategy,symbol,sector,direction,entry,stop,atr,score,timing,prev_close
type signalRow struct {
	Date      string  `csv:"date"`
	Strategy  string  `csv:"strategy"`
	Symbol    string  `csv:"symbol"`
	Sector    string  `csv:"sector"`
	Direction string  `csv:"direction"`
	Entry     float64 `csv:"entry"`
	Stop      float64 `csv:"stop"`
	ATR       float64 `csv:"atr"`
	Score     float64 `csv:"score"`
	Timing    string  `csv:"timing"`
	PrevClose float64 `csv:"prev_close"`
}

// CSVSignalSource serves pre-computed daily signals from a CSV file. Strategy
// research runs upstream of the engine; this is the file-drop handoff between
// the two, for both backtests and scheduled live runs.
type CSVSignalSource struct {
	byDay map[string][]models.Signal
}

// NewCSVSignalSource loads a signals CSV file.
func NewCSVSignalSource(path string) (*CSVSignalSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening signals file: %w", err)
	}
	defer file.Close()

	var rows []*signalRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parsing signals file: %w", err)
	}

	s := &CSVSignalSource{byDay: make(map[string][]models.Signal)}
	for _, row := range rows {
		issued, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, fmt.Errorf("bad signal date %q: %w", row.Date, err)
		}
		timing := models.TimingAtOpen
		if row.Timing == string(models.TimingConfirm) {
			timing = models.TimingConfirm
		}
		direction := models.DirectionLong
		if row.Direction == string(models.DirectionShort) {
			direction = models.DirectionShort
		}
		s.byDay[row.Date] = append(s.byDay[row.Date], models.Signal{
			Strategy:   row.Strategy,
			Symbol:     row.Symbol,
			Sector:     row.Sector,
			Direction:  direction,
			EntryPrice: row.Entry,
			StopPrice:  row.Stop,
			ATR:        row.ATR,
			Score:      row.Score,
			Timing:     timing,
			IssuedAt:   issued,
			PrevClose:  row.PrevClose,
		})
	}
	return s, nil
}

// DailySignals returns the signals issued for a trading day.
func (s *CSVSignalSource) DailySignals(ctx context.Context, day time.Time) ([]models.Signal, error) {
	return s.byDay[day.Format("2006-01-02")], nil
}
