package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/quantsweep/internal/core"
)

// Compile-time interface check.
var _ Source = (*ParquetSource)(nil)

// ParquetSource reads daily bars stored as Parquet files, one file per
// symbol and year:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
type ParquetSource struct {
	DataDir string
}

// NewParquetSource creates a ParquetSource rooted at dataDir.
func NewParquetSource(dataDir string) *ParquetSource {
	return &ParquetSource{DataDir: dataDir}
}

// BarRecord is the on-disk schema for a daily bar.
type BarRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
	Amount float64 `parquet:"amount"`
}

// Load reads bars for symbols (every symbol directory when empty) and builds
// a Store. A zero start or end reads every year file present.
func (p *ParquetSource) Load(ctx context.Context, symbols []string, start, end time.Time) (*Store, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = p.ListSymbols(); err != nil {
			return nil, err
		}
	}

	data := make(map[string][]core.PriceBar, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := p.ReadBars(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", symbol, err)
		}
		if len(bars) > 0 {
			data[symbol] = bars
		}
	}

	if len(data) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no parquet bars under %s", p.DataDir)
	}
	return NewStore(data)
}

// ReadBars returns the bars of symbol within [start, end] in date order.
func (p *ParquetSource) ReadBars(symbol string, start, end time.Time) ([]core.PriceBar, error) {
	years, err := p.years(symbol)
	if err != nil {
		return nil, err
	}

	var bars []core.PriceBar
	for _, year := range years {
		if !start.IsZero() && year < start.Year() {
			continue
		}
		if !end.IsZero() && year > end.Year() {
			continue
		}

		records, err := parquet.ReadFile[BarRecord](p.barPath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			date := core.Day(time.UnixMilli(r.Date))
			if !start.IsZero() && date.Before(core.Day(start)) {
				continue
			}
			if !end.IsZero() && date.After(core.Day(end)) {
				continue
			}
			bars = append(bars, core.PriceBar{
				Date:   date,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
				Amount: r.Amount,
			})
		}
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

// WriteBars writes bars for symbol grouped by year, merging with any
// existing file. Incoming bars win on equal dates.
func (p *ParquetSource) WriteBars(symbol string, bars []core.PriceBar) error {
	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		day := core.Day(b.Date)
		groups[day.Year()] = append(groups[day.Year()], BarRecord{
			Symbol: symbol,
			Date:   day.UnixMilli(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Amount: b.Amount,
		})
	}

	for year, records := range groups {
		path := p.barPath(symbol, year)

		var existing []BarRecord
		if _, err := os.Stat(path); err == nil {
			if existing, err = parquet.ReadFile[BarRecord](path); err != nil {
				return fmt.Errorf("reading existing %s/%d: %w", symbol, year, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		merged := mergeBarRecords(existing, records)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := parquet.WriteFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ListSymbols lists every symbol directory under <DataDir>/daily.
func (p *ParquetSource) ListSymbols() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.DataDir, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (p *ParquetSource) years(symbol string) ([]int, error) {
	dir := filepath.Join(p.DataDir, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.WrapError(core.ErrSymbolNotFound, err)
		}
		return nil, err
	}

	var years []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".parquet" {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSuffix(name, ".parquet"))
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	sort.Ints(years)
	return years, nil
}

// barPath returns <DataDir>/daily/<SYMBOL>/<YYYY>.parquet.
func (p *ParquetSource) barPath(symbol string, year int) string {
	return filepath.Join(p.DataDir, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// mergeBarRecords deduplicates by date, preferring incoming records, and
// sorts the result by date.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
