package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantsweep/internal/core"
)

// Compile-time interface check.
var _ Source = (*CSVSource)(nil)

// CSVSource reads one file per symbol at <Dir>/<SYMBOL>.csv with a header row
// naming at least date, open, high, low, close and volume. An amount column
// is optional.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a CSVSource rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Load reads the requested symbols, or every *.csv file when symbols is empty.
func (c *CSVSource) Load(ctx context.Context, symbols []string, start, end time.Time) (*Store, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = c.listSymbols(); err != nil {
			return nil, err
		}
	}

	data := make(map[string][]core.PriceBar, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := c.readSymbol(symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", symbol, err)
		}
		if len(bars) > 0 {
			data[symbol] = bars
		}
	}

	if len(data) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no csv bars under %s", c.Dir)
	}
	return NewStore(data)
}

func (c *CSVSource) listSymbols() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", c.Dir, err)
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		symbols = append(symbols, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (c *CSVSource) readSymbol(symbol string, start, end time.Time) ([]core.PriceBar, error) {
	f, err := os.Open(filepath.Join(c.Dir, symbol+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.WrapError(core.ErrSymbolNotFound, err)
		}
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f, start, end)
}

// ReadCSV parses bars from r, keeping those within [start, end]. A zero
// bound is open.
func ReadCSV(r io.Reader, start, end time.Time) ([]core.PriceBar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var bars []core.PriceBar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !start.IsZero() && bar.Date.Before(core.Day(start)) {
			continue
		}
		if !end.IsZero() && bar.Date.After(core.Day(end)) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRecord(record []string, cols map[string]int) (core.PriceBar, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	num := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return v, nil
	}

	date, err := core.ParseDate(field("date"))
	if err != nil {
		return core.PriceBar{}, err
	}

	bar := core.PriceBar{Date: core.Day(date)}
	if bar.Open, err = num("open"); err != nil {
		return bar, err
	}
	if bar.High, err = num("high"); err != nil {
		return bar, err
	}
	if bar.Low, err = num("low"); err != nil {
		return bar, err
	}
	if bar.Close, err = num("close"); err != nil {
		return bar, err
	}
	volume, err := num("volume")
	if err != nil {
		return bar, err
	}
	bar.Volume = int64(volume)
	if field("amount") != "" {
		if bar.Amount, err = num("amount"); err != nil {
			return bar, err
		}
	}
	return bar, nil
}
