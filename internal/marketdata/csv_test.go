package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantsweep/internal/core"
)

const sampleCSV = `date,open,high,low,close,volume,amount
2023-01-03,10.00,10.50,9.80,10.20,120000,1224000
2023-01-04,10.20,10.80,10.10,10.70,150000.0,1605000
2023-01-05,10.70,10.90,10.30,10.40,90000,936000
`

func TestReadCSV(t *testing.T) {
	bars, err := ReadCSV(strings.NewReader(sampleCSV), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, 10.2, bars[0].Close)
	assert.Equal(t, int64(150000), bars[1].Volume)
	assert.Equal(t, 936000.0, bars[2].Amount)
	assert.Equal(t, time.UTC, bars[0].Date.Location())
}

func TestReadCSV_DateFilter(t *testing.T) {
	start := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)
	bars, err := ReadCSV(strings.NewReader(sampleCSV), start, start)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.7, bars[0].Close)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("date,open,close\n2023-01-03,1,1\n"), time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high")
}

func TestReadCSV_BadNumber(t *testing.T) {
	bad := "date,open,high,low,close,volume\n2023-01-03,abc,1,1,1,1\n"
	_, err := ReadCSV(strings.NewReader(bad), time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCSVSource_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "600519.csv"), []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store, err := NewCSVSource(dir).Load(context.Background(), nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"600519"}, store.Symbols())
	assert.Equal(t, 3, store.Len("600519"))
}

func TestCSVSource_LoadMissingSymbol(t *testing.T) {
	_, err := NewCSVSource(t.TempDir()).Load(context.Background(), []string{"000001"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)
}
