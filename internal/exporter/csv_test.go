package exporter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdata/internal/clean"
	"quantdata/internal/table"
)

func buildTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New("close", "volume")
	day := func(d int) time.Time { return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, tbl.Append(table.Key{Time: day(1), Ticker: "BTC"}, []float64{16500.25, 120}))
	require.NoError(t, tbl.Append(table.Key{Time: day(2), Ticker: "BTC"}, []float64{16700, table.NaN()}))
	require.NoError(t, tbl.Append(table.Key{Time: day(1), Ticker: "ETH"}, []float64{1200, 300}))
	tbl.Sort()
	return tbl
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "data.csv")
	orig := buildTable(t)
	require.NoError(t, WriteTable(path, orig))

	got, err := ReadTable(path)
	require.NoError(t, err)
	require.Equal(t, orig.Len(), got.Len())
	assert.Equal(t, orig.Columns(), got.Columns())
	for i := 0; i < orig.Len(); i++ {
		assert.Equal(t, orig.Key(i), got.Key(i))
		for _, col := range orig.Columns() {
			a, b := orig.Value(i, col), got.Value(i, col)
			if table.Missing(a) {
				assert.True(t, table.Missing(b))
			} else {
				assert.Equal(t, a, b)
			}
		}
	}
}

func TestReadTableDateColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	data := "date,ticker,close\n2023-01-02,BTC,16700\n2023-01-01,BTC,16500\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	got, err := ReadTable(path)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	// rows come back sorted by time
	assert.Equal(t, 16500.0, got.Value(0, "close"))
	assert.Equal(t, 16700.0, got.Value(1, "close"))
}

func TestReadTableMissingColumns(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "no_time.csv")
	require.NoError(t, os.WriteFile(path, []byte("ticker,close\nBTC,1\n"), 0o644))
	_, err := ReadTable(path)
	assert.Error(t, err)

	path = filepath.Join(dir, "no_ticker.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,close\n2023-01-01,1\n"), 0o644))
	_, err = ReadTable(path)
	assert.Error(t, err)
}

func TestReadTableBlankAndBadCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	data := "time,ticker,close,volume\n2023-01-01,BTC,16500,\n2023-01-02,BTC,n/a,5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	got, err := ReadTable(path)
	require.NoError(t, err)
	assert.True(t, table.Missing(got.Value(0, "volume")))
	assert.True(t, table.Missing(got.Value(1, "close")))
	assert.Equal(t, 5.0, got.Value(1, "volume"))
}

func TestWriteSummary(t *testing.T) {
	tbl := buildTable(t)
	c := clean.NewCleaner(tbl, nil)
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, WriteSummary(path, c.Summary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "metric,close,volume")
	assert.Contains(t, string(data), "n_obs")
	assert.Contains(t, string(data), "%_NaN_end")
}
