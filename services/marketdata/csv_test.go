package marketdata

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `timestamp,open,high,low,close,volume
1700000400,50000,50100,49900,50050,12.5
1700000460,50050,50200,50000,50150,8.25
1700000520,50150,50150,50050,50100,3
`

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTemp(t, "candles.csv", []byte(sampleCSV))

	candles, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	require.Equal(t, int64(1700000400), candles[0].Timestamp)
	require.True(t, candles[0].Open.Equal(decimal.NewFromInt(50_000)))
	require.True(t, candles[0].Volume.Equal(decimal.NewFromFloat(12.5)))
	require.True(t, candles[2].Close.Equal(decimal.NewFromInt(50_100)))
}

func TestLoadCSVWithoutHeader(t *testing.T) {
	path := writeTemp(t, "raw.csv", []byte("1700000400,1,2,0.5,1.5,100\n"))
	candles, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.True(t, candles[0].Low.Equal(decimal.NewFromFloat(0.5)))
}

// Spreadsheet exports arrive as UTF-16LE with a BOM; the loader must decode
// them to the same candles as the plain file.
func TestLoadCSVUTF16BOM(t *testing.T) {
	encoded := utf16.Encode([]rune(sampleCSV))
	data := []byte{0xFF, 0xFE}
	for _, u := range encoded {
		data = append(data, byte(u), byte(u>>8))
	}
	path := writeTemp(t, "utf16.csv", data)

	candles, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.Equal(t, int64(1700000460), candles[1].Timestamp)
	require.True(t, candles[1].Close.Equal(decimal.NewFromInt(50_150)))
}

func TestLoadCSVErrors(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	path := writeTemp(t, "short.csv", []byte("1700000400,1,2\n"))
	_, err = LoadCSV(path)
	require.Error(t, err)

	path = writeTemp(t, "header_only.csv", []byte("timestamp,open,high,low,close,volume\n"))
	_, err = LoadCSV(path)
	require.Error(t, err)

	path = writeTemp(t, "bad_number.csv", []byte("1700000400,abc,2,0.5,1.5,100\n"))
	_, err = LoadCSV(path)
	require.Error(t, err)
}
