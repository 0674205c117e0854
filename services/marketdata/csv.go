// Package marketdata loads the one-minute candle feed from local CSV files.
package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"spot-backtest/services/series"
)

// LoadCSV reads a candle feed with columns
// timestamp,open,high,low,close,volume. Exports from spreadsheet tools are
// often UTF-16 with a BOM; the reader decodes those transparently.
func LoadCSV(path string) ([]series.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	reader, err := decodedReader(f)
	if err != nil {
		return nil, fmt.Errorf("candle file %s: %w", path, err)
	}

	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	var candles []series.Candle
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("candle file %s line %d: %w", path, line+1, err)
		}
		line++
		if line == 1 && isHeader(record) {
			continue
		}
		c, err := parseCandle(record)
		if err != nil {
			return nil, fmt.Errorf("candle file %s line %d: %w", path, line, err)
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("candle file %s has no data rows", path)
	}
	return candles, nil
}

// decodedReader sniffs the first two bytes for a UTF-16 BOM and wraps the
// file in a decoder when present.
func decodedReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		endian := unicode.LittleEndian
		if head[0] == 0xFE {
			endian = unicode.BigEndian
		}
		return transform.NewReader(f, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()), nil
	}
	return br, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.TrimPrefix(strings.TrimSpace(record[0]), "\ufeff")
	_, err := strconv.ParseInt(first, 10, 64)
	return err != nil
}

func parseCandle(record []string) (series.Candle, error) {
	if len(record) < 6 {
		return series.Candle{}, fmt.Errorf("expected 6 columns, got %d", len(record))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return series.Candle{}, fmt.Errorf("timestamp %q: %w", record[0], err)
	}
	fields := make([]decimal.Decimal, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		d, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return series.Candle{}, fmt.Errorf("%s %q: %w", name, record[i+1], err)
		}
		fields[i] = d
	}
	return series.Candle{
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}
