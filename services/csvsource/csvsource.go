// Package csvsource loads exported kline CSVs into engine bars. Export
// tools sometimes write UTF-16 with a BOM; both encodings are handled.
package csvsource

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"backtest-validation/services/engine"
)

// LoadBars reads a kline CSV with columns
// open_time_ms,open,high,low,close,volume (header optional).
func LoadBars(path string) ([]engine.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	br := bufio.NewReader(f)
	b, _ := br.Peek(2)
	if len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		reader = transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1

	var bars []engine.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read line %d: %w", line, err)
		}
		line++
		if len(rec) < 6 {
			continue
		}
		ts, err := strconv.ParseUint(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			continue // header or junk row
		}
		open, _ := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		high, _ := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		low, _ := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		closep, _ := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		vol, _ := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		bars = append(bars, engine.Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closep,
			Volume:    vol,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars parsed from %s", path)
	}
	return bars, nil
}
