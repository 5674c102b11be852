// Package testdata loads OHLCV fixtures from CSV for package tests, adapted
// from the teacher's loadCSV/parseTimeFlexible/sortCandles trio
// (backtest.go) to build a bar.Series instead of a []Candle slice, and to
// return an error rather than log.Fatalf since tests must stay in control
// of failure handling.
package testdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chidi150c/stratester/bar"
)

// LoadCSV reads a candle CSV with headers time|timestamp, open, high, low,
// close, volume (case-insensitive, any order; unknown columns ignored) and
// returns it as a bar.Series. The time column accepts RFC3339 or UNIX
// seconds.
func LoadCSV(path string, symbol string, interval bar.Interval) (bar.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return bar.Series{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var candles []bar.Candle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return bar.Series{}, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp")
		op := first(row, "open")
		hp := first(row, "high")
		lp := first(row, "low")
		cp := first(row, "close")
		vp := first(row, "volume", "vol")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(hp, 64)
		l, _ := strconv.ParseFloat(lp, 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(vp, 64)
		candles = append(candles, bar.Candle{Timestamp: tt, Open: o, High: h, Low: l, Close: c, Volume: v})
		rowIdx++
	}

	sortCandles(candles)
	return bar.Series{Symbol: symbol, Interval: interval, Candles: candles}, nil
}

func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

func sortCandles(c []bar.Candle) {
	sort.Slice(c, func(i, j int) bool { return c[i].Timestamp.Before(c[j].Timestamp) })
}

func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
