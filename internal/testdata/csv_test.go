package testdata

import (
	"testing"
	"time"

	"github.com/chidi150c/stratester/bar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSVParsesRFC3339AndUnixSeconds(t *testing.T) {
	series, err := LoadCSV("fixtures/sample.csv", "TEST", bar.Interval1h)
	require.NoError(t, err)
	require.Len(t, series.Candles, 5)

	assert.Equal(t, "TEST", series.Symbol)
	assert.Equal(t, bar.Interval1h, series.Interval)

	last := series.Candles[4]
	assert.Equal(t, time.Unix(1704337200, 0).UTC(), last.Timestamp)
	assert.InDelta(t, 103.5, last.Close, 1e-9)
}

func TestLoadCSVSortsAscendingByTime(t *testing.T) {
	series, err := LoadCSV("fixtures/sample.csv", "TEST", bar.Interval1h)
	require.NoError(t, err)
	for i := 1; i < len(series.Candles); i++ {
		assert.True(t, series.Candles[i].Timestamp.After(series.Candles[i-1].Timestamp))
	}
}

func TestLoadCSVMissingFileReturnsError(t *testing.T) {
	_, err := LoadCSV("fixtures/does_not_exist.csv", "TEST", bar.Interval1h)
	assert.Error(t, err)
}
