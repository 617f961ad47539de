package simdplan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickerNilOutputIsSilent(t *testing.T) {
	tk := newTicker(nil)
	for i := 0; i < tickerInterval+1; i++ {
		tk.tick()
	}
	tk.finish()
}

func TestTickerReportsEveryInterval(t *testing.T) {
	var buf bytes.Buffer
	tk := newTicker(&buf)
	for i := 0; i < tickerInterval-1; i++ {
		tk.tick()
	}
	assert.Empty(t, buf.String(), "no report before the interval elapses")

	tk.tick()
	assert.Equal(t, 1, strings.Count(buf.String(), "simdplan:"))
}

func TestTickerFinishAlwaysReportsOnce(t *testing.T) {
	var buf bytes.Buffer
	tk := newTicker(&buf)
	tk.tick()
	tk.finish()
	assert.Equal(t, 1, strings.Count(buf.String(), "done"))
}
