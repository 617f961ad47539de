package simdplan

import (
	"fmt"
	"io"
	"time"
)

// tickerInterval is how many heap pops elapse between progress reports
// (spec.md §6: "progress statistics... emitted every 5000 heap pops and
// once on teardown").
const tickerInterval = 5000

// ticker prints search progress (iteration count and iterations/second) to
// a debug stream, every tickerInterval heap pops and once more when the
// search concludes.
type ticker struct {
	out       io.Writer
	start     time.Time
	lastReport time.Time
	count     int64
}

// newTicker returns a ticker writing to out. A nil out disables all
// reporting, which the tick and finish methods short-circuit on.
func newTicker(out io.Writer) *ticker {
	now := time.Now()
	return &ticker{out: out, start: now, lastReport: now}
}

// tick records one heap pop, printing a progress line every tickerInterval
// calls.
func (t *ticker) tick() {
	if t == nil || t.out == nil {
		return
	}
	t.count++
	if t.count%tickerInterval != 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(t.lastReport).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = tickerInterval / elapsed
	}
	fmt.Fprintf(t.out, "simdplan: %d iterations, %.1f iterations/sec\n", t.count, rate)
	t.lastReport = now
}

// finish prints the final cumulative statistics. Called once, unconditionally,
// when the search concludes (success, infeasibility, or cancellation).
func (t *ticker) finish() {
	if t == nil || t.out == nil {
		return
	}
	elapsed := time.Since(t.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(t.count) / elapsed
	}
	fmt.Fprintf(t.out, "simdplan: done, %d iterations in %.2fs (%.1f iterations/sec)\n", t.count, elapsed, rate)
}
