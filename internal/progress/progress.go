// Package progress reports coarse progress of batch runs. Sinks are purely
// observational; they never fail the run.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sink receives progress events for a sequence of total steps.
type Sink interface {
	Start(total int)
	Step(label string)
	Done()
}

// Nop discards all events.
type Nop struct{}

func (Nop) Start(int)   {}
func (Nop) Step(string) {}
func (Nop) Done()       {}

// Log reports progress through a zap logger every tenth of the run.
type Log struct {
	logger   *zap.Logger
	total    int
	done     int
	reported int
	started  time.Time
}

// NewLog returns a logging sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Start resets the counters.
func (l *Log) Start(total int) {
	l.total, l.done, l.reported, l.started = total, 0, 0, time.Now()
	l.logger.Info("progress started", zap.Int("total", total))
}

// Step records one completed step.
func (l *Log) Step(label string) {
	l.done++
	if l.total <= 0 {
		return
	}
	decile := l.done * 10 / l.total
	if decile > l.reported {
		l.reported = decile
		l.logger.Info("progress",
			zap.Int("done", l.done),
			zap.Int("total", l.total),
			zap.String("last", label),
			zap.Duration("elapsed", time.Since(l.started)),
		)
	}
}

// Done logs completion.
func (l *Log) Done() {
	l.logger.Info("progress finished", zap.Int("done", l.done), zap.Duration("elapsed", time.Since(l.started)))
}

// Bar draws a single-line text bar, redrawn in place with carriage returns.
type Bar struct {
	w       io.Writer
	width   int
	total   int
	done    int
	started time.Time
}

// NewBar returns a bar of width cells writing to w.
func NewBar(w io.Writer, width int) *Bar {
	if width <= 0 {
		width = 40
	}
	return &Bar{w: w, width: width}
}

// Start draws an empty bar.
func (b *Bar) Start(total int) {
	b.total, b.done, b.started = total, 0, time.Now()
	b.draw()
}

// Step advances the bar.
func (b *Bar) Step(string) {
	b.done++
	b.draw()
}

// Done terminates the bar line.
func (b *Bar) Done() {
	_, _ = fmt.Fprintf(b.w, "\nTotal time elapsed: %s\n", time.Since(b.started).Round(time.Millisecond))
}

func (b *Bar) draw() {
	filled := b.width
	if b.total > 0 {
		filled = min(b.width, b.done*b.width/b.total)
	}
	_, _ = fmt.Fprintf(b.w, "\r[%s%s] %d/%d", strings.Repeat("#", filled), strings.Repeat(" ", b.width-filled), b.done, b.total)
}
