package analysis

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Progress receives advisory updates while home ranges are built. It has
// no effect on results. Implementations must tolerate concurrent Step
// calls, and Close is guaranteed on every exit path of a run, including
// no-data early returns and fit failures.
type Progress interface {
	Start(totalIndividuals int)
	Step(individual string, samples int)
	Close()
}

// NopProgress discards all updates. It is the default when the caller
// injects nothing.
type NopProgress struct{}

func (NopProgress) Start(int)        {}
func (NopProgress) Step(string, int) {}
func (NopProgress) Close()           {}

// LogProgress reports through the global zap logger, rate-limited so a
// many-individual run cannot flood the log.
type LogProgress struct {
	log     *zap.Logger
	limiter *rate.Limiter
	total   int64
	done    atomic.Int64
}

// NewLogProgress returns a LogProgress capped at two step lines per
// second.
func NewLogProgress() *LogProgress {
	return &LogProgress{
		log:     zap.L().With(zap.String("component", "analysis.progress")),
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
}

func (p *LogProgress) Start(totalIndividuals int) {
	p.total = int64(totalIndividuals)
	p.log.Info("building home ranges", zap.Int("individuals", totalIndividuals))
}

func (p *LogProgress) Step(individual string, samples int) {
	done := p.done.Add(1)
	if !p.limiter.Allow() {
		return
	}
	p.log.Info("home range grown",
		zap.String("individual", individual),
		zap.Int("samples", samples),
		zap.Int64("done", done),
		zap.Int64("total", p.total))
}

func (p *LogProgress) Close() {
	p.log.Info("home range growth finished", zap.Int64("done", p.done.Load()))
}
