package analytics

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Metrics struct {
	ProcessingTime time.Duration `json:"processingTime"`
	Processed      int           `json:"processed"`
	Batches        int           `json:"batches"`
}

type Report struct {
	TotalRecords int       `json:"total_records"`
	Columns      []string  `json:"columns"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Processor derives CalculatedValue for batches of records and keeps the
// last batch for reporting.
type Processor struct {
	rnd     *rand.Rand
	log     *zap.Logger
	mu      sync.Mutex
	last    []Record
	metrics Metrics
	now     func() time.Time
}

func NewProcessor(rnd *rand.Rand, log *zap.Logger) *Processor {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Processor{rnd: rnd, log: log, now: time.Now}
}

// Process returns a processed copy of records; the input is not modified.
// CalculatedValue is Value scaled by a random factor in [0, 100).
func (p *Processor) Process(records []Record) []Record {
	if records == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()

	out := make([]Record, len(records))
	for i, r := range records {
		r.CalculatedValue = r.Value * p.rnd.Float64() * 100
		r.Timestamp = r.Timestamp.UTC()
		out[i] = r
	}

	p.metrics.ProcessingTime = time.Since(start)
	p.metrics.Processed += len(out)
	p.metrics.Batches++
	p.last = out

	p.log.Debug("processed batch",
		zap.Int("records", len(out)),
		zap.Duration("took", p.metrics.ProcessingTime))

	return out
}

func (p *Processor) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.metrics
}

// Report describes the last processed batch, or returns nil before the first one
func (p *Processor) Report() *Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		return nil
	}

	return &Report{
		TotalRecords: len(p.last),
		Columns:      Columns,
		GeneratedAt:  p.now(),
	}
}
