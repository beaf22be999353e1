package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sfi2k7/rechannel/analytics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Publisher generates analytics records at a limited rate, keeps a rolling
// window of them and hands each one to broadcast.
type Publisher struct {
	gen       *analytics.Generator
	proc      *analytics.Processor
	window    *analytics.Window
	limiter   *rate.Limiter
	broadcast func(Data) int
	log       *zap.Logger
}

// NewPublisher emits one record per interval; window bounds the dashboard history.
func NewPublisher(interval time.Duration, window int, broadcast func(Data) int, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.L()
	}

	return &Publisher{
		gen:       analytics.NewGenerator(nil),
		proc:      analytics.NewProcessor(nil, log),
		window:    analytics.NewWindow(window),
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		broadcast: broadcast,
		log:       log,
	}
}

// SetBroadcast replaces the sink, for wiring after the websocket server exists
func (p *Publisher) SetBroadcast(fn func(Data) int) {
	p.broadcast = fn
}

// Run publishes until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "publisher rate limit")
		}

		if _, err := p.PublishOne(); err != nil {
			p.log.Error("publish failed", zap.Error(err))
		}
	}
}

func (p *Publisher) PublishOne() (analytics.Record, error) {
	r := p.proc.Process([]analytics.Record{p.gen.Next()})[0]
	p.window.Add(r)

	data, err := toData(r)
	if err != nil {
		return r, errors.Wrap(err, "encode record")
	}

	if p.broadcast != nil {
		n := p.broadcast(data)
		p.log.Debug("record published", zap.String("label", r.Label), zap.Int("sessions", n))
	}
	return r, nil
}

func (p *Publisher) Dashboard() analytics.Dashboard {
	return analytics.BuildDashboard(p.window.Snapshot())
}

// RecentDashboard charts only the newest n records of the window
func (p *Publisher) RecentDashboard(n int) analytics.Dashboard {
	records := p.window.Snapshot()
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return analytics.BuildDashboard(records)
}

func (p *Publisher) Report() *analytics.Report {
	return p.proc.Report()
}

func (p *Publisher) Metrics() analytics.Metrics {
	return p.proc.Metrics()
}
