package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sfi2k7/rechannel"
	"github.com/sfi2k7/rechannel/analytics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type listenOptions struct {
	endpoint    string
	maxAttempts int
	baseDelay   time.Duration
	window      int
}

func newListenCmd() *cobra.Command {
	o := &listenOptions{}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Follow an analytics stream through a reconnecting channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.endpoint, "endpoint", "ws://localhost:8080/stream", "websocket endpoint")
	f.IntVar(&o.maxAttempts, "max-attempts", 5, "reconnect attempts before giving up")
	f.DurationVar(&o.baseDelay, "base-delay", time.Second, "delay unit for linear backoff")
	f.IntVar(&o.window, "window", 50, "records kept for the summary")

	return cmd
}

// listener folds stream records into a window and logs a summary once the
// stream goes quiet.
type listener struct {
	log     *zap.Logger
	window  *analytics.Window
	summary *analytics.Debouncer[int]
	done    chan string
}

func newListener(log *zap.Logger, size int) *listener {
	l := &listener{
		log:    log,
		window: analytics.NewWindow(size),
		done:   make(chan string, 1),
	}
	l.summary = analytics.NewDebouncer(analytics.DefaultDebounce, l.logSummary)
	return l
}

func (l *listener) register(cfg *rechannel.Config) *rechannel.Config {
	return cfg.
		On(rechannel.EventConnected, func(e *rechannel.Event) {
			l.log.Info("connected", zap.String("channel", e.ChannelID))
		}).
		On(rechannel.EventData, l.onData).
		On(rechannel.EventDisconnected, func(e *rechannel.Event) {
			l.log.Warn("disconnected", zap.Int("attempt", e.Attempt))
		}).
		On(rechannel.EventError, func(e *rechannel.Event) {
			l.log.Error("channel error", zap.Error(e.Err))
		}).
		On(rechannel.EventMaxReconnectAttemptsReached, func(e *rechannel.Event) {
			l.finish(fmt.Sprintf("gave up after %d reconnect attempts", e.Attempt))
		})
}

func (l *listener) onData(e *rechannel.Event) {
	body := e.Data()
	if t := body.String("type"); t != "" {
		l.log.Debug("stream message", zap.String("type", t))
		return
	}

	r, err := analytics.FromMap(body)
	if err != nil {
		l.log.Warn("unexpected record", zap.Error(err))
		return
	}

	l.window.Add(r)
	l.summary.Push(l.window.Len())
}

func (l *listener) logSummary(n int) {
	dash := analytics.BuildDashboard(l.window.Snapshot())
	l.log.Info("stream summary",
		zap.Int("records", n),
		zap.Strings("labels", dash.BarChartData.Labels),
		zap.Float64s("totals", firstDataset(dash.BarChartData)),
	)
}

func (l *listener) finish(reason string) {
	select {
	case l.done <- reason:
	default:
	}
}

func firstDataset(c analytics.ChartData) []float64 {
	if len(c.Datasets) == 0 {
		return nil
	}
	return c.Datasets[0].Data
}

func runListen(o *listenOptions) error {
	log := zap.L()
	l := newListener(log, o.window)
	defer l.summary.Stop()

	cfg := rechannel.NewConfig().
		SetMaxAttempts(o.maxAttempts).
		SetBaseDelay(o.baseDelay).
		SetLogger(log)

	c, err := rechannel.New(o.endpoint, l.register(cfg))
	if err != nil {
		return err
	}
	defer c.Close()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case reason := <-l.done:
		fmt.Fprintf(os.Stderr, "connection to %s permanently lost: %s\n", o.endpoint, reason)
		return nil
	case <-sig:
		log.Info("closing channel")
		return nil
	}
}
