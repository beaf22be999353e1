package main

import (
	"context"
	"time"

	"github.com/sfi2k7/rechannel/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serveExample = `# Stream analytics records on :8080 every second
rechannel serve

# Serve over TLS with a certificate from Let's Encrypt
rechannel serve --port 443 --autotls-domain stream.example.com`

type serveOptions struct {
	port        int
	upgrader    string
	interval    time.Duration
	window      int
	streamPath  string
	cert        string
	key         string
	autoTLS     []string
	autoTLSDir  string
	statsToken  string
	statsPath   string
	disableStat bool
}

func newServeCmd() *cobra.Command {
	o := &serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the analytics stream server",
		Example: serveExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(o)
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.port, "port", 8080, "port to listen on")
	f.StringVar(&o.upgrader, "upgrader", server.UpgraderGorilla, "websocket implementation: gorilla or nbio")
	f.DurationVar(&o.interval, "interval", time.Second, "time between published records")
	f.IntVar(&o.window, "window", 50, "records kept for the dashboard")
	f.StringVar(&o.streamPath, "path", "/stream", "websocket stream path")
	f.StringVar(&o.cert, "cert", "", "TLS certificate file")
	f.StringVar(&o.key, "key", "", "TLS key file")
	f.StringSliceVar(&o.autoTLS, "autotls-domain", nil, "domains to obtain certificates for")
	f.StringVar(&o.autoTLSDir, "autotls-cache", "certs", "certificate cache directory")
	f.StringVar(&o.statsToken, "stats-token", "", "token enabling the stats endpoint")
	f.StringVar(&o.statsPath, "stats-path", "", "stats route, must contain :token")
	f.BoolVar(&o.disableStat, "no-stats", false, "disable the stats endpoint")
	cmd.MarkFlagsRequiredTogether("cert", "key")
	cmd.MarkFlagsMutuallyExclusive("cert", "autotls-domain")

	return cmd
}

func runServe(o *serveOptions) error {
	log := zap.L()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := server.NewRouter(log)
	cfg := router.Config().
		SetDev(dev).
		SetPort(o.port).
		SetUpgrader(o.upgrader).
		StopOnInterrupt().
		OnStop(cancel)

	if o.statsToken != "" {
		cfg.SetStatsToken(o.statsToken)
	}
	if o.statsPath != "" {
		cfg.SetStatsEndpoint(o.statsPath)
	}
	if o.disableStat {
		cfg.DisableStats()
	}

	switch {
	case len(o.autoTLS) > 0:
		cfg.UseAutoTLS(o.autoTLS, o.autoTLSDir)
	case o.cert != "":
		cfg.UseSSL(o.cert, o.key)
	}

	pub := server.NewPublisher(o.interval, o.window, nil, log)
	router.MountAnalytics(pub, o.streamPath)

	go func() {
		if err := pub.Run(ctx); err != nil {
			log.Error("publisher stopped", zap.Error(err))
		}
	}()

	return router.StartServer()
}
