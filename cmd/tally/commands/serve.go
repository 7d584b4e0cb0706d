package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/tally/internal/editor"
	"github.com/dyluth/tally/internal/gateway"
	"github.com/dyluth/tally/internal/metrics"
	"github.com/dyluth/tally/pkg/collab"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser gateway",
	Long: `Run the HTTP gateway browsers count through.

Endpoints:
  GET /ws/{session}?user=<id>          websocket carrying one editor per tab
  GET /sessions/{session}/totals       totals of every item
  GET /sessions/{session}/totals/{item}
  GET /locations
  GET /healthz                         Redis connectivity
  GET /metrics                         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	channel, err := collab.NewChannel(client.RedisClient(), cfg.Namespace, collab.WithPresenceTTL(cfg.PresenceTTL()))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := gateway.New(client, channel,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics.New(reg), reg),
		gateway.WithEditorOptions(
			editor.WithTypingGrace(cfg.TypingGrace()),
			editor.WithSaveTimeout(cfg.SaveTimeout()),
			editor.WithPeerTTL(cfg.PresenceTTL()),
		),
	)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	logger.Info("serving", "namespace", cfg.Namespace, "addr", addr)
	return srv.ListenAndServe(ctx, addr)
}
