package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/cwpctl/internal/config"
	"github.com/danmuck/cwpctl/internal/engine"
	"github.com/danmuck/cwpctl/internal/logging"
	"github.com/danmuck/cwpctl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const closeTimeout = 3 * time.Second

type connectFlags struct {
	host        string
	port        int
	speed       string
	unitWidth   time.Duration
	frequency   int64
	noLatency   bool
	metricsAddr string
}

func connectCmd(root *rootOptions) *cobra.Command {
	flags := &connectFlags{}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a CWP server and key text from stdin",
		Long: `Connect to a CWP server. Each stdin line is sent as a morse message.
Lines starting with a slash are commands:

  /freq N   change channel
  /up       hold the key up
  /down     release the key
  /clear    clear received text
  /state    print the current state
  /quit     disconnect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, &cfg); err != nil {
				return err
			}
			if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && root.logLevel == "" {
				logging.SetLevel(lvl)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.host, "host", "", "server host")
	cmd.Flags().IntVar(&flags.port, "port", 0, "server port")
	cmd.Flags().StringVar(&flags.speed, "speed", "", "morse speed preset: fast, med or slow")
	cmd.Flags().DurationVar(&flags.unitWidth, "unit-width", 0, "morse unit width, overrides --speed")
	cmd.Flags().Int64Var(&flags.frequency, "freq", 0, "channel joined after connecting")
	cmd.Flags().BoolVar(&flags.noLatency, "no-latency", false, "deliver remote keying without latency management")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func (f *connectFlags) apply(cmd *cobra.Command, cfg *config.Client) error {
	set := cmd.Flags().Changed
	if set("host") {
		cfg.Server.Host = f.host
	}
	if set("port") {
		cfg.Server.Port = f.port
	}
	if set("speed") {
		width, ok := config.SpeedWidth(f.speed)
		if !ok {
			return fmt.Errorf("%w: speed %q", config.ErrInvalidConfig, f.speed)
		}
		cfg.Server.UnitWidth = width
	}
	if set("unit-width") {
		cfg.Server.UnitWidth = f.unitWidth
	}
	if set("freq") {
		cfg.Frequency = f.frequency
	}
	if set("no-latency") {
		cfg.Server.LatencyManagement = !f.noLatency
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	return cfg.Validate()
}

func runConnect(ctx context.Context, cfg config.Client, in io.Reader, out io.Writer) error {
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	con := newConsole(out)
	eng := engine.New(con, cfg.EngineOptions())
	if err := eng.Configure(cfg.Server); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Msgf("cwpctl.connect host=%q port=%d unit_width=%v", cfg.Server.Host, cfg.Server.Port, cfg.Server.UnitWidth)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case raw, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := handleLine(eng, con, raw); quit {
				break loop
			}
		}
	}

	err := eng.Close(closeTimeout)
	cancel()
	if runErr := <-runDone; runErr != nil && err == nil {
		err = runErr
	}
	return err
}

// handleLine applies one stdin line and reports whether to quit.
func handleLine(eng *engine.Engine, con *console, raw string) bool {
	l, err := parseLine(raw)
	if err != nil {
		con.printf("error %v", err)
		return false
	}
	switch l.kind {
	case lineText:
		if err := eng.SendText(l.text); err != nil {
			if errors.Is(err, engine.ErrBusy) {
				con.printf("error still sending, wait for tx done")
				return false
			}
			con.printf("error %v", err)
		}
	case lineFrequency:
		if err := eng.SetFrequency(l.freq); err != nil {
			con.printf("error %v", err)
		}
	case lineKeyUp:
		eng.SetKeyingState(true)
	case lineKeyDown:
		eng.SetKeyingState(false)
	case lineClear:
		eng.ClearHistory()
	case lineState:
		con.printf("state %s", eng.State())
		eng.RequestCurrentState()
	case lineQuit:
		return true
	}
	return false
}

func serveMetrics(addr string) *http.Server {
	observability.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Msgf("cwpctl.metrics listen addr=%s err=%v", addr, err)
		}
	}()
	log.Info().Msgf("cwpctl.metrics listening addr=%s", addr)
	return srv
}
