package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/config"
	"kalshi-trader/internal/detector"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/execution"
	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/kalshi"
	"kalshi-trader/internal/logging"
	"kalshi-trader/internal/notify"
	"kalshi-trader/internal/observability"
	"kalshi-trader/internal/orchestrator"
	"kalshi-trader/internal/paper"
	"kalshi-trader/internal/position"
	"kalshi-trader/internal/strategy"
)

// stopTimeout bounds withdrawing resting orders on shutdown.
const stopTimeout = 30 * time.Second

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			log := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}
}

// newClient builds the Kalshi REST client, signing when credentials are configured.
func newClient(cfg config.Kalshi, log zerolog.Logger) (*kalshi.Client, kalshi.Signer, error) {
	opts := []kalshi.Option{
		kalshi.WithBaseURL(cfg.BaseURL),
		kalshi.WithTimeout(cfg.Timeout),
		kalshi.WithMaxRetries(cfg.MaxRetries),
		kalshi.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		kalshi.WithMarketTTL(cfg.MarketTTL),
		kalshi.WithLogger(log),
	}
	var signer kalshi.Signer
	if cfg.Authenticated() {
		rsa, err := kalshi.LoadRSASigner(cfg.APIKeyID, cfg.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load signing key: %w", err)
		}
		signer = rsa
		opts = append(opts, kalshi.WithSigner(signer))
	}
	client, err := kalshi.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create kalshi client: %w", err)
	}
	return client, signer, nil
}

// run wires every component and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().Bool("dry_run", cfg.App.DryRun).Strs("strategies", kindNames(cfg.Scanner.Enabled())).Msg("starting trader")

	if cfg.App.MetricsAddr != "" {
		srv := startHTTPServer(cfg.App.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	client, signer, err := newClient(cfg.Kalshi, log)
	if err != nil {
		return err
	}

	var gw gateway.Gateway = client
	execCfg := cfg.Execution
	if cfg.App.DryRun {
		gw = paper.New(client, cfg.Paper, log)
		execCfg.Simulated = true
		log.Warn().Int64("starting_cash_cents", int64(cfg.Paper.StartingCash)).Msg("dry run: orders are simulated")
	}

	st, err := openStores(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer st.close()

	classifier := classify.NewKeyword(cfg.Classify)

	revLedger, err := detector.NewLedger(ctx, st.cooldowns[domain.KindReversion], cfg.Reversion.Cooldown, log)
	if err != nil {
		return err
	}
	impLedger, err := detector.NewLedger(ctx, st.cooldowns[domain.KindImpliedProb], cfg.Implied.Cooldown, log)
	if err != nil {
		return err
	}
	menLedger, err := detector.NewLedger(ctx, st.cooldowns[domain.KindMention], cfg.Mention.Cooldown, log)
	if err != nil {
		return err
	}

	policies, err := strategy.SetFromConfig(cfg.Exits)
	if err != nil {
		return err
	}

	executor := execution.New(gw, execCfg, st.events, log)
	tracker, err := position.NewTracker(ctx, cfg.Positions, gw, executor, policies, st.positions, st.events, log)
	if err != nil {
		return err
	}

	notifier := notify.Multi{notify.NewLog(log)}
	if cfg.Notify.WebhookURL != "" {
		notifier = append(notifier, notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}

	var trades gateway.TradeSource
	if cfg.Kalshi.TradeSource == config.TradeSourceStream {
		stream, err := kalshi.NewTradeStream(ctx, cfg.Kalshi.StreamURL, &cfg.Stream, signer, log)
		if err != nil {
			// REST polling still serves the reversion scan.
			log.Warn().Err(err).Msg("trade stream unavailable, using REST trades")
		} else {
			defer stream.Close()
			trades = stream
		}
	}

	scanner := orchestrator.New(orchestrator.Options{
		Config:     cfg.Scanner,
		Gateway:    gw,
		Trades:     trades,
		Executor:   executor,
		Tracker:    tracker,
		Reversion:  detector.NewReversion(cfg.Reversion, classifier, revLedger, log),
		Implied:    detector.NewImplied(cfg.Implied, classifier, impLedger, log),
		Mention:    detector.NewMention(cfg.Mention, classifier, menLedger, log),
		Cooldowns:  menLedger,
		Series:     kalshi.NewSeriesDiscovery(client, cfg.Discovery, log),
		Classifier: classifier,
		Notifier:   notifier,
		Events:     st.events,
		Log:        log,
		DryRun:     cfg.App.DryRun,
	})

	scanner.Start(ctx)
	runErr := scanner.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	scanner.Stop(stopCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info().Int("open", len(tracker.OpenPositions())).Strs("resting", scanner.Resting()).Msg("shutdown complete")
	return nil
}

// startHTTPServer serves health and Prometheus metrics in the background.
func startHTTPServer(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	return srv
}

func kindNames(kinds []domain.SignalKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
