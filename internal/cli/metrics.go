package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyward/go/internal/engine"
	"github.com/keyward/go/internal/metrics"
	"github.com/keyward/go/internal/vault"
)

// metricsCmd serves the audit as Prometheus metrics
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve audit metrics for Prometheus",
	Long: `Unlock the vault once and serve its audit on /metrics. Every scrape
reloads the vault, so the score follows changes made from other terminals.
Password values are never exported.

Examples:
  keyward metrics                       # Listen on :9310
  keyward metrics --listen 127.0.0.1:9400`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine(ctx, nil)
		if err != nil {
			return err
		}

		exp := metrics.NewExporter(engineSource(eng), metrics.WithLogger(logger))
		eng.Gate().Observe(exp.Observe)
		reg, err := metrics.NewRegistry(exp)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		fmt.Fprintf(stdout, "Serving metrics on http://%s/metrics (Ctrl+C to stop)\n", listen)

		select {
		case err := <-errCh:
			return fmt.Errorf("metrics server failed: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

// engineSource reloads eng on every scrape. Scrapes keep the local session
// alive; once it has expired every scrape reports the vault as down.
func engineSource(eng *engine.Engine) metrics.Source {
	var mu sync.Mutex
	return func(ctx context.Context) ([]*vault.Password, error) {
		mu.Lock()
		defer mu.Unlock()

		if sessionMgr != nil {
			if err := sessionMgr.Refresh(); err != nil {
				return nil, err
			}
		}
		if err := eng.Load(ctx); err != nil {
			return nil, err
		}
		return eng.Records(), nil
	}
}

func init() {
	metricsCmd.Flags().String("listen", ":9310", "Address to serve /metrics on")
}
