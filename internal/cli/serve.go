package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/watsumi/gentle-review/internal/enhancer"
	"github.com/watsumi/gentle-review/internal/middleware"
	"github.com/watsumi/gentle-review/internal/server"
	"github.com/watsumi/gentle-review/internal/session"
	"github.com/watsumi/gentle-review/internal/settings"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			cfg.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, useMock)
		if err != nil {
			return err
		}
		defer a.Close()

		reg := session.NewRegistry(ctx, a.engine, time.Duration(cfg.SessionTTLMinutes)*time.Minute,
			enhancer.WithToastTTL(time.Duration(cfg.ToastSeconds)*time.Second),
			enhancer.WithEnabled(func(ctx context.Context) (bool, error) {
				s, err := a.store.Get(ctx)
				return s.Enabled, err
			}),
		)
		defer reg.Close()

		// Requests answer 503 until the engine is ready.
		go func() {
			if err := a.engine.Initialize(ctx, logProgress()); err != nil {
				slog.Error("engine initialization failed", "error", err)
			}
		}()

		var rl *middleware.RateLimiter
		if cfg.RateLimitPerMinute > 0 {
			rl = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		}
		handler := server.SetupMux(server.Deps{
			Adapters:     a.adapters,
			Models:       a.models,
			Engine:       a.engine,
			Settings:     settings.NewRouter(a.store),
			Sessions:     reg,
			APIKey:       cfg.APIKey,
			RateLimiter:  rl,
			MaxBodyBytes: cfg.MaxBodyBytes,
		})

		if cfg.APIKey != "" {
			slog.Info("auth: API key required (X-API-Key header)")
		} else {
			slog.Info("auth: disabled (no api_key configured)")
		}

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			slog.Info("gentle review api listening", "addr", addr)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		slog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override listen port")
}
