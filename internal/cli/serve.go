package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
	"github.com/Sternrassler/marketbars/pkg/fetch"
	"github.com/Sternrassler/marketbars/pkg/metrics"
	"github.com/Sternrassler/marketbars/pkg/ratelimit"
)

// proxiedHeaders are copied from upstream answers. Content-Encoding and
// Content-Length are dropped because the body is already decoded.
var proxiedHeaders = []string{
	"Content-Type",
	ratelimit.HeaderLimit,
	ratelimit.HeaderRemaining,
	ratelimit.HeaderReset,
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health, metrics and market-data proxy server",
		Long: `Serve /health, /ready, /metrics and a read-only proxy of the market-data
API under /v2/. Proxied calls share the connection pool, retry policy and
rate-limit state of the other commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := newAPIApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			jar, err := newProxyJar(a)
			if err != nil {
				return err
			}

			p := &proxy{
				http:     a.http,
				dataHost: strings.TrimRight(cfg.Alpaca.DataHost, "/"),
				keyID:    cfg.Alpaca.KeyID,
				secret:   cfg.Alpaca.SecretKey,
				jar:      jar,
				tracker:  a.tracker,
				logger:   a.logger,
			}
			return serve(ctx, cfg.Server.Addr, newServerMux(a.redis, p), a.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

// newProxyJar shares cookies between instances when redis is configured.
func newProxyJar(a *app) (fetch.CookieJar, error) {
	if a.redis != nil {
		return fetch.Serialize(fetch.NewRedisJar(a.redis, a.cfg.Redis.CookieTTL)), nil
	}
	jar, err := fetch.NewJar()
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return fetch.Serialize(jar), nil
}

func newServerMux(redisClient *redis.Client, p *proxy) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/v2/", p)
	return mux
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// proxy forwards read-only calls to the market-data host.
type proxy struct {
	http     *fetch.Client
	dataHost string
	keyID    string
	secret   string
	jar      fetch.CookieJar
	tracker  *ratelimit.Tracker
	logger   zerolog.Logger
}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONError(w, http.StatusMethodNotAllowed, "only GET is proxied", "")
		return
	}

	ctx := r.Context()
	if p.tracker != nil {
		if err := p.tracker.Wait(ctx); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "rate limit wait interrupted", "")
			return
		}
	}

	target := p.dataHost + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = "application/json"
	}

	resp, err := p.http.Get(ctx, target,
		fetch.WithHeader(alpaca.HeaderKeyID, p.keyID),
		fetch.WithHeader(alpaca.HeaderSecretKey, p.secret),
		fetch.WithHeader("Accept", accept),
		fetch.WithJar(p.jar),
	)
	if err != nil {
		errType := ""
		var fe *fetch.Error
		if errors.As(err, &fe) {
			errType = fe.Type()
		}
		p.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Proxy request failed")
		writeJSONError(w, http.StatusBadGateway, err.Error(), errType)
		return
	}

	if p.tracker != nil {
		if err := p.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
		}
	}

	for _, h := range proxiedHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to write proxy response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]string{"message": message}
	if errType != "" {
		body["type"] = errType
	}
	json.NewEncoder(w).Encode(body)
}
