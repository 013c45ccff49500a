// Package web serves the relay's HTTP side: the device WebSocket, the
// device bootstrap script, health and metrics.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chronologos/ttyrelay/internal/relay"
	"github.com/chronologos/ttyrelay/internal/transport"
)

// addressPlaceholder in the bootstrap script is replaced with the device
// WebSocket base URL.
const addressPlaceholder = "$ADDRESS"

type Options struct {
	Registry *relay.Registry
	// PublicURL is the externally visible http(s) URL of this server.
	PublicURL string
	// Script is the device bootstrap program. /client is 404 without it.
	Script []byte
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

type server struct {
	reg    *relay.Registry
	script []byte
	log    *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	s := &server{
		reg: opts.Registry,
		log: opts.Log.With("component", "http"),
	}
	if opts.Script != nil {
		s.script = bytes.ReplaceAll(opts.Script, []byte(addressPlaceholder), []byte(DeviceURL(opts.PublicURL)))
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/client", s.serveScript)
	r.Get("/ws/{token}", s.serveDevice)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// DeviceURL turns the public http(s) URL into the WebSocket base devices
// append their token to.
func DeviceURL(publicURL string) string {
	u := strings.TrimRight(publicURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (s *server) serveScript(w http.ResponseWriter, _ *http.Request) {
	if s.script == nil {
		http.Error(w, "no bootstrap script configured", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(s.script)
}

// serveDevice pairs the socket with the login waiting on the token.
// Rejections happen before the upgrade, so the device sees a plain HTTP
// status.
func (s *server) serveDevice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	c, err := s.reg.Claim(token)
	if err != nil {
		s.log.Info("device rejected", "remote", r.RemoteAddr, "err", err)
		http.Error(w, err.Error(), claimStatus(err))
		return
	}

	conn, err := transport.AcceptWebSocket(w, r)
	if err != nil {
		// Accept has already written an error response.
		c.Abandon(err)
		return
	}
	c.Serve(r.Context(), transport.KindWebSocket, conn)
}

func claimStatus(err error) int {
	switch {
	case errors.Is(err, relay.ErrMalformedToken):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrAlreadyPaired):
		return http.StatusConflict
	default:
		return http.StatusNotFound
	}
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// Serve runs h on ln until ctx ends. Request contexts derive from ctx, so
// shutdown also ends device connections.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
