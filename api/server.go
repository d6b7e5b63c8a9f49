// Package api serves snapshots over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/defistate/lpsnapshot-go/snapshot"
	"github.com/defistate/lpsnapshot-go/sources/subgraph"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

// Snapshotter builds the documents the server returns, normally a *snapshot.Service.
type Snapshotter interface {
	Composition(ctx context.Context, pool common.Address, block uint64, activeOnly bool) (uniswapv3.Composition, error)
	PendingFees(ctx context.Context, pool common.Address, block uint64) (uniswapv3.PendingFees, error)
	PositionDiff(ctx context.Context, pool common.Address, fromBlock, toBlock uint64) (uniswapv3.PositionSetDiff, error)
}

// Config holds the dependencies of a Server.
type Config struct {
	Snapshots      Snapshotter
	Registry       prometheus.Registerer
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func (c *Config) validate() error {
	if c.Snapshots == nil {
		return errors.New("config: Snapshots cannot be nil")
	}
	if c.Registry == nil || c.Gatherer == nil {
		return errors.New("config: Registry and Gatherer are required")
	}
	return nil
}

// Server routes snapshot requests to a Snapshotter.
type Server struct {
	snapshots Snapshotter
	timeout   time.Duration
	logger    *zap.Logger
	mux       *http.ServeMux

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewServer creates a Server and registers its routes and metrics.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		snapshots: cfg.Snapshots,
		timeout:   cfg.RequestTimeout,
		logger:    logger,
		mux:       http.NewServeMux(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpsnapshot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lpsnapshot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if err := cfg.Registry.Register(s.requests); err != nil {
		return nil, fmt.Errorf("register requests metric: %w", err)
	}
	if err := cfg.Registry.Register(s.duration); err != nil {
		return nil, fmt.Errorf("register duration metric: %w", err)
	}

	s.handle("GET /v3-composition/{pool}/{block}", "composition", s.composition)
	s.handle("GET /v3-pending-fees/{pool}/{block}", "pending_fees", s.pendingFees)
	s.handle("GET /v3-position-diff/{pool}/{fromBlock}/{toBlock}", "position_diff", s.positionDiff)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("/"))
	})
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

type handlerFunc func(r *http.Request) (any, error)

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handle(pattern, route string, h handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			s.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			s.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		}()

		if s.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		body, err := h(r)
		if err != nil {
			code := statusCode(err)
			if code >= http.StatusInternalServerError {
				s.logger.Error("request failed", zap.String("route", route), zap.String("path", r.URL.Path), zap.Error(err))
			}
			writeJSON(rec, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(rec, http.StatusOK, body)
	})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, snapshot.ErrInvalidBlocks):
		return http.StatusBadRequest
	case errors.Is(err, subgraph.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, snapshot.ErrFeesUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func parsePool(r *http.Request) (common.Address, error) {
	raw := r.PathValue("pool")
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: invalid pool address %q", errBadRequest, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseBlock(r *http.Request, name string) (uint64, error) {
	raw := r.PathValue(name)
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return block, nil
}

func (s *Server) composition(r *http.Request) (any, error) {
	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	block, err := parseBlock(r, "block")
	if err != nil {
		return nil, err
	}

	activeOnly := false
	if raw := r.URL.Query().Get("activeOnly"); raw != "" {
		if activeOnly, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("%w: invalid activeOnly %q", errBadRequest, raw)
		}
	}
	return s.snapshots.Composition(r.Context(), pool, block, activeOnly)
}

func (s *Server) pendingFees(r *http.Request) (any, error) {
	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	block, err := parseBlock(r, "block")
	if err != nil {
		return nil, err
	}
	return s.snapshots.PendingFees(r.Context(), pool, block)
}

func (s *Server) positionDiff(r *http.Request) (any, error) {
	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	fromBlock, err := parseBlock(r, "fromBlock")
	if err != nil {
		return nil, err
	}
	toBlock, err := parseBlock(r, "toBlock")
	if err != nil {
		return nil, err
	}
	return s.snapshots.PositionDiff(r.Context(), pool, fromBlock, toBlock)
}
