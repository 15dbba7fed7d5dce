package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chowfast/core"
	"chowfast/observability"
)

const (
	defaultMaxBodyBytes      = 1 << 20
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	requestIDHeader          = "X-Request-ID"
)

// Config tunes the HTTP front end.
type Config struct {
	MaxBodyBytes       int64
	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustProxyHeaders  bool
	JWT                JWTConfig

	// Idempotency, when set, caches committed invocation results keyed by the
	// Idempotency-Key header.
	Idempotency    *IdempotencyStore
	IdempotencyTTL time.Duration

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	Logger *slog.Logger
}

// Server exposes a Node over JSON-RPC 2.0.
type Server struct {
	node    *core.Node
	cfg     Config
	logger  *slog.Logger
	limiter *rateLimiter
	auth    *authenticator
	now     func() time.Time
}

// NewServer validates cfg and binds it to node.
func NewServer(node *core.Node, cfg Config) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	auth, err := newAuthenticator(cfg.JWT)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "rpc")),
		limiter: newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		auth:    auth,
		now:     time.Now,
	}, nil
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Post("/", s.handleRPC)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "chowfast.rpc")
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"height": s.node.Status().Height,
	})
}

// callError is a failed call on its way to the wire.
type callError struct {
	status  int
	code    int
	message string
	data    interface{}
}

func invalidParams(format string, args ...interface{}) *callError {
	return &callError{status: http.StatusBadRequest, code: codeInvalidParams, message: fmt.Sprintf(format, args...)}
}

func fromLedger(err error) *callError {
	status, code, message, data := ledgerError(err)
	return &callError{status: status, code: code, message: message, data: data}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	w.Header().Set("Content-Type", "application/json")

	client := clientSource(r, s.cfg.TrustProxyHeaders)
	if !s.limiter.allow(client) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	result, callErr := s.dispatch(r, &req)
	code := 0
	if callErr != nil {
		code = callErr.code
	}
	observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, code, s.now().Sub(start))
	if callErr != nil {
		writeError(w, callErr.status, req.ID, callErr.code, callErr.message, callErr.data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (interface{}, *callError) {
	if invocationMethods[req.Method] {
		return s.handleInvoke(r, req)
	}
	handler, ok := queryMethods[req.Method]
	if !ok {
		return nil, &callError{status: http.StatusNotFound, code: codeMethodNotFound, message: fmt.Sprintf("method %q not found", req.Method)}
	}
	return handler(s, req)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return "rpc"
}
