// Package httpapi serves the token relay: GET /token plus health and API
// description routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/token"
)

const (
	routeToken   = "/token"
	routeHealth  = "/healthz"
	routeOpenAPI = "/swagger/v1/swagger.json"
)

// TokenExchanger obtains a fresh access token per call.
type TokenExchanger interface {
	Exchange(ctx context.Context) (token.Response, error)
}

// Config controls optional parts of the handler.
type Config struct {
	// Swagger enables the OpenAPI document route.
	Swagger bool
	// RateLimit is the per-client request rate for /token; 0 disables it.
	RateLimit float64
	RateBurst int
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler is the relay's HTTP handler.
type Handler struct {
	exchanger TokenExchanger
	cfg       Config
	log       logging.Logger
	rec       HTTPRecorder
	mux       *http.ServeMux
	root      http.Handler
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l logging.Logger) HandlerOption {
	return func(h *Handler) { h.log = logging.OrNoop(l) }
}

// WithMetrics sets the recorder used by the metrics middleware.
func WithMetrics(rec HTTPRecorder) HandlerOption {
	return func(h *Handler) { h.rec = rec }
}

// NewHandler builds the routed, middleware-wrapped relay handler. ctx bounds
// background work started by the middlewares.
func NewHandler(ctx context.Context, ex TokenExchanger, cfg Config, opts ...HandlerOption) *Handler {
	h := &Handler{
		exchanger: ex,
		cfg:       cfg,
		log:       logging.Noop(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.Handle(routeToken, RateLimit(ctx, cfg.RateLimit, cfg.RateBurst)(http.HandlerFunc(h.serveToken)))
	h.mux.HandleFunc(routeHealth, h.serveHealth)
	if cfg.Swagger {
		h.mux.HandleFunc(routeOpenAPI, h.serveOpenAPI)
	}

	h.root = Chain(h.mux,
		Recovery(h.log),
		RequestID(),
		Tracing(),
		Metrics(h.rec),
		RequestLogger(h.log),
		CORS(),
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp, err := h.exchanger.Exchange(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		var uerr *token.UpstreamError
		if errors.As(err, &uerr) {
			status = uerr.HTTPStatus()
		}
		h.log.Warn(r.Context(), "token request failed",
			logging.Int("status", status),
			logging.Err(err),
		)
		writeError(w, status, "token exchange failed")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := json.Marshal(OpenAPI())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// ServerConfig holds listener settings for NewServer.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// NewServer wraps h in an http.Server with the configured timeouts.
func NewServer(cfg ServerConfig, h http.Handler) *http.Server {
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
