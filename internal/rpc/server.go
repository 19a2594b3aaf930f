// Package rpc provides a JSON-RPC 2.0 server for deposit address derivation
// and verification.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klingon-exchange/depositaddr/internal/storage"
	"github.com/klingon-exchange/depositaddr/internal/verify"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

const (
	maxBodySize   = 1 << 20
	maxBatchSize  = 32
	shutdownGrace = 5 * time.Second
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	verifier *verify.Verifier
	store    *storage.Storage
	metrics  *Metrics
	events   *EventHub
	log      *logging.Logger
	started  time.Time

	// methods is filled once in NewServer and read-only afterwards.
	methods map[string]Handler

	httpServer *http.Server
	listener   net.Listener
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes.
const (
	VerificationMismatch = -32001 // an address or destination did not match
	UpstreamError        = -32002 // the deposit API failed
	NotFound             = -32004
	HistoryDisabled      = -32005
)

// NewServer creates a new JSON-RPC server. store may be nil, in which case
// the history methods report HistoryDisabled.
func NewServer(v *verify.Verifier, store *storage.Storage) *Server {
	s := &Server{
		verifier: v,
		store:    store,
		events:   NewEventHub(),
		log:      logging.GetDefault().Component("rpc"),
		started:  time.Now(),
	}
	s.metrics = newMetrics(v.Service().Network(), s.events.Subscribers)

	s.methods = map[string]Handler{
		"node_info":             s.nodeInfo,
		"chains_list":           s.chainsList,
		"deposit_deriveAddress": s.depositDeriveAddress,
		"deposit_verify":        s.depositVerify,
		"verifications_list":    s.verificationsList,
		"verifications_get":     s.verificationsGet,
	}
	return s
}

// HTTPHandler returns the routes served by Start.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return withCORS(mux)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go s.events.Run()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	bound := ln.Addr().String()
	s.log.Info("RPC server started", "addr", bound, "ws", "ws://"+bound+"/ws", "metrics", "http://"+bound+"/metrics")
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop disconnects subscribers and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.events.Stop()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleRPC serves a single request or a batch.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.respond(w, errorResponse(nil, ParseError, "Parse error", nil))
		return
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			s.respond(w, errorResponse(nil, ParseError, "Parse error", nil))
			return
		}
		if len(batch) == 0 || len(batch) > maxBatchSize {
			s.respond(w, errorResponse(nil, InvalidRequest, "Invalid Request", fmt.Sprintf("batch size must be 1-%d", maxBatchSize)))
			return
		}
		out := make([]*Response, 0, len(batch))
		for _, raw := range batch {
			out = append(out, s.dispatch(r.Context(), raw))
		}
		s.respond(w, out)
		return
	}

	s.respond(w, s.dispatch(r.Context(), body))
}

// dispatch decodes and runs one request.
func (s *Server) dispatch(ctx context.Context, raw []byte) *Response {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.metrics.observeRequest("invalid", ParseError, time.Since(start))
		return errorResponse(nil, ParseError, "Parse error", nil)
	}
	if req.JSONRPC != "2.0" {
		s.metrics.observeRequest("invalid", InvalidRequest, time.Since(start))
		return errorResponse(req.ID, InvalidRequest, "Invalid Request", nil)
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		s.metrics.observeRequest("unknown", MethodNotFound, time.Since(start))
		return errorResponse(req.ID, MethodNotFound, "Method not found", req.Method)
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		e := toRPCError(err)
		s.metrics.observeRequest(req.Method, e.Code, time.Since(start))
		return &Response{JSONRPC: "2.0", Error: e, ID: req.ID}
	}

	s.metrics.observeRequest(req.Method, 0, time.Since(start))
	return &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func errorResponse(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}

func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{Code: InternalError, Message: err.Error()}
}

func (s *Server) respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("Failed to write response", "error", err)
	}
}

// Events returns the WebSocket event hub.
func (s *Server) Events() *EventHub {
	return s.events
}

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// withCORS echoes the caller's origin and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
