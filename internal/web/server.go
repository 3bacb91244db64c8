// Package web serves the worker's tools as a small JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
)

// DefaultAddr is used when neither a flag nor PORT names an address.
const DefaultAddr = ":3000"

// maxBody bounds a tools call request.
const maxBody = 1 << 20

// Toolset is the part of the tool client the API needs.
type Toolset interface {
	ListTools(ctx context.Context) ([]toolchain.Tool, error)
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*toolchain.CallToolResult, error)
}

// CallRequest is the body of POST /api/call.
type CallRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Outcome protocol.Outcome `json:"outcome"`
}

// Handler serves the API over a Toolset.
type Handler struct {
	tools  Toolset
	logger *logging.Logger
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(tools Toolset, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{tools: tools, logger: logger.WithComponent("web")}
}

// RegisterRoutes adds the API routes to r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/tools", h.ListTools).Methods(http.MethodGet)
	r.HandleFunc("/api/call", h.Call).Methods(http.MethodPost)
}

// Router returns a router with the API registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// ListTools answers GET /api/tools.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.ListTools(r.Context())
	if err != nil {
		h.fail(w, "list tools", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

// Call answers POST /api/call.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err == nil && len(body) > maxBody {
		err = errors.New("request body too large")
	}
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err == nil && req.Name == "" {
		err = errors.New("name is required")
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error(), Outcome: protocol.OutcomeInvalid})
		return
	}

	result, err := h.tools.CallTool(r.Context(), req.Name, req.Arguments)
	if err != nil {
		h.fail(w, req.Name, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	outcome := protocol.Classify(err)
	status := StatusFor(outcome)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", "op", op, "outcome", outcome, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: app.Describe(err), Outcome: outcome})
}

// StatusFor maps a call outcome to an HTTP status.
func StatusFor(outcome protocol.Outcome) int {
	switch outcome {
	case protocol.OutcomeOK:
		return http.StatusOK
	case protocol.OutcomeInvalid:
		return http.StatusBadRequest
	case protocol.OutcomeAppError:
		return http.StatusUnprocessableEntity
	case protocol.OutcomeTimeout:
		return http.StatusGatewayTimeout
	case protocol.OutcomeWorkerLost, protocol.OutcomeUnavailable, protocol.OutcomeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
