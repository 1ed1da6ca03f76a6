package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"otcswap/native/offer"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the offer engine and query service over JSON-RPC 2.0. The
// engine never reads the clock; the server stamps each mutating call with the
// request's explicit timestamp or, absent one, its own time source.
type Server struct {
	engine         *offer.Engine
	query          *offer.QueryService
	authToken      string
	log            *slog.Logger
	nowFn          func() int64
	allowClientNow bool
}

// NewServer wires a server to the supplied engine and query service. An
// optional static bearer token is read from OTCSWAP_RPC_TOKEN.
func NewServer(engine *offer.Engine, query *offer.QueryService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		query:     query,
		authToken: strings.TrimSpace(os.Getenv("OTCSWAP_RPC_TOKEN")),
		log:       logger,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetAllowClientTimestamps permits callers to stamp mutating requests with
// their own "now". Meant for development and deterministic test setups; the
// default trusts only the server clock.
func (s *Server) SetAllowClientTimestamps(allow bool) {
	s.allowClientNow = allow
}

// SetNowFunc overrides the fallback time source, primarily used in tests.
func (s *Server) SetNowFunc(now func() int64) {
	if now == nil {
		s.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	s.nowFn = now
}

// Router returns the HTTP surface: JSON-RPC on POST /, health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on the supplied address.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	logger := s.log.With("requestId", requestID)

	if s.authToken != "" {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header != "Bearer "+s.authToken {
			writeError(w, nil, codeUnauthorized, "unauthorized")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		logger.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	logger.Info("rpc call served", "method", req.Method)
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "otc_createOffer":
		return s.handleCreateOffer(req)
	case "otc_counterOffer":
		return s.handleCounterOffer(req)
	case "otc_acceptOffer":
		return s.handleAcceptOffer(req)
	case "otc_declineOffer":
		return s.handleDeclineOffer(req)
	case "otc_cancelOffer":
		return s.handleCancelOffer(req)
	case "otc_expireOffer":
		return s.handleExpireOffer(req)
	case "otc_getOffer":
		return s.handleGetOffer(req)
	case "otc_listOffers":
		return s.handleListOffers(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeRPCError(w, id, &RPCError{Code: code, Message: message})
}
