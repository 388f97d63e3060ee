package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/integra/internal/config"
	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/logging"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC API. Estimations are answered
// inline; tolerance refinements live in sessions that advance one decision per
// step request.
type Server struct {
	cfg    *config.Config
	logger Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	closeOnce sync.Once
	closed    chan struct{}
	sweeperWG sync.WaitGroup
}

// NewServer creates a server and starts the idle-session sweeper. Close stops it.
func NewServer(cfg *config.Config, logger Logger) *Server {
	seed := cfg.Quadrature.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
		sessions: make(map[string]*session),
		closed:   make(chan struct{}),
	}

	s.sweeperWG.Add(1)
	go s.sweepLoop()
	return s
}

// RegisterRoutes mounts the REST and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/methods", s.handleMethods)
		r.Post("/estimate", s.handleEstimate)
		r.Post("/refine", s.handleRefineStart)
		r.Get("/refine/{id}", s.handleRefineStatus)
		r.Post("/refine/{id}/step", s.handleRefineStep)
		r.Delete("/refine/{id}", s.handleRefineCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every unfinished session and stops the sweeper.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.sweeperWG.Wait()

	s.sessionsMu.RLock()
	pending := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		pending = append(pending, sess)
	}
	s.sessionsMu.RUnlock()

	for _, sess := range pending {
		sess.cancel()
		<-sess.done
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type sessionParams struct {
	SessionID string `json:"session_id"`
}

type stepParams struct {
	SessionID string `json:"session_id"`
	StepRequest
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID)
		return
	}

	ctx := r.Context()
	var (
		result interface{}
		err    error
	)

	switch request.Method {
	case "integral.methods":
		result = listMethods()
	case "integral.estimate":
		var p EstimateRequest
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.estimate(ctx, p)
		}
	case "integral.refine.start":
		var p RefineRequest
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.startRefine(ctx, p)
		}
	case "integral.refine.step":
		var p stepParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.stepRefine(ctx, p.SessionID, p.StepRequest)
		}
	case "integral.refine.status":
		var p sessionParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.refineStatus(p.SessionID)
		}
	case "integral.refine.cancel":
		var p sessionParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.cancelRefine(ctx, p.SessionID)
		}
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, errors.RPCCode(errors.KindOf(err)), err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// decodeParams accepts either a params object or a one-element params array.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errors.New(errors.KindInvalidInput, "missing required parameters")
	}

	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return errors.Wrap(err, errors.KindInvalidInput, "invalid parameter format")
		}
		if len(arr) == 0 {
			return errors.New(errors.KindInvalidInput, "missing required parameters")
		}
		raw = arr[0]
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.KindInvalidInput, "invalid parameter format, expected object")
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)
	writeJSON(w, errors.HTTPStatus(kind), map[string]interface{}{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.KindInvalidInput, "invalid request body")
	}
	return nil
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listMethods())
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.estimate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefineStart(w http.ResponseWriter, r *http.Request) {
	var req RefineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.startRefine(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleRefineStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.refineStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefineStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.stepRefine(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefineCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.cancelRefine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
