package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/metrics"
	"github.com/copyleftdev/integra/internal/quadrature"
)

// Session statuses.
const (
	StatusComputing     = "computing"
	StatusAwaitingInput = "awaiting_input"
	StatusConverged     = "converged"
	StatusStopped       = "stopped"
	StatusCancelled     = "cancelled"
	StatusFailed        = "failed"
)

// RefineRequest is the body of POST /api/v1/refine.
type RefineRequest struct {
	Expression string   `json:"expression"`
	Lower      *float64 `json:"lower"`
	Upper      *float64 `json:"upper"`
	Rectangles int      `json:"rectangles,omitempty"`
	Epsilon    float64  `json:"epsilon"`
}

// StepRequest answers a session that is awaiting input: stop, or add
// Increment rectangles.
type StepRequest struct {
	Stop      bool `json:"stop,omitempty"`
	Increment int  `json:"increment,omitempty"`
}

// StateView is a refinement round as reported to clients.
type StateView struct {
	Round      int    `json:"round"`
	Rectangles int    `json:"rectangles"`
	Left       Number `json:"left"`
	Right      Number `json:"right"`
	Gap        Number `json:"gap"`
	Mean       Number `json:"mean"`
}

func viewState(st quadrature.State) *StateView {
	return &StateView{
		Round:      st.Round,
		Rectangles: st.Rectangles,
		Left:       Number(st.Left),
		Right:      Number(st.Right),
		Gap:        Number(st.Gap),
		Mean:       Number(st.Mean),
	}
}

// ResultView is the outcome of a finished refinement.
type ResultView struct {
	Estimate  Number     `json:"estimate"`
	Converged bool       `json:"converged"`
	Final     *StateView `json:"final"`
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	ID          string      `json:"session_id"`
	Status      string      `json:"status"`
	Expression  string      `json:"expression"`
	Lower       Number      `json:"lower"`
	Upper       Number      `json:"upper"`
	Epsilon     Number      `json:"epsilon"`
	Pending     *StateView  `json:"pending,omitempty"`
	Result      *ResultView `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartTime   time.Time   `json:"start_time"`
	LastUpdated time.Time   `json:"last_updated"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
}

// session is one tolerance refinement whose decisions arrive over HTTP.
type session struct {
	id         string
	expression string
	lower      float64
	upper      float64
	epsilon    float64

	driver *quadrature.ChannelDriver
	cancel context.CancelFunc
	done   chan struct{}

	// stepMu serializes clients advancing the same session.
	stepMu sync.Mutex

	mu          sync.RWMutex
	status      string
	pending     *quadrature.State
	result      *quadrature.Result
	err         error
	startTime   time.Time
	lastUpdated time.Time
	endTime     *time.Time
}

func (sess *session) view() *SessionView {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	v := &SessionView{
		ID:          sess.id,
		Status:      sess.status,
		Expression:  sess.expression,
		Lower:       Number(sess.lower),
		Upper:       Number(sess.upper),
		Epsilon:     Number(sess.epsilon),
		StartTime:   sess.startTime,
		LastUpdated: sess.lastUpdated,
		EndTime:     sess.endTime,
	}
	if sess.pending != nil {
		v.Pending = viewState(*sess.pending)
	}
	if sess.result != nil {
		v.Result = &ResultView{
			Estimate:  Number(sess.result.Estimate),
			Converged: sess.result.Converged,
			Final:     viewState(sess.result.Final),
		}
	}
	if sess.err != nil {
		v.Error = sess.err.Error()
	}
	return v
}

func (sess *session) finished() bool {
	select {
	case <-sess.done:
		return true
	default:
		return false
	}
}

func (sess *session) setPending(st quadrature.State) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.pending = &st
	sess.status = StatusAwaitingInput
	sess.lastUpdated = time.Now()
}

func (sess *session) finish(res quadrature.Result, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := time.Now()
	sess.pending = nil
	sess.lastUpdated = now
	sess.endTime = &now

	switch {
	case err == nil && res.Converged:
		sess.status = StatusConverged
		sess.result = &res
	case err == nil:
		sess.status = StatusStopped
		sess.result = &res
	case errors.KindOf(err) == errors.KindCancelled:
		sess.status = StatusCancelled
		sess.err = err
	default:
		sess.status = StatusFailed
		sess.err = err
	}
}

// await blocks until the refiner asks for a decision or ends. A request that
// gives up first leaves the session computing; a later call picks it up.
func (sess *session) await(ctx context.Context) {
	select {
	case st := <-sess.driver.States():
		sess.setPending(st)
	case <-sess.done:
	case <-ctx.Done():
	}
}

// poll collects a state that arrived after the last request gave up waiting.
// It leaves the channel to a step request in progress.
func (sess *session) poll() {
	if !sess.stepMu.TryLock() {
		return
	}
	defer sess.stepMu.Unlock()

	select {
	case st := <-sess.driver.States():
		sess.setPending(st)
	default:
	}
}

func (s *Server) startRefine(ctx context.Context, req RefineRequest) (*SessionView, error) {
	if err := quadrature.ValidateTolerance(req.Epsilon); err != nil {
		return nil, err
	}
	expr, p, err := s.problem(req.Expression, req.Lower, req.Upper, req.Rectangles)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	sess := &session{
		id:          uuid.New().String(),
		expression:  expr.Source(),
		lower:       p.Lower,
		upper:       p.Upper,
		epsilon:     req.Epsilon,
		driver:      quadrature.NewChannelDriver(),
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      StatusComputing,
		startTime:   now,
		lastUpdated: now,
	}

	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()

	logger := s.logger.WithFields(map[string]interface{}{"session_id": sess.id})
	logger.Info("Refinement started", map[string]interface{}{
		"expression": sess.expression,
		"rectangles": p.Rectangles,
		"epsilon":    req.Epsilon,
	})

	metrics.ActiveSessions.Inc()
	go func() {
		defer close(sess.done)
		defer cancel()
		defer metrics.ActiveSessions.Dec()

		f := metrics.Counting(expr)
		res, err := quadrature.Refine(runCtx, f, p.Lower, p.Upper, p.Rectangles, req.Epsilon, sess.driver,
			quadrature.WithLogger(logger.Zap()))
		f.Flush()
		sess.finish(res, err)

		if err != nil {
			logger.Warn("Refinement ended without a result", map[string]interface{}{"error": err})
			return
		}
		metrics.ObserveEstimate("refine")
		metrics.RefineRounds.Observe(float64(res.Final.Round))
		logger.Info("Refinement finished", map[string]interface{}{
			"estimate":  res.Estimate,
			"converged": res.Converged,
			"rounds":    res.Final.Round,
		})
	}()

	sess.await(ctx)
	return sess.view(), nil
}

func (s *Server) lookup(id string) (*session, error) {
	s.sessionsMu.RLock()
	sess, ok := s.sessions[id]
	s.sessionsMu.RUnlock()
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "refinement session %q not found", id)
	}
	return sess, nil
}

func (s *Server) refineStatus(id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !sess.finished() {
		sess.poll()
	}
	return sess.view(), nil
}

func (s *Server) stepRefine(ctx context.Context, id string, req StepRequest) (*SessionView, error) {
	dec := quadrature.Decision{Stop: req.Stop, Increment: req.Increment}
	if !dec.Valid() {
		return nil, errors.Errorf(errors.KindInvalidInput,
			"step must set stop or a positive increment, got increment %d", req.Increment)
	}

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.stepMu.Lock()
	defer sess.stepMu.Unlock()

	sess.mu.RLock()
	waiting := sess.pending != nil
	sess.mu.RUnlock()

	if !waiting {
		sess.await(ctx)
		sess.mu.RLock()
		waiting = sess.pending != nil
		sess.mu.RUnlock()
	}
	if sess.finished() {
		return nil, errors.Errorf(errors.KindConflict, "refinement session %q has already finished", id)
	}
	if !waiting {
		return nil, errors.Wrap(ctx.Err(), errors.KindCancelled, "session still computing")
	}

	if err := sess.driver.Decide(ctx, dec); err != nil {
		return nil, errors.Wrap(err, errors.KindCancelled, "decision not delivered")
	}

	sess.mu.Lock()
	sess.pending = nil
	sess.status = StatusComputing
	sess.lastUpdated = time.Now()
	sess.mu.Unlock()

	sess.await(ctx)
	return sess.view(), nil
}

func (s *Server) cancelRefine(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if sess.finished() {
		return nil, errors.Errorf(errors.KindConflict, "refinement session %q has already finished", id)
	}

	sess.cancel()
	select {
	case <-sess.done:
	case <-ctx.Done():
	}
	s.logger.Info("Refinement cancelled", map[string]interface{}{"session_id": id})
	return sess.view(), nil
}

func (s *Server) sweepLoop() {
	defer s.sweeperWG.Done()

	ttl := s.cfg.Quadrature.SessionTTL
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now(), ttl)
		case <-s.closed:
			return
		}
	}
}

// sweep cancels sessions idle for longer than ttl and forgets finished ones
// that have been idle as long.
func (s *Server) sweep(now time.Time, ttl time.Duration) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	for id, sess := range s.sessions {
		sess.mu.RLock()
		idle := now.Sub(sess.lastUpdated)
		sess.mu.RUnlock()
		if idle <= ttl {
			continue
		}

		if sess.finished() {
			delete(s.sessions, id)
			continue
		}
		sess.cancel()
		s.logger.Info("Idle refinement session cancelled", map[string]interface{}{
			"session_id": id,
			"idle":       idle.String(),
		})
	}
}
