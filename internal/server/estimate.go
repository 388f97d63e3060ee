package server

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/copyleftdev/integra/internal/errors"
	"github.com/copyleftdev/integra/internal/expression"
	"github.com/copyleftdev/integra/internal/metrics"
	"github.com/copyleftdev/integra/internal/quadrature"
)

// methodSurprise asks the server to pick one of the six rules at random.
const methodSurprise = "surprise"

// Number is a float64 that encodes NaN and the infinities as the strings
// "NaN", "+Inf" and "-Inf" instead of failing to marshal.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(f)
}

// EstimateRequest is the body of POST /api/v1/estimate.
type EstimateRequest struct {
	Expression string   `json:"expression"`
	Lower      *float64 `json:"lower"`
	Upper      *float64 `json:"upper"`
	Rectangles int      `json:"rectangles,omitempty"`
	Method     string   `json:"method,omitempty"`
}

// EstimateResponse reports a single estimation.
type EstimateResponse struct {
	Method     string `json:"method"`
	Title      string `json:"title"`
	Expression string `json:"expression"`
	Lower      Number `json:"lower"`
	Upper      Number `json:"upper"`
	Rectangles int    `json:"rectangles"`
	Estimate   Number `json:"estimate"`
	// Surprise is set when the method was drawn at random.
	Surprise bool `json:"surprise,omitempty"`
}

type methodView struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases,omitempty"`
}

func listMethods() []methodView {
	all := quadrature.Methods()
	out := make([]methodView, 0, len(all))
	for _, m := range all {
		out = append(out, methodView{
			ID:      int(m),
			Name:    m.String(),
			Title:   m.Title(),
			Aliases: m.Aliases(),
		})
	}
	return out
}

// problem compiles the integrand and resolves the rectangle count shared by
// estimate and refine requests.
func (s *Server) problem(src string, lower, upper *float64, rectangles int) (*expression.Expression, quadrature.Problem, error) {
	if strings.TrimSpace(src) == "" {
		return nil, quadrature.Problem{}, errors.New(errors.KindInvalidInput, "expression is required")
	}
	if lower == nil || upper == nil {
		return nil, quadrature.Problem{}, errors.New(errors.KindInvalidInput, "lower and upper bounds are required")
	}

	if rectangles == 0 {
		rectangles = s.cfg.Quadrature.DefaultRectangles
	}
	p := quadrature.Problem{Lower: *lower, Upper: *upper, Rectangles: rectangles}
	if err := p.Validate(); err != nil {
		return nil, p, err
	}
	if max := s.cfg.Quadrature.MaxRectangles; p.Rectangles > max {
		return nil, p, errors.Errorf(errors.KindInvalidInput,
			"rectangles must not exceed %d, got %d", max, p.Rectangles)
	}

	expr, err := expression.Compile(src)
	if err != nil {
		return nil, p, err
	}
	return expr, p, nil
}

func (s *Server) estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error) {
	expr, p, err := s.problem(req.Expression, req.Lower, req.Upper, req.Rectangles)
	if err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(req.Method))
	if name == "" {
		name = s.cfg.Quadrature.DefaultMethod
	}

	f := metrics.Counting(expr)
	defer f.Flush()

	resp := &EstimateResponse{
		Expression: expr.Source(),
		Lower:      Number(p.Lower),
		Upper:      Number(p.Upper),
		Rectangles: p.Rectangles,
	}

	var m quadrature.Method
	if name == methodSurprise {
		s.rngMu.Lock()
		m = quadrature.Pick(s.rng)
		s.rngMu.Unlock()
		resp.Surprise = true
	} else if m, err = quadrature.ParseMethod(name); err != nil {
		return nil, err
	}

	// The rule itself runs to completion, so the deadline is honoured on
	// either side of it and QUAD_MAX_RECTANGLES bounds the overrun.
	if err := abandoned(ctx); err != nil {
		return nil, err
	}
	v, err := quadrature.Estimate(m, f, p.Lower, p.Upper, p.Rectangles)
	if err != nil {
		return nil, err
	}
	if err := abandoned(ctx); err != nil {
		return nil, err
	}

	resp.Method = m.String()
	resp.Title = m.Title()
	resp.Estimate = Number(v)

	metrics.ObserveEstimate(resp.Method)
	s.logger.Debug("Estimate computed", map[string]interface{}{
		"method":     resp.Method,
		"rectangles": p.Rectangles,
		"calls":      f.Calls(),
	})
	return resp, nil
}

func abandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.KindCancelled, "estimate abandoned")
	}
	return nil
}
