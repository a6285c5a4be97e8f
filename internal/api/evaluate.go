package api

import (
	"context"
	"net/http"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/TimurManjosov/cclengine/internal/telemetry"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/TimurManjosov/cclengine/internal/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// evaluateRequest is the body of POST /v1/functions/{name}/evaluate.
// Descriptors shadow the selected configuration, or replace it entirely
// with ReplaceDescriptors.
type evaluateRequest struct {
	Input              map[string]any   `json:"input"`
	Descriptors        []jfn.Descriptor `json:"descriptors,omitempty"`
	ReplaceDescriptors bool             `json:"replaceDescriptors,omitempty"`
}

type evaluateResponse struct {
	EvaluationID  string `json:"evaluationId"`
	Function      string `json:"function"`
	Configuration string `json:"configuration,omitempty"`
	ETag          string `json:"etag"`
	Result        any    `json:"result"`
}

type walletInfoResponse struct {
	EvaluationID  string            `json:"evaluationId"`
	Configuration string            `json:"configuration"`
	ETag          string            `json:"etag"`
	WalletInfo    any               `json:"walletInfo"`
	Texts         map[string]string `json:"texts,omitempty"`
}

type formatTextRequest struct {
	Text     text.Descriptor `json:"text"`
	Language string          `json:"language"`
	Now      string          `json:"now,omitempty"`
}

type formatTextResponse struct {
	Text string `json:"text"`
}

// handleEvaluateFunction handles POST /v1/functions/{name}/evaluate
func (s *Server) handleEvaluateFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	opts, err := selectionFromQuery(r)
	if err != nil {
		ValidationError(w, r, err.Error(), map[string]string{"allowDefault": err.Error()})
		return
	}
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Descriptors) > 0 || req.ReplaceDescriptors {
		opts = append(opts, registry.WithOverrides(req.Descriptors, req.ReplaceDescriptors))
	}

	id := uuid.NewString()
	res, err := s.run(r.Context(), id, name, req.Input, opts)
	if err != nil {
		DomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluateResponse{
		EvaluationID:  id,
		Function:      name,
		Configuration: res.Configuration,
		ETag:          res.ETag,
		Result:        res.Value,
	})
}

// handleWalletInfo handles POST /v1/wallet-info. With ?language= the text
// descriptors of the result are rendered as well.
func (s *Server) handleWalletInfo(w http.ResponseWriter, r *http.Request) {
	opts, err := selectionFromQuery(r)
	if err != nil {
		ValidationError(w, r, err.Error(), map[string]string{"allowDefault": err.Error()})
		return
	}
	var input map[string]any
	if !decodeJSON(w, r, &input) {
		return
	}

	id := uuid.NewString()
	res, err := s.run(r.Context(), id, wallet.FunctionGetDccWalletInfo, input, opts)
	if err != nil {
		DomainError(w, r, err)
		return
	}
	resp := walletInfoResponse{
		EvaluationID:  id,
		Configuration: res.Configuration,
		ETag:          res.ETag,
		WalletInfo:    res.Value,
	}

	if lang := r.URL.Query().Get("language"); lang != "" {
		now, _ := jfn.AsInstant(input["now"])
		texts, err := s.renderTexts(res.Value, lang, now)
		if err != nil {
			DomainError(w, r, err)
			return
		}
		resp.Texts = texts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) renderTexts(result any, lang string, now time.Time) (map[string]string, error) {
	info, err := wallet.DecodeWalletInfo(result)
	if err != nil {
		return nil, err
	}
	return info.RenderTexts(lang, text.Options{Now: now, FallbackLanguage: s.fallback})
}

// handleFormatText handles POST /v1/format-text
func (s *Server) handleFormatText(w http.ResponseWriter, r *http.Request) {
	var req formatTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Language == "" {
		ValidationError(w, r, "language is required", map[string]string{"language": "required"})
		return
	}
	now := s.now()
	if req.Now != "" {
		t, ok := jfn.AsInstant(req.Now)
		if !ok {
			ValidationError(w, r, "now is not an ISO-8601 instant", map[string]string{"now": "invalid instant"})
			return
		}
		now = t
	}
	for i, p := range req.Text.Parameters {
		req.Text.Parameters[i].Value = jfn.Normalize(p.Value)
	}

	out, err := text.Format(req.Text, req.Language, text.Options{Now: now, FallbackLanguage: s.fallback})
	if err != nil {
		DomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatTextResponse{Text: out})
}

// run evaluates inside a span and records the outcome metric.
func (s *Server) run(ctx context.Context, id, name string, input map[string]any, opts []registry.EvalOption) (*ccl.Result, error) {
	_, span := s.tracer.Start(ctx, "ccl.evaluate", trace.WithAttributes(
		attribute.String("ccl.function", name),
		attribute.String("ccl.evaluation_id", id),
	))
	defer span.End()

	start := time.Now()
	res, err := s.engine.Run(name, input, opts...)
	elapsed := time.Since(start)

	if err != nil {
		_, code := classify(err)
		telemetry.ObserveEvaluation(name, string(code), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))

		ev := s.log.Warn()
		if code == ErrCodeInternal {
			ev = s.log.Error()
		}
		ev.Err(err).Str("evaluation_id", id).Str("function", name).Str("code", string(code)).Msg("evaluation rejected")
		return nil, err
	}

	telemetry.ObserveEvaluation(name, "ok", elapsed)
	span.SetAttributes(attribute.String("ccl.configuration", res.Configuration))
	s.log.Info().
		Str("evaluation_id", id).
		Str("function", name).
		Str("configuration", res.Configuration).
		Dur("duration", elapsed).
		Msg("evaluated")
	return res, nil
}
