// Copyright 2025 Mainsail
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mainsail/platform/shared/logger"
)

// Engine identifies which backend served a routed request.
const (
	EnginePrimary  = "primary"
	EngineFallback = "fallback"
)

var routerFallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mainsail_router_fallbacks_total",
		Help: "Completion requests that fell back to the secondary engine, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(routerFallbacksTotal)
}

// QuotaGuard is the rate-limiting dependency of the router. Acquire
// blocks until a quota slot for the model is available (or fails open);
// it returns an error only on context cancellation.
type QuotaGuard interface {
	Acquire(ctx context.Context, model string) error
}

// RouteOptions tune a single routed request.
type RouteOptions struct {
	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string

	// ForceModel skips classification and pins the primary model.
	ForceModel string

	// Temperature overrides both clients' defaults when non-nil.
	Temperature *float64

	// JSONResponse requests a structured JSON object response.
	JSONResponse bool
}

// RouteResult is the outcome of one routed completion.
type RouteResult struct {
	Text       string
	TokensUsed int
	Latency    time.Duration
	Model      string
	Category   TaskCategory
	Engine     string
}

// Router orchestrates classifier, quota guard, and the two completion
// clients. The primary client serves every request; provider-side
// failures (rate limiting, upstream errors) trigger exactly one
// fallback attempt. Configuration errors propagate immediately.
type Router struct {
	classifier *Classifier
	guard      QuotaGuard
	primary    Completer
	fallback   Completer
	log        *logger.Logger
}

// NewRouter creates a router over the given collaborators.
func NewRouter(classifier *Classifier, guard QuotaGuard, primary, fallback Completer) *Router {
	return &Router{
		classifier: classifier,
		guard:      guard,
		primary:    primary,
		fallback:   fallback,
		log:        logger.New("router"),
	}
}

// Execute routes one prompt. The category is metadata for downstream
// consumers; it does not influence backend selection.
func (r *Router) Execute(ctx context.Context, prompt string, opts RouteOptions) (*RouteResult, error) {
	var category TaskCategory
	primaryModel := opts.ForceModel
	if primaryModel == "" {
		category = r.classifier.Classify(ctx, prompt)
		primaryModel = r.primary.Model()
	}

	req := CompletionRequest{
		Messages:     composeMessages(opts.SystemPrompt, prompt),
		Model:        primaryModel,
		Temperature:  opts.Temperature,
		JSONResponse: opts.JSONResponse,
	}

	if err := r.guard.Acquire(ctx, primaryModel); err != nil {
		return nil, err
	}

	resp, err := r.primary.Complete(ctx, req)
	if err == nil {
		return routeResult(resp, category, EnginePrimary), nil
	}

	if !IsProviderFault(err) {
		// Configuration or programming error: fallback cannot help.
		return nil, err
	}

	r.log.WarnErr("", "primary engine failed, attempting fallback", err, map[string]interface{}{
		"primary_model": primaryModel,
	})

	fallbackReq := req
	fallbackReq.Model = r.fallback.Model()

	if err := r.guard.Acquire(ctx, fallbackReq.Model); err != nil {
		return nil, err
	}

	fallbackResp, fallbackErr := r.fallback.Complete(ctx, fallbackReq)
	if fallbackErr != nil {
		// No further tier exists; the fallback's error is final.
		routerFallbacksTotal.WithLabelValues("error").Inc()
		return nil, fallbackErr
	}

	routerFallbacksTotal.WithLabelValues("success").Inc()
	return routeResult(fallbackResp, category, EngineFallback), nil
}

func composeMessages(systemPrompt, prompt string) []Message {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

func routeResult(resp *CompletionResponse, category TaskCategory, engine string) *RouteResult {
	return &RouteResult{
		Text:       resp.Text,
		TokensUsed: resp.TokensUsed,
		Latency:    resp.Latency,
		Model:      resp.Model,
		Category:   category,
		Engine:     engine,
	}
}
