package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"traceforge-hq/traceforge/pkg/providers"
	"traceforge-hq/traceforge/pkg/proxy/types"
	"traceforge-hq/traceforge/pkg/ratelimit"
	"traceforge-hq/traceforge/pkg/routing"
	"traceforge-hq/traceforge/pkg/session"
	"traceforge-hq/traceforge/pkg/telemetry/metrics"
	"traceforge-hq/traceforge/pkg/telemetry/tracing"
	"traceforge-hq/traceforge/pkg/trace"
	"traceforge-hq/traceforge/pkg/trace/recorder"
	"traceforge-hq/traceforge/pkg/vcr"
)

// DefaultUpstreamTimeout is the hard deadline on upstream dispatches.
const DefaultUpstreamTimeout = 30 * time.Second

// Config controls gateway limits.
type Config struct {
	// MaxBodyBytes caps inbound request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// UpstreamTimeout is the dispatch deadline, enforced through
	// context cancellation. Default: 30s
	UpstreamTimeout time.Duration
}

// Dependencies are the gateway's collaborators. Router is required.
// VCR, Recorder, and Limiter may be nil, which disables replay, trace
// persistence, and admission control respectively. Nil Metrics, Tracer,
// or Logger fall back to inert defaults.
type Dependencies struct {
	Router   *routing.Router
	VCR      *vcr.VCR
	Recorder *recorder.Recorder
	Limiter  *ratelimit.Limiter
	Metrics  *metrics.Collector
	Tracer   *tracing.Tracer
	Logger   *slog.Logger
}

// Gateway is the request pipeline between clients and providers. For
// each request it parses and validates the body once, extracts the
// session, selects a provider, checks the rate budget, consults the
// VCR, dispatches upstream when live traffic is called for, and
// records one trace per accepted call. Session echo headers are
// written on every response produced past session extraction.
type Gateway struct {
	config   Config
	router   *routing.Router
	vcr      *vcr.VCR
	recorder *recorder.Recorder
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

// New creates a gateway over the given collaborators.
func New(cfg *Config, deps Dependencies) *Gateway {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = DefaultUpstreamTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer, _ = tracing.New(nil)
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NewCollector(&metrics.Config{Enabled: false}, metrics.Sources{}, nil)
	}

	return &Gateway{
		config:   c,
		router:   deps.Router,
		vcr:      deps.VCR,
		recorder: deps.Recorder,
		limiter:  deps.Limiter,
		metrics:  collector,
		tracer:   tracer,
		logger:   logger,
	}
}

// ChatCompletions serves POST /v1/chat/completions.
func (g *Gateway) ChatCompletions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.handle(w, r, providers.EndpointChat)
	}
}

// Completions serves POST /v1/completions.
func (g *Gateway) Completions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.handle(w, r, providers.EndpointCompletion)
	}
}

// Embeddings serves POST /v1/embeddings.
func (g *Gateway) Embeddings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.handle(w, r, providers.EndpointEmbeddings)
	}
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, endpoint string) {
	start := time.Now()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteErrorStatus(w, http.StatusMethodNotAllowed,
			types.NewInvalidRequestError("method not allowed, use POST", "", ""))
		return
	}

	parsed, errResp := ParseRequest(w, r, endpoint, g.config.MaxBodyBytes)
	if errResp != nil {
		WriteError(w, errResp)
		return
	}

	sess := session.FromRequest(r, g.logger)
	ctx := session.WithContext(r.Context(), sess)
	ctx = tracing.Extract(ctx, r.Header)
	ctx, span := g.tracer.Start(ctx, endpoint)
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", parsed.Model))

	sel, err := g.router.Select(parsed.Model)
	if err != nil {
		g.logger.Error("provider selection failed", "model", parsed.Model, "error", err)
		tracing.SetError(span, err)
		sess.WriteHeaders(w, "")
		WriteError(w, types.NewServerError("no provider available for this request"))
		return
	}
	span.SetAttributes(attribute.String("llm.provider", sel.Name))

	if !g.admit(w, r, sess, sel, parsed) {
		return
	}

	fingerprint := ""
	if g.vcr != nil && g.vcr.Enabled() {
		fingerprint = g.vcr.Fingerprint(sel.Type, parsed.Body)
		cassette, err := g.vcr.ShouldReplay(sel.Type, fingerprint)
		if err != nil {
			g.serveVCRError(ctx, w, sess, sel, parsed, start, err)
			tracing.SetError(span, err)
			return
		}
		if cassette != nil {
			g.serveReplay(ctx, w, sess, sel, parsed, cassette, start)
			tracing.SetOK(span)
			return
		}
	}

	if parsed.Stream {
		g.handleStream(ctx, w, span, sess, sel, parsed, fingerprint, start)
		return
	}

	upstreamCtx, cancel := context.WithTimeout(ctx, g.config.UpstreamTimeout)
	defer cancel()

	result, err := sel.Adapter.Dispatch(upstreamCtx, &providers.Request{
		Endpoint:   endpoint,
		Body:       parsed.Body,
		Chat:       parsed.Chat,
		Completion: parsed.Completion,
		Embeddings: parsed.Embeddings,
		Model:      parsed.Model,
		APIKey:     sel.APIKey,
	})
	if err != nil {
		g.logger.Error("upstream dispatch failed",
			"provider", sel.Name,
			"model", parsed.Model,
			"error", err)
		tracing.SetError(span, err)
		g.metrics.RecordRequest(sel.Name, parsed.Model, metrics.StatusError, time.Since(start))

		traceID := g.recordErrorTrace(ctx, sess, sel, parsed, start, err)
		sess.WriteHeaders(w, traceID)
		errResp, status := MapError(sel.Type, err)
		WriteErrorStatus(w, status, errResp)
		return
	}

	g.metrics.RecordUpstreamLatency(sel.Name, parsed.Model, time.Duration(result.DurationMS)*time.Millisecond)
	g.recordCassette(sel.Type, fingerprint, parsed.Body, &vcr.CassetteResponse{
		Status:  result.Status,
		Headers: result.Headers,
		Body:    result.Body,
	})

	status, errMsg := outcome(result.Status)
	prompt, completion, total := usageFromBody(result.Body)

	t := g.newTrace(sess, sel, parsed)
	if t != nil {
		t.Response = result.Body
		t.Metadata.Status = status
		t.Metadata.Error = errMsg
		t.Metadata.DurationMS = time.Since(start).Milliseconds()
		if total > 0 {
			t.Metadata.TokensUsed = &total
		}
		g.recordTrace(ctx, t)
		sess.WriteHeaders(w, t.ID)
	} else {
		sess.WriteHeaders(w, "")
	}

	g.metrics.RecordRequest(sel.Name, parsed.Model, requestLabel(status), time.Since(start))
	g.metrics.RecordTokens(sel.Name, parsed.Model, prompt, completion)
	if status == trace.StatusSuccess {
		tracing.SetOK(span)
	}

	g.logger.Debug("upstream dispatch complete",
		"provider", sel.Name,
		"model", parsed.Model,
		"status", result.Status,
		"upstream_ms", result.DurationMS,
		"total_ms", time.Since(start).Milliseconds())

	WriteUpstream(w, result.Status, result.Headers, result.Body)
}

// admit runs the rate limiter. It writes the full 429 response itself
// and returns false when the request must not proceed.
func (g *Gateway) admit(w http.ResponseWriter, r *http.Request, sess *session.Context, sel *routing.Selection, parsed *ParsedRequest) bool {
	if g.limiter == nil {
		return true
	}

	res := g.limiter.Allow(ClientIP(r), sel.Type)
	writeRateLimitHeaders(w, res)
	if res.Allowed {
		return true
	}

	g.metrics.RecordRateLimited(sel.Type)

	retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	sess.WriteHeaders(w, "")
	errResp := types.NewRateLimitError(res.Reason).WithDetails(map[string]any{
		"limit":       res.Limit,
		"retry_after": retryAfter,
	})
	WriteError(w, errResp)
	return false
}

func writeRateLimitHeaders(w http.ResponseWriter, res *ratelimit.CheckResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.Reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
	}
}

// serveReplay answers from a cassette without upstream contact. The
// stored status, headers, and body are emitted verbatim; a trace is
// still recorded, marked as a success unless the recording itself
// captured an upstream error.
func (g *Gateway) serveReplay(ctx context.Context, w http.ResponseWriter, sess *session.Context, sel *routing.Selection, parsed *ParsedRequest, cassette *vcr.Cassette, start time.Time) {
	g.metrics.RecordVCREvent(metrics.EventHit)
	g.metrics.RecordCassetteOp(metrics.OpRead)

	resp := cassette.Response
	status, errMsg := outcome(resp.Status)
	_, _, total := usageFromBody(resp.Body)

	t := g.newTrace(sess, sel, parsed)
	if t != nil {
		t.Response = resp.Body
		t.Metadata.Status = status
		t.Metadata.Error = errMsg
		t.Metadata.DurationMS = time.Since(start).Milliseconds()
		if total > 0 {
			t.Metadata.TokensUsed = &total
		}
		g.recordTrace(ctx, t)
		sess.WriteHeaders(w, t.ID)
	} else {
		sess.WriteHeaders(w, "")
	}

	g.metrics.RecordRequest(sel.Name, parsed.Model, requestLabel(status), time.Since(start))

	g.logger.Debug("served from cassette",
		"provider", sel.Name,
		"model", parsed.Model,
		"status", resp.Status)

	WriteUpstream(w, resp.Status, resp.Headers, resp.Body)
}

// serveVCRError answers a replay miss, strict violation, or tampered
// cassette. These failures still record an error trace: the request was
// accepted and its outcome is part of the session history.
func (g *Gateway) serveVCRError(ctx context.Context, w http.ResponseWriter, sess *session.Context, sel *routing.Selection, parsed *ParsedRequest, start time.Time, err error) {
	if vcr.IsTamper(err) {
		g.metrics.RecordVCREvent(metrics.EventTamper)
	} else {
		g.metrics.RecordVCREvent(metrics.EventMiss)
	}
	g.metrics.RecordRequest(sel.Name, parsed.Model, metrics.StatusError, time.Since(start))

	g.logger.Warn("vcr cannot serve request",
		"provider", sel.Name,
		"model", parsed.Model,
		"mode", string(g.vcr.Mode()),
		"error", err)

	traceID := g.recordErrorTrace(ctx, sess, sel, parsed, start, err)
	sess.WriteHeaders(w, traceID)
	errResp, status := MapError(sel.Type, err)
	WriteErrorStatus(w, status, errResp)
}

// recordCassette persists the upstream outcome when the active mode
// records. Failures are logged, never surfaced to the client.
func (g *Gateway) recordCassette(providerType, fingerprint string, request []byte, resp *vcr.CassetteResponse) {
	if g.vcr == nil || fingerprint == "" {
		return
	}
	mode := g.vcr.Mode()
	if mode != vcr.ModeRecord && mode != vcr.ModeAuto {
		return
	}
	if err := g.vcr.Record(providerType, fingerprint, request, resp); err != nil {
		g.logger.Error("cassette recording failed",
			"provider", providerType,
			"fingerprint", fingerprint,
			"error", err)
		return
	}
	g.metrics.RecordVCREvent(metrics.EventRecord)
	g.metrics.RecordCassetteOp(metrics.OpWrite)
}

// newTrace builds the trace skeleton for one accepted request. Returns
// nil when trace persistence is disabled.
func (g *Gateway) newTrace(sess *session.Context, sel *routing.Selection, parsed *ParsedRequest) *trace.Trace {
	if g.recorder == nil {
		return nil
	}
	t := trace.New(sel.Adapter.Endpoint(parsed.Endpoint), json.RawMessage(parsed.Body))
	sess.Apply(t)
	t.Metadata.Model = parsed.Model
	return t
}

func (g *Gateway) recordErrorTrace(ctx context.Context, sess *session.Context, sel *routing.Selection, parsed *ParsedRequest, start time.Time, cause error) string {
	t := g.newTrace(sess, sel, parsed)
	if t == nil {
		return ""
	}
	t.Metadata.Status = trace.StatusError
	t.Metadata.Error = cause.Error()
	t.Metadata.DurationMS = time.Since(start).Milliseconds()
	g.recordTrace(ctx, t)
	return t.ID
}

// recordTrace enqueues a trace without blocking the response path.
func (g *Gateway) recordTrace(ctx context.Context, t *trace.Trace) {
	if g.recorder == nil || t == nil {
		return
	}
	if err := g.recorder.Record(ctx, t); err != nil {
		g.logger.Error("trace enqueue failed", "trace_id", t.ID, "error", err)
	}
}

// outcome maps an upstream HTTP status to the trace status and error
// description.
func outcome(status int) (string, string) {
	if status >= 400 {
		return trace.StatusError, "upstream returned status " + strconv.Itoa(status)
	}
	return trace.StatusSuccess, ""
}

func requestLabel(traceStatus string) string {
	if traceStatus == trace.StatusError {
		return metrics.StatusError
	}
	return metrics.StatusSuccess
}

// usageFromBody pulls token counts out of an OpenAI-shape response.
func usageFromBody(body []byte) (prompt, completion, total int) {
	prompt = int(gjson.GetBytes(body, "usage.prompt_tokens").Int())
	completion = int(gjson.GetBytes(body, "usage.completion_tokens").Int())
	total = int(gjson.GetBytes(body, "usage.total_tokens").Int())
	if total == 0 {
		total = prompt + completion
	}
	return prompt, completion, total
}
