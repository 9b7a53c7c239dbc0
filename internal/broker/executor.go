package broker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/thep200/ghcollector/pkg/log"
)

// errRequeued is a sentinel the scheduler recognises to mean "don't
// resolve the caller's Result yet, this request is going back to the
// head of its queue" — it never escapes the broker package.
var errRequeued = errors.New("requeued")

// HTTPDoer is satisfied by *http.Client; narrowed so tests can stub it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExecutorMetricsSink receives retry counts.
type ExecutorMetricsSink interface {
	RetryObserved(budget, reason string)
}

// Executor performs the actual HTTP round trip for one reserved
// (request, credential) pair: cache consult, conditional headers,
// dispatch, outcome classification, retry with full jitter, and
// settling the cache so single-flight waiters unblock.
type Executor struct {
	client      HTTPDoer
	cache       *Cache
	tokens      *TokenPool
	logger      log.Logger
	userAgent   string
	apiVersion  string
	maxAttempts int
	baseDelay   time.Duration
	capDelay    time.Duration
	limiter     *smoothingLimiter
	metrics     ExecutorMetricsSink
}

func NewExecutor(client HTTPDoer, cache *Cache, tokens *TokenPool, logger log.Logger, userAgent, apiVersion string, maxAttempts int, baseDelay, capDelay time.Duration, perSecondCeiling int, metrics ExecutorMetricsSink) *Executor {
	return &Executor{
		client:      client,
		cache:       cache,
		tokens:      tokens,
		logger:      logger,
		userAgent:   userAgent,
		apiVersion:  apiVersion,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		capDelay:    capDelay,
		limiter:     newSmoothingLimiter(perSecondCeiling),
		metrics:     metrics,
	}
}

// Execute runs one admitted request through to completion. sched is
// used only to requeue on a secondary-rate-limit 403, never to touch
// queue state otherwise.
func (e *Executor) Execute(pr *pendingRequest, credential string, sched *Scheduler) (*Response, error) {
	req := pr.req
	ctx := pr.ctx

	var priorBody []byte
	var priorValidator string
	var ticket *Ticket

	if req.Idempotent() && req.CachePolicy != CacheBypass {
		outcome := e.cache.Lookup(req.URL)
		switch outcome.Kind {
		case CacheFresh:
			if req.CachePolicy != CacheRefresh {
				return &Response{Status: http.StatusOK, Body: outcome.Body, Validator: outcome.Validator, Age: AgeHit}, nil
			}
			priorBody = outcome.Body
			priorValidator = outcome.Validator
		case CacheInFlight:
			select {
			case settled := <-outcome.Waiter:
				if !settled.Ok {
					break
				}
				return &Response{Status: http.StatusOK, Body: settled.Body, Validator: settled.Validator, Age: AgeCoalesced}, nil
			case <-ctx.Done():
				return nil, classifyWithdrawal(pr)
			}
		case CacheMiss:
			ticket = e.cache.Begin(req.URL)
		}
		if ticket == nil {
			ticket = e.cache.Begin(req.URL)
		}
	}

	if req.CachePolicy == CacheBypass {
		e.cache.Bypass(req.URL)
	}

	resp, err := e.attemptWithRetry(ctx, req, credential, priorBody, priorValidator, sched, pr)

	if ticket != nil {
		if err == nil {
			e.cache.Settle(ticket, resp.Body, resp.Validator, true)
		} else {
			e.cache.Settle(ticket, nil, "", false)
		}
	}

	return resp, err
}

func (e *Executor) attemptWithRetry(ctx context.Context, req *Request, credential string, priorBody []byte, priorValidator string, sched *Scheduler, pr *pendingRequest) (*Response, error) {
	var lastTransportErr error
	for attempt := 0; attempt < maxInt(e.maxAttempts, 1); attempt++ {
		if err := e.limiter.wait(ctx); err != nil {
			return nil, classifyWithdrawal(pr)
		}

		httpReq, err := e.buildHTTPRequest(ctx, req, credential, priorValidator)
		if err != nil {
			return nil, &ErrContract{Detail: err.Error()}
		}

		httpResp, err := e.client.Do(httpReq)
		if err != nil {
			lastTransportErr = err
			if ctx.Err() != nil {
				return nil, classifyWithdrawal(pr)
			}
			if !e.sleepBeforeRetry(ctx, attempt, nil) {
				return nil, classifyWithdrawal(pr)
			}
			e.observeRetry(req.Budget, "transport")
			e.logger.Warn(ctx, "request %s: transport error on attempt %d, retrying", req.TraceID, attempt)
			continue
		}

		outcome, resp, retryAfter, requeue := e.classify(httpResp, credential, req.Budget, priorBody, priorValidator)
		httpResp.Body.Close()

		switch outcome {
		case outcomeSuccess, outcomeRevalidated:
			return resp, nil
		case outcomeNotFound:
			return nil, &ErrNotFound{URL: req.URL}
		case outcomeAuth:
			e.tokens.Revoke(credential)
			e.logger.Error(ctx, "request %s: credential revoked after 401 response", req.TraceID)
			return nil, &ErrAuth{Credential: credential}
		case outcomeSecondaryLimit:
			until := time.Now().Add(retryAfter)
			e.tokens.Penalise(credential, req.Budget, until)
			if requeue && sched != nil {
				e.logger.Warn(ctx, "request %s: secondary rate limit hit, requeueing until %s", req.TraceID, until.Format(time.RFC3339))
				sched.requeueAtHead(pr)
				return nil, errRequeued
			}
			return nil, &ErrUpstream{Status: httpResp.StatusCode}
		case outcomeRetryable:
			e.observeRetry(req.Budget, "retryable_status")
			e.logger.Warn(ctx, "request %s: retryable status %d on attempt %d", req.TraceID, httpResp.StatusCode, attempt)
			if retryAfter > 0 {
				if !e.sleep(ctx, retryAfter) {
					return nil, classifyWithdrawal(pr)
				}
			} else if !e.sleepBeforeRetry(ctx, attempt, nil) {
				return nil, classifyWithdrawal(pr)
			}
			continue
		default:
			return nil, &ErrUpstream{Status: httpResp.StatusCode}
		}
	}
	if lastTransportErr != nil {
		return nil, &ErrTransport{Cause: lastTransportErr}
	}
	return nil, &ErrUpstream{Status: 0}
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRevalidated
	outcomeNotFound
	outcomeAuth
	outcomeSecondaryLimit
	outcomeRetryable
	outcomeTerminal
)

func (e *Executor) classify(resp *http.Response, credential, budget string, priorBody []byte, priorValidator string) (outcomeKind, *Response, time.Duration, bool) {
	e.tokens.Observe(credential, budget, resp.Header)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, _ := io.ReadAll(resp.Body)
		return outcomeSuccess, &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body, Validator: validatorOf(resp.Header), Age: AgeMiss}, 0, false

	case resp.StatusCode == http.StatusNotModified:
		return outcomeRevalidated, &Response{Status: resp.StatusCode, Headers: resp.Header, Body: priorBody, Validator: priorValidator, Age: AgeRevalidated}, 0, false

	case resp.StatusCode == http.StatusNotFound:
		return outcomeNotFound, nil, 0, false

	case resp.StatusCode == http.StatusUnauthorized:
		return outcomeAuth, nil, 0, false

	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return outcomeSecondaryLimit, nil, resetDelay(resp.Header), true

	case resp.StatusCode == http.StatusForbidden:
		return outcomeSecondaryLimit, nil, retryAfterDelay(resp.Header, e.baseDelay), true

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return outcomeRetryable, nil, retryAfterDelay(resp.Header, 0), false

	default:
		return outcomeTerminal, nil, 0, false
	}
}

func (e *Executor) buildHTTPRequest(ctx context.Context, req *Request, credential, priorValidator string) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+credential)
	httpReq.Header.Set("User-Agent", e.userAgent)
	httpReq.Header.Set("X-Api-Version", e.apiVersion)
	if req.TraceID != "" {
		httpReq.Header.Set("X-Request-Id", req.TraceID)
	}

	if priorValidator != "" {
		if len(priorValidator) > 0 && priorValidator[0] == '"' {
			httpReq.Header.Set("If-None-Match", priorValidator)
		} else {
			httpReq.Header.Set("If-Modified-Since", priorValidator)
		}
	}
	return httpReq, nil
}

func (e *Executor) sleepBeforeRetry(ctx context.Context, attempt int, _ *http.Response) bool {
	delay := FullJitterBackoff(attempt, e.baseDelay, e.capDelay)
	return e.sleep(ctx, delay)
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) observeRetry(budget, reason string) {
	if e.metrics != nil {
		e.metrics.RetryObserved(budget, reason)
	}
}

func validatorOf(h http.Header) string {
	if etag := h.Get("ETag"); etag != "" {
		return etag
	}
	return h.Get("Last-Modified")
}

func resetDelay(h http.Header) time.Duration {
	resetStr := h.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return time.Minute
	}
	ts, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return time.Minute
	}
	d := time.Until(time.Unix(ts, 0))
	if d < 0 {
		return 0
	}
	return d
}

func retryAfterDelay(h http.Header, fallback time.Duration) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
