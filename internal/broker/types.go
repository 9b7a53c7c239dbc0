package broker

import (
	"context"
	"net/http"
	"time"
)

// CachePolicy controls how the executor treats an existing cache entry
// for a given Request.
type CachePolicy int

const (
	CacheUse CachePolicy = iota
	CacheBypass
	CacheRefresh
)

// ResponseAge tells the caller how a Response was produced.
type ResponseAge int

const (
	AgeMiss ResponseAge = iota
	AgeHit
	AgeRevalidated
	AgeCoalesced
)

// Request is a prepared, immutable call to the upstream API. Once
// Submit accepts it, nothing mutates it again — the scheduler and
// executor only read it.
type Request struct {
	Method      string
	URL         string // canonical URL; doubles as the cache key
	Body        []byte
	Budget      string
	Class       string
	CachePolicy CachePolicy
	Deadline    time.Time // zero means no deadline
	CreatedAt   time.Time

	// Cost is the deficit-round-robin unit cost charged against the
	// submitting class; 1 for a plain GET, configurably higher for
	// search or mutating calls.
	Cost int

	// TraceID correlates log lines and the X-Request-Id header across
	// every retry attempt of one Submit call; Broker.Submit assigns one
	// if the caller left it empty.
	TraceID string
}

func (r *Request) Idempotent() bool { return r.Method == http.MethodGet }

// Response is the immutable result of a round trip (or a cache hit
// synthesizing one).
type Response struct {
	Status    int
	Headers   http.Header
	Body      []byte
	Validator string // composite etag/last-modified token
	Age       ResponseAge
}

// Result is what Submit ultimately resolves to: exactly one of
// Response or Err is set.
type Result struct {
	Response *Response
	Err      error
}

// pendingRequest is the scheduler's queued unit: the request plus the
// channel its eventual Result is delivered on and a cancellation scope.
type pendingRequest struct {
	req      *Request
	ctx      context.Context
	resultCh chan Result
	cancel   context.CancelFunc
}
