package broker

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TokenState is the live rate-limit state for one (credential, budget)
// pair. remaining is decremented optimistically at dispatch and
// reconciled from authoritative response headers.
type TokenState struct {
	Limit     int
	Remaining int
	ResetAt   time.Time

	// obsSeq is the monotonic observation counter guarding against a
	// stale response header overriding a newer one when responses
	// arrive out of dispatch order.
	obsSeq uint64
}

type credentialState struct {
	credential string
	index      int
	budgets    map[string]*TokenState
}

// TokenPool holds every credential's per-budget rate-limit state.
// Selection always favours the credential with the most remaining
// capacity, ties broken by lowest index, concentrating load for better
// server-side cache locality.
type TokenPool struct {
	mu      sync.Mutex
	creds   []*credentialState
	nextSeq uint64
}

func NewTokenPool(credentials []string, budgets []string, defaultLimit int) *TokenPool {
	p := &TokenPool{}
	now := time.Now()
	for i, cred := range credentials {
		cs := &credentialState{credential: cred, index: i, budgets: make(map[string]*TokenState)}
		for _, b := range budgets {
			cs.budgets[b] = &TokenState{Limit: defaultLimit, Remaining: defaultLimit, ResetAt: now.Add(time.Hour)}
		}
		p.creds = append(p.creds, cs)
	}
	return p
}

type TokenSnapshot struct {
	Credential string
	Remaining  int
	ResetAt    time.Time
}

func (p *TokenPool) Snapshot(budget string) []TokenSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TokenSnapshot, 0, len(p.creds))
	for _, cs := range p.creds {
		st, ok := cs.budgets[budget]
		if !ok {
			continue
		}
		out = append(out, TokenSnapshot{Credential: cs.credential, Remaining: st.Remaining, ResetAt: st.ResetAt})
	}
	return out
}

// Reserve atomically picks a credential with remaining > 0 for budget
// (restoring any credential whose reset_at has elapsed first),
// decrements remaining, and returns it. Returns ok=false if every
// credential for this budget is exhausted.
func (p *TokenPool) Reserve(budget string) (credential string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for _, cs := range p.creds {
		st, exists := cs.budgets[budget]
		if !exists {
			continue
		}
		if !now.Before(st.ResetAt) {
			st.Remaining = st.Limit
			st.ResetAt = now.Add(time.Hour)
		}
	}

	var best *credentialState
	var bestState *TokenState
	for _, cs := range p.creds {
		st, exists := cs.budgets[budget]
		if !exists || st.Remaining <= 0 {
			continue
		}
		if best == nil || st.Remaining > bestState.Remaining ||
			(st.Remaining == bestState.Remaining && cs.index < best.index) {
			best = cs
			bestState = st
		}
	}

	if best == nil {
		return "", false
	}
	bestState.Remaining--
	return best.credential, true
}

// EarliestReset returns the soonest reset_at across all credentials for
// budget, used by the scheduler to size its suspend-until-capacity wait.
func (p *TokenPool) EarliestReset(budget string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	var earliest time.Time
	for _, cs := range p.creds {
		st, ok := cs.budgets[budget]
		if !ok {
			continue
		}
		if earliest.IsZero() || st.ResetAt.Before(earliest) {
			earliest = st.ResetAt
		}
	}
	return earliest
}

// Observe replaces limit/remaining/reset_at from authoritative response
// headers. A later, smaller remaining always overrides an earlier
// larger one (non-monotone replacement is allowed); staleness is
// rejected solely by arrival order via obsSeq, never by value
// comparison.
func (p *TokenPool) Observe(credential, budget string, headers http.Header) {
	limit, remaining, resetAt, ok := parseRateLimitHeaders(headers)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.nextSeq
	p.nextSeq++

	for _, cs := range p.creds {
		if cs.credential != credential {
			continue
		}
		st, exists := cs.budgets[budget]
		if !exists {
			st = &TokenState{}
			cs.budgets[budget] = st
		}
		if seq < st.obsSeq {
			return
		}
		st.obsSeq = seq
		st.Limit = limit
		st.Remaining = remaining
		st.ResetAt = resetAt
		return
	}
}

// Penalise forces a credential's effective remaining to 0 until the
// given instant, used on 403/secondary-rate-limit responses.
func (p *TokenPool) Penalise(credential, budget string, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cs := range p.creds {
		if cs.credential != credential {
			continue
		}
		st, exists := cs.budgets[budget]
		if !exists {
			st = &TokenState{}
			cs.budgets[budget] = st
		}
		st.Remaining = 0
		st.ResetAt = until
		return
	}
}

// Revoke permanently zeroes a credential's capacity across every budget
// after a 401, until operator intervention restarts the process with a
// corrected credential set.
func (p *TokenPool) Revoke(credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cs := range p.creds {
		if cs.credential != credential {
			continue
		}
		for _, st := range cs.budgets {
			st.Remaining = 0
			st.ResetAt = time.Now().Add(100 * 365 * 24 * time.Hour)
		}
		return
	}
}

func parseRateLimitHeaders(h http.Header) (limit, remaining int, resetAt time.Time, ok bool) {
	limitStr := h.Get("X-RateLimit-Limit")
	remainingStr := h.Get("X-RateLimit-Remaining")
	resetStr := h.Get("X-RateLimit-Reset")
	if limitStr == "" || remainingStr == "" || resetStr == "" {
		return 0, 0, time.Time{}, false
	}
	l, err1 := strconv.Atoi(limitStr)
	r, err2 := strconv.Atoi(remainingStr)
	rs, err3 := strconv.ParseInt(resetStr, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, time.Time{}, false
	}
	return l, r, time.Unix(rs, 0), true
}
