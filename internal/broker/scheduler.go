package broker

import (
	"container/ring"
	"context"
	"sync"
	"time"
)

// classQueue is one priority tier's FIFO within a budget.
type classQueue struct {
	name     string
	weight   int
	queueCap int
	deficit  int
	items    []*pendingRequest
}

// SchedulerMetricsSink receives queue-depth and retry observations.
type SchedulerMetricsSink interface {
	QueueLength(budget, class string, n int)
	RetryObserved(budget, reason string)
}

// Scheduler is one budget's admission loop: DRR-weighted class
// selection, a bound on in-flight dispatches, and a bound on each
// class's queue depth.
type Scheduler struct {
	budget      string
	concurrency int
	tokens      *TokenPool
	executor    *Executor
	metrics     SchedulerMetricsSink

	mu        sync.Mutex
	classes   map[string]*classQueue
	order     *ring.Ring // rotates through class names for DRR service order
	inFlight  int
	submitSig chan struct{}
	doneSig   chan struct{}

	stopCh chan struct{}
}

func NewScheduler(budget string, classes []ClassConfig, concurrency int, tokens *TokenPool, executor *Executor, metrics SchedulerMetricsSink) *Scheduler {
	s := &Scheduler{
		budget:      budget,
		concurrency: concurrency,
		tokens:      tokens,
		executor:    executor,
		metrics:     metrics,
		classes:     make(map[string]*classQueue),
		submitSig:   make(chan struct{}, 1),
		doneSig:     make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}

	r := ring.New(len(classes))
	cur := r
	for _, c := range classes {
		s.classes[c.Name] = &classQueue{name: c.Name, weight: c.Weight, queueCap: c.QueueCap}
		cur.Value = c.Name
		cur = cur.Next()
	}
	s.order = r
	return s
}

type ClassConfig struct {
	Name     string
	Weight   int
	QueueCap int
}

// Submit enqueues req onto its class's FIFO. It never blocks: on
// overflow it returns ErrQueueFull immediately. The returned channel
// resolves exactly once.
func (s *Scheduler) Submit(ctx context.Context, req *Request) (<-chan Result, error) {
	s.mu.Lock()
	cq, ok := s.classes[req.Class]
	if !ok {
		s.mu.Unlock()
		return nil, &ErrQueueFull{Budget: s.budget, Class: req.Class}
	}
	if len(cq.items) >= cq.queueCap {
		s.mu.Unlock()
		return nil, &ErrQueueFull{Budget: s.budget, Class: req.Class}
	}

	var childCtx context.Context
	var cancel context.CancelFunc
	if req.Deadline.IsZero() {
		childCtx, cancel = context.WithCancel(ctx)
	} else {
		childCtx, cancel = context.WithDeadline(ctx, req.Deadline)
	}
	pr := &pendingRequest{req: req, ctx: childCtx, resultCh: make(chan Result, 1), cancel: cancel}
	cq.items = append(cq.items, pr)
	s.reportQueueLenLocked(cq)
	s.mu.Unlock()

	s.wake()
	return pr.resultCh, nil
}

func (s *Scheduler) wake() {
	select {
	case s.submitSig <- struct{}{}:
	default:
	}
}

// Run drives the admission loop until ctx is cancelled. It suspends at
// three points — in-flight cap, empty classes, and token exhaustion —
// and never busy-spins.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.mu.Lock()
		if s.inFlight >= s.concurrency {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.doneSig:
			}
			continue
		}

		pr, cq := s.selectNextLocked()
		if pr == nil {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.submitSig:
			}
			continue
		}

		// Cancellation/deadline withdrawal while still queued.
		if pr.ctx.Err() != nil {
			s.mu.Unlock()
			pr.resultCh <- Result{Err: classifyWithdrawal(pr)}
			continue
		}

		credential, ok := s.tokens.Reserve(s.budget)
		if !ok {
			// Put the request back at the head of its class and
			// suspend until the earliest reset or a new observation.
			cq.items = append([]*pendingRequest{pr}, cq.items...)
			s.reportQueueLenLocked(cq)
			s.mu.Unlock()

			wait := time.Until(s.tokens.EarliestReset(s.budget))
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			case <-s.submitSig:
				timer.Stop()
			}
			continue
		}

		cq.deficit -= cost(pr.req)
		if cq.deficit <= 0 || len(cq.items) == 0 {
			s.order = s.order.Next()
		}
		s.inFlight++
		s.mu.Unlock()

		go s.dispatch(pr, credential)
	}
}

func (s *Scheduler) Stop() { close(s.stopCh) }

func cost(r *Request) int {
	if r.Cost <= 0 {
		return 1
	}
	return r.Cost
}

func classifyWithdrawal(pr *pendingRequest) error {
	if deadline, ok := pr.ctx.Deadline(); ok && time.Now().After(deadline) {
		return &ErrTimeout{}
	}
	return &ErrCancelled{Reason: "withdrawn while queued"}
}

// selectNextLocked implements deficit-round-robin across classes. The
// ring only advances past a class once that class is empty or its
// deficit can no longer cover its head item's cost; while a class's
// accumulated deficit keeps covering its head, repeated calls drain it
// without moving the ring, so a class actually receives service in
// proportion to its weight instead of strict per-call alternation.
// Deficit is topped up by weight only when a class's turn begins
// (deficit <= 0) — a class still mid-turn (positive deficit) is not
// topped up again until it runs out and a later rotation returns to it.
func (s *Scheduler) selectNextLocked() (*pendingRequest, *classQueue) {
	if s.order == nil {
		return nil, nil
	}

	total := 0
	for _, cq := range s.classes {
		total += len(cq.items)
	}
	if total == 0 {
		return nil, nil
	}

	n := s.order.Len()
	for i := 0; i < n; i++ {
		name := s.order.Value.(string)
		cq := s.classes[name]

		if len(cq.items) == 0 {
			cq.deficit = 0
			s.order = s.order.Next()
			continue
		}

		if cq.deficit <= 0 {
			cq.deficit += cq.weight
		}

		head := cq.items[0]
		if cq.deficit < cost(head.req) {
			s.order = s.order.Next()
			continue
		}

		cq.items = cq.items[1:]
		s.reportQueueLenLocked(cq)
		return head, cq
	}

	// Every non-empty class was short on deficit for its own head item
	// (weight configured below that item's cost). Force-admit the first
	// non-empty class in ring order so the scheduler never stalls on a
	// pathological weight/cost combination; Run's usual deficit
	// bookkeeping still applies to the returned item, driving this
	// class's deficit negative and advancing past it as normal.
	for i := 0; i < n; i++ {
		name := s.order.Value.(string)
		cq := s.classes[name]
		if len(cq.items) == 0 {
			s.order = s.order.Next()
			continue
		}
		head := cq.items[0]
		cq.items = cq.items[1:]
		s.reportQueueLenLocked(cq)
		return head, cq
	}

	return nil, nil
}

func (s *Scheduler) reportQueueLenLocked(cq *classQueue) {
	if s.metrics != nil {
		s.metrics.QueueLength(s.budget, cq.name, len(cq.items))
	}
}

func (s *Scheduler) dispatch(pr *pendingRequest, credential string) {
	resp, err := s.executor.Execute(pr, credential, s)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if err != errRequeued {
		pr.resultCh <- Result{Response: resp, Err: err}
	}

	select {
	case s.doneSig <- struct{}{}:
	default:
	}
	s.wake()
}

// requeueAtHead puts pr back at the front of its class's FIFO without
// counting it as a failure, used when the executor hits a secondary
// rate limit mid-flight.
func (s *Scheduler) requeueAtHead(pr *pendingRequest) {
	s.mu.Lock()
	if cq, ok := s.classes[pr.req.Class]; ok {
		cq.items = append([]*pendingRequest{pr}, cq.items...)
		s.reportQueueLenLocked(cq)
	}
	s.mu.Unlock()
	s.wake()
}
