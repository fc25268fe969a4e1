package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Call timeout classes. Analysis calls get a much longer deadline than
// control calls because the backend may spawn nested interpreter
// processes (a bundled Node runtime for JS/TS, for one) with their own
// startup latency.
type Class int

const (
	ClassControl Class = iota
	ClassAnalysis
)

// Default per-class timeouts.
const (
	DefaultControlTimeout  = 30 * time.Second
	DefaultAnalysisTimeout = 3 * time.Minute
)

// TimeoutError is delivered to a caller whose call's deadline elapsed.
type TimeoutError struct {
	Method  string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %s timed out after %s", e.Method, e.Elapsed)
}

// Result is the terminal outcome of one outstanding call: either the raw
// result payload or an error, never both.
type Result struct {
	Raw json.RawMessage
	Err error
}

type pendingEntry struct {
	method string
	start  time.Time
	ch     chan Result
	timer  *time.Timer
}

// PendingCalls is the outstanding-call table. It is keyed exclusively by
// ids we generated; inbound request ids from the peer live in a separate
// space and never touch this table.
type PendingCalls struct {
	mu       sync.Mutex
	nextID   int64
	calls    map[int64]*pendingEntry
	timeouts map[Class]time.Duration
}

// NewPendingCalls builds a table with the given per-class timeouts. Zero
// values fall back to the package defaults.
func NewPendingCalls(control, analysis time.Duration) *PendingCalls {
	if control <= 0 {
		control = DefaultControlTimeout
	}
	if analysis <= 0 {
		analysis = DefaultAnalysisTimeout
	}
	return &PendingCalls{
		calls: make(map[int64]*pendingEntry),
		timeouts: map[Class]time.Duration{
			ClassControl:  control,
			ClassAnalysis: analysis,
		},
	}
}

// Register allocates a fresh id, records the pending entry, and arms its
// deadline timer. The returned channel receives exactly one Result.
func (p *PendingCalls) Register(method string, class Class) (int64, <-chan Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	e := &pendingEntry{
		method: method,
		start:  time.Now(),
		ch:     make(chan Result, 1),
	}
	timeout := p.timeouts[class]
	e.timer = time.AfterFunc(timeout, func() {
		p.Reject(id, &TimeoutError{Method: method, Elapsed: timeout})
	})
	p.calls[id] = e
	return id, e.ch
}

// Resolve delivers a successful response to the call with the given id.
// Returns false if the id is unknown (already timed out or never ours);
// such responses are discarded silently per the protocol contract.
func (p *PendingCalls) Resolve(id int64, raw json.RawMessage) bool {
	e := p.take(id)
	if e == nil {
		return false
	}
	e.ch <- Result{Raw: raw}
	return true
}

// Reject delivers an error to the call with the given id.
func (p *PendingCalls) Reject(id int64, err error) bool {
	e := p.take(id)
	if e == nil {
		return false
	}
	e.ch <- Result{Err: err}
	return true
}

// FailAll rejects every currently pending call with err. Used when the
// backend process exits: no caller may be left hanging on a response that
// can never arrive.
func (p *PendingCalls) FailAll(err error) {
	p.mu.Lock()
	entries := p.calls
	p.calls = make(map[int64]*pendingEntry)
	p.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.ch <- Result{Err: err}
	}
}

// Len returns the number of calls currently outstanding.
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// take removes and returns the entry for id, stopping its timer. The
// single-removal discipline guarantees each call resolves exactly once.
func (p *PendingCalls) take(id int64) *pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.calls[id]
	if !ok {
		return nil
	}
	delete(p.calls, id)
	e.timer.Stop()
	return e
}
