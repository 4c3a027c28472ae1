// Package pending tracks key requests awaiting approval. A key has at most
// one outstanding request; each request lapses after its time to live.
package pending

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"keysaccounting-api/internal/metrics"
	"keysaccounting-api/pkg/uid"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrAlreadyPending is returned when the key already has a request awaiting approval.
	ErrAlreadyPending = errors.New("request already pending for key")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("registry closed")
)

// Outcome is how a pending request ended.
type Outcome int

const (
	Approved Outcome = iota + 1
	Denied
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Request is a key request awaiting approval.
type Request struct {
	ID          string    `json:"id"`
	KeyName     string    `json:"key_name"`
	RequesterID string    `json:"requester_id"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Deadline    time.Time `json:"deadline"`
}

type entry struct {
	req   Request
	timer clockwork.Timer
}

// Registry holds the outstanding request of each key.
type Registry struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	entries  map[string]*entry
	onExpire func(Request)
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// OnExpire sets the hook run after a request lapses. The hook runs outside
// the registry lock.
func (r *Registry) OnExpire(fn func(Request)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// Submit registers a request for key and schedules its expiry.
func (r *Registry) Submit(key, requesterID, comment string, ttl time.Duration) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Request{}, ErrClosed
	}
	if _, ok := r.entries[key]; ok {
		return Request{}, ErrAlreadyPending
	}

	now := r.clock.Now()
	req := Request{
		ID:          uid.New(),
		KeyName:     key,
		RequesterID: requesterID,
		Comment:     comment,
		CreatedAt:   now,
		Deadline:    now.Add(ttl),
	}

	id := req.ID
	r.entries[key] = &entry{
		req:   req,
		timer: r.clock.AfterFunc(ttl, func() { r.expire(key, id) }),
	}
	metrics.PendingRequests.Set(float64(len(r.entries)))

	log.Printf("[Registry] Request %s for key %s by %s, expires at %s", id, key, requesterID, req.Deadline.Format(time.RFC3339))
	return req, nil
}

// Resolve removes the request for key. It reports false when there is no
// request, which happens when it already expired or was resolved. The
// caller records the outcome metric once it knows how the request ended.
func (r *Registry) Resolve(key string, outcome Outcome) (Request, bool) {
	return r.resolve(key, "", outcome)
}

// ResolveRequest is Resolve restricted to the request with the given ID.
func (r *Registry) ResolveRequest(key, id string, outcome Outcome) (Request, bool) {
	return r.resolve(key, id, outcome)
}

func (r *Registry) resolve(key, id string, outcome Outcome) (Request, bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || (id != "" && e.req.ID != id) {
		r.mu.Unlock()
		return Request{}, false
	}
	delete(r.entries, key)
	e.timer.Stop()
	metrics.PendingRequests.Set(float64(len(r.entries)))
	r.mu.Unlock()

	log.Printf("[Registry] Request %s for key %s %s", e.req.ID, key, outcome)
	return e.req, true
}

// expire drops the request if it is still the one the timer was armed for.
func (r *Registry) expire(key, id string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.req.ID != id {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	metrics.PendingRequests.Set(float64(len(r.entries)))
	hook := r.onExpire
	r.mu.Unlock()

	metrics.RequestOutcomes.WithLabelValues(Expired.String()).Inc()
	log.Printf("[Registry] Request %s for key %s expired", id, key)

	if hook != nil {
		runHook(hook, e.req)
	}
}

// runHook keeps a failing hook from taking down the timer goroutine.
func runHook(hook func(Request), req Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Registry] Expiry hook for request %s panicked: %v", req.ID, rec)
		}
	}()
	hook(req)
}

// Get returns the request registered for key.
func (r *Registry) Get(key string) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Request{}, false
	}
	return e.req, true
}

// List returns all pending requests, oldest first.
func (r *Registry) List() []Request {
	r.mu.Lock()
	list := make([]Request, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e.req)
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].KeyName < list[j].KeyName
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every expiry timer and drops all requests.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, key)
	}
	r.closed = true
	metrics.PendingRequests.Set(0)
}
