package capability

import (
	"sync"

	"github.com/google/uuid"
)

// AsyncKind distinguishes the two host-thread-dispatched operation families:
// filesystem and outbound HTTP requests.
type AsyncKind int

const (
	AsyncFS AsyncKind = iota
	AsyncHTTP
)

// PendingRequest is one outstanding asynchronous fs/http dispatch, tracked by
// its req_id until a reply is injected in a future Weave.
type PendingRequest struct {
	ReqID   uuid.UUID
	Kind    AsyncKind
	Topic   string
	Process uint64
}

// AsyncDispatcher correlates outbound fs/http requests with their eventual
// inbound replies by req_id.
type AsyncDispatcher struct {
	mu      sync.Mutex
	pending map[uuid.UUID]PendingRequest
}

// NewAsyncDispatcher creates an empty dispatcher.
func NewAsyncDispatcher() *AsyncDispatcher {
	return &AsyncDispatcher{pending: make(map[uuid.UUID]PendingRequest)}
}

// Dispatch registers a new outstanding request and returns its req_id, the
// correlation token carried on the reply event.
func (d *AsyncDispatcher) Dispatch(kind AsyncKind, topic string, process uint64) uuid.UUID {
	reqID := uuid.New()
	d.mu.Lock()
	d.pending[reqID] = PendingRequest{ReqID: reqID, Kind: kind, Topic: topic, Process: process}
	d.mu.Unlock()
	return reqID
}

// Resolve removes and returns the pending request for reqID, reporting
// whether it was found — a reply with no matching req_id is dropped by the
// caller.
func (d *AsyncDispatcher) Resolve(reqID uuid.UUID) (PendingRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	req, ok := d.pending[reqID]
	if ok {
		delete(d.pending, reqID)
	}
	return req, ok
}

// Pending reports how many requests are still outstanding. The supervisor
// does not consult it: termination reclaims a process immediately.
func (d *AsyncDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
