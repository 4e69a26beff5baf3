package capability

import "github.com/filament-run/filament/internal/logging"

// Router is the per-process outbound/inbound event gate: every outbound
// event's topic must be authorized by the process's Set before it is
// allowed to reach a channel, the kv store, or a host dispatch.
type Router struct {
	Grants *Set
	KV     *KVStore
	Async  *AsyncDispatcher
	log    *logging.Logger
}

// NewRouter creates a router over grants, sharing kv and async across the
// process's lifetime (they outlive any single Weave).
func NewRouter(grants *Set, kv *KVStore, async *AsyncDispatcher) *Router {
	return &Router{Grants: grants, KV: kv, Async: async, log: logging.Default()}
}

// AuthorizeOutbound checks topic against the granted set. Unauthorized
// emission aborts the Weave with ErrPerm.
func (r *Router) AuthorizeOutbound(topic string) error {
	_, err := r.Grants.Authorize(topic)
	if err != nil {
		r.log.Debug("outbound emission denied", "topic", topic)
		return ErrPerm
	}
	return nil
}
