package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament-run/filament/internal/codec"
)

func TestAuthorizeExactMatch(t *testing.T) {
	set := NewSet([]Grant{{URN: TopicKVSet}})
	g, err := set.Authorize(TopicKVSet)
	require.NoError(t, err)
	assert.Equal(t, TopicKVSet, g.URN)
}

func TestAuthorizeWildcardMatch(t *testing.T) {
	set := NewSet([]Grant{{URN: TopicFSPrefix + "*"}})
	_, err := set.Authorize(TopicFSPrefix + "read")
	require.NoError(t, err)
}

func TestAuthorizeDeniesUngranted(t *testing.T) {
	set := NewSet(nil)
	_, err := set.Authorize(TopicKVGet)
	assert.ErrorIs(t, err, ErrPerm)
}

func TestCheckAffinityRejectsPinnedOnStateless(t *testing.T) {
	g := Grant{URN: TopicCoreLog, Affinity: Pinned}
	err := CheckAffinity(g, true)
	assert.ErrorIs(t, err, ErrPerm)
}

func TestCheckAffinityAllowsAgnosticOnStateless(t *testing.T) {
	g := Grant{URN: TopicCoreLog, Affinity: Agnostic}
	assert.NoError(t, CheckAffinity(g, true))
}

func TestSubsetDetectsMissingGrant(t *testing.T) {
	parent := NewSet([]Grant{{URN: TopicKVSet}})
	ok := parent.Subset([]Grant{{URN: TopicKVGet}})
	assert.False(t, ok)
}

func TestKVSnapshotIsolation(t *testing.T) {
	kv := NewKVStore()
	kv.BeginWeave()
	kv.Set("k", codec.I64(1))
	_, ok := kv.Get("k")
	assert.False(t, ok, "a write buffered this weave should not be visible to Get until commit")

	kv.Commit()
	kv.BeginWeave()
	v, ok := kv.Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.I64)
}

func TestKVDiscardDropsPendingWrites(t *testing.T) {
	kv := NewKVStore()
	kv.BeginWeave()
	kv.Set("k", codec.I64(1))
	kv.Discard()
	kv.Commit()
	_, ok := kv.data["k"]
	assert.False(t, ok)
}

func TestKVLastWriteWinsWithinWeave(t *testing.T) {
	kv := NewKVStore()
	kv.BeginWeave()
	kv.Set("k", codec.I64(1))
	kv.Set("k", codec.I64(2))
	kv.Commit()
	kv.BeginWeave()
	v, _ := kv.Get("k")
	assert.Equal(t, int64(2), v.I64)
}

func TestAsyncDispatchAndResolve(t *testing.T) {
	d := NewAsyncDispatcher()
	reqID := d.Dispatch(AsyncFS, TopicFSPrefix+"read", 1)
	assert.Equal(t, 1, d.Pending())

	req, ok := d.Resolve(reqID)
	require.True(t, ok)
	assert.Equal(t, AsyncFS, req.Kind)
	assert.Equal(t, 0, d.Pending())
}

func TestAsyncResolveUnknownReqIDFails(t *testing.T) {
	d := NewAsyncDispatcher()
	_, ok := d.Resolve([16]byte{})
	assert.False(t, ok)
}

func TestIsSpecialTopics(t *testing.T) {
	cases := []string{TopicTimeSet, TopicCoreLog, TopicCorePanic, TopicKVSet, TopicKVGet, TopicFSPrefix + "x", TopicHTTPPrefix + "x"}
	for _, topic := range cases {
		assert.True(t, IsSpecial(topic), topic)
	}
	assert.False(t, IsSpecial("filament/channel/1"))
}

func TestRouterAuthorizeOutbound(t *testing.T) {
	set := NewSet([]Grant{{URN: TopicKVSet}})
	r := NewRouter(set, NewKVStore(), NewAsyncDispatcher())
	require.NoError(t, r.AuthorizeOutbound(TopicKVSet))
	assert.ErrorIs(t, r.AuthorizeOutbound(TopicKVGet), ErrPerm)
}
