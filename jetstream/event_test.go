package jetstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventCommit(t *testing.T) {
	raw := []byte(`{"did":"did:plc:x","time_us":1725519626134432,"kind":"commit","commit":{"rev":"r","operation":"create","collection":"app.bsky.feed.post","rkey":"k"}}`)

	ev, err := parseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Commit)
	require.Equal(t, int64(1725519626134432), ev.TimeUS())
	require.Equal(t, OpCreate, ev.Commit.Operation)
	require.EqualValues(t, "app.bsky.feed.post", ev.Commit.Collection)
}

func TestParseEventIdentity(t *testing.T) {
	raw := []byte(`{"did":"did:plc:x","time_us":5,"kind":"identity","identity":{"handle":"alice.test","seq":9}}`)
	ev, err := parseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Identity)
	require.Equal(t, "alice.test", *ev.Identity.Handle)
}

func TestParseEventAccount(t *testing.T) {
	raw := []byte(`{"did":"did:plc:x","time_us":5,"kind":"account","account":{"active":false,"status":"deactivated"}}`)
	ev, err := parseEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.Account)
	require.False(t, ev.Account.Active)
	require.Equal(t, "deactivated", *ev.Account.Status)
}

func TestParseEventUnknownKind(t *testing.T) {
	raw := []byte(`{"did":"did:plc:x","time_us":5,"kind":"mystery"}`)
	_, err := parseEvent(raw)
	require.Error(t, err)
}

func TestParseEventMalformedCollection(t *testing.T) {
	raw := []byte(`{"did":"did:plc:x","time_us":5,"kind":"commit","commit":{"rev":"r","operation":"create","collection":"not-an-nsid","rkey":"k"}}`)
	_, err := parseEvent(raw)
	require.Error(t, err)
}
