package firehose

import (
	"bytes"
	"testing"

	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, hdr, payload map[string]any) []byte {
	t.Helper()
	hdrBytes, err := cbor.DumpObject(hdr)
	require.NoError(t, err)
	payloadBytes, err := cbor.DumpObject(payload)
	require.NoError(t, err)
	return append(bytes.Clone(hdrBytes), payloadBytes...)
}

func TestSplitFrameCommit(t *testing.T) {
	frame := encodeFrame(t,
		map[string]any{"op": int64(1), "t": "#commit"},
		map[string]any{
			"seq":  int64(1001),
			"repo": "did:plc:test",
			"time": "2024-01-01T00:00:00.000Z",
		},
	)

	h, payload, err := splitFrame(frame)
	require.NoError(t, err)
	require.Equal(t, opRegular, h.Op)
	require.Equal(t, "#commit", h.T)
	require.Equal(t, "did:plc:test", payload["repo"])
}

func TestSplitFrameErrorOp(t *testing.T) {
	frame := encodeFrame(t,
		map[string]any{"op": int64(-1), "t": "SomeError"},
		map[string]any{"error": "SomeError", "message": "bad cursor"},
	)

	h, payload, err := splitFrame(frame)
	require.NoError(t, err)
	require.Equal(t, opError, h.Op)
	require.Equal(t, "bad cursor", payload["message"])
}

func TestValidSeq(t *testing.T) {
	one := int64(1)
	two := int64(2)

	require.True(t, validSeq(nil, &one))
	require.True(t, validSeq(&one, nil))
	require.True(t, validSeq(&one, &two))
	require.False(t, validSeq(&two, &one))
	require.False(t, validSeq(&one, &one))
}
