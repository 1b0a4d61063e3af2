package firehose

import (
	"bytes"
	"fmt"

	cbg "github.com/whyrusleeping/cbor-gen"
	cbor "github.com/ipfs/go-ipld-cbor"
)

// header mirrors the wire schema {"op": 1|-1, "t": "#commit"|...} from
// §6. -1 marks a server-side error frame carrying {t, payload} for
// diagnostics rather than a real event tag.
type header struct {
	Op int    `json:"op"`
	T  string `json:"t"`
}

const (
	opRegular = 1
	opError   = -1
)

// splitFrame peels the two consecutive DagCBOR items packed into one binary
// WebSocket frame — header then payload — using cbg.Deferred to grab each
// item's raw bytes without generated per-type Unmarshal code (no
// cbor_gen.go exists for the wire types here), then decodes each to an
// opaque map via go-ipld-cbor, matching atproto/data.UnmarshalCBOR's
// generic decode path.
func splitFrame(raw []byte) (header, map[string]any, error) {
	r := bytes.NewReader(raw)

	var headerRaw cbg.Deferred
	if err := headerRaw.UnmarshalCBOR(r); err != nil {
		return header{}, nil, fmt.Errorf("reading frame header: %w", err)
	}

	var headerMap map[string]any
	if err := cbor.DecodeInto(headerRaw.Raw, &headerMap); err != nil {
		return header{}, nil, fmt.Errorf("decoding frame header: %w", err)
	}

	h := header{T: extractTag(headerMap), Op: opRegular}
	if op, ok := getOp(headerMap); ok {
		h.Op = op
	}

	var payloadRaw cbg.Deferred
	if err := payloadRaw.UnmarshalCBOR(r); err != nil {
		return header{}, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	var payload map[string]any
	if err := cbor.DecodeInto(payloadRaw.Raw, &payload); err != nil {
		return header{}, nil, fmt.Errorf("decoding frame payload: %w", err)
	}

	return h, payload, nil
}

func extractTag(m map[string]any) string {
	if t, ok := m["t"].(string); ok {
		return t
	}
	return ""
}

func getOp(m map[string]any) (int, bool) {
	switch v := m["op"].(type) {
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
