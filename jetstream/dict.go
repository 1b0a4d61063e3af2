package jetstream

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// decoderPool lazily builds one *zstd.Decoder per distinct dictionary and
// reuses it across every Stream instance sharing that dictionary, matching
// the "process-wide, immutable, created at first use" rule for the zstd
// dictionary resource (§5, §9 Global state).
var decoderPool = struct {
	mu    sync.Mutex
	byKey map[string]*zstd.Decoder
}{byKey: make(map[string]*zstd.Decoder)}

func sharedDecoder(dictionary []byte) (*zstd.Decoder, error) {
	decoderPool.mu.Lock()
	defer decoderPool.mu.Unlock()

	key := string(dictionary)
	if dec, ok := decoderPool.byKey[key]; ok {
		return dec, nil
	}

	opts := []zstd.DOption{}
	if len(dictionary) > 0 {
		opts = append(opts, zstd.WithDecoderDicts(dictionary))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing zstd decoder: %w", err)
	}
	decoderPool.byKey[key] = dec
	return dec, nil
}

// decompress inflates a single zstd-with-dictionary frame to JSON bytes.
func decompress(dec *zstd.Decoder, payload []byte) ([]byte, error) {
	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}
