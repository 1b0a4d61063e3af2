package firehose

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car"

	cbor "github.com/ipfs/go-ipld-cbor"
)

// decodeCAR reads a CAR archive (the Commit.Blocks field) into a flat
// CID→raw-block table. §4.5 only requires resolving each RepoOp's cid
// against blocks carried in the same commit frame — a flat lookup, not a
// full merkle-search-tree walk over a persisted repo, so this skips the
// mst/blockstore machinery LoadRepoFromCAR uses for full repo reconstruction.
func decodeCAR(raw []byte) (map[cid.Cid][]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	cr, err := car.NewCarReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing CAR header: %w", err)
	}

	table := make(map[cid.Cid][]byte)
	for {
		var blk blocks.Block
		blk, err = cr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading CAR block: %w", err)
		}
		if blk == nil {
			break
		}
		table[blk.Cid()] = blk.RawData()
	}
	return table, nil
}

// decodeDagCBORMap decodes a single DagCBOR block to an opaque map, per the
// atproto data model's convention of surfacing record payloads as
// key→value maps rather than decoding application schemas (non-goal §1).
func decodeDagCBORMap(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := cbor.DecodeInto(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
