package firehose

import (
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/cometsh/atstream/atproto/syntax"
)

// RepoOpAction is the action a RepoOp performed on a record path. Unknown
// values are preserved verbatim rather than rejected, per §4.5's lenient
// parsing rule for string enums.
type RepoOpAction string

const (
	RepoOpCreate RepoOpAction = "create"
	RepoOpUpdate RepoOpAction = "update"
	RepoOpDelete RepoOpAction = "delete"
)

// RepoOp is one record-level change inside a Commit.
type RepoOp struct {
	Action RepoOpAction
	Path   string
	Cid    *cid.Cid
	Prev   *cid.Cid

	// Record is the decoded record map resolved from the commit's CAR
	// archive against Cid, or nil if Cid is nil or the block is absent.
	Record map[string]any
}

// AccountStatus is the lifecycle status carried by an Account event.
// Unknown values are preserved as the raw string.
type AccountStatus string

const (
	AccountTakendown      AccountStatus = "takendown"
	AccountSuspended      AccountStatus = "suspended"
	AccountDeleted        AccountStatus = "deleted"
	AccountDeactivated    AccountStatus = "deactivated"
	AccountDesynchronized AccountStatus = "desynchronized"
	AccountThrottled      AccountStatus = "throttled"
)

// Commit is dispatched for the "#commit" event tag.
type Commit struct {
	Seq    *int64
	Repo   syntax.DID
	Commit cid.Cid
	Rev    syntax.TID
	Since  *syntax.TID
	Ops    []RepoOp
	Time   time.Time

	// Rebase, TooBig, and Blobs are deprecated fields preserved for wire
	// compatibility; current relays always send Rebase=false, TooBig=false,
	// Blobs=[].
	Rebase bool
	TooBig bool
	Blobs  []cid.Cid
}

// Sync is dispatched for the "#sync" event tag.
type Sync struct {
	Seq    *int64
	Did    syntax.DID
	Blocks []byte
	Rev    syntax.TID
	Time   time.Time
}

// Identity is dispatched for the "#identity" event tag.
type Identity struct {
	Seq    *int64
	Did    syntax.DID
	Time   time.Time
	Handle *string
}

// Account is dispatched for the "#account" event tag.
type Account struct {
	Seq    *int64
	Did    syntax.DID
	Time   time.Time
	Active bool
	Status *AccountStatus
}

// Info is dispatched for the "#info" event tag. Info events carry no seq
// and never advance the adapter's cursor.
type Info struct {
	Name    string
	Message *string
}

// Event is the discriminated union handed to the dispatch table; exactly
// one field is non-nil.
type Event struct {
	Commit   *Commit
	Sync     *Sync
	Identity *Identity
	Account  *Account
	Info     *Info
}

// Seq returns the event's sequence number, or (0, false) for variants that
// carry none (Info always; others when the server omitted seq).
func (e *Event) Seq() (int64, bool) {
	var seq *int64
	switch {
	case e.Commit != nil:
		seq = e.Commit.Seq
	case e.Sync != nil:
		seq = e.Sync.Seq
	case e.Identity != nil:
		seq = e.Identity.Seq
	case e.Account != nil:
		seq = e.Account.Seq
	}
	if seq == nil {
		return 0, false
	}
	return *seq, true
}

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func getOptString(m map[string]any, key string) *string {
	v, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func getBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

// getSeq extracts an optional int64 seq field. DagCBOR decodes integers to
// int64 or uint64 depending on sign via go-ipld-cbor; both are handled.
func getSeq(m map[string]any) (int64, bool) {
	switch v := m["seq"].(type) {
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// optionalSeq wraps getSeq for the four event kinds whose Seq field is
// optional on the wire, preserving presence instead of collapsing an
// absent seq to a zero value.
func optionalSeq(m map[string]any) *int64 {
	seq, ok := getSeq(m)
	if !ok {
		return nil
	}
	return &seq
}

func parseTime(m map[string]any, key string) (time.Time, error) {
	s, ok := getString(m, key)
	if !ok {
		return time.Time{}, fmt.Errorf("missing or non-string %q field", key)
	}
	t, err := syntax.ParseDatetimeTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %q datetime: %w", key, err)
	}
	return t, nil
}

func parseDID(m map[string]any, key string) (syntax.DID, error) {
	s, ok := getString(m, key)
	if !ok {
		return "", fmt.Errorf("missing or non-string %q field", key)
	}
	did, err := syntax.ParseDID(s)
	if err != nil {
		return "", fmt.Errorf("malformed %q DID: %w", key, err)
	}
	return did, nil
}

func getCIDLink(v any) (*cid.Cid, error) {
	if v == nil {
		return nil, nil
	}
	c, ok := v.(cid.Cid)
	if !ok {
		return nil, fmt.Errorf("expected CID-link value, got %T", v)
	}
	return &c, nil
}

// parseEvent builds a typed Event from a decoded header/payload pair. tag is
// the header's "t" field (e.g. "#commit"); payload is the DagCBOR payload
// decoded to a generic map, per the atproto data model's opaque-map
// convention (atproto/data.UnmarshalCBOR).
func parseEvent(tag string, payload map[string]any) (*Event, error) {
	switch tag {
	case "#commit":
		return parseCommit(payload)
	case "#sync":
		return parseSync(payload)
	case "#identity":
		return parseIdentity(payload)
	case "#account":
		return parseAccount(payload)
	case "#info":
		return parseInfo(payload)
	default:
		return nil, fmt.Errorf("unknown event tag %q", tag)
	}
}

func parseCommit(m map[string]any) (*Event, error) {
	seq := optionalSeq(m)
	repo, err := parseDID(m, "repo")
	if err != nil {
		return nil, err
	}
	t, err := parseTime(m, "time")
	if err != nil {
		return nil, err
	}

	commitLink, err := getCIDLink(m["commit"])
	if err != nil || commitLink == nil {
		return nil, fmt.Errorf("commit event missing valid commit CID: %w", err)
	}

	revStr, _ := getString(m, "rev")
	rev, err := syntax.ParseTID(revStr)
	if err != nil {
		return nil, fmt.Errorf("malformed rev TID: %w", err)
	}

	var since *syntax.TID
	if sinceStr, ok := getString(m, "since"); ok {
		s, err := syntax.ParseTID(sinceStr)
		if err != nil {
			return nil, fmt.Errorf("malformed since TID: %w", err)
		}
		since = &s
	}

	blocksRaw, _ := m["blocks"].([]byte)
	blockTable, err := decodeCAR(blocksRaw)
	if err != nil {
		return nil, fmt.Errorf("decoding commit blocks: %w", err)
	}

	rawOps, _ := m["ops"].([]any)
	ops := make([]RepoOp, 0, len(rawOps))
	for _, rawOp := range rawOps {
		opMap, ok := rawOp.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed repo op entry")
		}
		op, err := parseRepoOp(opMap, blockTable)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	var blobs []cid.Cid
	if rawBlobs, ok := m["blobs"].([]any); ok {
		for _, rb := range rawBlobs {
			if c, ok := rb.(cid.Cid); ok {
				blobs = append(blobs, c)
			}
		}
	}

	return &Event{Commit: &Commit{
		Seq:    seq,
		Repo:   repo,
		Commit: *commitLink,
		Rev:    rev,
		Since:  since,
		Ops:    ops,
		Time:   t,
		Rebase: getBool(m, "rebase"),
		TooBig: getBool(m, "tooBig"),
		Blobs:  blobs,
	}}, nil
}

func parseRepoOp(m map[string]any, blocks map[cid.Cid][]byte) (RepoOp, error) {
	action, _ := getString(m, "action")
	path, _ := getString(m, "path")

	opCid, err := getCIDLink(m["cid"])
	if err != nil {
		return RepoOp{}, fmt.Errorf("malformed repo op cid: %w", err)
	}
	prevCid, err := getCIDLink(m["prev"])
	if err != nil {
		return RepoOp{}, fmt.Errorf("malformed repo op prev: %w", err)
	}

	var record map[string]any
	if opCid != nil {
		if raw, ok := blocks[*opCid]; ok {
			record, err = decodeDagCBORMap(raw)
			if err != nil {
				return RepoOp{}, fmt.Errorf("decoding record block: %w", err)
			}
		}
	}

	return RepoOp{
		Action: RepoOpAction(action),
		Path:   path,
		Cid:    opCid,
		Prev:   prevCid,
		Record: record,
	}, nil
}

func parseSync(m map[string]any) (*Event, error) {
	seq := optionalSeq(m)
	did, err := parseDID(m, "did")
	if err != nil {
		return nil, err
	}
	t, err := parseTime(m, "time")
	if err != nil {
		return nil, err
	}
	revStr, _ := getString(m, "rev")
	rev, err := syntax.ParseTID(revStr)
	if err != nil {
		return nil, fmt.Errorf("malformed rev TID: %w", err)
	}
	blocks, _ := m["blocks"].([]byte)

	return &Event{Sync: &Sync{
		Seq:    seq,
		Did:    did,
		Blocks: blocks,
		Rev:    rev,
		Time:   t,
	}}, nil
}

func parseIdentity(m map[string]any) (*Event, error) {
	seq := optionalSeq(m)
	did, err := parseDID(m, "did")
	if err != nil {
		return nil, err
	}
	t, err := parseTime(m, "time")
	if err != nil {
		return nil, err
	}

	return &Event{Identity: &Identity{
		Seq:    seq,
		Did:    did,
		Time:   t,
		Handle: getOptString(m, "handle"),
	}}, nil
}

func parseAccount(m map[string]any) (*Event, error) {
	seq := optionalSeq(m)
	did, err := parseDID(m, "did")
	if err != nil {
		return nil, err
	}
	t, err := parseTime(m, "time")
	if err != nil {
		return nil, err
	}

	var status *AccountStatus
	if s, ok := getString(m, "status"); ok {
		st := AccountStatus(s)
		status = &st
	}

	return &Event{Account: &Account{
		Seq:    seq,
		Did:    did,
		Time:   t,
		Active: getBool(m, "active"),
		Status: status,
	}}, nil
}

func parseInfo(m map[string]any) (*Event, error) {
	name, _ := getString(m, "name")
	return &Event{Info: &Info{
		Name:    name,
		Message: getOptString(m, "message"),
	}}, nil
}
