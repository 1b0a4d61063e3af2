package jetstream

import (
	"encoding/json"
	"fmt"

	"github.com/cometsh/atstream/atproto/syntax"
)

// Operation is the Jetstream commit operation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Commit is the Jetstream counterpart of a Firehose repo operation: one
// record-level change, already resolved to a decoded record (Jetstream does
// the CAR/MST resolution server-side, unlike Firehose).
type Commit struct {
	Did        string
	TimeUS     int64
	Operation  Operation
	Collection syntax.NSID
	Rkey       string
	Rev        string
	Cid        *string
	Record     json.RawMessage
}

// Identity mirrors a Firehose #identity event. Seq is the upstream sequence
// number carried in the nested identity object; the adapter's cursor is
// time_us, not Seq.
type Identity struct {
	Did    string
	TimeUS int64
	Handle *string
	Seq    int64
}

// Account mirrors a Firehose #account event.
type Account struct {
	Did    string
	TimeUS int64
	Active bool
	Status *string
}

// Event is the discriminated union dispatched to Callbacks; exactly one
// field is non-nil.
type Event struct {
	Commit   *Commit
	Identity *Identity
	Account  *Account
}

// TimeUS returns the event's microsecond timestamp, used as the adapter's
// cursor.
func (e *Event) TimeUS() int64 {
	switch {
	case e.Commit != nil:
		return e.Commit.TimeUS
	case e.Identity != nil:
		return e.Identity.TimeUS
	case e.Account != nil:
		return e.Account.TimeUS
	default:
		return 0
	}
}

type wireEnvelope struct {
	Did      string          `json:"did"`
	TimeUS   int64           `json:"time_us"`
	Kind     string          `json:"kind"`
	Commit   json.RawMessage `json:"commit,omitempty"`
	Identity json.RawMessage `json:"identity,omitempty"`
	Account  json.RawMessage `json:"account,omitempty"`
}

type wireCommit struct {
	Rev        string          `json:"rev"`
	Operation  Operation       `json:"operation"`
	Collection string          `json:"collection"`
	Rkey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	Cid        *string         `json:"cid,omitempty"`
}

type wireIdentity struct {
	Handle *string `json:"handle,omitempty"`
	Seq    int64   `json:"seq"`
}

type wireAccount struct {
	Active bool    `json:"active"`
	Status *string `json:"status,omitempty"`
}

// parseEvent decodes one decompressed Jetstream JSON payload, routing by
// the "kind" discriminant per §4.3/§6.
func parseEvent(raw []byte) (*Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding jetstream envelope: %w", err)
	}

	switch env.Kind {
	case "commit":
		var c wireCommit
		if err := json.Unmarshal(env.Commit, &c); err != nil {
			return nil, fmt.Errorf("decoding jetstream commit: %w", err)
		}
		collection, err := syntax.ParseNSID(c.Collection)
		if err != nil {
			return nil, fmt.Errorf("malformed collection NSID: %w", err)
		}
		return &Event{Commit: &Commit{
			Did:        env.Did,
			TimeUS:     env.TimeUS,
			Operation:  c.Operation,
			Collection: collection,
			Rkey:       c.Rkey,
			Rev:        c.Rev,
			Cid:        c.Cid,
			Record:     c.Record,
		}}, nil

	case "identity":
		var idn wireIdentity
		if err := json.Unmarshal(env.Identity, &idn); err != nil {
			return nil, fmt.Errorf("decoding jetstream identity: %w", err)
		}
		return &Event{Identity: &Identity{
			Did:    env.Did,
			TimeUS: env.TimeUS,
			Handle: idn.Handle,
			Seq:    idn.Seq,
		}}, nil

	case "account":
		var acc wireAccount
		if err := json.Unmarshal(env.Account, &acc); err != nil {
			return nil, fmt.Errorf("decoding jetstream account: %w", err)
		}
		return &Event{Account: &Account{
			Did:    env.Did,
			TimeUS: env.TimeUS,
			Active: acc.Active,
			Status: acc.Status,
		}}, nil

	default:
		return nil, fmt.Errorf("unknown jetstream kind %q", env.Kind)
	}
}

// Callbacks is the Jetstream adapter's dispatch table, mirroring
// firehose.Callbacks.
type Callbacks struct {
	Commit   func(*Commit) error
	Identity func(*Identity) error
	Account  func(*Account) error
}

func (c Callbacks) dispatch(ev *Event) error {
	switch {
	case ev.Commit != nil && c.Commit != nil:
		return c.Commit(ev.Commit)
	case ev.Identity != nil && c.Identity != nil:
		return c.Identity(ev.Identity)
	case ev.Account != nil && c.Account != nil:
		return c.Account(ev.Account)
	default:
		return nil
	}
}
