package model

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Kind discriminates the three event variants delivered by the feed.
type Kind string

const (
	KindCommit   Kind = "commit"
	KindIdentity Kind = "identity"
	KindAccount  Kind = "account"
)

// Operation is the record mutation carried by a commit.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Event is the closed set of parsed feed events. Only this package can
// add implementations; consumers branch over it with Visit.
type Event interface {
	GetDID() string
	GetTimeUS() int64
	GetKind() Kind
	sealed()
}

// Interface guards
var (
	_ Event = (*CommitEvent)(nil)
	_ Event = (*IdentityEvent)(nil)
	_ Event = (*AccountEvent)(nil)
)

// Commit is a create/update/delete of a single record in a repository.
type Commit struct {
	Rev        string          `json:"rev"`
	Operation  Operation       `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid,omitempty"`
}

type Identity struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
	Seq    int64  `json:"seq"`
	Time   string `json:"time"`
}

type Account struct {
	Active bool   `json:"active"`
	DID    string `json:"did"`
	Seq    int64  `json:"seq"`
	Time   string `json:"time"`
}

type CommitEvent struct {
	DID    string
	TimeUS int64
	Commit Commit
}

type IdentityEvent struct {
	DID      string
	TimeUS   int64
	Identity Identity
}

type AccountEvent struct {
	DID     string
	TimeUS  int64
	Account Account
}

func (e *CommitEvent) GetDID() string     { return e.DID }
func (e *CommitEvent) GetTimeUS() int64   { return e.TimeUS }
func (e *CommitEvent) GetKind() Kind      { return KindCommit }
func (e *CommitEvent) sealed()            {}
func (e *IdentityEvent) GetDID() string   { return e.DID }
func (e *IdentityEvent) GetTimeUS() int64 { return e.TimeUS }
func (e *IdentityEvent) GetKind() Kind    { return KindIdentity }
func (e *IdentityEvent) sealed()          {}
func (e *AccountEvent) GetDID() string    { return e.DID }
func (e *AccountEvent) GetTimeUS() int64  { return e.TimeUS }
func (e *AccountEvent) GetKind() Kind     { return KindAccount }
func (e *AccountEvent) sealed()           {}

// Visit dispatches ev to the handler for its variant. Adding a variant adds a
// parameter here, so every consumption site stops compiling until it is handled.
func Visit[T any](
	ev Event,
	onCommit func(*CommitEvent) T,
	onIdentity func(*IdentityEvent) T,
	onAccount func(*AccountEvent) T,
) T {
	switch e := ev.(type) {
	case *CommitEvent:
		return onCommit(e)
	case *IdentityEvent:
		return onIdentity(e)
	case *AccountEvent:
		return onAccount(e)
	}
	panic("model: unreachable event variant")
}

// Key identifies an event for duplicate detection across a resume boundary.
func Key(ev Event) string {
	ts := strconv.FormatInt(ev.GetTimeUS(), 10)
	return Visit(ev,
		func(e *CommitEvent) string {
			return e.DID + "|" + ts + "|commit|" + e.Commit.Collection + "/" + e.Commit.RKey
		},
		func(e *IdentityEvent) string { return e.DID + "|" + ts + "|identity" },
		func(e *AccountEvent) string { return e.DID + "|" + ts + "|account" },
	)
}

// RoutingKeyPrefix is the first segment of every routing key.
const RoutingKeyPrefix = "jetstream"

// RoutingKey addresses ev on a topic exchange: jetstream.<kind>[.<collection>].
func RoutingKey(ev Event) string {
	return Visit(ev,
		func(e *CommitEvent) string {
			return RoutingKeyPrefix + "." + string(KindCommit) + "." + e.Commit.Collection
		},
		func(*IdentityEvent) string { return RoutingKeyPrefix + "." + string(KindIdentity) },
		func(*AccountEvent) string { return RoutingKeyPrefix + "." + string(KindAccount) },
	)
}
