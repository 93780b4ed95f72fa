package model

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMissingPayload = errors.New("event payload missing for kind")
	ErrAmbiguous      = errors.New("event carries more than one payload")
	ErrMissingDID     = errors.New("event did is empty")
	ErrInvalidCommit  = errors.New("invalid commit")
)

const maxFrameInError = 256

// ParseError describes a single inbound frame that could not be decoded.
// The connection that delivered it is unaffected.
type ParseError struct {
	Frame []byte // truncated copy of the offending frame
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// wireEvent is the JSON shape of a frame: all variants share did/time_us/kind
// and carry exactly one nested payload object.
type wireEvent struct {
	DID      string    `json:"did"`
	TimeUS   int64     `json:"time_us"`
	Kind     Kind      `json:"kind"`
	Commit   *Commit   `json:"commit,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
	Account  *Account  `json:"account,omitempty"`
}

// ParseEvent decodes one frame into its typed variant.
func ParseEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, newParseError(data, err)
	}

	ev, err := w.toEvent()
	if err != nil {
		return nil, newParseError(data, err)
	}
	return ev, nil
}

func (w *wireEvent) toEvent() (Event, error) {
	if w.DID == "" {
		return nil, ErrMissingDID
	}

	present := 0
	for _, p := range []bool{w.Commit != nil, w.Identity != nil, w.Account != nil} {
		if p {
			present++
		}
	}
	if present > 1 {
		return nil, ErrAmbiguous
	}

	switch w.Kind {
	case KindCommit:
		if w.Commit == nil {
			return nil, fmt.Errorf("%w %q", ErrMissingPayload, w.Kind)
		}
		if !w.Commit.Operation.Valid() {
			return nil, fmt.Errorf("%w: operation %q", ErrInvalidCommit, w.Commit.Operation)
		}
		if w.Commit.Collection == "" {
			return nil, fmt.Errorf("%w: empty collection", ErrInvalidCommit)
		}
		return &CommitEvent{DID: w.DID, TimeUS: w.TimeUS, Commit: *w.Commit}, nil
	case KindIdentity:
		if w.Identity == nil {
			return nil, fmt.Errorf("%w %q", ErrMissingPayload, w.Kind)
		}
		return &IdentityEvent{DID: w.DID, TimeUS: w.TimeUS, Identity: *w.Identity}, nil
	case KindAccount:
		if w.Account == nil {
			return nil, fmt.Errorf("%w %q", ErrMissingPayload, w.Kind)
		}
		return &AccountEvent{DID: w.DID, TimeUS: w.TimeUS, Account: *w.Account}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, w.Kind)
	}
}

func newParseError(data []byte, err error) *ParseError {
	n := min(len(data), maxFrameInError)
	frame := make([]byte, n)
	copy(frame, data[:n])
	return &ParseError{Frame: frame, Err: err}
}

// MarshalEvent encodes ev back into the wire shape it was parsed from.
func MarshalEvent(ev Event) ([]byte, error) {
	w := Visit(ev,
		func(e *CommitEvent) wireEvent {
			c := e.Commit
			return wireEvent{DID: e.DID, TimeUS: e.TimeUS, Kind: KindCommit, Commit: &c}
		},
		func(e *IdentityEvent) wireEvent {
			i := e.Identity
			return wireEvent{DID: e.DID, TimeUS: e.TimeUS, Kind: KindIdentity, Identity: &i}
		},
		func(e *AccountEvent) wireEvent {
			a := e.Account
			return wireEvent{DID: e.DID, TimeUS: e.TimeUS, Kind: KindAccount, Account: &a}
		},
	)
	return json.Marshal(&w)
}

func (e *CommitEvent) MarshalJSON() ([]byte, error)   { return MarshalEvent(e) }
func (e *IdentityEvent) MarshalJSON() ([]byte, error) { return MarshalEvent(e) }
func (e *AccountEvent) MarshalJSON() ([]byte, error)  { return MarshalEvent(e) }
