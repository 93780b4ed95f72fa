package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

var ErrInvalidQuery = errors.New("invalid filter query")

// FromQuery reads kinds, ops, collections and did from q. Absent parameters
// admit everything; kinds and ops are comma separated.
func FromQuery(q url.Values) (Options, error) {
	o := All()

	if raw := q.Get("kinds"); raw != "" {
		o.ShowIdentity, o.ShowAccount = false, false
		commits := false
		for _, k := range splitList(raw) {
			switch model.Kind(k) {
			case model.KindCommit:
				commits = true
			case model.KindIdentity:
				o.ShowIdentity = true
			case model.KindAccount:
				o.ShowAccount = true
			default:
				return o, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, k)
			}
		}
		if !commits {
			o.ShowCreates, o.ShowUpdates, o.ShowDeletes = false, false, false
		}
	}

	if raw := q.Get("ops"); raw != "" {
		creates, updates, deletes := false, false, false
		for _, op := range splitList(raw) {
			switch model.Operation(op) {
			case model.OpCreate:
				creates = true
			case model.OpUpdate:
				updates = true
			case model.OpDelete:
				deletes = true
			default:
				return o, fmt.Errorf("%w: unknown operation %q", ErrInvalidQuery, op)
			}
		}
		o.ShowCreates = o.ShowCreates && creates
		o.ShowUpdates = o.ShowUpdates && updates
		o.ShowDeletes = o.ShowDeletes && deletes
	}

	if raw := q.Get("collections"); raw != "" {
		o.Collections = splitList(raw)
	}
	o.DID = strings.TrimSpace(q.Get("did"))
	return o, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
