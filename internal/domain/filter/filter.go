// Package filter evaluates view predicates over buffered events. It is pure:
// nothing here mutates the events or the buffer they came from.
package filter

import (
	"slices"
	"strings"

	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// CommonCollections maps well-known record collections to display names.
var CommonCollections = map[string]string{
	"app.bsky.feed.post":     "Post",
	"app.bsky.feed.like":     "Like",
	"app.bsky.feed.repost":   "Repost",
	"app.bsky.graph.follow":  "Follow",
	"app.bsky.graph.block":   "Block",
	"app.bsky.actor.profile": "Profile",
}

type Options struct {
	ShowCreates  bool `json:"show_creates"`
	ShowUpdates  bool `json:"show_updates"`
	ShowDeletes  bool `json:"show_deletes"`
	ShowIdentity bool `json:"show_identity"`
	ShowAccount  bool `json:"show_account"`

	// Collections restricts commits to these collections. Nil admits every collection.
	Collections []string `json:"collections,omitempty"`

	// DID is a case-insensitive substring match on the event's subject.
	DID string `json:"did,omitempty"`
}

// All admits every event.
func All() Options {
	return Options{
		ShowCreates:  true,
		ShowUpdates:  true,
		ShowDeletes:  true,
		ShowIdentity: true,
		ShowAccount:  true,
	}
}

func (o Options) Match(ev model.Event) bool {
	ok := model.Visit(ev,
		func(c *model.CommitEvent) bool {
			switch c.Commit.Operation {
			case model.OpCreate:
				if !o.ShowCreates {
					return false
				}
			case model.OpUpdate:
				if !o.ShowUpdates {
					return false
				}
			case model.OpDelete:
				if !o.ShowDeletes {
					return false
				}
			}
			return o.Collections == nil || slices.Contains(o.Collections, c.Commit.Collection)
		},
		func(*model.IdentityEvent) bool { return o.ShowIdentity },
		func(*model.AccountEvent) bool { return o.ShowAccount },
	)
	if !ok {
		return false
	}

	if o.DID != "" && !strings.Contains(strings.ToLower(ev.GetDID()), strings.ToLower(o.DID)) {
		return false
	}
	return true
}

// Apply returns the matching events in their original order.
func (o Options) Apply(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if o.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}
