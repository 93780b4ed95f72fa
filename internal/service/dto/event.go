package dto

import (
	"github.com/webitel/jetstream-explorer/internal/domain/activity"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
)

// EventView is a buffered event as served to inspectors.
type EventView struct {
	Position int64       `json:"position"`
	Handle   string      `json:"handle,omitempty"`
	Event    model.Event `json:"event"`
}

// EventPage is one poll result; pass Next as `since` on the following call.
type EventPage struct {
	Events []EventView `json:"events"`
	Next   int64       `json:"next"`
}

type ErrorView struct {
	At      string `json:"at"`
	Message string `json:"message"`
}

// StatusView is the aggregate the inspector renders in its header.
type StatusView struct {
	Status            model.Status    `json:"status"`
	Error             string          `json:"error,omitempty"`
	Cursor            int64           `json:"cursor,omitempty"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	URL               string          `json:"url"`
	Buffered          int             `json:"buffered"`
	BufferCapacity    int             `json:"buffer_capacity"`
	Viewers           registry.Stats  `json:"viewers"`
	RecentErrors      []ErrorView     `json:"recent_errors,omitempty"`
	Activity          *activity.Entry `json:"last_activity,omitempty"`
}

// OptionsRequest is the body of an options update. Nil fields keep their value.
type OptionsRequest struct {
	Instance    *string   `json:"instance,omitempty"`
	Collections *[]string `json:"collections,omitempty"`
	DIDs        *[]string `json:"dids,omitempty"`
	Cursor      *int64    `json:"cursor,omitempty"`
	Compress    *bool     `json:"compress,omitempty"`
}
