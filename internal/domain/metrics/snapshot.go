package metrics

import (
	"maps"
	"time"

	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Snapshot is an immutable copy of the engine's counters and rates.
type Snapshot struct {
	TotalMessages        uint64                `json:"total_messages"`
	MessagesByCollection map[string]uint64     `json:"messages_by_collection"`
	MessagesByKind       map[model.Kind]uint64 `json:"messages_by_kind"`
	TotalCreates         uint64                `json:"total_creates"`
	TotalUpdates         uint64                `json:"total_updates"`
	TotalDeletes         uint64                `json:"total_deletes"`

	MessagesPerSecond float64            `json:"messages_per_second"`
	CreatePerSecond   float64            `json:"create_per_second"`
	UpdatePerSecond   float64            `json:"update_per_second"`
	DeletePerSecond   float64            `json:"delete_per_second"`
	CollectionRates   map[string]float64 `json:"collection_rates"`

	LastUpdate time.Time `json:"last_update"`
}

func (s Snapshot) clone() Snapshot {
	s.MessagesByCollection = maps.Clone(s.MessagesByCollection)
	s.MessagesByKind = maps.Clone(s.MessagesByKind)
	s.CollectionRates = maps.Clone(s.CollectionRates)
	return s
}
