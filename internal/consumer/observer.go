package consumer

import (
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

// Observer receives the consumer's outputs. All methods are called from the
// consumer loop, one at a time and in order; they must not block.
type Observer interface {
	// OnEvent is called once per successfully parsed, non-duplicate event.
	OnEvent(ev model.Event)
	// OnState is called whenever status or the connection error changes.
	OnState(st model.ConsumerState)
	// OnError reports frame parse failures and transport failures.
	OnError(err error)
	// OnMetrics is called on every recomputation tick.
	OnMetrics(s metrics.Snapshot)
	// OnReset is called by Start before metrics are reset; events delivered
	// after it belong to the new session.
	OnReset()
}

// NopObserver ignores everything; embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnEvent(model.Event)          {}
func (NopObserver) OnState(model.ConsumerState)  {}
func (NopObserver) OnError(error)                {}
func (NopObserver) OnMetrics(s metrics.Snapshot) {}
func (NopObserver) OnReset()                     {}
