package lp

import (
	"net/http"
	"time"

	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
	"github.com/webitel/jetstream-explorer/internal/handler/marshaller"
	"github.com/webitel/jetstream-explorer/internal/service"
)

const (
	DefaultTimeout = 30 * time.Second
	maxBatch       = 64
)

type LPHandler struct {
	explorer service.Explorer
	timeout  time.Duration
}

func NewLPHandler(explorer service.Explorer, timeout time.Duration) *LPHandler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LPHandler{
		explorer: explorer,
		timeout:  timeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until a live event arrives or timeout occurs.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	opts, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 1. Temporary Subscription.
	// The connector lives only for the duration of this HTTP request.
	conn, err := h.explorer.Subscribe(r.Context(), opts, registry.ConnectMetadata{
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer h.explorer.Unsubscribe(conn.GetID())

	var events []model.Event

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	// 2. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		return

	case <-conn.Done():
		w.WriteHeader(http.StatusServiceUnavailable)
		return

	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return

	case ev := <-conn.Recv():
		events = append(events, ev)

		// Drain what is already buffered to batch the response.
	drainLoop:
		for len(events) < maxBatch {
			select {
			case next := <-conn.Recv():
				events = append(events, next)
			default:
				break drainLoop
			}
		}
	}

	// 3. Final transmission.
	data, err := marshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
