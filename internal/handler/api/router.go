package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/webitel/jetstream-explorer/infra/telemetry"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/handler/lp"
	"github.com/webitel/jetstream-explorer/internal/handler/ws"
	"github.com/webitel/jetstream-explorer/internal/service"
	"github.com/webitel/jetstream-explorer/internal/service/dto"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	logger    *slog.Logger
	explorer  service.Explorer
	telemetry *telemetry.Metrics
	live      *ws.WSHandler
	poll      *lp.LPHandler
}

func NewHandler(logger *slog.Logger, explorer service.Explorer, tm *telemetry.Metrics, live *ws.WSHandler, poll *lp.LPHandler) *Handler {
	return &Handler{
		logger:    logger,
		explorer:  explorer,
		telemetry: tm,
		live:      live,
		poll:      poll,
	}
}

// Routes builds the inspector API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		h.telemetry.Middleware(routePattern),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/metrics", h.metrics)
		r.Get("/events", h.events)
		r.Get("/activity", h.activity)
		r.Get("/poll", h.poll.Poll)

		r.Post("/start", h.command(h.explorer.Start))
		r.Post("/pause", h.command(h.explorer.Pause))
		r.Post("/resume", h.command(h.explorer.Resume))
		r.Put("/options", h.options)
	})
	r.Handle("/ws", h.live)
	r.Handle("/metrics", h.telemetry.Handler())

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.explorer.Status())
}

func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.explorer.Metrics())
}

func (h *Handler) activity(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.explorer.Activity())
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts, err := filter.FromQuery(q)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	query := service.EventQuery{Filter: opts}
	if query.Since, err = intParam(q.Get("since")); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	query.Limit = int(limit)

	h.writeJSON(w, http.StatusOK, h.explorer.Events(query))
}

// command runs fn and answers with the status at that moment. Commands are
// asynchronous; the status may still show the previous state.
func (h *Handler) command(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fn()
		h.writeJSON(w, http.StatusAccepted, h.explorer.Status())
	}
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	var req dto.OptionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	cfg, err := h.explorer.UpdateOptions(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidOptions) {
			status = http.StatusUnprocessableEntity
		}
		h.writeError(w, status, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, cfg)
}

func intParam(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("expected a non-negative integer, got " + strconv.Quote(raw))
	}
	return v, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("response encode failed", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
