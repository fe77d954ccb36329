package handler

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"cardfolio-api/internal/service"
	"cardfolio-api/internal/session"
	"cardfolio-api/internal/stream"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// keepAlive is the interval of comment frames on idle event streams.
const keepAlive = 25 * time.Second

// StreamHandler pushes cache state to UI consumers as server-sent events.
// Every stream starts with the current value.
type StreamHandler struct {
	streams map[string]http.HandlerFunc
	done    chan struct{}
	once    sync.Once
}

// StreamSources are the observable values exposed as streams. Nil sources
// are skipped.
type StreamSources struct {
	Session   *session.Manager
	Profile   *service.ProfileCache
	Inventory *service.InventoryCache
	Valuation *service.ValuationHistoryCache
	Actions   *service.ActionLogCache
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(src StreamSources) *StreamHandler {
	done := make(chan struct{})
	s := make(map[string]http.HandlerFunc)
	if src.Session != nil {
		s["session"] = subjectStream(done, "session", src.Session.States())
	}
	if src.Profile != nil {
		s["profile"] = subjectStream(done, "profile", src.Profile.Store().Data())
	}
	if src.Inventory != nil {
		s["inventory"] = subjectStream(done, "inventory", src.Inventory.Store().Data())
		s["inventory-loading"] = subjectStream(done, "loading", src.Inventory.Store().Loading())
		s["inventory-error"] = subjectStream(done, "error", src.Inventory.Store().Errored())
		s["inventory-total"] = subjectStream(done, "total", src.Inventory.TotalValue())
	}
	if src.Valuation != nil {
		s["valuation"] = subjectStream(done, "valuation", src.Valuation.Store().Data())
	}
	if src.Actions != nil {
		s["actions"] = subjectStream(done, "actions", src.Actions.Store().Data())
		s["actions-period"] = subjectStream(done, "period", src.Actions.PeriodEntries())
	}
	return &StreamHandler{streams: s, done: done}
}

// Close ends every open stream. Register it with http.Server.RegisterOnShutdown
// so streaming connections do not hold up a graceful shutdown.
func (h *StreamHandler) Close() {
	h.once.Do(func() { close(h.done) })
}

// Names lists the available streams.
func (h *StreamHandler) Names() []string {
	names := make([]string, 0, len(h.streams))
	for n := range h.streams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List handles GET /api/v1/streams
func (h *StreamHandler) List(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.Names())
}

// Stream handles GET /api/v1/streams/{name}
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	serve, ok := h.streams[chi.URLParam(r, "name")]
	if !ok {
		response.Error(w, r, apierror.NotFound("unknown stream"))
		return
	}
	serve(w, r)
}

// subjectStream writes every value of subj as an event named event until
// the client goes away, the subject is closed or done is closed.
func subjectStream[T any](done <-chan struct{}, event string, subj *stream.Subject[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := response.PrepareEvents(w)
		if !ok {
			response.Error(w, r, apierror.InternalError("streaming unsupported"))
			return
		}

		ctx := r.Context()
		updates := subj.Subscribe(ctx)
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case v, ok := <-updates:
				if !ok {
					return
				}
				if err := response.Event(w, flusher, event, v); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}
}
