package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"edustat-engine/internal/events"
	"edustat-engine/internal/stats"
)

// keepAlive is how often an idle stream gets a ping so proxies keep it open.
const keepAlive = 25 * time.Second

type EventsHandler struct {
	Hub   *events.Hub
	Stats StatsService
}

// ServeSSE streams hub events. The first message is the current stats
// snapshot, so a dashboard that connects late does not wait for the next cycle.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	reqID := RequestIDFrom(r.Context())
	send := func(msg string) {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
		flusher.Flush()
	}

	if h.Stats != nil {
		send(events.MakeEvent(reqID, events.TypeStatsSnapshot, 1, h.Stats.Peek(stats.SortBySalary)))
	} else {
		send(events.MakeEvent(reqID, events.TypePing, 1, nil))
	}

	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			send(events.MakeEvent(reqID, events.TypePing, 1, nil))
		case msg := <-ch:
			send(msg)
		}
	}
}
