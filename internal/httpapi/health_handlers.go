package httpapi

import (
	"context"
	"net/http"
	"time"

	"edustat-engine/internal/events"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/store"
)

type HealthHandler struct {
	Stats    StatsService
	Hub      *events.Hub
	LastSync func(ctx context.Context) (*store.SyncRun, error)
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	}
	if h.Stats != nil {
		snap := h.Stats.Peek(stats.SortBySalary)
		out["stats"] = map[string]any{
			"fetchedAt": snap.FetchedAt,
			"stale":     snap.Stale,
			"loading":   snap.Loading,
			"error":     snap.Failure,
		}
	}
	if h.Hub != nil {
		out["eventClients"] = h.Hub.Clients()
	}
	if h.LastSync != nil {
		if run, err := h.LastSync(r.Context()); err == nil {
			out["lastSync"] = run
		}
	}
	writeJSON(w, out)
}
