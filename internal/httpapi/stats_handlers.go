package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"edustat-engine/internal/export"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
)

type StatsHandler struct {
	Stats StatsService
}

func parseSort(w http.ResponseWriter, r *http.Request) (stats.SortBy, bool) {
	by, ok := stats.ParseSortBy(r.URL.Query().Get("sort"))
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_sort", "sort must be salary or count")
	}
	return by, ok
}

// Get answers from cache. With wait=1 it blocks until a fresh result (or a
// failure) is available; otherwise a stale cache answers at once with
// loading=true while a background cycle runs.
func (h StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	by, ok := parseSort(w, r)
	if !ok {
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, h.Stats.Peek(by))
		return
	}

	snap, err := h.Stats.Get(r.Context(), by)
	if err != nil && r.Context().Err() != nil {
		return
	}
	// Failures travel inside the snapshot next to the last good result.
	writeJSON(w, snap)
}

func (h StatsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	by, ok := parseSort(w, r)
	if !ok {
		return
	}

	snap, err := h.Stats.Refresh(r.Context(), by)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeFailure(w, r, snap.Failure, err)
		return
	}
	writeJSON(w, snap)
}

func (h StatsHandler) Export(w http.ResponseWriter, r *http.Request) {
	by, ok := parseSort(w, r)
	if !ok {
		return
	}
	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_format", "format must be xlsx or csv")
		return
	}

	snap, err := h.Stats.Get(r.Context(), by)
	if err != nil && snap.FetchedAt == nil {
		if r.Context().Err() != nil {
			return
		}
		writeFailure(w, r, snap.Failure, err)
		return
	}

	// Render fully before touching headers so a failure still gets a JSON error.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap.Result); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(format, time.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func writeFailure(w http.ResponseWriter, r *http.Request, f *statscache.Failure, err error) {
	if f == nil {
		WriteError(w, r, http.StatusBadGateway, statscache.KindTransport, err.Error())
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	WriteError(w, r, status, f.Kind, f.Message)
}
