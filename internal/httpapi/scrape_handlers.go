package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"

	"edustat-engine/internal/config"
	"edustat-engine/internal/events"
	"edustat-engine/internal/scrape"
)

type ScrapeHandler struct {
	CfgVal       *atomic.Value // config.Config
	ScrapeStatus *scrape.Tracker
	Hub          *events.Hub
	Scraper      Scraper
	Stats        StatsService
}

type scrapeJobsReq struct {
	Category string `json:"category"`
}

type scrapeUniversityReq struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ScrapeStatus.Load())
}

func (h ScrapeHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	var req scrapeJobsReq
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}
	h.run(w, r, "jobs", func(ctx context.Context) (scrape.Result, error) {
		return h.Scraper.TriggerJobListingScrape(ctx, req.Category)
	})
}

func (h ScrapeHandler) University(w http.ResponseWriter, r *http.Request) {
	var req scrapeUniversityReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.URL == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_url", "url is required")
		return
	}
	h.run(w, r, "university", func(ctx context.Context) (scrape.Result, error) {
		return h.Scraper.TriggerUniversityScrape(ctx, req.URL, req.Name)
	})
}

func (h ScrapeHandler) run(w http.ResponseWriter, r *http.Request, kind string, fire func(context.Context) (scrape.Result, error)) {
	if h.Scraper == nil {
		WriteError(w, r, http.StatusNotImplemented, "scrape_unavailable", "scraping needs source.kind=remote")
		return
	}
	if !h.ScrapeStatus.Begin(kind) {
		WriteError(w, r, http.StatusConflict, "already_running", "a scrape is already running")
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	ctx, cancel := context.WithTimeout(r.Context(), cfg.ScrapeTimeout())
	defer cancel()

	res, err := fire(ctx)
	st := h.ScrapeStatus.Finish(res, err)

	reqID := RequestIDFrom(r.Context())
	if err == nil && res.Success && h.Stats != nil {
		// New vacancies may have landed; the next read re-aggregates.
		h.Stats.Invalidate()
	}
	if h.Hub != nil {
		h.Hub.Publish(events.MakeEvent(reqID, events.TypeScrapeFinished, 1, st))
	}

	if err != nil && res.Error == "" {
		res.Error = err.Error()
	}
	writeJSON(w, res)
}
