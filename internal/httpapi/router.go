package httpapi

import "net/http"

// NewMux returns the raw mux so main() can wrap it in middleware.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Stats
	st := StatsHandler{Stats: d.Stats}
	mux.HandleFunc("/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: st.Get,
	}))
	mux.HandleFunc("/stats/refresh", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: st.Refresh,
	}))
	mux.HandleFunc("/stats/export", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: st.Export,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Preferences
	ph := SettingsHandler{Prefs: d.Prefs, Hub: d.Hub}
	mux.HandleFunc("/settings", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.Get,
		http.MethodPut: ph.Put,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal, OnBackendKey: d.OnBackendKey}
	mux.HandleFunc("/secrets/backend", methodMux(map[string]http.HandlerFunc{
		http.MethodPost:   sh.SetBackendKey,
		http.MethodDelete: sh.DeleteBackendKey,
	}))

	// Scrape
	sch := ScrapeHandler{
		CfgVal:       d.CfgVal,
		ScrapeStatus: d.ScrapeStatus,
		Hub:          d.Hub,
		Scraper:      d.Scraper,
		Stats:        d.Stats,
	}
	mux.HandleFunc("/scrape/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sch.Status,
	}))
	mux.HandleFunc("/scrape/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sch.Jobs,
	}))
	mux.HandleFunc("/scrape/university", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sch.University,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub, Stats: d.Stats}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	hh := HealthHandler{Stats: d.Stats, Hub: d.Hub, LastSync: d.LastSync}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	return mux
}
