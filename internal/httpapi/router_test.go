package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"edustat-engine/internal/config"
	"edustat-engine/internal/domain"
	"edustat-engine/internal/events"
	"edustat-engine/internal/prefs"
	"edustat-engine/internal/scrape"
	"edustat-engine/internal/stats"
	"edustat-engine/internal/statscache"
)

type fakeStats struct {
	snap        statscache.Snapshot
	err         error
	gets        int
	peeks       int
	refreshes   int
	invalidated int
	lastSort    stats.SortBy
}

func (f *fakeStats) Get(ctx context.Context, by stats.SortBy) (statscache.Snapshot, error) {
	f.gets++
	f.lastSort = by
	return f.snap, f.err
}

func (f *fakeStats) Refresh(ctx context.Context, by stats.SortBy) (statscache.Snapshot, error) {
	f.refreshes++
	f.lastSort = by
	return f.snap, f.err
}

func (f *fakeStats) Peek(by stats.SortBy) statscache.Snapshot {
	f.peeks++
	f.lastSort = by
	return f.snap
}

func (f *fakeStats) Invalidate() { f.invalidated++ }

type fakeScraper struct {
	res      scrape.Result
	err      error
	category string
	url      string
}

func (f *fakeScraper) TriggerJobListingScrape(ctx context.Context, category string) (scrape.Result, error) {
	f.category = category
	return f.res, f.err
}

func (f *fakeScraper) TriggerUniversityScrape(ctx context.Context, url, name string) (scrape.Result, error) {
	f.url = url
	return f.res, f.err
}

type fixture struct {
	h       http.Handler
	stats   *fakeStats
	scraper *fakeScraper
	hub     *events.Hub
	cfgVal  *atomic.Value
	cfgPath string
}

func goodSnapshot() statscache.Snapshot {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return statscache.Snapshot{
		Result: domain.AggregateResult{
			Categories: []domain.CategorySummary{
				{Category: "IT", AvgSalaryMin: 1250, AvgSalaryMax: 2250, AvgSalary: 1750, Count: 2},
			},
			TotalRecords:     2,
			OverallAvgSalary: 1750,
		},
		FetchedAt: &at,
		Path:      statscache.PathServer,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.App.DataDir = dir
	cfgPath := filepath.Join(dir, "config.yml")
	if err := config.SaveAtomic(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}
	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	f := &fixture{
		stats:   &fakeStats{snap: goodSnapshot()},
		scraper: &fakeScraper{res: scrape.Result{Success: true, Message: "queued"}},
		hub:     events.NewHub(),
		cfgVal:  &cfgVal,
		cfgPath: cfgPath,
	}
	mux := NewMux(Deps{
		Stats:        f.stats,
		Hub:          f.hub,
		Prefs:        prefs.Load(filepath.Join(dir, "prefs.yml")),
		CfgVal:       &cfgVal,
		ScrapeStatus: scrape.NewTracker(),
		UserCfgPath:  cfgPath,
		LoadCfg:      func() (config.Config, error) { return config.Load(cfgPath) },
		Scraper:      f.scraper,
	})
	f.h = Chain(mux, RequestID, Recover, AccessLog, Cors)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatsPeekByDefault(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/stats?sort=count", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.stats.peeks != 1 || f.stats.gets != 0 || f.stats.lastSort != stats.SortByCount {
		t.Fatalf("stats calls = %+v", f.stats)
	}
	snap := decode[statscache.Snapshot](t, rec)
	if snap.Result.OverallAvgSalary != 1750 || snap.Path != statscache.PathServer {
		t.Fatalf("snapshot = %+v", snap)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
}

func TestStatsWaitBlocksOnGet(t *testing.T) {
	f := newFixture(t)
	f.stats.err = stats.ErrTransport
	f.stats.snap.Failure = &statscache.Failure{Kind: statscache.KindTransport, Message: "нет связи"}

	rec := f.do(t, http.MethodGet, "/stats?wait=1", "")
	if rec.Code != http.StatusOK || f.stats.gets != 1 {
		t.Fatalf("status = %d gets = %d", rec.Code, f.stats.gets)
	}
	snap := decode[statscache.Snapshot](t, rec)
	if snap.Failure == nil || snap.Failure.Kind != statscache.KindTransport || len(snap.Result.Categories) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStatsRejectsBadSort(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/stats?sort=name", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	e := decode[APIError](t, rec)
	if e.Error.Code != "invalid_sort" || e.Error.RequestID == "" {
		t.Fatalf("error = %+v", e)
	}
}

func TestStatsRefreshFailure(t *testing.T) {
	f := newFixture(t)
	f.stats.err = context.DeadlineExceeded
	f.stats.snap.Failure = &statscache.Failure{Kind: statscache.KindTimeout, Message: "долго"}

	rec := f.do(t, http.MethodPost, "/stats/refresh", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decode[APIError](t, rec); e.Error.Code != statscache.KindTimeout {
		t.Fatalf("error = %+v", e)
	}
}

func TestStatsExportCSV(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/stats/export?format=csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".csv") {
		t.Fatalf("disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "IT,2,1250,2250,1750") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestStatsExportWithoutData(t *testing.T) {
	f := newFixture(t)
	f.stats.snap = statscache.Snapshot{Failure: &statscache.Failure{Kind: statscache.KindTransport, Message: "x"}}
	f.stats.err = errors.New("down")

	rec := f.do(t, http.MethodGet, "/stats/export", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScrapeJobsInvalidatesStats(t *testing.T) {
	f := newFixture(t)
	ch := f.hub.Subscribe()
	defer f.hub.Unsubscribe(ch)

	rec := f.do(t, http.MethodPost, "/scrape/jobs", `{"category":"IT"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	res := decode[scrape.Result](t, rec)
	if !res.Success || res.Message != "queued" || f.scraper.category != "IT" {
		t.Fatalf("res = %+v category = %q", res, f.scraper.category)
	}
	if f.stats.invalidated != 1 {
		t.Fatal("stats not invalidated after a successful scrape")
	}
	if evt := <-ch; !strings.Contains(evt, events.TypeScrapeFinished) {
		t.Fatalf("event = %s", evt)
	}

	st := decode[scrape.Status](t, f.do(t, http.MethodGet, "/scrape/status", ""))
	if st.Running || st.LastOkAt == "" || st.Kind != "jobs" {
		t.Fatalf("status = %+v", st)
	}
}

func TestScrapeUniversityFailure(t *testing.T) {
	f := newFixture(t)
	f.scraper.res = scrape.Result{}
	f.scraper.err = errors.New("backend down")

	rec := f.do(t, http.MethodPost, "/scrape/university", `{"url":"https://bsu.by","name":"БГУ"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[scrape.Result](t, rec)
	if res.Success || res.Error != "backend down" {
		t.Fatalf("res = %+v", res)
	}
	if f.stats.invalidated != 0 {
		t.Fatal("failed scrape invalidated stats")
	}

	if rec := f.do(t, http.MethodPost, "/scrape/university", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url status = %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)

	p := decode[prefs.Preferences](t, f.do(t, http.MethodGet, "/settings", ""))
	if p.Theme != prefs.ThemeLight {
		t.Fatalf("theme = %q", p.Theme)
	}

	rec := f.do(t, http.MethodPut, "/settings", `{"theme":"dark"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	p = decode[prefs.Preferences](t, f.do(t, http.MethodGet, "/settings", ""))
	if p.Theme != prefs.ThemeDark {
		t.Fatalf("theme after put = %q", p.Theme)
	}

	if rec := f.do(t, http.MethodPut, "/settings", `{"theme":"neon"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad theme status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/settings", `{"font":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rec.Code)
	}
}

func TestConfigRedactsAPIKey(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfgVal.Load().(config.Config)
	cfg.Source.APIKey = "secret"
	f.cfgVal.Store(cfg)

	got := decode[config.Config](t, f.do(t, http.MethodGet, "/config", ""))
	if got.Source.APIKey != redacted {
		t.Fatalf("api key = %q", got.Source.APIKey)
	}

	got.Stats.StaleSeconds = 600
	body, _ := json.Marshal(got)
	rec := f.do(t, http.MethodPut, "/config", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d body = %s", rec.Code, rec.Body.String())
	}
	saved, err := config.Load(f.cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Source.APIKey != "secret" || saved.Stats.StaleSeconds != 600 {
		t.Fatalf("saved = %+v", saved.Source)
	}
}

func TestConfigPutRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	cfg := config.Defaults()
	cfg.Stats.PageSize = 0
	body, _ := json.Marshal(cfg)

	rec := f.do(t, http.MethodPut, "/config", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	vr := decode[config.Validation](t, rec)
	if len(vr.Errors) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestSecretsBackend(t *testing.T) {
	keyring.MockInit()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/secrets/backend", `{"api_key":"k-123"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/secrets/backend", `{"api_key":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty key status = %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, "/secrets/backend", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodDelete, "/secrets/backend", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	if e := decode[APIError](t, rec); e.Error.Code != "not_found" {
		t.Fatalf("error = %+v", e)
	}
}

func TestMethodNotAllowedAndCors(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodDelete, "/stats", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/stats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestRecoverWritesEnvelope(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), RequestID, Recover)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decode[APIError](t, rec); e.Error.Code != "internal_error" || e.Error.RequestID == "" {
		t.Fatalf("error = %+v", e)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	out := decode[map[string]any](t, f.do(t, http.MethodGet, "/health", ""))
	if out["ok"] != true || out["stats"] == nil {
		t.Fatalf("health = %v", out)
	}
	if out["eventClients"] != float64(0) {
		t.Fatalf("eventClients = %v", out["eventClients"])
	}
}

func TestEventsStartWithSnapshot(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var data string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			data = line
			break
		}
	}
	if data == "" {
		t.Fatalf("no data line: %v", sc.Err())
	}

	var evt events.Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	if evt.Type != events.TypeStatsSnapshot || evt.RequestID == "" {
		t.Fatalf("event = %+v", evt)
	}
	var snap statscache.Snapshot
	if err := json.Unmarshal(evt.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Result.OverallAvgSalary != 1750 || snap.Path != statscache.PathServer {
		t.Fatalf("snapshot = %+v", snap)
	}
	if n := f.hub.Clients(); n != 1 {
		t.Fatalf("hub clients = %d, want 1 while streaming", n)
	}
}
