package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/config"
	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/dashboard"
	"github.com/JakeFAU/hkcovid-dashboard/internal/loader"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeData{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestReadyzBeforeAndAfterLoad(t *testing.T) {
	t.Parallel()

	data := &fakeData{}
	server := newTestServer(data)

	rec := serve(t, server, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	data.set(fixture())
	rec = serve(t, server, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"source":"csv"`)
}

func TestAPIReturns503WithoutData(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeData{})
	for _, path := range []string{"/api/controls", "/api/map", "/api/cases", "/api/cases/1", "/api/districts", "/api/tables/high-risk", "/api/export.xlsx"} {
		rec := serve(t, server, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
	rec := serve(t, server, "/api/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIndexRendersWithoutData(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeData{}), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "COVID-19 Hong Kong Dashboard")
	assert.Contains(t, rec.Body.String(), "Last update: 2020-03-02 17:00:00 HKT+0800")
}

func TestMapAppliesQueryFilter(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())
	rec := serve(t, server, "/api/map?layers=show-high-risk&district=Central&start=2020-03-01&end=2020-03-31")
	require.Equal(t, http.StatusOK, rec.Code)

	var fig dashboard.Figure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fig))
	require.Len(t, fig.Data, 2)
	assert.Equal(t, dashboard.TraceHighRiskSelected, fig.Data[0].Name)
	assert.Equal(t, []float64{22.28}, fig.Data[0].Lat)
	assert.Equal(t, []float64{22.38}, fig.Data[1].Lat)
}

func TestMapDefaultsSelectEverything(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(loaded()), "/api/map")
	require.Equal(t, http.StatusOK, rec.Code)

	var fig dashboard.Figure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fig))
	require.Len(t, fig.Data, 4)
	assert.Len(t, fig.Data[0].Lat, 2)
	assert.Empty(t, fig.Data[1].Lat)
}

func TestMalformedParamsReturn400(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())
	for _, q := range []string{
		"wait_min=abc",
		"wait_min=-1",
		"wait_min=3&wait_max=1",
		"start=01/03/2020",
		"start=2020-04-01&end=2020-03-01",
		"layers=heatmap",
		"districts=some",
	} {
		rec := serve(t, server, "/api/map?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, http.StatusBadRequest, serve(t, server, "/api/cases/abc").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, server, "/api/districts?mode=invert").Code)
}

func TestCaseEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())

	rec := serve(t, server, "/api/cases")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"default":105`)

	rec = serve(t, server, "/api/cases/105")
	require.Equal(t, http.StatusOK, rec.Code)
	var card dashboard.CaseCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "#105 (hospitalised)", card.Heading)

	rec = serve(t, server, "/api/cases/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	data := loaded()
	data.stats = covid.DailyStats{Death: 4, Confirmed: 150, Investigating: 12, Reported: 3000}
	rec := serve(t, newTestServer(data), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cards []dashboard.StatCard `json:"cards"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cards, 4)
	assert.Equal(t, dashboard.StatCard{Label: "Confirmed", Value: 150}, body.Cards[1])
}

func TestTimeEndpoint(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeData{}), "/api/time")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Last update: 2020-03-02 17:00:00 HKT+0800")
}

func TestDistrictsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())
	rec := serve(t, server, "/api/districts?mode=clear-all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"districts":[]`)

	rec = serve(t, server, "/api/districts?mode=show-all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"districts":["Central","Sha Tin"]`)
}

func TestControlsEndpoint(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(loaded()), "/api/controls")
	require.Equal(t, http.StatusOK, rec.Code)

	var c dashboard.Controls
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, "2020-01-10", c.StartDate)
	assert.Equal(t, "2020-03-02", c.EndDate)
	assert.Equal(t, [2]int{0, 0}, c.WaitRange)
	assert.Equal(t, "2020-03-02T08:00:00Z", c.LoadedAt)
}

func TestParseFilterStartsFromDashboardDefaults(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())
	ds := fixture()
	want := dashboard.DefaultFilter(ds, server.clock.Now().In(server.loc), server.defaultStart)

	f, err := server.parseFilter(url.Values{}, ds)
	require.NoError(t, err)
	assert.Equal(t, want, f)

	f, err = server.parseFilter(url.Values{"districts": {"all"}, "wait_max": {"2"}}, ds)
	require.NoError(t, err)
	assert.Equal(t, want.Districts, f.Districts)
	assert.Equal(t, 2, f.WaitMax)
}

func TestTablesEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(loaded())
	rec := serve(t, server, "/api/tables/hospitals?wait_min=0&wait_max=3")
	require.Equal(t, http.StatusOK, rec.Code)
	var hosp struct {
		Rows []dashboard.HospitalRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hosp))
	require.Len(t, hosp.Rows, 1)
	assert.True(t, hosp.Rows[0].Selected)

	rec = serve(t, server, "/api/tables/high-risk?districts=none")
	require.Equal(t, http.StatusOK, rec.Code)
	var locs struct {
		Rows []dashboard.HighRiskRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locs))
	require.Len(t, locs.Rows, 2)
	assert.False(t, locs.Rows[0].Selected)
}

func TestExportEndpoint(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(loaded()), "/api/export.xlsx?districts=all")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hkcovid.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{dashboard.SheetHighRisk, dashboard.SheetHospitals}, f.GetSheetList())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeData{})
	serve(t, server, "/healthz")
	rec := serve(t, server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakeData{}), "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	newTestServer(&fakeData{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeData struct {
	mu     sync.Mutex
	ds     covid.Dataset
	loaded bool
	stats  covid.DailyStats
}

func (f *fakeData) set(ds covid.Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ds, f.loaded = ds, true
}

func (f *fakeData) Current() (covid.Dataset, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ds, f.loaded
}

func (f *fakeData) RefreshStats(context.Context) (covid.DailyStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return covid.DailyStats{}, loader.ErrNoData
	}
	return f.stats, nil
}

func ptr(v float64) *float64 { return &v }

func fixture() covid.Dataset {
	waits := covid.NormalizeWaitingTimes([]covid.WaitingTime{{HospName: "Queen Mary Hospital", TopWait: "> 3"}})
	refs := []covid.Hospital{{NameEn: "Queen Mary Hospital", Address: "102 Pok Fu Lam Road", Latitude: 22.27, Longitude: 114.13}}
	return covid.Dataset{
		Cases: []covid.Case{
			{CaseNo: 12, Age: "40", Gender: "M", Status: "discharged"},
			{CaseNo: 105, Age: "63", Gender: "F", Status: "hospitalised"},
		},
		HighRisk: []covid.HighRiskLocation{
			{ID: "a", LocationEn: "New Town Plaza", SubDistrictEn: "Sha Tin", StartDate: covid.ParseDate("2020-03-01"), Lat: ptr(22.38), Lng: ptr(114.19)},
			{ID: "b", LocationEn: "IFC", SubDistrictEn: "Central", StartDate: covid.ParseDate("2020-03-01"), Lat: ptr(22.28), Lng: ptr(114.16)},
		},
		WaitingTimes: waits,
		Hospitals:    covid.JoinHospitals(waits, refs),
		Source:       "csv",
		LoadedAt:     time.Date(2020, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func loaded() *fakeData {
	d := &fakeData{}
	d.set(fixture())
	return d
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(data DataSource) *Server {
	cfg := config.Config{
		Server: config.ServerConfig{Port: 8050, RequestTimeoutSeconds: 5},
		Dashboard: config.DashboardConfig{
			Title:                  "COVID-19 Hong Kong Dashboard",
			RefreshIntervalSeconds: 60,
			TimeZone:               "Asia/Hong_Kong",
			DefaultStartDate:       "2020-01-10",
		},
	}
	clock := clockwork.NewFakeClockAt(time.Date(2020, 3, 2, 9, 0, 0, 0, time.UTC))
	return NewServer(data, clock, cfg, zap.NewNop())
}

func serve(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}
