package dashboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

func ptr(v float64) *float64 { return &v }

func fixture() covid.Dataset {
	waits := covid.NormalizeWaitingTimes([]covid.WaitingTime{
		{HospName: "Queen Mary Hospital", TopWait: "> 3"},
		{HospName: "Tuen Mun Hospital", TopWait: "< 1"},
		{HospName: "Field Clinic", TopWait: "> 1"},
	})
	refs := []covid.Hospital{
		{NameEn: "Queen Mary Hospital", Address: "102 Pok Fu Lam Road", Latitude: 22.27, Longitude: 114.13},
		{NameEn: "Tuen Mun Hospital", Address: "23 Tsing Chung Koon Road", Latitude: 22.41, Longitude: 113.98},
	}
	return covid.Dataset{
		Cases: []covid.Case{
			{CaseNo: 12, Age: "40", Gender: "M", TypeEn: "Local", Status: "discharged"},
			{CaseNo: 105, Age: "63", Gender: "F", TypeEn: "Imported", Status: "hospitalised",
				ConfirmationDate: "2020-03-01", CitizenshipEn: "Sha Tin", HospitalEn: "Queen Mary Hospital", DetailEn: "Travelled to UK"},
		},
		HighRisk: []covid.HighRiskLocation{
			{ID: "a", LocationEn: "New Town Plaza", SubDistrictEn: "Sha Tin",
				StartDate: covid.ParseDate("2020-03-01"), EndDate: covid.ParseDate("2020-03-02"), Lat: ptr(22.38), Lng: ptr(114.19)},
			{ID: "b", LocationEn: "IFC", SubDistrictEn: "Central",
				StartDate: covid.ParseDate("2020-03-05"), Lat: ptr(22.28), Lng: ptr(114.16)},
			{ID: "c", LocationEn: "Somewhere", SubDistrictEn: "Sha Tin"},
		},
		WaitingTimes: waits,
		Hospitals:    covid.JoinHospitals(waits, refs),
	}
}

func TestBuildMapPartitionsAndStyles(t *testing.T) {
	t.Parallel()

	ds := fixture()
	filter := covid.MapFilter{
		Layers:    []string{covid.LayerHighRisk, covid.LayerHospitals},
		WaitMin:   0,
		WaitMax:   1,
		Districts: []string{"Sha Tin"},
	}

	fig := BuildMap(ds, filter)

	require.Len(t, fig.Data, 4)
	assert.Equal(t, TraceHighRiskSelected, fig.Data[0].Name)
	assert.Equal(t, []float64{22.38}, fig.Data[0].Lat, "locations without coordinates are omitted")
	assert.Equal(t, "New Town Plaza<br>Sha Tin<br>2020-03-01 - 2020-03-02", fig.Data[0].Text[0])
	assert.Equal(t, 10, fig.Data[0].Marker.Size)
	assert.InDelta(t, 0.9, fig.Data[0].Marker.Opacity, 1e-9)

	assert.Equal(t, TraceHighRiskFaded, fig.Data[1].Name)
	assert.Equal(t, []float64{114.16}, fig.Data[1].Lon)
	assert.Equal(t, 7, fig.Data[1].Marker.Size)
	assert.InDelta(t, 0.2, fig.Data[1].Marker.Opacity, 1e-9)

	assert.Equal(t, TraceHospitalsSelected, fig.Data[2].Name)
	assert.Equal(t, []string{"<b>23 Tsing Chung Koon Road</b><br>Waiting time: < 1 hours"}, fig.Data[2].Text)
	assert.Equal(t, "rgb(0, 0, 255)", fig.Data[2].Marker.Color)
	assert.Equal(t, TraceHospitalsFaded, fig.Data[3].Name)
	assert.Len(t, fig.Data[3].Lat, 1, "the unmatched hospital has no coordinates")

	assert.Equal(t, 740, fig.Layout.Height)
	assert.Equal(t, "carto-positron", fig.Layout.Mapbox.Style)
	assert.Equal(t, "h", fig.Layout.Legend.Orientation)
	assert.InDelta(t, 22.302711, fig.Layout.Mapbox.Center.Lat, 1e-9)
}

func TestBuildMapHonoursLayers(t *testing.T) {
	t.Parallel()

	fig := BuildMap(fixture(), covid.MapFilter{Layers: []string{covid.LayerHospitals}})
	require.Len(t, fig.Data, 2)
	assert.Equal(t, TraceHospitalsSelected, fig.Data[0].Name)

	fig = BuildMap(fixture(), covid.MapFilter{})
	assert.Empty(t, fig.Data)
}

func TestCaseOptions(t *testing.T) {
	t.Parallel()

	opts, def := CaseOptions(fixture())
	require.Len(t, opts, 2)
	assert.Equal(t, "#105: Age 63 F, Imported hospitalised", opts[0].Label)
	assert.Equal(t, 12, opts[1].Value)
	assert.Equal(t, 105, def)
}

func TestDescribeCase(t *testing.T) {
	t.Parallel()

	card, err := DescribeCase(fixture(), 105)
	require.NoError(t, err)
	assert.Equal(t, "#105 (hospitalised)", card.Heading)
	assert.Equal(t, "Age 63 F", card.Title)
	assert.Equal(t, "2020-03-01", card.ConfirmedDate)
	assert.Equal(t, "Sha Tin", card.Residence)
	assert.Equal(t, "Queen Mary Hospital", card.Hospital)
	assert.Equal(t, "Travelled to UK", card.Detail)

	_, err = DescribeCase(fixture(), 7)
	require.ErrorIs(t, err, ErrCaseNotFound)
}

func TestStatsCardsOrder(t *testing.T) {
	t.Parallel()

	cards := StatsCards(covid.DailyStats{Death: 4, Confirmed: 150, Investigating: 12, Reported: 3000})
	require.Len(t, cards, 4)
	assert.Equal(t, StatCard{Label: "Death", Value: 4}, cards[0])
	assert.Equal(t, StatCard{Label: "Reported", Value: 3000}, cards[3])
}

func TestSliderMarks(t *testing.T) {
	t.Parallel()

	marks := SliderMarks(fixture())
	require.Len(t, marks, 4)
	assert.Equal(t, Mark{Value: 0, Label: "> 0 hr"}, marks[0])
	assert.Equal(t, Mark{Value: 3, Label: "> 3 hr"}, marks[3])

	assert.Len(t, SliderMarks(covid.Dataset{}), 1)
}

func TestDistrictSelection(t *testing.T) {
	t.Parallel()

	all, err := DistrictSelection(fixture(), ModeShowAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Central", "Sha Tin"}, all)

	none, err := DistrictSelection(fixture(), ModeClearAll)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = DistrictSelection(fixture(), "invert")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestLastUpdate(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)
	now := time.Date(2020, 3, 2, 1, 4, 5, 0, time.UTC)
	assert.Equal(t, "Last update: 2020-03-02 09:04:05 HKT+0800", LastUpdate(now, loc))
}

func TestDefaultControls(t *testing.T) {
	t.Parallel()

	now := time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC)
	start := covid.ParseDate("2020-01-10")
	c := DefaultControls(fixture(), now, start)

	assert.Equal(t, []string{covid.LayerHighRisk, covid.LayerHospitals}, c.Layers)
	assert.Equal(t, [2]int{0, 0}, c.WaitRange)
	assert.Equal(t, 3, c.WaitMax)
	assert.Equal(t, "2020-01-10", c.StartDate)
	assert.Equal(t, "2020-04-01", c.EndDate)
	assert.Equal(t, []string{"Central", "Sha Tin"}, c.Districts)
	assert.Equal(t, 105, c.DefaultCase)
	assert.Empty(t, c.LoadedAt, "no load time before the first refresh")

	ds := fixture()
	ds.LoadedAt = time.Date(2020, 4, 1, 11, 59, 0, 0, time.FixedZone("HKT", 8*3600))
	assert.Equal(t, "2020-04-01T03:59:00Z", DefaultControls(ds, now, start).LoadedAt)

	f := DefaultFilter(fixture(), now, start)
	assert.True(t, f.ShowsLayer(covid.LayerHospitals))
	assert.Equal(t, c.Districts, f.Districts)
}

func TestTablesFlagSelection(t *testing.T) {
	t.Parallel()

	filter := covid.MapFilter{WaitMin: 2, WaitMax: 3, Districts: []string{"Central"}}
	locs := HighRiskTable(fixture(), filter)
	require.Len(t, locs, 3)
	assert.False(t, locs[0].Selected)
	assert.True(t, locs[1].Selected)
	assert.Equal(t, "2020-03-05", locs[1].StartDate)
	assert.Empty(t, locs[1].EndDate)

	hosps := HospitalTable(fixture(), filter)
	require.Len(t, hosps, 3)
	assert.True(t, hosps[0].Selected)
	assert.Equal(t, 3, hosps[0].TopWaitHours)
	assert.False(t, hosps[1].Selected)
	assert.False(t, hosps[2].HasLocation)
}

func TestExportXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	filter := covid.MapFilter{WaitMin: 0, WaitMax: 3, Districts: []string{"Sha Tin"}}
	require.NoError(t, ExportXLSX(&buf, fixture(), filter))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetHighRisk, SheetHospitals}, f.GetSheetList())

	rows, err := f.GetRows(SheetHighRisk)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "New Town Plaza", rows[1][2])
	assert.Equal(t, "TRUE", rows[1][9])

	rows, err = f.GetRows(SheetHospitals)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Queen Mary Hospital", rows[1][0])
}

func TestRenderPage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	controls := DefaultControls(fixture(), time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), covid.ParseDate("2020-01-10"))
	err := RenderPage(&buf, PageData{
		Title:          "COVID-19 Hong Kong Dashboard",
		Disclaimer:     "Educational use only.",
		LastUpdate:     "Last update: now",
		RefreshSeconds: 60,
		Controls:       controls,
	})
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "<title>COVID-19 Hong Kong Dashboard</title>")
	assert.Contains(t, html, "Educational use only.")
	assert.Contains(t, html, "60000")
	assert.True(t, strings.Contains(html, `"default_case":105`))
	assert.Contains(t, html, `"loaded_at":""`)
	assert.Contains(t, html, `<datalist id="wait-marks">`)
	assert.Contains(t, html, `"label":"\u003e 3 hr"`, "marks are inlined for the slider")
}

func TestRenderPageKeepsUpstreamTextOutOfMarkup(t *testing.T) {
	t.Parallel()

	ds := fixture()
	ds.Cases[1].Status = `<img src=x onerror=alert(1)>`
	ds.HighRisk[0].SubDistrictEn = `</script><script>alert(2)</script>`

	var buf bytes.Buffer
	err := RenderPage(&buf, PageData{
		Title:          "COVID-19 Hong Kong Dashboard",
		RefreshSeconds: 60,
		Controls:       DefaultControls(ds, time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), covid.ParseDate("2020-01-10")),
	})
	require.NoError(t, err)

	html := buf.String()
	assert.NotContains(t, html, "<img src=x")
	assert.NotContains(t, html, "</script><script>alert(2)")
	assert.Contains(t, html, `\u003c/script\u003e`)
	assert.NotContains(t, html, ".innerHTML", "widgets are built from text nodes")
}
