package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// ErrCaseNotFound is returned when a case number is not in the dataset.
var ErrCaseNotFound = errors.New("dashboard: case not found")

// ErrUnknownMode is returned for district selection modes other than
// ModeShowAll and ModeClearAll.
var ErrUnknownMode = errors.New("dashboard: unknown district mode")

// District selection modes.
const (
	ModeShowAll  = "show-all"
	ModeClearAll = "clear-all"
)

// Option is a dropdown entry.
type Option struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// CaseOptions lists every case, newest first, and the default selection.
func CaseOptions(ds covid.Dataset) ([]Option, int) {
	cases := append([]covid.Case(nil), ds.Cases...)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].CaseNo > cases[j].CaseNo })
	out := make([]Option, 0, len(cases))
	for _, c := range cases {
		out = append(out, Option{
			Label: fmt.Sprintf("#%d: Age %s %s, %s %s", c.CaseNo, c.Age, c.Gender, c.TypeEn, c.Status),
			Value: c.CaseNo,
		})
	}
	return out, covid.MaxCaseNo(ds.Cases)
}

// CaseCard is the content of the "New Cases" panel.
type CaseCard struct {
	CaseNo        int    `json:"case_no"`
	Heading       string `json:"heading"`
	Title         string `json:"title"`
	ConfirmedDate string `json:"confirmed_date"`
	Residence     string `json:"residence"`
	Hospital      string `json:"hospital"`
	Detail        string `json:"detail"`
}

// DescribeCase builds the card for caseNo.
func DescribeCase(ds covid.Dataset, caseNo int) (CaseCard, error) {
	c, ok := covid.FindCase(ds.Cases, caseNo)
	if !ok {
		return CaseCard{}, fmt.Errorf("%w: #%d", ErrCaseNotFound, caseNo)
	}
	return CaseCard{
		CaseNo:        c.CaseNo,
		Heading:       fmt.Sprintf("#%d (%s)", c.CaseNo, c.Status),
		Title:         fmt.Sprintf("Age %s %s", c.Age, c.Gender),
		ConfirmedDate: c.ConfirmationDate,
		Residence:     c.CitizenshipEn,
		Hospital:      c.HospitalEn,
		Detail:        c.DetailEn,
	}, nil
}

// StatCard is one headline counter.
type StatCard struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// StatsCards orders the counters as Death, Confirmed, Investigating, Reported.
func StatsCards(stats covid.DailyStats) []StatCard {
	return []StatCard{
		{Label: "Death", Value: stats.Death},
		{Label: "Confirmed", Value: stats.Confirmed},
		{Label: "Investigating", Value: stats.Investigating},
		{Label: "Reported", Value: stats.Reported},
	}
}

// Mark is a waiting-time slider tick.
type Mark struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

// SliderMarks returns one mark per hour from 0 to the longest known wait.
func SliderMarks(ds covid.Dataset) []Mark {
	top := covid.MaxTopWait(ds.Hospitals)
	out := make([]Mark, 0, top+1)
	for i := 0; i <= top; i++ {
		out = append(out, Mark{Value: i, Label: fmt.Sprintf("> %d hr", i)})
	}
	return out
}

// DistrictSelection resolves the radio buttons into a district list.
func DistrictSelection(ds covid.Dataset, mode string) ([]string, error) {
	switch mode {
	case ModeShowAll:
		return covid.Districts(ds.HighRisk), nil
	case ModeClearAll:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// LastUpdate renders the header timestamp in loc.
func LastUpdate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return "Last update: " + now.In(loc).Format("2006-01-02 15:04:05 MST-0700")
}

// Controls is the initial state of every filter widget.
type Controls struct {
	Layers          []string `json:"layers"`
	LayerOptions    []string `json:"layer_options"`
	WaitRange       [2]int   `json:"wait_range"`
	WaitMax         int      `json:"wait_max"`
	Marks           []Mark   `json:"marks"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	DistrictMode    string   `json:"district_mode"`
	Districts       []string `json:"districts"`
	DistrictOptions []string `json:"district_options"`
	Cases           []Option `json:"cases"`
	DefaultCase     int      `json:"default_case"`
	// LoadedAt identifies the dataset the controls were built from; the page
	// rebuilds its widgets when it changes. Empty before the first load.
	LoadedAt string `json:"loaded_at"`
}

// DefaultControls enables both layers, pins the slider at [0,0], spans the
// date range from defaultStart to today and selects every district.
func DefaultControls(ds covid.Dataset, now time.Time, defaultStart time.Time) Controls {
	districts := covid.Districts(ds.HighRisk)
	cases, def := CaseOptions(ds)
	return Controls{
		Layers:          []string{covid.LayerHighRisk, covid.LayerHospitals},
		LayerOptions:    []string{covid.LayerHighRisk, covid.LayerHospitals},
		WaitRange:       [2]int{0, 0},
		WaitMax:         covid.MaxTopWait(ds.Hospitals),
		Marks:           SliderMarks(ds),
		StartDate:       covid.FormatDate(defaultStart),
		EndDate:         now.Format(covid.DateLayout),
		DistrictMode:    ModeShowAll,
		Districts:       districts,
		DistrictOptions: districts,
		Cases:           cases,
		DefaultCase:     def,
		LoadedAt:        loadedAt(ds),
	}
}

func loadedAt(ds covid.Dataset) string {
	if ds.LoadedAt.IsZero() {
		return ""
	}
	return ds.LoadedAt.UTC().Format(time.RFC3339Nano)
}

// DefaultFilter mirrors DefaultControls as a MapFilter.
func DefaultFilter(ds covid.Dataset, now time.Time, defaultStart time.Time) covid.MapFilter {
	return covid.MapFilter{
		Layers:    []string{covid.LayerHighRisk, covid.LayerHospitals},
		Start:     defaultStart,
		End:       covid.ParseDate(now.Format(covid.DateLayout)),
		Districts: covid.Districts(ds.HighRisk),
	}
}
