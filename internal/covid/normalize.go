package covid

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the upstream calendar date format.
const DateLayout = "2006-01-02"

const invalidDate = "Invalid date"

// LooseString holds a field upstream publishes either as a JSON string or as
// a number. Integral numbers keep no fraction ("12", never "12.0"), null
// decodes to "" and any other literal is kept verbatim so normalization can
// reject the one record instead of the whole document.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	default:
		text := string(b)
		if f, err := strconv.ParseFloat(text, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			text = strconv.FormatFloat(f, 'f', -1, 64)
		}
		*s = LooseString(text)
	}
	return nil
}

// RawCase mirrors an upstream case node before normalization.
type RawCase struct {
	CaseNo           LooseString `json:"case_no"`
	OnsetDate        string      `json:"onset_date"`
	ConfirmationDate string      `json:"confirmation_date"`
	Gender           string      `json:"gender"`
	Age              LooseString `json:"age"`
	HospitalZh       string      `json:"hospital_zh"`
	HospitalEn       string      `json:"hospital_en"`
	Status           string      `json:"status"`
	StatusZh         string      `json:"status_zh"`
	TypeZh           string      `json:"type_zh"`
	TypeEn           string      `json:"type_en"`
	CitizenshipZh    string      `json:"citizenship_zh"`
	CitizenshipEn    string      `json:"citizenship_en"`
	DetailZh         string      `json:"detail_zh"`
	DetailEn         string      `json:"detail_en"`
	Classification   string      `json:"classification"`
	SourceURL        string      `json:"source_url"`
}

// RawCaseRef is the nested case reference attached to a high-risk location.
type RawCaseRef struct {
	CaseNo LooseString `json:"case_no"`
}

// RawHighRisk mirrors an upstream high-risk location node.
type RawHighRisk struct {
	ID            string      `json:"id"`
	SubDistrictZh string      `json:"sub_district_zh"`
	SubDistrictEn string      `json:"sub_district_en"`
	LocationZh    string      `json:"location_zh"`
	LocationEn    string      `json:"location_en"`
	ActionZh      string      `json:"action_zh"`
	ActionEn      string      `json:"action_en"`
	Remarks       string      `json:"remarks_en"`
	SourceURL     string      `json:"source_url"`
	StartDate     string      `json:"start_date"`
	EndDate       string      `json:"end_date"`
	Case          *RawCaseRef `json:"case"`
}

// NormalizeCases converts case numbers to integers and sorts newest first.
// Records with an unparseable case number are dropped; the count is returned.
func NormalizeCases(raw []RawCase) ([]Case, int) {
	out := make([]Case, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		no, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(r.CaseNo), "#")))
		if err != nil {
			dropped++
			continue
		}
		out = append(out, Case{
			CaseNo:           no,
			OnsetDate:        r.OnsetDate,
			ConfirmationDate: r.ConfirmationDate,
			Gender:           r.Gender,
			Age:              string(r.Age),
			HospitalZh:       r.HospitalZh,
			HospitalEn:       r.HospitalEn,
			Status:           r.Status,
			StatusZh:         r.StatusZh,
			TypeZh:           r.TypeZh,
			TypeEn:           r.TypeEn,
			CitizenshipZh:    r.CitizenshipZh,
			CitizenshipEn:    r.CitizenshipEn,
			DetailZh:         r.DetailZh,
			DetailEn:         r.DetailEn,
			Classification:   r.Classification,
			SourceURL:        r.SourceURL,
		})
	}
	SortCases(out)
	return out, dropped
}

// SortCases orders cases by case number, highest first.
func SortCases(cases []Case) {
	sort.SliceStable(cases, func(i, j int) bool {
		return cases[i].CaseNo > cases[j].CaseNo
	})
}

// NormalizeHighRisk flattens case references and parses the date window.
func NormalizeHighRisk(raw []RawHighRisk) []HighRiskLocation {
	out := make([]HighRiskLocation, 0, len(raw))
	for _, r := range raw {
		loc := HighRiskLocation{
			ID:            r.ID,
			SubDistrictZh: r.SubDistrictZh,
			SubDistrictEn: r.SubDistrictEn,
			LocationZh:    r.LocationZh,
			LocationEn:    r.LocationEn,
			ActionZh:      r.ActionZh,
			ActionEn:      r.ActionEn,
			Remarks:       r.Remarks,
			SourceURL:     r.SourceURL,
			StartDate:     ParseDate(r.StartDate),
			EndDate:       ParseDate(r.EndDate),
		}
		if r.Case != nil {
			loc.CaseNo = string(r.Case.CaseNo)
		}
		out = append(out, loc)
	}
	return out
}

// ParseDate parses an upstream date, returning the zero time for missing or
// invalid values. The upstream occasionally publishes the year 0220 for 2020.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == invalidDate {
		return time.Time{}
	}
	if strings.HasPrefix(raw, "0220-") {
		raw = "2020-" + strings.TrimPrefix(raw, "0220-")
	}
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatDate renders a date for tables and hover text; zero dates render empty.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseTopWait maps a waiting-time label to whole hours.
// "< 1" is 0, "> N" is N, anything else is -1.
func ParseTopWait(label string) int {
	label = strings.TrimSpace(label)
	switch {
	case strings.HasPrefix(label, "<"):
		if strings.TrimSpace(strings.TrimPrefix(label, "<")) == "1" {
			return 0
		}
	case strings.HasPrefix(label, ">"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(label, ">")))
		if err == nil && n >= 0 {
			return n
		}
	}
	return -1
}

// NormalizeWaitingTimes fills TopWaitValue from the raw label.
func NormalizeWaitingTimes(rows []WaitingTime) []WaitingTime {
	out := make([]WaitingTime, len(rows))
	for i, r := range rows {
		r.TopWaitValue = ParseTopWait(r.TopWait)
		out[i] = r
	}
	return out
}

// JoinHospitals left-joins waiting times with the reference table by hospital name.
func JoinHospitals(waits []WaitingTime, refs []Hospital) []HospitalWaiting {
	byName := make(map[string]Hospital, len(refs))
	for _, h := range refs {
		byName[hospitalKey(h.NameEn)] = h
	}
	out := make([]HospitalWaiting, 0, len(waits))
	for _, w := range waits {
		row := HospitalWaiting{WaitingTime: w, Address: w.HospName}
		if h, ok := byName[hospitalKey(w.HospName)]; ok {
			row.Address = h.Address
			row.Cluster = h.Cluster
			row.Latitude = h.Latitude
			row.Longitude = h.Longitude
			row.HasLocation = true
		}
		out = append(out, row)
	}
	return out
}

func hospitalKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ApplyAddresses copies address-book coordinates onto matching locations.
func ApplyAddresses(locations []HighRiskLocation, book []Address) []HighRiskLocation {
	byID := make(map[string]Address, len(book))
	for _, a := range book {
		byID[a.ID] = a
	}
	out := make([]HighRiskLocation, len(locations))
	for i, loc := range locations {
		if a, ok := byID[loc.ID]; ok && a.Latitude != nil && a.Longitude != nil {
			lat, lng := *a.Latitude, *a.Longitude
			loc.Lat = &lat
			loc.Lng = &lng
		}
		out[i] = loc
	}
	return out
}

// Districts returns the sorted, de-duplicated, non-empty English sub-districts.
func Districts(locations []HighRiskLocation) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, loc := range locations {
		if loc.SubDistrictEn == "" {
			continue
		}
		if _, ok := seen[loc.SubDistrictEn]; ok {
			continue
		}
		seen[loc.SubDistrictEn] = struct{}{}
		out = append(out, loc.SubDistrictEn)
	}
	sort.Strings(out)
	return out
}

// MaxTopWait returns the largest known waiting time in hours.
func MaxTopWait(rows []HospitalWaiting) int {
	maxWait := 0
	for _, r := range rows {
		if r.TopWaitValue > maxWait {
			maxWait = r.TopWaitValue
		}
	}
	return maxWait
}

// MaxCaseNo returns the highest case number, or 0 when there are no cases.
func MaxCaseNo(cases []Case) int {
	maxNo := 0
	for _, c := range cases {
		if c.CaseNo > maxNo {
			maxNo = c.CaseNo
		}
	}
	return maxNo
}

// FindCase looks up a case by number.
func FindCase(cases []Case, caseNo int) (Case, bool) {
	for _, c := range cases {
		if c.CaseNo == caseNo {
			return c, true
		}
	}
	return Case{}, false
}
