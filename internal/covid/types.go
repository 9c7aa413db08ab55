package covid

import "time"

// Case is one confirmed or probable case as published upstream.
type Case struct {
	CaseNo           int    `json:"case_no"`
	OnsetDate        string `json:"onset_date"`
	ConfirmationDate string `json:"confirmation_date"`
	Gender           string `json:"gender"`
	Age              string `json:"age"`
	HospitalZh       string `json:"hospital_zh"`
	HospitalEn       string `json:"hospital_en"`
	Status           string `json:"status"`
	StatusZh         string `json:"status_zh"`
	TypeZh           string `json:"type_zh"`
	TypeEn           string `json:"type_en"`
	CitizenshipZh    string `json:"citizenship_zh"`
	CitizenshipEn    string `json:"citizenship_en"`
	DetailZh         string `json:"detail_zh"`
	DetailEn         string `json:"detail_en"`
	Classification   string `json:"classification"`
	SourceURL        string `json:"source_url"`
}

// HighRiskLocation is a place visited by confirmed cases during a date window.
type HighRiskLocation struct {
	ID            string    `json:"id"`
	SubDistrictZh string    `json:"sub_district_zh"`
	SubDistrictEn string    `json:"sub_district_en"`
	LocationZh    string    `json:"location_zh"`
	LocationEn    string    `json:"location_en"`
	ActionZh      string    `json:"action_zh"`
	ActionEn      string    `json:"action_en"`
	Remarks       string    `json:"remarks_en"`
	SourceURL     string    `json:"source_url"`
	CaseNo        string    `json:"case_no"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Lat           *float64  `json:"lat,omitempty"`
	Lng           *float64  `json:"lng,omitempty"`
}

// HasLocation reports whether the record carries geocoded coordinates.
func (l HighRiskLocation) HasLocation() bool {
	return l.Lat != nil && l.Lng != nil
}

// AddressQuery is the free-text address used to geocode the location.
func (l HighRiskLocation) AddressQuery() string {
	if l.SubDistrictEn == "" {
		return l.LocationEn
	}
	return l.LocationEn + ", " + l.SubDistrictEn
}

// WaitingTime is the accident & emergency waiting time of one hospital.
type WaitingTime struct {
	HospName     string `json:"hospName"`
	TopWait      string `json:"topWait"`
	TopWaitValue int    `json:"topWait_value"`
	UpdatedAt    string `json:"updatedAt"`
}

// Hospital is a row of the static hospital reference table.
type Hospital struct {
	NameEn    string  `json:"name_en"`
	NameZh    string  `json:"name_zh"`
	Address   string  `json:"address"`
	Cluster   string  `json:"cluster"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HospitalWaiting joins a waiting time with its reference hospital.
type HospitalWaiting struct {
	WaitingTime
	Address     string  `json:"address"`
	Cluster     string  `json:"cluster"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	HasLocation bool    `json:"has_location"`
}

// DailyStats carries the four headline counters.
type DailyStats struct {
	Death         int       `json:"death"`
	Confirmed     int       `json:"confirmed"`
	Investigating int       `json:"investigating"`
	Reported      int       `json:"reported"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Address is an address-book row caching the coordinates of a high-risk location.
type Address struct {
	ID            string   `json:"id"`
	SubDistrictZh string   `json:"sub_district_zh"`
	SubDistrictEn string   `json:"sub_district_en"`
	LocationEn    string   `json:"location_en"`
	LocationZh    string   `json:"location_zh"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// Dataset is one consistent snapshot of every table the dashboard renders.
type Dataset struct {
	Cases        []Case             `json:"cases"`
	HighRisk     []HighRiskLocation `json:"high_risk"`
	WaitingTimes []WaitingTime      `json:"waiting_times"`
	HospitalRefs []Hospital         `json:"hospital_refs"`
	Hospitals    []HospitalWaiting  `json:"hospitals"`
	Stats        DailyStats         `json:"stats"`
	Addresses    []Address          `json:"addresses"`
	Source       string             `json:"source"`
	LoadedAt     time.Time          `json:"loaded_at"`
}

// Empty reports whether the dataset lacks the case table every view depends on.
func (d Dataset) Empty() bool {
	return len(d.Cases) == 0
}

// Counts summarizes table sizes for logs and notifications.
func (d Dataset) Counts() map[string]int {
	return map[string]int{
		"cases":         len(d.Cases),
		"high_risk":     len(d.HighRisk),
		"waiting_times": len(d.WaitingTimes),
		"hospitals":     len(d.Hospitals),
		"addresses":     len(d.Addresses),
	}
}
