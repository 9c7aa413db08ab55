package dashboard

import "github.com/JakeFAU/hkcovid-dashboard/internal/covid"

// HighRiskRow is one row of the high-risk table.
type HighRiskRow struct {
	ID        string   `json:"id"`
	District  string   `json:"district"`
	Location  string   `json:"location"`
	Action    string   `json:"action"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	CaseNo    string   `json:"case_no"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Selected  bool     `json:"selected"`
}

// HospitalRow is one row of the hospital table.
type HospitalRow struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Cluster      string  `json:"cluster"`
	TopWait      string  `json:"top_wait"`
	TopWaitHours int     `json:"top_wait_hours"`
	UpdatedAt    string  `json:"updated_at"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	HasLocation  bool    `json:"has_location"`
	Selected     bool    `json:"selected"`
}

// HighRiskTable flags each location with the filter's date and district selection.
func HighRiskTable(ds covid.Dataset, filter covid.MapFilter) []HighRiskRow {
	out := make([]HighRiskRow, 0, len(ds.HighRisk))
	for _, loc := range ds.HighRisk {
		out = append(out, HighRiskRow{
			ID:        loc.ID,
			District:  loc.SubDistrictEn,
			Location:  loc.LocationEn,
			Action:    loc.ActionEn,
			StartDate: covid.FormatDate(loc.StartDate),
			EndDate:   covid.FormatDate(loc.EndDate),
			CaseNo:    loc.CaseNo,
			Lat:       loc.Lat,
			Lng:       loc.Lng,
			Selected:  filter.SelectsHighRisk(loc),
		})
	}
	return out
}

// HospitalTable flags each hospital with the filter's waiting-time selection.
func HospitalTable(ds covid.Dataset, filter covid.MapFilter) []HospitalRow {
	out := make([]HospitalRow, 0, len(ds.Hospitals))
	for _, h := range ds.Hospitals {
		out = append(out, HospitalRow{
			Name:         h.HospName,
			Address:      h.Address,
			Cluster:      h.Cluster,
			TopWait:      h.TopWait,
			TopWaitHours: h.TopWaitValue,
			UpdatedAt:    h.UpdatedAt,
			Latitude:     h.Latitude,
			Longitude:    h.Longitude,
			HasLocation:  h.HasLocation,
			Selected:     filter.WithinWaitingTime(h),
		})
	}
	return out
}
