package covid

import "time"

// Map layers toggled by the dashboard checklist.
const (
	LayerHighRisk  = "show-high-risk"
	LayerHospitals = "show-hospitals"
)

// MapFilter captures the dashboard controls that decide which points are highlighted.
type MapFilter struct {
	Layers    []string
	WaitMin   int
	WaitMax   int
	Start     time.Time
	End       time.Time
	Districts []string
}

// ShowsLayer reports whether the given layer is enabled.
func (f MapFilter) ShowsLayer(layer string) bool {
	for _, l := range f.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

// WithinWaitingTime reports whether a hospital falls inside the slider range.
// Unknown waiting times never match.
func (f MapFilter) WithinWaitingTime(h HospitalWaiting) bool {
	if h.TopWaitValue < 0 {
		return false
	}
	return h.TopWaitValue >= f.WaitMin && h.TopWaitValue <= f.WaitMax
}

// WithinDates reports whether the location's window overlaps the selected range.
// A record is excluded only when it starts after the range ends or ends before
// the range starts; missing dates never exclude.
func (f MapFilter) WithinDates(loc HighRiskLocation) bool {
	if !loc.StartDate.IsZero() && !f.End.IsZero() && loc.StartDate.After(f.End) {
		return false
	}
	if !loc.EndDate.IsZero() && !f.Start.IsZero() && loc.EndDate.Before(f.Start) {
		return false
	}
	return true
}

// WithinDistricts reports whether the location's sub-district is selected.
func (f MapFilter) WithinDistricts(loc HighRiskLocation) bool {
	for _, d := range f.Districts {
		if d == loc.SubDistrictEn {
			return true
		}
	}
	return false
}

// SelectsHighRisk combines the district and date masks.
func (f MapFilter) SelectsHighRisk(loc HighRiskLocation) bool {
	return f.WithinDistricts(loc) && f.WithinDates(loc)
}

// PartitionHighRisk splits locations into selected and faded sets, keeping order.
func (f MapFilter) PartitionHighRisk(locations []HighRiskLocation) (selected, faded []HighRiskLocation) {
	for _, loc := range locations {
		if f.SelectsHighRisk(loc) {
			selected = append(selected, loc)
		} else {
			faded = append(faded, loc)
		}
	}
	return selected, faded
}

// PartitionHospitals splits hospitals into selected and faded sets, keeping order.
func (f MapFilter) PartitionHospitals(rows []HospitalWaiting) (selected, faded []HospitalWaiting) {
	for _, h := range rows {
		if f.WithinWaitingTime(h) {
			selected = append(selected, h)
		} else {
			faded = append(faded, h)
		}
	}
	return selected, faded
}
