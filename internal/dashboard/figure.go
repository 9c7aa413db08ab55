// Package dashboard turns datasets and filter controls into the view models
// rendered by the dashboard page.
package dashboard

import (
	"fmt"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// Trace names shown in the map legend.
const (
	TraceHighRiskSelected  = "High Risk Area (selected)"
	TraceHighRiskFaded     = "High Risk Area (not selected)"
	TraceHospitalsSelected = "Hospitals (selected)"
	TraceHospitalsFaded    = "Hospitals (not selected)"
)

const (
	highRiskColor = "rgb(255, 0, 0)"
	hospitalColor = "rgb(0, 0, 255)"

	mapCenterLat = 22.302711
	mapCenterLon = 114.177216
	mapZoom      = 10
	mapStyle     = "carto-positron"
	mapHeight    = 740
)

// Marker styles one trace.
type Marker struct {
	Size    int     `json:"size"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
	Symbol  string  `json:"symbol"`
}

// Trace is one scattermapbox series.
type Trace struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	Lat       []float64 `json:"lat"`
	Lon       []float64 `json:"lon"`
	Text      []string  `json:"text"`
	HoverInfo string    `json:"hoverinfo"`
	Marker    Marker    `json:"marker"`
}

// Center is a map center point.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Mapbox configures the base map.
type Mapbox struct {
	Bearing float64 `json:"bearing"`
	Center  Center  `json:"center"`
	Pitch   float64 `json:"pitch"`
	Zoom    float64 `json:"zoom"`
	Style   string  `json:"style"`
}

// Margin is the plot margin in pixels.
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	B int `json:"b"`
	T int `json:"t"`
}

// Legend places the trace legend.
type Legend struct {
	Orientation string  `json:"orientation"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Title       string  `json:"title"`
}

// Layout is the figure layout.
type Layout struct {
	Autosize   bool   `json:"autosize"`
	HoverMode  string `json:"hovermode"`
	ShowLegend bool   `json:"showlegend"`
	Mapbox     Mapbox `json:"mapbox"`
	Height     int    `json:"height"`
	Margin     Margin `json:"margin"`
	Legend     Legend `json:"legend"`
}

// Figure is a plotly-compatible map figure.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// BuildMap renders the selected and faded traces for the enabled layers.
// Points without coordinates are left out.
func BuildMap(ds covid.Dataset, filter covid.MapFilter) Figure {
	fig := Figure{Data: []Trace{}, Layout: defaultLayout()}

	if filter.ShowsLayer(covid.LayerHighRisk) {
		selected, faded := filter.PartitionHighRisk(ds.HighRisk)
		fig.Data = append(fig.Data,
			highRiskTrace(TraceHighRiskSelected, selected, selectedMarker(highRiskColor)),
			highRiskTrace(TraceHighRiskFaded, faded, fadedMarker(highRiskColor)),
		)
	}
	if filter.ShowsLayer(covid.LayerHospitals) {
		selected, faded := filter.PartitionHospitals(ds.Hospitals)
		fig.Data = append(fig.Data,
			hospitalTrace(TraceHospitalsSelected, selected, selectedMarker(hospitalColor)),
			hospitalTrace(TraceHospitalsFaded, faded, fadedMarker(hospitalColor)),
		)
	}
	return fig
}

func defaultLayout() Layout {
	return Layout{
		Autosize:   true,
		HoverMode:  "closest",
		ShowLegend: true,
		Mapbox: Mapbox{
			Center: Center{Lat: mapCenterLat, Lon: mapCenterLon},
			Zoom:   mapZoom,
			Style:  mapStyle,
		},
		Height: mapHeight,
		Legend: Legend{Orientation: "h", X: 0.02, Y: 0.98},
	}
}

func selectedMarker(color string) Marker {
	return Marker{Size: 10, Color: color, Opacity: 0.9, Symbol: "circle"}
}

func fadedMarker(color string) Marker {
	return Marker{Size: 7, Color: color, Opacity: 0.2, Symbol: "circle"}
}

func newTrace(name string, marker Marker) Trace {
	return Trace{
		Type:      "scattermapbox",
		Name:      name,
		Mode:      "markers",
		Lat:       []float64{},
		Lon:       []float64{},
		Text:      []string{},
		HoverInfo: "text",
		Marker:    marker,
	}
}

func highRiskTrace(name string, locations []covid.HighRiskLocation, marker Marker) Trace {
	tr := newTrace(name, marker)
	for _, loc := range locations {
		if !loc.HasLocation() {
			continue
		}
		tr.Lat = append(tr.Lat, *loc.Lat)
		tr.Lon = append(tr.Lon, *loc.Lng)
		tr.Text = append(tr.Text, fmt.Sprintf("%s<br>%s<br>%s - %s",
			loc.LocationEn, loc.SubDistrictEn, covid.FormatDate(loc.StartDate), covid.FormatDate(loc.EndDate)))
	}
	return tr
}

func hospitalTrace(name string, rows []covid.HospitalWaiting, marker Marker) Trace {
	tr := newTrace(name, marker)
	for _, h := range rows {
		if !h.HasLocation {
			continue
		}
		tr.Lat = append(tr.Lat, h.Latitude)
		tr.Lon = append(tr.Lon, h.Longitude)
		tr.Text = append(tr.Text, fmt.Sprintf("<b>%s</b><br>Waiting time: %s hours", h.Address, h.TopWait))
	}
	return tr
}
