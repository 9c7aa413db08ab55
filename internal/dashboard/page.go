package dashboard

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// PageData feeds the dashboard shell.
type PageData struct {
	Title          string
	Disclaimer     string
	LastUpdate     string
	RefreshSeconds int
	Controls       Controls
}

// RenderPage writes the dashboard HTML. The controls are inlined as JSON so
// the first paint needs no extra round trip.
func RenderPage(w io.Writer, data PageData) error {
	controls, err := json.Marshal(data.Controls)
	if err != nil {
		return fmt.Errorf("marshal controls: %w", err)
	}
	view := struct {
		PageData
		ControlsJSON template.JS
		RefreshMS    int
	}{
		PageData:     data,
		ControlsJSON: template.JS(controls), //nolint:gosec // marshalled by encoding/json
		RefreshMS:    data.RefreshSeconds * 1000,
	}
	if err := pageTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
