package render

import (
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"

	"github.com/skypies/geo"
)

type latLng [2]float64

func toLatLng(ll geo.Latlong) latLng { return latLng{ll.Lat, ll.Long} }

// Tooltip is the marker label as HTML, with every value escaped.
func (l Label) Tooltip() string {
	var b strings.Builder
	row := func(name, v string) {
		fmt.Fprintf(&b, "<strong>%s:</strong> %s", name, html.EscapeString(v))
	}
	row("Flight", l.FlightID)
	b.WriteString("<br>")
	row("Flight Type", l.FlightType)
	b.WriteString("<br>")
	row("Depart", l.Depart)
	b.WriteString("<br>")
	row("Arrival", l.Arrival)
	b.WriteString("<br>")
	row("Latitude", l.Latitude)
	b.WriteString("<br>")
	row("Longitude", l.Longitude)
	return b.String()
}

// MarshalJSON encodes positions as [lat, lng] pairs, the form Leaflet takes.
func (m MapImage) MarshalJSON() ([]byte, error) {
	type polyline struct {
		Polyline
		Points []latLng `json:"points"`
	}
	type marker struct {
		Marker
		Position latLng `json:"position"`
		Tooltip  string `json:"tooltip"`
	}
	type overlay struct {
		Text     string `json:"text"`
		Position latLng `json:"position"`
	}
	type alias MapImage
	out := struct {
		alias
		Center    latLng     `json:"center"`
		Polylines []polyline `json:"polylines"`
		Markers   []marker   `json:"markers"`
		Clock     *overlay   `json:"clock,omitempty"`
		Errors    []string   `json:"errors,omitempty"`
	}{
		alias:     alias(m),
		Center:    toLatLng(m.Center),
		Polylines: make([]polyline, 0, len(m.Polylines)),
		Markers:   make([]marker, 0, len(m.Markers)),
	}
	for _, pl := range m.Polylines {
		pts := make([]latLng, 0, len(pl.Points))
		for _, p := range pl.Points {
			pts = append(pts, toLatLng(p))
		}
		out.Polylines = append(out.Polylines, polyline{Polyline: pl, Points: pts})
	}
	for _, mk := range m.Markers {
		out.Markers = append(out.Markers, marker{Marker: mk, Position: toLatLng(mk.Position), Tooltip: mk.Label.Tooltip()})
	}
	if m.Clock != nil {
		out.Clock = &overlay{Text: m.Clock.Text, Position: toLatLng(m.Clock.Position)}
	}
	for _, e := range m.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return json.Marshal(out)
}

var pageTemplate = template.Must(template.New("map").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
.time-counter { color: #fff; font: 14px monospace; white-space: nowrap; }
</style>
</head>
<body>
<div id="map"></div>
<script>
const frame = {{.Frame}};
const map = L.map("map").setView(frame.center, frame.zoom);
L.tileLayer(frame.tiles.url, {
  attribution: frame.tiles.attribution,
  subdomains: frame.tiles.subdomains || "abc",
  maxZoom: frame.tiles.max_zoom
}).addTo(map);
for (const pl of frame.polylines) {
  L.polyline(pl.points, {color: pl.color, weight: pl.weight, opacity: pl.opacity, dashArray: pl.dash_array}).addTo(map);
}
for (const mk of frame.markers) {
  L.circleMarker(mk.position, {radius: mk.radius, color: mk.stroke, fillColor: mk.fill, fillOpacity: mk.fill_opacity})
    .bindTooltip(mk.tooltip, {sticky: true})
    .addTo(map);
}
if (frame.clock) {
  const div = document.createElement("div");
  div.textContent = "Time Counter: " + frame.clock.text;
  L.marker(frame.clock.position, {icon: L.divIcon({className: "time-counter", html: div.outerHTML, iconSize: [200, 40]})}).addTo(map);
}
</script>
</body>
</html>
`))

// WriteHTML writes the frame as a standalone Leaflet page.
func (m *MapImage) WriteHTML(w io.Writer) error {
	return pageTemplate.Execute(w, struct {
		Title string
		Frame MapImage
	}{
		Title: fmt.Sprintf("Flight replay %d/%d", m.Index+1, m.Total),
		Frame: *m,
	})
}
