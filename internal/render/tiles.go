package render

import (
	"fmt"
	"sort"
	"strings"
)

// TileStyle is a Leaflet base map.
type TileStyle struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Subdomains  string `json:"subdomains,omitempty"`
	MaxZoom     int    `json:"max_zoom"`
}

const cartoAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`

var TileStyles = map[string]TileStyle{
	"cartodb dark_matter": {
		Name:        "cartodb dark_matter",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: cartoAttribution,
		Subdomains:  "abcd",
		MaxZoom:     20,
	},
	"cartodb positron": {
		Name:        "cartodb positron",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		Attribution: cartoAttribution,
		Subdomains:  "abcd",
		MaxZoom:     20,
	},
	"openstreetmap": {
		Name:        "openstreetmap",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		MaxZoom:     19,
	},
}

// LookupTiles resolves a style name case-insensitively. An empty name means
// the dark base map.
func LookupTiles(name string) (TileStyle, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "cartodb dark_matter"
	}
	ts, ok := TileStyles[name]
	if !ok {
		return TileStyle{}, fmt.Errorf("unknown tile style %q", name)
	}
	return ts, nil
}

// TileNames returns the registered style names in sorted order.
func TileNames() []string {
	names := make([]string, 0, len(TileStyles))
	for name := range TileStyles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
