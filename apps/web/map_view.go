package main

import (
	"context"
	"errors"
	"strings"
	"time"
)

type MapMode int

const (
	MapModeBrowsing MapMode = iota
	MapModeAdmin
)

func (m MapMode) String() string {
	if m == MapModeAdmin {
		return "admin"
	}
	return "browsing"
}

const (
	mapCenterLat       = 45.2657
	mapCenterLng       = -73.3358
	mapDefaultZoom     = 16
	mapMaxZoom         = 22
	mapMaxNativeZoom   = 19
	mapTileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	mapTileAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
)

var errMarkerNotFound = errors.New("marker not found")

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Marker struct {
	ID         int64   `json:"id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	PopupLabel string  `json:"label"`
	PopupDate  string  `json:"date"`
	Deletable  bool    `json:"deletable"`
}

// LocationListener receives map-surface clicks in browsing mode.
type LocationListener interface {
	LocationSelected(lat, lng float64)
}

// Confirmer is asked before an admin marker click deletes a report.
type Confirmer func(marker Marker) bool

type MarkerClickResult struct {
	Marker  Marker
	Deleted bool
}

// MapView is one mount of the map: base tiles, the overlay, one marker per
// report and at most one selection marker.
type MapView struct {
	Mode      MapMode
	Center    Coordinate
	Zoom      int
	Overlay   *ShapeCollection
	Markers   []Marker
	Selection *Coordinate

	listener LocationListener
	deleter  ReportDeleter
}

type mapLabels struct {
	fallback string
	lang     string
	location *time.Location
}

func newMapView(mode MapMode, reports []Report, overlay *ShapeCollection, labels mapLabels) *MapView {
	markers := make([]Marker, 0, len(reports))
	for _, report := range reports {
		markers = append(markers, Marker{
			ID:         report.ID,
			Lat:        report.Latitude,
			Lng:        report.Longitude,
			PopupLabel: popupLabel(report.Description, labels.fallback),
			PopupDate:  formatPopupDate(report.CreatedAt, labels.lang, labels.location),
			Deletable:  mode == MapModeAdmin,
		})
	}
	return &MapView{
		Mode:    mode,
		Center:  Coordinate{Lat: mapCenterLat, Lng: mapCenterLng},
		Zoom:    mapDefaultZoom,
		Overlay: overlay,
		Markers: markers,
	}
}

func (v *MapView) OnLocationSelected(listener LocationListener) {
	v.listener = listener
}

func (v *MapView) OnDelete(deleter ReportDeleter) {
	v.deleter = deleter
}

func (v *MapView) SetSelection(selection *Coordinate) {
	v.Selection = selection
}

// ClickMap handles a click on the map surface. Admin mode never emits a
// selection.
func (v *MapView) ClickMap(lat, lng float64) bool {
	if v.Mode == MapModeAdmin || v.listener == nil {
		return false
	}
	v.listener.LocationSelected(lat, lng)
	return true
}

// ClickMarker shows the popup in browsing mode. In admin mode it deletes
// the report once confirm agrees.
func (v *MapView) ClickMarker(ctx context.Context, id int64, confirm Confirmer) (MarkerClickResult, error) {
	index := v.markerIndex(id)
	if index < 0 {
		return MarkerClickResult{}, errMarkerNotFound
	}
	marker := v.Markers[index]
	if v.Mode != MapModeAdmin || v.deleter == nil {
		return MarkerClickResult{Marker: marker}, nil
	}
	if confirm == nil || !confirm(marker) {
		return MarkerClickResult{Marker: marker}, nil
	}
	if err := v.deleter.Delete(ctx, id); err != nil {
		return MarkerClickResult{Marker: marker}, err
	}
	v.Markers = append(v.Markers[:index:index], v.Markers[index+1:]...)
	return MarkerClickResult{Marker: marker, Deleted: true}, nil
}

func (v *MapView) markerIndex(id int64) int {
	for i, marker := range v.Markers {
		if marker.ID == id {
			return i
		}
	}
	return -1
}

func popupLabel(description *string, fallback string) string {
	if description == nil || strings.TrimSpace(*description) == "" {
		return fallback
	}
	return *description
}

func formatPopupDate(raw, lang string, location *time.Location) string {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	if location == nil {
		location = time.UTC
	}
	layout := "02/01/2006"
	if lang == "en" {
		layout = "1/2/2006"
	}
	return parsed.In(location).Format(layout)
}
