package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const (
	overlayFileName    = "foret.kml"
	overlayStrokeColor = "blue"
	overlayStrokeWidth = 4
	maxOverlayBytes    = 8 * 1024 * 1024
)

var errEmptyOverlay = errors.New("overlay has no geometry")

// ShapeCollection is the GeoJSON-shaped overlay handed to the map.
type ShapeCollection struct {
	Type     string         `json:"type"`
	Features []ShapeFeature `json:"features"`
}

type ShapeFeature struct {
	Type       string            `json:"type"`
	Geometry   ShapeGeometry     `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

// ShapeGeometry holds Point, LineString, Polygon or GeometryCollection.
// Coordinates are [lng, lat].
type ShapeGeometry struct {
	Type        string          `json:"type"`
	Coordinates any             `json:"coordinates,omitempty"`
	Geometries  []ShapeGeometry `json:"geometries,omitempty"`
}

type OverlayStyle struct {
	Color  string `json:"color"`
	Weight int    `json:"weight"`
}

func emptyShapeCollection() *ShapeCollection {
	return &ShapeCollection{Type: "FeatureCollection", Features: []ShapeFeature{}}
}

type OverlaySource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

type fsOverlaySource struct {
	fsys fs.FS
	name string
}

func (s fsOverlaySource) Open(_ context.Context) (io.ReadCloser, error) {
	return s.fsys.Open(s.name)
}

type httpOverlaySource struct {
	url    string
	client *http.Client
}

func (s httpOverlaySource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("overlay fetch: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

type OverlayLoader struct {
	source  OverlaySource
	log     *slog.Logger
	metrics *Metrics
}

func NewOverlayLoader(source OverlaySource, logger *slog.Logger, metrics *Metrics) *OverlayLoader {
	return &OverlayLoader{source: source, log: logger, metrics: metrics}
}

func (l *OverlayLoader) Load(ctx context.Context) (*ShapeCollection, error) {
	body, err := l.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open overlay: %w", err)
	}
	defer body.Close()
	return parseKMLShapes(io.LimitReader(body, maxOverlayBytes))
}

// LoadOrEmpty returns nil when the overlay cannot be fetched or parsed.
func (l *OverlayLoader) LoadOrEmpty(ctx context.Context) *ShapeCollection {
	shapes, err := l.Load(ctx)
	if err != nil {
		l.log.Warn("overlay unavailable", "err", err)
		if l.metrics != nil {
			l.metrics.OverlayLoadFailures.Inc()
		}
		return nil
	}
	return shapes
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	Point         *kmlCoordinates   `xml:"Point"`
	LineString    *kmlCoordinates   `xml:"LineString"`
	LinearRing    *kmlCoordinates   `xml:"LinearRing"`
	Polygon       *kmlPolygon       `xml:"Polygon"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoordinates   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlCoordinates `xml:"innerBoundaryIs>LinearRing"`
}

type kmlMultiGeometry struct {
	Points        []kmlCoordinates   `xml:"Point"`
	LineStrings   []kmlCoordinates   `xml:"LineString"`
	LinearRings   []kmlCoordinates   `xml:"LinearRing"`
	Polygons      []kmlPolygon       `xml:"Polygon"`
	MultiGeometry []kmlMultiGeometry `xml:"MultiGeometry"`
}

// parseKMLShapes streams the document and decodes each Placemark wherever it
// is nested (Document, Folder).
func parseKMLShapes(r io.Reader) (*ShapeCollection, error) {
	dec := xml.NewDecoder(r)
	collection := emptyShapeCollection()

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode kml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}
		var placemark kmlPlacemark
		if err := dec.DecodeElement(&placemark, &start); err != nil {
			return nil, fmt.Errorf("decode placemark: %w", err)
		}
		geometry, ok := placemark.geometry()
		if !ok {
			continue
		}
		properties := map[string]string{}
		if name := strings.TrimSpace(placemark.Name); name != "" {
			properties["name"] = name
		}
		if description := strings.TrimSpace(placemark.Description); description != "" {
			properties["description"] = description
		}
		collection.Features = append(collection.Features, ShapeFeature{
			Type:       "Feature",
			Geometry:   geometry,
			Properties: properties,
		})
	}

	if len(collection.Features) == 0 {
		return nil, errEmptyOverlay
	}
	return collection, nil
}

func (p kmlPlacemark) geometry() (ShapeGeometry, bool) {
	switch {
	case p.MultiGeometry != nil:
		return p.MultiGeometry.geometry()
	case p.Polygon != nil:
		return polygonGeometry(*p.Polygon)
	case p.LineString != nil:
		return lineGeometry(*p.LineString)
	case p.LinearRing != nil:
		return lineGeometry(*p.LinearRing)
	case p.Point != nil:
		return pointGeometry(*p.Point)
	}
	return ShapeGeometry{}, false
}

func (m kmlMultiGeometry) geometry() (ShapeGeometry, bool) {
	var parts []ShapeGeometry
	add := func(g ShapeGeometry, ok bool) {
		if ok {
			parts = append(parts, g)
		}
	}
	for _, point := range m.Points {
		add(pointGeometry(point))
	}
	for _, line := range m.LineStrings {
		add(lineGeometry(line))
	}
	for _, ring := range m.LinearRings {
		add(lineGeometry(ring))
	}
	for _, polygon := range m.Polygons {
		add(polygonGeometry(polygon))
	}
	for _, nested := range m.MultiGeometry {
		add(nested.geometry())
	}
	if len(parts) == 0 {
		return ShapeGeometry{}, false
	}
	return ShapeGeometry{Type: "GeometryCollection", Geometries: parts}, true
}

func pointGeometry(c kmlCoordinates) (ShapeGeometry, bool) {
	coords := parseKMLCoordinates(c.Coordinates)
	if len(coords) == 0 {
		return ShapeGeometry{}, false
	}
	return ShapeGeometry{Type: "Point", Coordinates: coords[0]}, true
}

func lineGeometry(c kmlCoordinates) (ShapeGeometry, bool) {
	coords := parseKMLCoordinates(c.Coordinates)
	if len(coords) < 2 {
		return ShapeGeometry{}, false
	}
	return ShapeGeometry{Type: "LineString", Coordinates: coords}, true
}

func polygonGeometry(p kmlPolygon) (ShapeGeometry, bool) {
	outer := parseKMLCoordinates(p.Outer.Coordinates)
	if len(outer) < 3 {
		return ShapeGeometry{}, false
	}
	rings := [][][]float64{outer}
	for _, inner := range p.Inner {
		if ring := parseKMLCoordinates(inner.Coordinates); len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return ShapeGeometry{Type: "Polygon", Coordinates: rings}, true
}

// parseKMLCoordinates reads whitespace separated "lon,lat[,alt]" tuples and
// drops altitude. Malformed tuples are skipped.
func parseKMLCoordinates(raw string) [][]float64 {
	fields := strings.Fields(raw)
	coords := make([][]float64, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, ",")
		if len(parts) < 2 {
			continue
		}
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLng != nil || errLat != nil {
			continue
		}
		coords = append(coords, []float64{lng, lat})
	}
	return coords
}
