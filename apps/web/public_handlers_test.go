package main

import (
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageMapData extracts the JSON handed to map.js.
func pageMapData(t *testing.T, body string) mapViewData {
	t.Helper()
	const marker = "window.forestKeeperMap = "
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0, "map data missing from page")
	rest := body[start+len(marker):]
	end := strings.Index(rest, ";</script>")
	require.GreaterOrEqual(t, end, 0)

	var data mapViewData
	require.NoError(t, json.Unmarshal([]byte(rest[:end]), &data))
	return data
}

func TestHomePageEmptyStore(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signaler un arbre tombé")

	data := pageMapData(t, body)
	assert.Equal(t, "browsing", data.Mode)
	assert.Empty(t, data.Markers)
	assert.Nil(t, data.Selection)
	assert.False(t, data.Reporting)
	assert.Equal(t, mapTileURL, data.TileURL)
	assert.Equal(t, OverlayStyle{Color: "blue", Weight: 4}, data.OverlayStyle)
	require.NotNil(t, data.Overlay)
	assert.NotEmpty(t, data.Overlay.Features)

	require.NotNil(t, client.cookie(deviceCookieName))
}

func TestHomePageReportingFlow(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.get("/?reporting=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), html.EscapeString("Cliquez sur la carte pour indiquer l'emplacement de l'arbre."))
	assert.Contains(t, rec.Body.String(), `data-state="awaiting_selection"`)
	assert.True(t, pageMapData(t, rec.Body.String()).Reporting)

	rec = client.get("/?reporting=1&lat=45.2657&lng=-73.3358")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-state="location_selected"`)
	assert.Contains(t, body, "Détails du signalement")
	assert.Contains(t, body, `name="lat" value="45.2657"`)
	data := pageMapData(t, body)
	assert.Equal(t, &Coordinate{Lat: 45.2657, Lng: -73.3358}, data.Selection)
}

func TestHomePageIgnoresClickWhenNotReporting(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.get("/?lat=45.2657&lng=-73.3358")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-state="idle"`)
	assert.Nil(t, pageMapData(t, rec.Body.String()).Selection)
}

func TestCreateReportPersistsAndRedirects(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{
		"lat":         {"45.2657"},
		"lng":         {"-73.3358"},
		"description": {"Gros chêne en travers du sentier"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?notice=submitted", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.ReportsCreated))

	rec = client.get("/?notice=submitted")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Signalement envoyé !")
	assert.Contains(t, body, `data-state="idle"`)

	data := pageMapData(t, body)
	require.Len(t, data.Markers, 1)
	assert.Equal(t, "Gros chêne en travers du sentier", data.Markers[0].PopupLabel)
	assert.Equal(t, 45.2657, data.Markers[0].Lat)
}

func TestCreateReportWithoutDescriptionUsesFallbackLabel(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{"lat": {"45.2657"}, "lng": {"-73.3358"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	data := pageMapData(t, client.get("/").Body.String())
	require.Len(t, data.Markers, 1)
	assert.Equal(t, "Arbre tombé", data.Markers[0].PopupLabel)
	assert.NotEmpty(t, data.Markers[0].PopupDate)
}

func TestCreateReportWithoutLocationReturnsToSelection(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{"lat": {"abc"}, "lng": {"-73.3"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?reporting=1", rec.Header().Get("Location"))

	rec = client.postForm("/reports", url.Values{"lat": {"NaN"}, "lng": {"-73.3"}})
	assert.Equal(t, "/?reporting=1", rec.Header().Get("Location"))
	assert.Empty(t, pageMapData(t, client.get("/").Body.String()).Markers)
}

func TestCreateReportFailureKeepsForm(t *testing.T) {
	kv := &failingStore{KeyValueStore: newMemoryKeyValueStore(), failSet: true}
	app := newTestApp(t, kv)
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{
		"lat":         {"45.1"},
		"lng":         {"-73.1"},
		"description": {"Bouleau"},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-state="location_selected"`)
	assert.Contains(t, body, ">Bouleau</textarea>")
	assert.Contains(t, body, `name="lat" value="45.1"`)
	assert.Contains(t, body, "window.alert(")
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.SubmissionFailures))

	kv.failSet = false
	rec = client.postForm("/reports", url.Values{"lat": {"45.1"}, "lng": {"-73.1"}, "description": {"Bouleau"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, pageMapData(t, client.get("/").Body.String()).Markers, 1)
}

func TestReportsAreScopedPerDevice(t *testing.T) {
	app := newTestApp(t, nil)
	router := app.routes()
	first := newTestClient(t, router)
	second := newTestClient(t, router)

	first.postForm("/reports", url.Values{"lat": {"1"}, "lng": {"2"}})

	assert.Len(t, pageMapData(t, first.get("/").Body.String()).Markers, 1)
	assert.Empty(t, pageMapData(t, second.get("/").Body.String()).Markers)
}

func TestReportsSharedScope(t *testing.T) {
	app := newTestApp(t, nil)
	app.cfg.StoreScope = storeScopeShared
	router := app.routes()
	first := newTestClient(t, router)
	second := newTestClient(t, router)

	first.postForm("/reports", url.Values{"lat": {"1"}, "lng": {"2"}})
	assert.Len(t, pageMapData(t, second.get("/").Body.String()).Markers, 1)
}

func TestInvalidDeviceCookieIsReplaced(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())
	client.cookies[deviceCookieName] = &http.Cookie{Name: deviceCookieName, Value: "../../etc"}

	client.get("/")
	cookie := client.cookie(deviceCookieName)
	require.NotNil(t, cookie)
	assert.NotEqual(t, "../../etc", cookie.Value)
	assert.Len(t, cookie.Value, 36)
}

func TestOverlayFailureStillRendersMarkers(t *testing.T) {
	app := newTestApp(t, nil)
	app.overlay = NewOverlayLoader(stringOverlaySource{err: errors.New("network down")}, discardLogger(), app.metrics)
	client := newTestClient(t, app.routes())
	client.postForm("/reports", url.Values{"lat": {"45.2657"}, "lng": {"-73.3358"}})

	rec := client.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	data := pageMapData(t, rec.Body.String())
	assert.Nil(t, data.Overlay)
	assert.Equal(t, mapTileURL, data.TileURL)
	assert.Len(t, data.Markers, 1)

	rec = client.get("/overlay.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	var shapes ShapeCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shapes))
	assert.Equal(t, "FeatureCollection", shapes.Type)
	assert.Empty(t, shapes.Features)
}

func TestOverlayEndpointServesParsedKML(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.get("/overlay.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	var shapes ShapeCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shapes))
	assert.NotEmpty(t, shapes.Features)
}

func TestNewAppServesGivenOverlaySource(t *testing.T) {
	cfg := newTestConfig()
	app := newApp(cfg, newMemoryKeyValueStore(), clockwork.NewFakeClockAt(testNow), discardLogger(), NewMetricsForTesting(), stringOverlaySource{body: testKML})
	client := newTestClient(t, app.routes())

	rec := client.get("/overlay.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	var shapes ShapeCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shapes))
	require.Len(t, shapes.Features, 4)
	assert.Equal(t, "Boisé", shapes.Features[0].Properties["name"])
}

func TestListReportsAPI(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())
	client.postForm("/reports", url.Values{"lat": {"45.1"}, "lng": {"-73.1"}, "description": {"Pin"}})

	rec := client.get("/api/v1/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Reports []Report `json:"reports"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 1, payload.Count)
	require.Len(t, payload.Reports, 1)
	assert.Equal(t, testNow.UnixMilli(), payload.Reports[0].ID)
}

func TestLanguageSwitch(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	rec := client.postForm("/language", url.Values{"language": {"en"}, "next": {"https://evil.example"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	body := client.get("/").Body.String()
	assert.Contains(t, body, "Report a fallen tree")
	assert.Contains(t, body, `<html lang="en">`)
}

func TestUnknownNoticeIsIgnored(t *testing.T) {
	app := newTestApp(t, nil)
	client := newTestClient(t, app.routes())

	body := client.get("/?notice=%3Cscript%3Ex%3C%2Fscript%3E").Body.String()
	assert.NotContains(t, body, "flash-notice")
}

func TestHealthAndReadiness(t *testing.T) {
	kv := &failingStore{KeyValueStore: newMemoryKeyValueStore()}
	app := newTestApp(t, kv)
	client := newTestClient(t, app.routes())

	assert.Equal(t, http.StatusOK, client.get("/healthz").Code)
	assert.Equal(t, http.StatusOK, client.get("/readyz").Code)

	kv.failGet = true
	assert.Equal(t, http.StatusServiceUnavailable, client.get("/readyz").Code)
}

func TestParseCoordinatePair(t *testing.T) {
	lat, lng, ok := parseCoordinatePair(" 45.2657 ", "-73.3358")
	assert.True(t, ok)
	assert.Equal(t, 45.2657, lat)
	assert.Equal(t, -73.3358, lng)

	_, _, ok = parseCoordinatePair("", "1")
	assert.False(t, ok)
	_, _, ok = parseCoordinatePair("Inf", "1")
	assert.False(t, ok)
}
