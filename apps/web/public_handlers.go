package main

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) homePageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	store := a.reportStoreFor(c)

	composer := &Composer{}
	if c.Query("reporting") == "1" {
		composer.Start()
	}

	view := a.mountMapView(c.Request.Context(), MapModeBrowsing, store, lang)
	view.OnLocationSelected(composer)
	if lat, lng, ok := parseCoordinatePair(c.Query("lat"), c.Query("lng")); ok {
		view.ClickMap(lat, lng)
	}
	view.SetSelection(composer.Selection)

	a.renderHome(c, http.StatusOK, lang, view, composer)
}

func (a *App) createReportHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	store := a.reportStoreFor(c)
	ctx := c.Request.Context()

	composer := &Composer{}
	composer.Start()
	lat, lng, ok := parseCoordinatePair(c.PostForm("lat"), c.PostForm("lng"))
	if !ok {
		c.Redirect(http.StatusSeeOther, "/?reporting=1")
		return
	}
	composer.LocationSelected(lat, lng)
	composer.SetDescription(c.PostForm("description"))

	if err := composer.Submit(ctx, store); err != nil {
		a.log.Error("report submission failed", "error", err)
		a.metrics.SubmissionFailures.Inc()

		view := a.mountMapView(ctx, MapModeBrowsing, store, lang)
		view.OnLocationSelected(composer)
		view.SetSelection(composer.Selection)
		a.renderHome(c, http.StatusInternalServerError, lang, view, composer)
		return
	}

	a.metrics.ReportsCreated.Inc()
	a.notifyNewReport(ctx, lang, *composer.Submitted)
	c.Redirect(http.StatusSeeOther, "/?notice=submitted")
}

func (a *App) overlayHandler(c *gin.Context) {
	shapes := a.overlay.LoadOrEmpty(c.Request.Context())
	if shapes == nil {
		shapes = emptyShapeCollection()
	}
	c.JSON(http.StatusOK, shapes)
}

func (a *App) listReportsHandler(c *gin.Context) {
	reports := a.reportStoreFor(c).List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

func (a *App) languageSubmitHandler(c *gin.Context) {
	a.setLanguageCookie(c, c.PostForm("language"))
	target := strings.TrimSpace(c.PostForm("next"))
	if target != "/admin" {
		target = "/"
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (a *App) renderHome(c *gin.Context, status int, lang string, view *MapView, composer *Composer) {
	base := a.baseData(c, lang, "page_title_home")
	if composer.Err != nil {
		base.ErrorMessage = text(lang, "error_submit_failed")
	}

	mapData, err := encodeMapData(view, lang, composer.Reporting())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.renderTemplate(c, status, templateHomePath, homeViewData{
		baseViewData: base,
		MapData:      mapData,
		State:        composer.State.String(),
		Reporting:    composer.Reporting(),
		HasLocation:  composer.State == ComposerLocationSelected && composer.Selection != nil,
		Selection:    composer.Selection,
		Description:  composer.Description,
	})
}

// mountMapView reads the collection and the overlay once, as a fresh page
// mount does.
func (a *App) mountMapView(ctx context.Context, mode MapMode, store *ReportStore, lang string) *MapView {
	return newMapView(mode, store.List(ctx), a.overlay.LoadOrEmpty(ctx), mapLabels{
		fallback: text(lang, "popup_fallback"),
		lang:     lang,
		location: a.displayLocation,
	})
}

func encodeMapData(view *MapView, lang string, reporting bool) (template.JS, error) {
	data := mapViewData{
		Mode:          view.Mode.String(),
		Center:        view.Center,
		Zoom:          view.Zoom,
		MaxZoom:       mapMaxZoom,
		MaxNativeZoom: mapMaxNativeZoom,
		TileURL:       mapTileURL,
		Attribution:   mapTileAttribution,
		Overlay:       view.Overlay,
		OverlayStyle:  OverlayStyle{Color: overlayStrokeColor, Weight: overlayStrokeWidth},
		Markers:       view.Markers,
		Selection:     view.Selection,
		Reporting:     reporting,
		ConfirmText:   text(lang, "confirm_delete"),
		DeleteHint:    text(lang, "click_to_delete"),
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return template.JS(encoded), nil
}

func (a *App) baseData(c *gin.Context, lang, titleKey string) baseViewData {
	return baseViewData{
		Title:         text(lang, titleKey),
		Lang:          lang,
		Text:          texts(lang),
		CurrentPath:   c.Request.URL.Path,
		ErrorMessage:  messageFromQuery(lang, errorKeys, c.Query("error")),
		NoticeMessage: messageFromQuery(lang, noticeKeys, c.Query("notice")),
		IncludeMap:    true,
	}
}

// parseCoordinatePair accepts only two finite decimal numbers.
func parseCoordinatePair(rawLat, rawLng string) (float64, float64, bool) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(rawLng), 64)
	if errLat != nil || errLng != nil || !isFinite(lat) || !isFinite(lng) {
		return 0, 0, false
	}
	return lat, lng, true
}

func messageFromQuery(lang string, keys map[string]string, raw string) string {
	key, ok := keys[strings.TrimSpace(raw)]
	if !ok {
		return ""
	}
	return text(lang, key)
}

func (a *App) setLanguageCookie(c *gin.Context, language string) {
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetCookie(languageCookieName, normalizeLanguage(language), int(languageCookieMaxAge.Seconds()), "/", "", secure, true)
}

func (a *App) languageFromRequest(c *gin.Context) string {
	cookieValue, err := c.Cookie(languageCookieName)
	if err != nil {
		return defaultLanguage
	}
	return normalizeLanguage(cookieValue)
}

func normalizeLanguage(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "en":
		return "en"
	default:
		return defaultLanguage
	}
}

func texts(lang string) map[string]string {
	if values, ok := translations[normalizeLanguage(lang)]; ok {
		return values
	}
	return translations[defaultLanguage]
}

func text(lang, key string) string {
	if value, ok := texts(lang)[key]; ok {
		return value
	}
	if value, ok := translations[defaultLanguage][key]; ok {
		return value
	}
	return key
}
