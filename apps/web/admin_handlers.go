package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) registerAdminRoutes(r *gin.Engine) {
	r.GET("/admin", a.adminPageHandler)
	r.POST("/admin/login", a.adminLoginSubmitHandler)
	r.POST("/admin/logout", a.adminLogoutSubmitHandler)

	admin := r.Group("/admin")
	admin.Use(a.requireAdminGate())
	{
		admin.POST("/reports/:id/delete", a.adminDeleteReportSubmitHandler)
		admin.GET("/exports/reports.csv", a.adminExportHandler(exportFormatCSV))
		admin.GET("/exports/reports.geojson", a.adminExportHandler(exportFormatGeoJSON))
		admin.GET("/exports/reports.pdf", a.adminExportHandler(exportFormatPDF))
	}
}

// adminPageHandler shows the password form until the gate is open, then the
// admin-mode map.
func (a *App) adminPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	if !a.adminGateIsOpen(c) {
		a.renderAdminLogin(c, http.StatusOK, lang, "")
		return
	}

	store := a.reportStoreFor(c)
	view := a.mountMapView(c.Request.Context(), MapModeAdmin, store, lang)
	mapData, err := encodeMapData(view, lang, false)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	base := a.baseData(c, lang, "page_title_admin")
	base.AdminOpen = true
	a.renderTemplate(c, http.StatusOK, templateAdminMapPath, adminMapViewData{
		baseViewData: base,
		MapData:      mapData,
		ReportCount:  len(view.Markers),
	})
}

func (a *App) adminLoginSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	if !a.gate.Check(c.PostForm("password")) {
		a.metrics.AdminGateAttempts.WithLabelValues("rejected").Inc()
		a.log.Warn("admin gate rejected", "ip", c.ClientIP())
		a.renderAdminLogin(c, http.StatusUnauthorized, lang, text(lang, "error_invalid_password"))
		return
	}

	a.metrics.AdminGateAttempts.WithLabelValues("accepted").Inc()
	if err := a.openAdminGate(c); err != nil {
		writeAPIError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (a *App) adminLogoutSubmitHandler(c *gin.Context) {
	a.closeAdminGate(c)
	c.Redirect(http.StatusSeeOther, "/admin")
}

// adminDeleteReportSubmitHandler is the admin marker click. The browser asks
// for confirmation and posts confirmed=yes; anything else deletes nothing.
func (a *App) adminDeleteReportSubmitHandler(c *gin.Context) {
	reportID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		redirectAdminWithMessage(c, "error", "invalid_report")
		return
	}

	lang := a.languageFromRequest(c)
	ctx := c.Request.Context()
	store := a.reportStoreFor(c)
	view := newMapView(MapModeAdmin, store.List(ctx), nil, mapLabels{
		fallback: text(lang, "popup_fallback"),
		lang:     lang,
		location: a.displayLocation,
	})
	view.OnDelete(store)

	confirmed := strings.EqualFold(strings.TrimSpace(c.PostForm("confirmed")), "yes")
	result, err := view.ClickMarker(ctx, reportID, func(Marker) bool { return confirmed })
	switch {
	case errors.Is(err, errMarkerNotFound):
		redirectAdminWithMessage(c, "error", "invalid_report")
		return
	case err != nil:
		a.log.Error("report delete failed", "report_id", reportID, "error", err)
		redirectAdminWithMessage(c, "error", "delete_failed")
		return
	}

	if !result.Deleted {
		c.Redirect(http.StatusSeeOther, "/admin")
		return
	}
	a.metrics.ReportsDeleted.Inc()
	a.log.Info("report deleted", "report_id", reportID)
	redirectAdminWithMessage(c, "notice", "deleted")
}

func (a *App) renderAdminLogin(c *gin.Context, status int, lang, errorMessage string) {
	base := a.baseData(c, lang, "admin_title")
	base.IncludeMap = false
	if errorMessage != "" {
		base.ErrorMessage = errorMessage
	}
	a.renderTemplate(c, status, templateAdminLogin, adminLoginViewData{baseViewData: base})
}

func redirectAdminWithMessage(c *gin.Context, key, value string) {
	query := url.Values{}
	query.Set(key, value)
	c.Redirect(http.StatusSeeOther, "/admin?"+query.Encode())
}
