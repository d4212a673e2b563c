package main

import (
	"html/template"
	"time"
)

const (
	languageCookieName    = "forestkeeper_language"
	defaultLanguage       = "fr"
	languageCookieMaxAge  = 180 * 24 * time.Hour
	templateHomePath      = "templates/home.tmpl"
	templateAdminLogin    = "templates/admin_login.tmpl"
	templateAdminMapPath  = "templates/admin_map.tmpl"
	templateMapPartial    = "templates/map.tmpl"
	templateLayoutPath    = "templates/layout.tmpl"
	exportDisplayTSLayout = "2006-01-02 15:04"
)

var translations = map[string]map[string]string{
	"fr": {
		"app_title":               "Forest Keeper",
		"page_title_home":         "Signalements d'arbres tombés",
		"page_title_admin":        "Administration",
		"language_label":          "Langue",
		"language_apply":          "Changer",
		"language_fr":             "Français",
		"language_en":             "English",
		"report_button":           "Signaler un arbre tombé",
		"instructions":            "Cliquez sur la carte pour indiquer l'emplacement de l'arbre.",
		"cancel":                  "Annuler",
		"form_title":              "Détails du signalement",
		"description_label":       "Description (optionnel)",
		"description_placeholder": "Ex: Gros chêne en travers du sentier...",
		"submit":                  "Envoyer le signalement",
		"submitting":              "Envoi en cours...",
		"notice_submitted":        "Signalement envoyé !",
		"error_submit_failed":     "L'envoi du signalement a échoué. Veuillez réessayer.",
		"popup_fallback":          "Arbre tombé",
		"admin_title":             "Admin Access",
		"admin_password":          "Mot de passe",
		"admin_enter":             "Entrer",
		"admin_logout":            "Quitter",
		"error_invalid_password":  "Mot de passe incorrect",
		"confirm_delete":          "Supprimer ce signalement ?",
		"click_to_delete":         "Cliquez pour supprimer",
		"notice_deleted":          "Signalement supprimé.",
		"error_delete_failed":     "La suppression a échoué.",
		"error_invalid_report":    "Signalement introuvable.",
		"exports_title":           "Exporter",
		"exports_csv":             "CSV",
		"exports_geojson":         "GeoJSON",
		"exports_pdf":             "PDF",
		"export_pdf_title":        "Signalements d'arbres tombés",
		"col_id":                  "ID",
		"col_created":             "Date",
		"col_lat":                 "Latitude",
		"col_lng":                 "Longitude",
		"col_description":         "Description",
		"report_count":            "Signalements",
		"mail_subject":            "Nouveau signalement d'arbre tombé",
	},
	"en": {
		"app_title":               "Forest Keeper",
		"page_title_home":         "Fallen tree reports",
		"page_title_admin":        "Administration",
		"language_label":          "Language",
		"language_apply":          "Apply",
		"language_fr":             "Français",
		"language_en":             "English",
		"report_button":           "Report a fallen tree",
		"instructions":            "Click the map to mark where the tree is.",
		"cancel":                  "Cancel",
		"form_title":              "Report details",
		"description_label":       "Description (optional)",
		"description_placeholder": "E.g. large oak across the trail...",
		"submit":                  "Send report",
		"submitting":              "Sending...",
		"notice_submitted":        "Report sent!",
		"error_submit_failed":     "The report could not be saved. Please try again.",
		"popup_fallback":          "Fallen tree",
		"admin_title":             "Admin Access",
		"admin_password":          "Password",
		"admin_enter":             "Enter",
		"admin_logout":            "Leave",
		"error_invalid_password":  "Incorrect password",
		"confirm_delete":          "Delete this report?",
		"click_to_delete":         "Click to delete",
		"notice_deleted":          "Report deleted.",
		"error_delete_failed":     "The report could not be deleted.",
		"error_invalid_report":    "Report not found.",
		"exports_title":           "Export",
		"exports_csv":             "CSV",
		"exports_geojson":         "GeoJSON",
		"exports_pdf":             "PDF",
		"export_pdf_title":        "Fallen tree reports",
		"col_id":                  "ID",
		"col_created":             "Date",
		"col_lat":                 "Latitude",
		"col_lng":                 "Longitude",
		"col_description":         "Description",
		"report_count":            "Reports",
		"mail_subject":            "New fallen tree report",
	},
}

// noticeKeys and errorKeys are the only values accepted from ?notice= and
// ?error= so query strings cannot inject page text.
var (
	noticeKeys = map[string]string{
		"submitted": "notice_submitted",
		"deleted":   "notice_deleted",
	}
	errorKeys = map[string]string{
		"delete_failed":  "error_delete_failed",
		"invalid_report": "error_invalid_report",
	}
)

type baseViewData struct {
	Title         string
	Lang          string
	Text          map[string]string
	CurrentPath   string
	ErrorMessage  string
	NoticeMessage string
	IncludeMap    bool
	AdminOpen     bool
}

// mapViewData is what map.js reads from the page.
type mapViewData struct {
	Mode          string           `json:"mode"`
	Center        Coordinate       `json:"center"`
	Zoom          int              `json:"zoom"`
	MaxZoom       int              `json:"maxZoom"`
	MaxNativeZoom int              `json:"maxNativeZoom"`
	TileURL       string           `json:"tileUrl"`
	Attribution   string           `json:"attribution"`
	Overlay       *ShapeCollection `json:"overlay"`
	OverlayStyle  OverlayStyle     `json:"overlayStyle"`
	Markers       []Marker         `json:"markers"`
	Selection     *Coordinate      `json:"selection"`
	Reporting     bool             `json:"reporting"`
	ConfirmText   string           `json:"confirmText"`
	DeleteHint    string           `json:"deleteHint"`
}

type homeViewData struct {
	baseViewData
	MapData     template.JS
	State       string
	Reporting   bool
	HasLocation bool
	Selection   *Coordinate
	Description string
}

type adminLoginViewData struct {
	baseViewData
}

type adminMapViewData struct {
	baseViewData
	MapData     template.JS
	ReportCount int
}
