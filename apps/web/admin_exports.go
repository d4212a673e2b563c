package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
)

const (
	exportFormatCSV     = "csv"
	exportFormatGeoJSON = "geojson"
	exportFormatPDF     = "pdf"
	exportFileBaseName  = "forestkeeper-reports"
)

var exportContentTypes = map[string]string{
	exportFormatCSV:     "text/csv; charset=utf-8",
	exportFormatGeoJSON: "application/geo+json",
	exportFormatPDF:     "application/pdf",
}

func (a *App) adminExportHandler(format string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := a.languageFromRequest(c)
		reports := sortReportsForExport(a.reportStoreFor(c).List(c.Request.Context()))

		var (
			body []byte
			err  error
		)
		switch format {
		case exportFormatCSV:
			body, err = buildCSV(reports)
		case exportFormatGeoJSON:
			body, err = buildGeoJSON(reports)
		case exportFormatPDF:
			body, err = buildPDF(reports, text(lang, "export_pdf_title"), lang, a.displayLocation, a.clock.Now())
		default:
			err = &apiError{Status: http.StatusNotFound, Code: "unknown_format", Message: "Unknown export format"}
		}
		if err != nil {
			a.log.Error("export failed", "format", format, "error", err)
			writeAPIError(c, err)
			return
		}

		a.metrics.ExportsGenerated.WithLabelValues(format).Inc()
		fileName := fmt.Sprintf("%s-%s.%s", exportFileBaseName, a.clock.Now().UTC().Format("20060102"), format)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		c.Data(http.StatusOK, exportContentTypes[format], body)
	}
}

// sortReportsForExport orders by creation time, then id.
func sortReportsForExport(reports []Report) []Report {
	sorted := append([]Report{}, reports...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func buildCSV(reports []Report) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	if err := writer.Write([]string{"id", "created_at", "lat", "lng", "description"}); err != nil {
		return nil, err
	}
	for _, report := range reports {
		description := ""
		if report.Description != nil {
			description = *report.Description
		}
		row := []string{
			strconv.FormatInt(report.ID, 10),
			report.CreatedAt,
			strconv.FormatFloat(report.Latitude, 'f', -1, 64),
			strconv.FormatFloat(report.Longitude, 'f', -1, 64),
			description,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildGeoJSON(reports []Report) ([]byte, error) {
	features := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		features = append(features, map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{report.Longitude, report.Latitude},
			},
			"properties": map[string]any{
				"id":          report.ID,
				"created_at":  report.CreatedAt,
				"description": report.Description,
			},
		})
	}
	payload := map[string]any{"type": "FeatureCollection", "features": features}
	return json.MarshalIndent(payload, "", "  ")
}

func buildPDF(reports []Report, title, lang string, location *time.Location, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if location == nil {
		location = time.UTC
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, generatedAt.In(location).Format(exportDisplayTSLayout))
	pdf.Ln(7)
	pdf.Cell(0, 8, tr(fmt.Sprintf("%s: %d", text(lang, "report_count"), len(reports))))
	pdf.Ln(10)

	widths := []float64{30, 32, 26, 26, 76}
	headers := []string{"col_id", "col_created", "col_lat", "col_lng", "col_description"}
	pdf.SetFont("Helvetica", "B", 10)
	for i, key := range headers {
		pdf.CellFormat(widths[i], 7, tr(text(lang, key)), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, report := range reports {
		description := text(lang, "popup_fallback")
		if report.Description != nil {
			description = truncateRunes(*report.Description, 45)
		}
		created := report.CreatedAt
		if parsed, err := time.Parse(time.RFC3339, report.CreatedAt); err == nil {
			created = parsed.In(location).Format(exportDisplayTSLayout)
		}
		row := []string{
			strconv.FormatInt(report.ID, 10),
			created,
			strconv.FormatFloat(report.Latitude, 'f', 5, 64),
			strconv.FormatFloat(report.Longitude, 'f', 5, 64),
			description,
		}
		for i, value := range row {
			pdf.CellFormat(widths[i], 6, tr(value), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
