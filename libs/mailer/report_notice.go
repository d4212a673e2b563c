package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
)

// ReportNotice describes a newly submitted fallen-tree report.
type ReportNotice struct {
	Subject     string
	ReportID    int64
	Latitude    float64
	Longitude   float64
	Description string
	CreatedAt   string
}

var reportNoticeHTML = template.Must(template.New("notice").Parse(
	`<p><strong>#{{.ReportID}}</strong> {{.CreatedAt}}</p>` +
		`<p>{{.Description}}</p>` +
		`<p><a href="{{.MapURL}}">{{.Coordinates}}</a></p>`,
))

// OSMLink points at the report position on openstreetmap.org.
func (n ReportNotice) OSMLink() string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=18/%s/%s",
		formatCoordinate(n.Latitude), formatCoordinate(n.Longitude),
		formatCoordinate(n.Latitude), formatCoordinate(n.Longitude))
}

// NewReportNoticeMessage builds the text and HTML bodies of a notice.
func NewReportNoticeMessage(to []string, notice ReportNotice) (Message, error) {
	coordinates := formatCoordinate(notice.Latitude) + ", " + formatCoordinate(notice.Longitude)

	var html bytes.Buffer
	err := reportNoticeHTML.Execute(&html, map[string]any{
		"ReportID":    notice.ReportID,
		"CreatedAt":   notice.CreatedAt,
		"Description": notice.Description,
		"MapURL":      notice.OSMLink(),
		"Coordinates": coordinates,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render notice: %w", err)
	}

	text := fmt.Sprintf("#%d %s\n%s\n%s\n%s\n",
		notice.ReportID, notice.CreatedAt, notice.Description, coordinates, notice.OSMLink())

	return Message{
		To:      to,
		Subject: notice.Subject,
		HTML:    html.String(),
		Text:    text,
	}, nil
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', 6, 64)
}
