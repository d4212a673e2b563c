package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/Maringouin10/foretkeper/libs/mailer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingMailProvider struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (p *capturingMailProvider) Name() string { return "capture" }

func (p *capturingMailProvider) Send(_ context.Context, msg mailer.Message) (mailer.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return mailer.SendResult{}, p.err
	}
	p.sent = append(p.sent, msg)
	return mailer.SendResult{ProviderMessageID: "capture-1"}, nil
}

func TestNotifyNewReportSendsMail(t *testing.T) {
	provider := &capturingMailProvider{}
	app := newTestApp(t, nil)
	app.cfg.ReportNotifyEmail = "ops@example.org"
	app.mailer = mailer.New(provider, "noreply@forestkeeper.local")
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{"lat": {"45.2657"}, "lng": {"-73.3358"}, "description": {"Pruche"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	require.Len(t, provider.sent, 1)
	msg := provider.sent[0]
	assert.Equal(t, []string{"ops@example.org"}, msg.To)
	assert.Equal(t, "noreply@forestkeeper.local", msg.From)
	assert.Contains(t, msg.Text, "Pruche")
	assert.Contains(t, msg.HTML, "openstreetmap.org")
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.NotificationsSent.WithLabelValues("sent")))
}

func TestNotifyNewReportSkippedWithoutRecipient(t *testing.T) {
	provider := &capturingMailProvider{}
	app := newTestApp(t, nil)
	app.mailer = mailer.New(provider, "noreply@forestkeeper.local")

	app.notifyNewReport(context.Background(), defaultLanguage, Report{ID: 1, Latitude: 1, Longitude: 2})
	assert.Empty(t, provider.sent)
}

func TestNotifyNewReportFailureDoesNotFailSubmission(t *testing.T) {
	provider := &capturingMailProvider{err: errors.New("smtp unavailable")}
	app := newTestApp(t, nil)
	app.cfg.ReportNotifyEmail = "ops@example.org"
	app.mailer = mailer.New(provider, "noreply@forestkeeper.local")
	client := newTestClient(t, app.routes())

	rec := client.postForm("/reports", url.Values{"lat": {"45.2657"}, "lng": {"-73.3358"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?notice=submitted", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.NotificationsSent.WithLabelValues("error")))
	assert.Len(t, pageMapData(t, client.get("/").Body.String()).Markers, 1)
}
